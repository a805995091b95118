package auth

import "sort"

// Principal is a user with resolved roles and permissions. The
// permission set is the deduplicated union across all assigned roles;
// a user with no roles holds the empty set.
type Principal struct {
	User        *User
	Roles       []Role
	Permissions map[string]struct{}
}

// NewPrincipal resolves permission codes into a principal. Duplicate
// codes collapse; order is irrelevant.
func NewPrincipal(user *User, roles []Role, codes []string) Principal {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return Principal{User: user, Roles: roles, Permissions: set}
}

// HasPermission reports whether the principal holds the permission code.
func (p Principal) HasPermission(code string) bool {
	_, ok := p.Permissions[code]
	return ok
}

// PermissionCodes returns the resolved codes in sorted order.
func (p Principal) PermissionCodes() []string {
	out := make([]string, 0, len(p.Permissions))
	for c := range p.Permissions {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// RoleNames returns the assigned role names.
func (p Principal) RoleNames() []string {
	out := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		out = append(out, r.Name)
	}
	return out
}

// Require is the authorization gate placed before every mutating or
// sensitive read operation. It fails with a ForbiddenError naming every
// code the principal is missing; otherwise the principal passes through
// unchanged. Pure check, no mutation.
func Require(p Principal, codes ...string) error {
	var missing []string
	for _, c := range codes {
		if !p.HasPermission(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &ForbiddenError{Missing: missing}
	}
	return nil
}

// RequireOwnerOr waives the permission requirement when the acting
// principal owns the resource. The hybrid rule is evaluated per call,
// never cached.
func RequireOwnerOr(p Principal, ownerID string, codes ...string) error {
	if p.User != nil && ownerID != "" && p.User.ID == ownerID {
		return nil
	}
	return Require(p, codes...)
}
