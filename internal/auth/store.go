package auth

import (
	"context"

	"grcore.org/internal/audit"
)

// Store describes persistence operations required by the identity
// subsystem. Mutating methods that represent auditable state changes
// take the prepared audit entry and must persist it in the same
// transaction as the mutation.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
}

// UserStore manages users and their role assignments.
type UserStore interface {
	// Create inserts the user, failing with ErrConflict when the email
	// is already taken.
	Create(ctx context.Context, u *User, entry *audit.Entry) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// List returns all users ordered by email.
	List(ctx context.Context) ([]*User, error)
	// ReplaceRoles swaps the user's role set wholesale.
	ReplaceRoles(ctx context.Context, userID string, roleIDs []string, entry *audit.Entry) error
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
}

// RoleStore manages the role catalog.
type RoleStore interface {
	// Ensure creates the role if absent and returns it either way.
	Ensure(ctx context.Context, name string) (Role, error)
	// FindByNames resolves names to roles, preserving input order.
	// Names with no matching role are returned separately.
	FindByNames(ctx context.Context, names []string) (found []Role, missing []string, err error)
	List(ctx context.Context) ([]Role, error)
}

// PermissionStore manages the permission vocabulary.
type PermissionStore interface {
	// Ensure creates any of the given codes that do not yet exist.
	Ensure(ctx context.Context, codes []string) error
	// SetForRole replaces a role's permission set wholesale.
	SetForRole(ctx context.Context, roleID string, codes []string) error
	CodesForRole(ctx context.Context, roleID string) ([]string, error)
}
