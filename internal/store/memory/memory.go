// Package memory implements every store interface in-process. It backs
// local development and the handler tests; the mutex gives the same
// check-and-mutate atomicity the postgres store gets from transactions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"grcore.org/internal/access"
	"grcore.org/internal/audit"
	"grcore.org/internal/auth"
	"grcore.org/internal/compliance"
	"grcore.org/internal/ids"
	"grcore.org/internal/obs"
	"grcore.org/internal/risk"
)

// Store holds all state behind one lock.
type Store struct {
	mu sync.RWMutex

	users      map[string]*auth.User
	emailIndex map[string]string
	roles      map[string]auth.Role
	roleByName map[string]string
	permCodes  map[string]struct{}
	rolePerms  map[string][]string
	userRoles  map[string][]string

	requests   map[string]access.Request
	risks      map[string]risk.Risk
	frameworks map[string]compliance.Framework
	controls   map[string]compliance.Control
	mappings   map[string]compliance.Mapping

	auditSeq     uint64
	auditEntries []audit.Entry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]*auth.User),
		emailIndex: make(map[string]string),
		roles:      make(map[string]auth.Role),
		roleByName: make(map[string]string),
		permCodes:  make(map[string]struct{}),
		rolePerms:  make(map[string][]string),
		userRoles:  make(map[string][]string),
		requests:   make(map[string]access.Request),
		risks:      make(map[string]risk.Risk),
		frameworks: make(map[string]compliance.Framework),
		controls:   make(map[string]compliance.Control),
		mappings:   make(map[string]compliance.Mapping),
	}
}

// appendAudit records the entry under the caller's lock so the append
// is atomic with the mutation it describes.
func (s *Store) appendAudit(entry *audit.Entry) {
	if entry == nil {
		return
	}
	s.auditSeq++
	entry.Seq = s.auditSeq
	entry.CreatedAt = time.Now().UTC()
	s.auditEntries = append(s.auditEntries, *entry)
	obs.CountAuditRecord(entry.Action)
}

// --- auth.Store ---

var _ auth.Store = (*Store)(nil)

func (s *Store) Users() auth.UserStore             { return userStore{s} }
func (s *Store) Roles() auth.RoleStore             { return roleStore{s} }
func (s *Store) Permissions() auth.PermissionStore { return permStore{s} }

type userStore struct{ s *Store }

func (u userStore) Create(ctx context.Context, user *auth.User, entry *audit.Entry) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, exists := u.s.emailIndex[user.Email]; exists {
		return auth.ErrConflict
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	u.s.users[user.ID] = &cp
	u.s.emailIndex[user.Email] = user.ID
	u.s.appendAudit(entry)
	return nil
}

func (u userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (u userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	id, ok := u.s.emailIndex[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u.s.users[id]
	return &cp, nil
}

func (u userStore) List(ctx context.Context) ([]*auth.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	out := make([]*auth.User, 0, len(u.s.users))
	for _, user := range u.s.users {
		cp := *user
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (u userStore) ReplaceRoles(ctx context.Context, userID string, roleIDs []string, entry *audit.Entry) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[userID]; !ok {
		return auth.ErrNotFound
	}
	u.s.userRoles[userID] = append([]string(nil), roleIDs...)
	u.s.appendAudit(entry)
	return nil
}

func (u userStore) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	var out []auth.Role
	for _, roleID := range u.s.userRoles[userID] {
		if role, ok := u.s.roles[roleID]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

type roleStore struct{ s *Store }

func (r roleStore) Ensure(ctx context.Context, name string) (auth.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.roleByName[name]; ok {
		return r.s.roles[id], nil
	}
	role := auth.Role{ID: ids.New(), Name: name, CreatedAt: time.Now().UTC()}
	r.s.roles[role.ID] = role
	r.s.roleByName[name] = role.ID
	return role, nil
}

func (r roleStore) FindByNames(ctx context.Context, names []string) ([]auth.Role, []string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found []auth.Role
	var missing []string
	for _, name := range names {
		if id, ok := r.s.roleByName[name]; ok {
			found = append(found, r.s.roles[id])
		} else {
			missing = append(missing, name)
		}
	}
	return found, missing, nil
}

func (r roleStore) List(ctx context.Context) ([]auth.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]auth.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type permStore struct{ s *Store }

func (p permStore) Ensure(ctx context.Context, codes []string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for _, c := range codes {
		p.s.permCodes[c] = struct{}{}
	}
	return nil
}

func (p permStore) SetForRole(ctx context.Context, roleID string, codes []string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	for _, c := range codes {
		p.s.permCodes[c] = struct{}{}
	}
	p.s.rolePerms[roleID] = append([]string(nil), codes...)
	return nil
}

func (p permStore) CodesForRole(ctx context.Context, roleID string) ([]string, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	return append([]string(nil), p.s.rolePerms[roleID]...), nil
}

// --- access.Store ---

type accessStore struct{ s *Store }

// AccessRequests exposes the access request store.
func (s *Store) AccessRequests() access.Store { return accessStore{s} }

var _ access.Store = accessStore{}

func (a accessStore) Create(ctx context.Context, req *access.Request, entry *audit.Entry) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	req.CreatedAt = time.Now().UTC()
	a.s.requests[req.ID] = *req
	a.s.appendAudit(entry)
	return nil
}

func (a accessStore) Find(ctx context.Context, id string) (access.Request, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	req, ok := a.s.requests[id]
	if !ok {
		return access.Request{}, access.ErrNotFound
	}
	return req, nil
}

func (a accessStore) List(ctx context.Context) ([]access.Request, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	out := make([]access.Request, 0, len(a.s.requests))
	for _, req := range a.s.requests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (a accessStore) Decide(ctx context.Context, id string, target access.Status, approverID string, decidedAt time.Time, entry *audit.Entry) (access.Request, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	req, ok := a.s.requests[id]
	if !ok {
		return access.Request{}, access.ErrNotFound
	}
	// Transition only while still PENDING; the lock makes the
	// check-and-set atomic against concurrent deciders.
	if req.Status != access.StatusPending {
		return access.Request{}, access.ErrAlreadyDecided
	}
	req.Status = target
	req.ApprovedBy = approverID
	req.DecidedAt = &decidedAt
	a.s.requests[id] = req
	a.s.appendAudit(entry)
	return req, nil
}

// --- risk.Store ---

type riskStore struct{ s *Store }

// Risks exposes the risk register store.
func (s *Store) Risks() risk.Store { return riskStore{s} }

var _ risk.Store = riskStore{}

func (r riskStore) Create(ctx context.Context, rk *risk.Risk, entry *audit.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.risks[rk.ID] = *rk
	r.s.appendAudit(entry)
	return nil
}

func (r riskStore) Find(ctx context.Context, id string) (risk.Risk, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rk, ok := r.s.risks[id]
	if !ok {
		return risk.Risk{}, risk.ErrNotFound
	}
	return rk, nil
}

func (r riskStore) List(ctx context.Context) ([]risk.Risk, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]risk.Risk, 0, len(r.s.risks))
	for _, rk := range r.s.risks {
		out = append(out, rk)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r riskStore) Update(ctx context.Context, rk risk.Risk, entry *audit.Entry) (risk.Risk, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.risks[rk.ID]; !ok {
		return risk.Risk{}, risk.ErrNotFound
	}
	r.s.risks[rk.ID] = rk
	r.s.appendAudit(entry)
	return rk, nil
}

// --- compliance.Store ---

type complianceStore struct{ s *Store }

// Compliance exposes the compliance store.
func (s *Store) Compliance() compliance.Store { return complianceStore{s} }

var _ compliance.Store = complianceStore{}

func (c complianceStore) CreateFramework(ctx context.Context, f *compliance.Framework, entry *audit.Entry) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, existing := range c.s.frameworks {
		if existing.Name == f.Name {
			return compliance.ErrConflict
		}
	}
	f.CreatedAt = time.Now().UTC()
	c.s.frameworks[f.ID] = *f
	c.s.appendAudit(entry)
	return nil
}

func (c complianceStore) FindFramework(ctx context.Context, id string) (compliance.Framework, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	f, ok := c.s.frameworks[id]
	if !ok {
		return compliance.Framework{}, compliance.ErrNotFound
	}
	return f, nil
}

func (c complianceStore) ListFrameworks(ctx context.Context) ([]compliance.Framework, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make([]compliance.Framework, 0, len(c.s.frameworks))
	for _, f := range c.s.frameworks {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c complianceStore) CreateControl(ctx context.Context, ctl *compliance.Control, entry *audit.Entry) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, existing := range c.s.controls {
		if existing.Name == ctl.Name {
			return compliance.ErrConflict
		}
	}
	ctl.CreatedAt = time.Now().UTC()
	c.s.controls[ctl.ID] = *ctl
	c.s.appendAudit(entry)
	return nil
}

func (c complianceStore) FindControl(ctx context.Context, id string) (compliance.Control, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	ctl, ok := c.s.controls[id]
	if !ok {
		return compliance.Control{}, compliance.ErrNotFound
	}
	return ctl, nil
}

func (c complianceStore) ListControls(ctx context.Context) ([]compliance.Control, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make([]compliance.Control, 0, len(c.s.controls))
	for _, ctl := range c.s.controls {
		out = append(out, ctl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c complianceStore) CreateMapping(ctx context.Context, m *compliance.Mapping, entry *audit.Entry) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	// The pair is unique; checked under the same lock as the insert so
	// concurrent creations cannot both pass.
	for _, existing := range c.s.mappings {
		if existing.ControlID == m.ControlID && existing.FrameworkID == m.FrameworkID {
			return compliance.ErrConflict
		}
	}
	m.CreatedAt = time.Now().UTC()
	c.s.mappings[m.ID] = *m
	c.s.appendAudit(entry)
	return nil
}

func (c complianceStore) ListMappings(ctx context.Context) ([]compliance.Mapping, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make([]compliance.Mapping, 0, len(c.s.mappings))
	for _, m := range c.s.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// --- audit.Store ---

type auditStore struct{ s *Store }

// Audit exposes the audit trail store.
func (s *Store) Audit() audit.Store { return auditStore{s} }

var _ audit.Store = auditStore{}

func (a auditStore) Append(ctx context.Context, entry *audit.Entry) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.appendAudit(entry)
	return nil
}

func (a auditStore) List(ctx context.Context, limit int) ([]audit.Entry, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	out := make([]audit.Entry, 0, limit)
	for i := len(a.s.auditEntries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.s.auditEntries[i])
	}
	return out, nil
}
