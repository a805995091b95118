// Package seed bootstraps a deployment with the builtin role bundles,
// initial users, and a starter compliance catalog. Every step is
// idempotent so the seeder can run on each boot.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"grcore.org/internal/auth"
	"grcore.org/internal/compliance"
	"grcore.org/internal/ids"
)

// Spec describes the desired bootstrap state.
type Spec struct {
	Roles      []RoleSpec      `yaml:"roles"`
	Users      []UserSpec      `yaml:"users"`
	Frameworks []FrameworkSpec `yaml:"frameworks"`
	Controls   []ControlSpec   `yaml:"controls"`
	Mappings   []MappingSpec   `yaml:"mappings"`
}

type RoleSpec struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type UserSpec struct {
	Email    string   `yaml:"email"`
	FullName string   `yaml:"full_name"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

type FrameworkSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type ControlSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type MappingSpec struct {
	Control   string `yaml:"control"`
	Framework string `yaml:"framework"`
	Status    string `yaml:"status"`
	Notes     string `yaml:"notes"`
}

// Load reads a spec from a YAML file. An empty path yields the
// builtin default spec.
func Load(path string) (*Spec, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &spec, nil
}

// Default returns the builtin bootstrap spec: the four standard role
// bundles, one administrator, and a small compliance catalog.
func Default() *Spec {
	return &Spec{
		Roles: []RoleSpec{
			{Name: "Admin", Permissions: auth.BuiltinPermissions},
			{Name: "Manager", Permissions: []string{
				auth.PermUserRead, auth.PermAccessRead, auth.PermAccessApprove,
				auth.PermRiskRead, auth.PermRiskWrite,
				auth.PermComplianceRead, auth.PermAuditRead, auth.PermReportExport,
			}},
			{Name: "Auditor", Permissions: []string{
				auth.PermUserRead, auth.PermAccessRead, auth.PermRiskRead,
				auth.PermComplianceRead, auth.PermAuditRead, auth.PermReportExport,
			}},
			{Name: "Employee", Permissions: []string{
				auth.PermAccessRead, auth.PermRiskRead, auth.PermComplianceRead,
			}},
		},
		Users: []UserSpec{
			{Email: "admin@grcore.local", FullName: "Administrator", Password: "change-me-now", Roles: []string{"Admin"}},
		},
		Frameworks: []FrameworkSpec{
			{Name: "ISO 27001", Description: "Information security management"},
			{Name: "SOC 2", Description: "Trust services criteria"},
			{Name: "GDPR", Description: "EU data protection regulation"},
		},
		Controls: []ControlSpec{
			{Name: "Access Reviews", Description: "Quarterly review of user access rights"},
			{Name: "Encryption At Rest", Description: "All persistent data is encrypted"},
			{Name: "Incident Response Plan", Description: "Documented and tested incident runbook"},
		},
		Mappings: []MappingSpec{
			{Control: "Access Reviews", Framework: "ISO 27001", Status: "COMPLIANT"},
			{Control: "Access Reviews", Framework: "SOC 2", Status: "PARTIAL"},
			{Control: "Encryption At Rest", Framework: "GDPR", Status: "PARTIAL", Notes: "Key rotation pending"},
		},
	}
}

// Seeder applies a Spec against the identity and compliance stores.
type Seeder struct {
	auth       auth.Store
	compliance compliance.Store
}

func New(authStore auth.Store, complianceStore compliance.Store) *Seeder {
	return &Seeder{auth: authStore, compliance: complianceStore}
}

// Apply converges the stores toward the spec. Existing rows are left
// untouched; only missing roles, users, and catalog entries are
// created. Bootstrap writes carry no audit entry since there is no
// acting principal yet.
func (s *Seeder) Apply(ctx context.Context, spec *Spec) error {
	if spec == nil {
		spec = Default()
	}
	if err := s.auth.Permissions().Ensure(ctx, auth.BuiltinPermissions); err != nil {
		return fmt.Errorf("ensure permissions: %w", err)
	}
	for _, rs := range spec.Roles {
		role, err := s.auth.Roles().Ensure(ctx, rs.Name)
		if err != nil {
			return fmt.Errorf("ensure role %s: %w", rs.Name, err)
		}
		if err := s.auth.Permissions().SetForRole(ctx, role.ID, rs.Permissions); err != nil {
			return fmt.Errorf("bind permissions for %s: %w", rs.Name, err)
		}
	}
	for _, us := range spec.Users {
		if err := s.applyUser(ctx, us); err != nil {
			return err
		}
	}
	if err := s.applyCatalog(ctx, spec); err != nil {
		return err
	}
	return nil
}

func (s *Seeder) applyUser(ctx context.Context, us UserSpec) error {
	existing, err := s.auth.Users().FindByEmail(ctx, us.Email)
	if err != nil && !errors.Is(err, auth.ErrNotFound) {
		return fmt.Errorf("lookup user %s: %w", us.Email, err)
	}
	userID := ""
	if existing != nil {
		userID = existing.ID
	} else {
		hash, err := auth.HashPassword(us.Password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", us.Email, err)
		}
		user := &auth.User{
			ID:           ids.New(),
			Email:        us.Email,
			FullName:     us.FullName,
			PasswordHash: hash,
		}
		if err := s.auth.Users().Create(ctx, user, nil); err != nil {
			return fmt.Errorf("create user %s: %w", us.Email, err)
		}
		userID = user.ID
	}
	if len(us.Roles) == 0 {
		return nil
	}
	roles, missing, err := s.auth.Roles().FindByNames(ctx, us.Roles)
	if err != nil {
		return fmt.Errorf("resolve roles for %s: %w", us.Email, err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("user %s references unknown roles %v", us.Email, missing)
	}
	// Existing users keep the seeded role set too; the seed file is
	// the source of truth for the accounts it names.
	roleIDs := make([]string, 0, len(roles))
	for _, r := range roles {
		roleIDs = append(roleIDs, r.ID)
	}
	if err := s.auth.Users().ReplaceRoles(ctx, userID, roleIDs, nil); err != nil {
		return fmt.Errorf("assign roles for %s: %w", us.Email, err)
	}
	return nil
}

func (s *Seeder) applyCatalog(ctx context.Context, spec *Spec) error {
	frameworks, err := s.compliance.ListFrameworks(ctx)
	if err != nil {
		return err
	}
	frameworkIDs := make(map[string]string, len(frameworks))
	for _, f := range frameworks {
		frameworkIDs[f.Name] = f.ID
	}
	for _, fs := range spec.Frameworks {
		if _, ok := frameworkIDs[fs.Name]; ok {
			continue
		}
		f := &compliance.Framework{ID: ids.New(), Name: fs.Name, Description: fs.Description}
		if err := s.compliance.CreateFramework(ctx, f, nil); err != nil {
			if errors.Is(err, compliance.ErrConflict) {
				continue
			}
			return fmt.Errorf("create framework %s: %w", fs.Name, err)
		}
		frameworkIDs[f.Name] = f.ID
	}

	controls, err := s.compliance.ListControls(ctx)
	if err != nil {
		return err
	}
	controlIDs := make(map[string]string, len(controls))
	for _, c := range controls {
		controlIDs[c.Name] = c.ID
	}
	for _, cs := range spec.Controls {
		if _, ok := controlIDs[cs.Name]; ok {
			continue
		}
		c := &compliance.Control{ID: ids.New(), Name: cs.Name, Description: cs.Description}
		if err := s.compliance.CreateControl(ctx, c, nil); err != nil {
			if errors.Is(err, compliance.ErrConflict) {
				continue
			}
			return fmt.Errorf("create control %s: %w", cs.Name, err)
		}
		controlIDs[c.Name] = c.ID
	}

	for _, ms := range spec.Mappings {
		controlID, ok := controlIDs[ms.Control]
		if !ok {
			return fmt.Errorf("mapping references unknown control %q", ms.Control)
		}
		frameworkID, ok := frameworkIDs[ms.Framework]
		if !ok {
			return fmt.Errorf("mapping references unknown framework %q", ms.Framework)
		}
		status := compliance.MappingStatus(ms.Status)
		if status == "" {
			status = compliance.StatusPartial
		}
		if !status.Valid() {
			return fmt.Errorf("mapping %s/%s has unknown status %q", ms.Control, ms.Framework, ms.Status)
		}
		m := &compliance.Mapping{
			ID:          ids.New(),
			ControlID:   controlID,
			FrameworkID: frameworkID,
			Status:      status,
			Notes:       ms.Notes,
		}
		if err := s.compliance.CreateMapping(ctx, m, nil); err != nil {
			if errors.Is(err, compliance.ErrConflict) {
				continue
			}
			return fmt.Errorf("create mapping %s/%s: %w", ms.Control, ms.Framework, err)
		}
	}
	return nil
}
