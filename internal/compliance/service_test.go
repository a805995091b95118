package compliance_test

import (
	"context"
	"errors"
	"testing"

	"grcore.org/internal/auth"
	"grcore.org/internal/compliance"
	"grcore.org/internal/ids"
	"grcore.org/internal/store/memory"
)

func officer() auth.Principal {
	return auth.NewPrincipal(&auth.User{ID: ids.New(), Email: "comp@test"}, nil,
		[]string{auth.PermComplianceRead, auth.PermComplianceWrite})
}

func setup(t *testing.T) (*compliance.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return compliance.NewService(store.Compliance()), store
}

func TestMappingPairUniqueness(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	actor := officer()

	f1, err := svc.CreateFramework(ctx, actor, "ISO 27001", "")
	if err != nil {
		t.Fatalf("framework: %v", err)
	}
	f2, err := svc.CreateFramework(ctx, actor, "SOC 2", "")
	if err != nil {
		t.Fatalf("framework: %v", err)
	}
	c1, err := svc.CreateControl(ctx, actor, "Access Reviews", "")
	if err != nil {
		t.Fatalf("control: %v", err)
	}
	c2, err := svc.CreateControl(ctx, actor, "Encryption", "")
	if err != nil {
		t.Fatalf("control: %v", err)
	}

	if _, err := svc.CreateMapping(ctx, actor, c1.ID, f1.ID, compliance.StatusCompliant, ""); err != nil {
		t.Fatalf("first mapping: %v", err)
	}
	if _, err := svc.CreateMapping(ctx, actor, c1.ID, f1.ID, compliance.StatusPartial, ""); !errors.Is(err, compliance.ErrConflict) {
		t.Fatalf("duplicate pair: expected ErrConflict, got %v", err)
	}
	// Different pairs over the same entities are independent.
	if _, err := svc.CreateMapping(ctx, actor, c1.ID, f2.ID, compliance.StatusPartial, ""); err != nil {
		t.Fatalf("(c1,f2): %v", err)
	}
	if _, err := svc.CreateMapping(ctx, actor, c2.ID, f1.ID, compliance.StatusPartial, ""); err != nil {
		t.Fatalf("(c2,f1): %v", err)
	}
}

func TestMappingUnknownReferences(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	actor := officer()

	f, err := svc.CreateFramework(ctx, actor, "GDPR", "")
	if err != nil {
		t.Fatalf("framework: %v", err)
	}
	c, err := svc.CreateControl(ctx, actor, "Logging", "")
	if err != nil {
		t.Fatalf("control: %v", err)
	}

	var unknown *compliance.UnknownReferenceError
	if _, err := svc.CreateMapping(ctx, actor, "nope", f.ID, compliance.StatusPartial, ""); !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownReferenceError, got %v", err)
	}
	if unknown.Field != "control_id" {
		t.Fatalf("expected control_id named, got %s", unknown.Field)
	}
	if _, err := svc.CreateMapping(ctx, actor, c.ID, "nope", compliance.StatusPartial, ""); !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownReferenceError, got %v", err)
	}
	if unknown.Field != "framework_id" {
		t.Fatalf("expected framework_id named, got %s", unknown.Field)
	}
}

func TestMappingStatusDefaultsAndValidation(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	actor := officer()

	f, _ := svc.CreateFramework(ctx, actor, "ISO 27001", "")
	c, _ := svc.CreateControl(ctx, actor, "Backups", "")

	m, err := svc.CreateMapping(ctx, actor, c.ID, f.ID, "", "note")
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	if m.Status != compliance.StatusPartial {
		t.Fatalf("expected default PARTIAL, got %s", m.Status)
	}

	c2, _ := svc.CreateControl(ctx, actor, "Alerts", "")
	if _, err := svc.CreateMapping(ctx, actor, c2.ID, f.ID, "MAYBE", ""); !errors.Is(err, compliance.ErrInvalidInput) {
		t.Fatalf("bad status: expected ErrInvalidInput, got %v", err)
	}
}

func TestDescriptionsArePersisted(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	actor := officer()

	f, err := svc.CreateFramework(ctx, actor, "ISO 27001", "Information security management")
	if err != nil {
		t.Fatalf("framework: %v", err)
	}
	if f.Description != "Information security management" {
		t.Fatalf("framework description lost: %+v", f)
	}
	c, err := svc.CreateControl(ctx, actor, "Backups", "Nightly encrypted backups")
	if err != nil {
		t.Fatalf("control: %v", err)
	}
	if c.Description != "Nightly encrypted backups" {
		t.Fatalf("control description lost: %+v", c)
	}

	frameworks, err := svc.ListFrameworks(ctx, actor)
	if err != nil {
		t.Fatalf("list frameworks: %v", err)
	}
	if len(frameworks) != 1 || frameworks[0].Description != f.Description {
		t.Fatalf("listed framework lost description: %+v", frameworks)
	}
}

func TestDuplicateNamesConflict(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	actor := officer()

	if _, err := svc.CreateFramework(ctx, actor, "ISO 27001", ""); err != nil {
		t.Fatalf("framework: %v", err)
	}
	if _, err := svc.CreateFramework(ctx, actor, "ISO 27001", ""); !errors.Is(err, compliance.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := svc.CreateControl(ctx, actor, "Backups", ""); err != nil {
		t.Fatalf("control: %v", err)
	}
	if _, err := svc.CreateControl(ctx, actor, "Backups", ""); !errors.Is(err, compliance.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestWritesRequirePermission(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	reader := auth.NewPrincipal(&auth.User{ID: ids.New(), Email: "r@test"}, nil,
		[]string{auth.PermComplianceRead})

	var forbidden *auth.ForbiddenError
	if _, err := svc.CreateFramework(ctx, reader, "NIST", ""); !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	entries, err := store.Audit().List(ctx, 500)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("denied attempt was audited: %+v", entries)
	}
}

func TestMutationsAreAudited(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	actor := officer()

	f, _ := svc.CreateFramework(ctx, actor, "SOC 2", "")
	c, _ := svc.CreateControl(ctx, actor, "MFA", "")
	if _, err := svc.CreateMapping(ctx, actor, c.ID, f.ID, compliance.StatusCompliant, ""); err != nil {
		t.Fatalf("mapping: %v", err)
	}

	entries, err := store.Audit().List(ctx, 500)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].Action != "CONTROL_MAPPING_CREATE" {
		t.Fatalf("expected CONTROL_MAPPING_CREATE newest, got %s", entries[0].Action)
	}
}
