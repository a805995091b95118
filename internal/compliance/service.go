package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"grcore.org/internal/audit"
	"grcore.org/internal/auth"
	"grcore.org/internal/ids"
)

// Service drives the compliance mapping workflow.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateFramework registers a framework. Requires compliance:write;
// duplicate names fail with ErrConflict.
func (s *Service) CreateFramework(ctx context.Context, actor auth.Principal, name, description string) (Framework, error) {
	if err := auth.Require(actor, auth.PermComplianceWrite); err != nil {
		return Framework{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Framework{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	f := &Framework{ID: ids.New(), Name: name, Description: description}
	entry, err := audit.NewEntry(ctx, actor.User.ID, audit.ActionFrameworkCreate, "Framework", f.ID, "name="+name)
	if err != nil {
		return Framework{}, err
	}
	if err := s.store.CreateFramework(ctx, f, entry); err != nil {
		return Framework{}, err
	}
	return *f, nil
}

// ListFrameworks requires compliance:read.
func (s *Service) ListFrameworks(ctx context.Context, actor auth.Principal) ([]Framework, error) {
	if err := auth.Require(actor, auth.PermComplianceRead); err != nil {
		return nil, err
	}
	return s.store.ListFrameworks(ctx)
}

// CreateControl registers a control. Requires compliance:write.
func (s *Service) CreateControl(ctx context.Context, actor auth.Principal, name, description string) (Control, error) {
	if err := auth.Require(actor, auth.PermComplianceWrite); err != nil {
		return Control{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Control{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	c := &Control{ID: ids.New(), Name: name, Description: description}
	entry, err := audit.NewEntry(ctx, actor.User.ID, audit.ActionControlCreate, "Control", c.ID, "name="+name)
	if err != nil {
		return Control{}, err
	}
	if err := s.store.CreateControl(ctx, c, entry); err != nil {
		return Control{}, err
	}
	return *c, nil
}

// ListControls requires compliance:read.
func (s *Service) ListControls(ctx context.Context, actor auth.Principal) ([]Control, error) {
	if err := auth.Require(actor, auth.PermComplianceRead); err != nil {
		return nil, err
	}
	return s.store.ListControls(ctx)
}

// CreateMapping links a control to a framework. Requires
// compliance:write. Both references must already exist; the check
// distinguishes an unknown control from an unknown framework. A racing
// duplicate past the existence checks is caught by the storage
// uniqueness constraint and surfaces as ErrConflict.
func (s *Service) CreateMapping(ctx context.Context, actor auth.Principal, controlID, frameworkID string, status MappingStatus, notes string) (Mapping, error) {
	if err := auth.Require(actor, auth.PermComplianceWrite); err != nil {
		return Mapping{}, err
	}
	controlID = strings.TrimSpace(controlID)
	frameworkID = strings.TrimSpace(frameworkID)
	if controlID == "" || frameworkID == "" {
		return Mapping{}, fmt.Errorf("%w: control_id and framework_id are required", ErrInvalidInput)
	}
	if status == "" {
		status = StatusPartial
	}
	if !status.Valid() {
		return Mapping{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	if _, err := s.store.FindControl(ctx, controlID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Mapping{}, &UnknownReferenceError{Field: "control_id", ID: controlID}
		}
		return Mapping{}, err
	}
	if _, err := s.store.FindFramework(ctx, frameworkID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Mapping{}, &UnknownReferenceError{Field: "framework_id", ID: frameworkID}
		}
		return Mapping{}, err
	}
	m := &Mapping{
		ID:          ids.New(),
		ControlID:   controlID,
		FrameworkID: frameworkID,
		Status:      status,
		Notes:       notes,
	}
	entry, err := audit.NewEntry(ctx, actor.User.ID, audit.ActionControlMappingCreate, "ControlMapping", m.ID, "")
	if err != nil {
		return Mapping{}, err
	}
	if err := s.store.CreateMapping(ctx, m, entry); err != nil {
		return Mapping{}, err
	}
	return *m, nil
}

// ListMappings requires compliance:read.
func (s *Service) ListMappings(ctx context.Context, actor auth.Principal) ([]Mapping, error) {
	if err := auth.Require(actor, auth.PermComplianceRead); err != nil {
		return nil, err
	}
	return s.store.ListMappings(ctx)
}
