package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"grcore.org/internal/audit"
	"grcore.org/internal/auth"
	"grcore.org/internal/ids"
)

// Service drives the access request workflow. Authorization runs as a
// discrete step before every store write.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) *Service {
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create opens a PENDING request. Any authenticated identity may file
// one; no further permission is required.
func (s *Service) Create(ctx context.Context, actor auth.Principal, resource, requestedRole string) (Request, error) {
	resource = strings.TrimSpace(resource)
	requestedRole = strings.TrimSpace(requestedRole)
	if resource == "" {
		return Request{}, fmt.Errorf("%w: resource is required", ErrInvalidInput)
	}
	if requestedRole == "" {
		return Request{}, fmt.Errorf("%w: requested_role is required", ErrInvalidInput)
	}
	req := &Request{
		ID:            ids.New(),
		Resource:      resource,
		RequestedRole: requestedRole,
		Status:        StatusPending,
		RequestedBy:   actor.User.ID,
	}
	entry, err := audit.NewEntry(ctx, actor.User.ID, audit.ActionAccessRequestCreate, "AccessRequest", req.ID, "resource="+resource)
	if err != nil {
		return Request{}, err
	}
	if err := s.store.Create(ctx, req, entry); err != nil {
		return Request{}, err
	}
	return *req, nil
}

// List returns requests newest first. Requires access:read.
func (s *Service) List(ctx context.Context, actor auth.Principal) ([]Request, error) {
	if err := auth.Require(actor, auth.PermAccessRead); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

// Approve transitions a PENDING request to APPROVED. Requires
// access:approve; ownership never overrides it.
func (s *Service) Approve(ctx context.Context, actor auth.Principal, id string) (Request, error) {
	return s.decide(ctx, actor, id, StatusApproved, audit.ActionAccessRequestApprove)
}

// Deny transitions a PENDING request to DENIED. Requires access:approve.
func (s *Service) Deny(ctx context.Context, actor auth.Principal, id string) (Request, error) {
	return s.decide(ctx, actor, id, StatusDenied, audit.ActionAccessRequestDeny)
}

func (s *Service) decide(ctx context.Context, actor auth.Principal, id string, target Status, action string) (Request, error) {
	if err := auth.Require(actor, auth.PermAccessApprove); err != nil {
		return Request{}, err
	}
	entry, err := audit.NewEntry(ctx, actor.User.ID, action, "AccessRequest", id, "")
	if err != nil {
		return Request{}, err
	}
	return s.store.Decide(ctx, id, target, actor.User.ID, s.now().UTC(), entry)
}
