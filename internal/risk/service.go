package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"grcore.org/internal/audit"
	"grcore.org/internal/auth"
	"grcore.org/internal/ids"
)

// Service drives the risk register workflow.
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

// CreateInput carries the caller-supplied fields for a new risk. Score
// is deliberately absent.
type CreateInput struct {
	Title          string
	Description    string
	Likelihood     int
	Impact         int
	OwnerID        string
	MitigationPlan string
}

// Create registers a risk. Requires risk:write. Scale fields are
// validated before any mutation; the score is computed, never read from
// input.
func (s *Service) Create(ctx context.Context, actor auth.Principal, in CreateInput) (Risk, error) {
	if err := auth.Require(actor, auth.PermRiskWrite); err != nil {
		return Risk{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Risk{}, &ValidationError{Field: "title", Reason: "is required"}
	}
	if err := ValidateScale(in.Likelihood, "likelihood"); err != nil {
		return Risk{}, err
	}
	if err := ValidateScale(in.Impact, "impact"); err != nil {
		return Risk{}, err
	}

	now := s.now().UTC()
	r := &Risk{
		ID:             ids.New(),
		Title:          title,
		Description:    in.Description,
		Likelihood:     in.Likelihood,
		Impact:         in.Impact,
		Score:          Score(in.Likelihood, in.Impact),
		OwnerID:        strings.TrimSpace(in.OwnerID),
		MitigationPlan: in.MitigationPlan,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	entry, err := audit.NewEntry(ctx, actor.User.ID, audit.ActionRiskCreate, "Risk", r.ID, fmt.Sprintf("score=%d", r.Score))
	if err != nil {
		return Risk{}, err
	}
	if err := s.store.Create(ctx, r, entry); err != nil {
		return Risk{}, err
	}
	return *r, nil
}

// List returns risks ordered by score then recency. Requires risk:read.
func (s *Service) List(ctx context.Context, actor auth.Principal) ([]Risk, error) {
	if err := auth.Require(actor, auth.PermRiskRead); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

// Update applies a partial update. The registered owner may update
// their own risk without risk:write; anyone else needs the permission.
// Supplied scale values are validated before anything changes, and the
// score is recomputed from the resulting likelihood and impact.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id string, upd Update) (Risk, error) {
	current, err := s.store.Find(ctx, id)
	if err != nil {
		return Risk{}, err
	}
	if err := auth.RequireOwnerOr(actor, current.OwnerID, auth.PermRiskWrite); err != nil {
		return Risk{}, err
	}
	if upd.Likelihood != nil {
		if err := ValidateScale(*upd.Likelihood, "likelihood"); err != nil {
			return Risk{}, err
		}
	}
	if upd.Impact != nil {
		if err := ValidateScale(*upd.Impact, "impact"); err != nil {
			return Risk{}, err
		}
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return Risk{}, &ValidationError{Field: "title", Reason: "is required"}
		}
		current.Title = title
	}
	if upd.Description != nil {
		current.Description = *upd.Description
	}
	if upd.Likelihood != nil {
		current.Likelihood = *upd.Likelihood
	}
	if upd.Impact != nil {
		current.Impact = *upd.Impact
	}
	if upd.OwnerID != nil {
		current.OwnerID = strings.TrimSpace(*upd.OwnerID)
	}
	if upd.MitigationPlan != nil {
		current.MitigationPlan = *upd.MitigationPlan
	}
	current.Score = Score(current.Likelihood, current.Impact)
	current.UpdatedAt = s.now().UTC()

	entry, err := audit.NewEntry(ctx, actor.User.ID, audit.ActionRiskUpdate, "Risk", current.ID, fmt.Sprintf("score=%d", current.Score))
	if err != nil {
		return Risk{}, err
	}
	return s.store.Update(ctx, current, entry)
}
