// Package audit owns the append-only trail of state-changing operations.
// Entries are written exactly once, never updated or deleted, and are
// retrieved in creation order. No other component builds audit records.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"grcore.org/internal/ids"
)

// Action codes form a closed taxonomy, one per distinct mutating
// operation. Free-text actions are rejected.
const (
	ActionUserCreate           = "USER_CREATE"
	ActionUserRoleAssign       = "USER_ROLE_ASSIGN"
	ActionAccessRequestCreate  = "ACCESS_REQUEST_CREATE"
	ActionAccessRequestApprove = "ACCESS_REQUEST_APPROVE"
	ActionAccessRequestDeny    = "ACCESS_REQUEST_DENY"
	ActionRiskCreate           = "RISK_CREATE"
	ActionRiskUpdate           = "RISK_UPDATE"
	ActionFrameworkCreate      = "FRAMEWORK_CREATE"
	ActionControlCreate        = "CONTROL_CREATE"
	ActionControlMappingCreate = "CONTROL_MAPPING_CREATE"
)

var knownActions = map[string]struct{}{
	ActionUserCreate:           {},
	ActionUserRoleAssign:       {},
	ActionAccessRequestCreate:  {},
	ActionAccessRequestApprove: {},
	ActionAccessRequestDeny:    {},
	ActionRiskCreate:           {},
	ActionRiskUpdate:           {},
	ActionFrameworkCreate:      {},
	ActionControlCreate:        {},
	ActionControlMappingCreate: {},
}

// Entry is one immutable audit record. ActorID is empty for
// system-seeded actions or when the actor was later removed.
type Entry struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	ActorID    string    `json:"actor_id,omitempty"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Origin     string    `json:"origin,omitempty"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists entries. Append is pure insert: implementations must
// not read, modify, or delete existing records. List returns entries
// newest first, ordered by creation time and tie-broken by sequence.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
}

type ctxKey struct{}

// WithOrigin attaches the caller's network origin to the context so
// entries built downstream carry it.
func WithOrigin(ctx context.Context, origin string) context.Context {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, origin)
}

// OriginFromContext returns the origin previously attached, if any.
func OriginFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// NewEntry builds a validated entry for the given action. The entry is
// not yet persisted; domain stores insert it in the same transaction as
// the mutation it describes.
func NewEntry(ctx context.Context, actorID, action, entityType, entityID, details string) (*Entry, error) {
	if _, ok := knownActions[action]; !ok {
		return nil, fmt.Errorf("audit: unknown action code %q", action)
	}
	if entityType == "" || entityID == "" {
		return nil, fmt.Errorf("audit: entity type and id are required")
	}
	return &Entry{
		ID:         ids.New(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Origin:     OriginFromContext(ctx),
		Details:    details,
	}, nil
}

const (
	defaultListLimit = 500
	maxListLimit     = 500
)

// Recorder is the read side of the trail. Appends never go through it:
// every entry is inserted by a domain store in the same transaction as
// the mutation it describes.
type Recorder struct {
	store Store
}

// NewRecorder constructs a Recorder over a store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// List returns the most recent entries, newest first. Limits outside
// (0, 500] collapse to 500.
func (r *Recorder) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	return r.store.List(ctx, limit)
}
