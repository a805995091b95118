// Package access implements the access request workflow: a three-state
// machine whose terminal states are immutable.
package access

import (
	"context"
	"errors"
	"time"

	"grcore.org/internal/audit"
)

// Status is the access request workflow state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
)

var (
	ErrNotFound     = errors.New("access: request not found")
	ErrInvalidInput = errors.New("access: invalid input")

	// ErrAlreadyDecided rejects any transition out of a terminal state.
	// Re-deciding never silently no-ops.
	ErrAlreadyDecided = errors.New("access: request already decided")
)

// Request asks for a role grant on a resource. ApprovedBy and DecidedAt
// are set together when the request leaves PENDING and never change
// afterwards.
type Request struct {
	ID            string     `json:"id"`
	Resource      string     `json:"resource"`
	RequestedRole string     `json:"requested_role"`
	Status        Status     `json:"status"`
	RequestedBy   string     `json:"requested_by"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

// Store persists access requests. Decide must be an atomic conditional
// transition: it applies only while the stored status is still PENDING,
// so two concurrent decisions cannot both succeed. Mutations persist
// the audit entry in the same transaction.
type Store interface {
	Create(ctx context.Context, req *Request, entry *audit.Entry) error
	Find(ctx context.Context, id string) (Request, error)
	// List returns requests newest first.
	List(ctx context.Context) ([]Request, error)
	Decide(ctx context.Context, id string, target Status, approverID string, decidedAt time.Time, entry *audit.Entry) (Request, error)
}
