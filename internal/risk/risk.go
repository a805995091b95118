// Package risk implements the risk register. A risk's score is a
// derived value: it always equals likelihood times impact and is never
// accepted as caller input.
package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grcore.org/internal/audit"
)

// Likelihood and impact share the same inclusive scale.
const (
	ScaleMin = 1
	ScaleMax = 3
)

var ErrNotFound = errors.New("risk: not found")

// ValidationError rejects an out-of-range or missing field before any
// mutation is applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Risk is one register entry. OwnerID is empty when unowned.
type Risk struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Likelihood     int       `json:"likelihood"`
	Impact         int       `json:"impact"`
	Score          int       `json:"score"`
	OwnerID        string    `json:"owner_id,omitempty"`
	MitigationPlan string    `json:"mitigation_plan"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Update carries a partial update; nil fields retain prior values.
type Update struct {
	Title          *string
	Description    *string
	Likelihood     *int
	Impact         *int
	OwnerID        *string
	MitigationPlan *string
}

// Score computes the derived risk score.
func Score(likelihood, impact int) int {
	return likelihood * impact
}

// ValidateScale checks a likelihood or impact value, naming the field
// on failure.
func ValidateScale(v int, field string) error {
	if v < ScaleMin || v > ScaleMax {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be between %d and %d", ScaleMin, ScaleMax)}
	}
	return nil
}

// Store persists risks. Mutations persist the audit entry in the same
// transaction. List orders by score descending, then updated_at
// descending.
type Store interface {
	Create(ctx context.Context, r *Risk, entry *audit.Entry) error
	Find(ctx context.Context, id string) (Risk, error)
	List(ctx context.Context) ([]Risk, error)
	Update(ctx context.Context, r Risk, entry *audit.Entry) (Risk, error)
}
