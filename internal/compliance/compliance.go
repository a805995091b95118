// Package compliance manages frameworks, controls and the mappings
// between them. At most one mapping may exist per control-framework
// pair; the storage uniqueness constraint is the final arbiter under
// concurrency.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grcore.org/internal/audit"
)

// MappingStatus grades how well a control satisfies a framework.
type MappingStatus string

const (
	StatusCompliant    MappingStatus = "COMPLIANT"
	StatusPartial      MappingStatus = "PARTIAL"
	StatusNoncompliant MappingStatus = "NONCOMPLIANT"
)

var (
	ErrNotFound     = errors.New("compliance: not found")
	ErrConflict     = errors.New("compliance: already exists")
	ErrInvalidInput = errors.New("compliance: invalid input")
)

// UnknownReferenceError rejects a mapping that names a control or
// framework that does not exist. Field tells the caller which one.
type UnknownReferenceError struct {
	Field string
	ID    string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Field, e.ID)
}

// Framework is a named compliance reference (ISO 27001, SOC 2, ...).
type Framework struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Control is a named safeguard independently created from frameworks.
type Control struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Mapping links one control to one framework.
type Mapping struct {
	ID          string        `json:"id"`
	ControlID   string        `json:"control_id"`
	FrameworkID string        `json:"framework_id"`
	Status      MappingStatus `json:"status"`
	Notes       string        `json:"notes"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Store persists compliance entities. Creations fail with ErrConflict
// on unique violations (framework/control name, control-framework
// pair). Mutations persist the audit entry in the same transaction.
type Store interface {
	CreateFramework(ctx context.Context, f *Framework, entry *audit.Entry) error
	FindFramework(ctx context.Context, id string) (Framework, error)
	// ListFrameworks returns frameworks ordered by name.
	ListFrameworks(ctx context.Context) ([]Framework, error)

	CreateControl(ctx context.Context, c *Control, entry *audit.Entry) error
	FindControl(ctx context.Context, id string) (Control, error)
	// ListControls returns controls ordered by name.
	ListControls(ctx context.Context) ([]Control, error)

	CreateMapping(ctx context.Context, m *Mapping, entry *audit.Entry) error
	// ListMappings returns mappings newest first.
	ListMappings(ctx context.Context) ([]Mapping, error)
}

// Valid reports whether s is one of the known mapping statuses.
func (s MappingStatus) Valid() bool {
	switch s {
	case StatusCompliant, StatusPartial, StatusNoncompliant:
		return true
	}
	return false
}
