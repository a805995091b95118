package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized covers every authentication failure: bad
	// credentials, bad signature, malformed or expired token, unknown
	// subject. Callers must not be able to distinguish the cause.
	ErrUnauthorized = errors.New("auth: unauthorized")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
)

// ForbiddenError reports an authenticated principal lacking required
// permission codes. Every missing code is named.
type ForbiddenError struct {
	Missing []string
}

func (e *ForbiddenError) Error() string {
	return "missing permissions: " + strings.Join(e.Missing, ", ")
}

// UnknownRolesError names role identifiers that do not exist.
type UnknownRolesError struct {
	Names []string
}

func (e *UnknownRolesError) Error() string {
	return fmt.Sprintf("unknown roles: %s", strings.Join(e.Names, ", "))
}
