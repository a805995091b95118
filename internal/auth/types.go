package auth

import "time"

// User is a human account identified by a unique email. The password
// hash is opaque to everything except the password helpers.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is a named bundle of permissions assignable to users.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Permission is an atomic capability identified by a unique string code.
// Codes are immutable once created and form the entire authorization
// vocabulary.
type Permission struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}
