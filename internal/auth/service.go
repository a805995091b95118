package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"grcore.org/internal/audit"
	"grcore.org/internal/ids"
)

const defaultTokenTTL = 60 * time.Minute

// Service provides authentication, principal resolution and identity
// administration. Token settings are explicit construction-time values;
// nothing here reads the environment.
type Service struct {
	store    Store
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenTTL overrides the default 60 minute token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
		return nil
	}
}

// WithIssuer sets the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service. The signing secret is required.
func NewService(store Store, secret string, opts ...ServiceOption) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	svc := &Service{
		store:    store,
		secret:   []byte(secret),
		tokenTTL: defaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Token is an issued session credential.
type Token struct {
	Value     string    `json:"access_token"`
	Type      string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login verifies the credential and issues a signed, time-bounded
// token whose subject is the user's email. Every failure surfaces as
// ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (Token, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Token{}, ErrUnauthorized
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return Token{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Token{}, ErrUnauthorized
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   user.Email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, Type: "bearer", ExpiresAt: expiresAt}, nil
}

// Authenticate validates a presented token and resolves its subject to
// a principal. Bad signature, malformed token, expiry and unknown
// subject are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrUnauthorized
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrUnauthorized
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrUnauthorized
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return Principal{}, ErrUnauthorized
	}
	subject := normalizeEmail(claims.Subject)
	if subject == "" {
		return Principal{}, ErrUnauthorized
	}
	user, err := s.store.Users().FindByEmail(ctx, subject)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}
	return s.Principal(ctx, user)
}

// Principal loads the user's roles and computes the deduplicated union
// of permission codes granted through them.
func (s *Service) Principal(ctx context.Context, user *User) (Principal, error) {
	roles, err := s.store.Users().RolesForUser(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	var codes []string
	for _, role := range roles {
		list, err := s.store.Permissions().CodesForRole(ctx, role.ID)
		if err != nil {
			return Principal{}, err
		}
		codes = append(codes, list...)
	}
	return NewPrincipal(user, roles, codes), nil
}

// UserSummary is a user with resolved role names, the shape returned by
// identity read operations.
type UserSummary struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Roles    []string `json:"roles"`
}

// CreateUser registers a new user. Requires user:write. Duplicate email
// fails with ErrConflict.
func (s *Service) CreateUser(ctx context.Context, actor Principal, email, fullName, password string) (*User, error) {
	if err := Require(actor, PermUserWrite); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
	}
	entry, err := audit.NewEntry(ctx, actor.User.ID, audit.ActionUserCreate, "User", user.ID, "email="+email)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().Create(ctx, user, entry); err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns all users with their role names. Requires user:read.
func (s *Service) ListUsers(ctx context.Context, actor Principal) ([]UserSummary, error) {
	if err := Require(actor, PermUserRead); err != nil {
		return nil, err
	}
	users, err := s.store.Users().List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		roles, err := s.store.Users().RolesForUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		summary := UserSummary{ID: u.ID, Email: u.Email, FullName: u.FullName, Roles: []string{}}
		for _, r := range roles {
			summary.Roles = append(summary.Roles, r.Name)
		}
		out = append(out, summary)
	}
	return out, nil
}

// AssignRoles replaces the user's role set wholesale. Requires
// user:write. Unknown role names fail before any mutation, naming every
// offender.
func (s *Service) AssignRoles(ctx context.Context, actor Principal, userID string, roleNames []string) (UserSummary, error) {
	if err := Require(actor, PermUserWrite); err != nil {
		return UserSummary{}, err
	}
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	names := dedupeStrings(roleNames)
	roles, missing, err := s.store.Roles().FindByNames(ctx, names)
	if err != nil {
		return UserSummary{}, err
	}
	if len(missing) > 0 {
		return UserSummary{}, &UnknownRolesError{Names: missing}
	}
	roleIDs := make([]string, 0, len(roles))
	roleNamesOut := make([]string, 0, len(roles))
	for _, r := range roles {
		roleIDs = append(roleIDs, r.ID)
		roleNamesOut = append(roleNamesOut, r.Name)
	}
	entry, err := audit.NewEntry(ctx, actor.User.ID, audit.ActionUserRoleAssign, "User", user.ID, "roles="+strings.Join(roleNamesOut, ","))
	if err != nil {
		return UserSummary{}, err
	}
	if err := s.store.Users().ReplaceRoles(ctx, user.ID, roleIDs, entry); err != nil {
		return UserSummary{}, err
	}
	return UserSummary{ID: user.ID, Email: user.Email, FullName: user.FullName, Roles: roleNamesOut}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
