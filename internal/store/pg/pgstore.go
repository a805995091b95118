// Package pg persists all domain state in PostgreSQL. Mutations that
// carry an audit entry insert it inside the same transaction.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"grcore.org/internal/audit"
	"grcore.org/internal/obs"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, mainly for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// insertAuditTx writes the entry within the caller's transaction and
// fills in the database-assigned sequence and timestamp. A nil entry
// is a no-op so read-adjacent mutations can skip auditing explicitly.
func insertAuditTx(ctx context.Context, tx *sql.Tx, entry *audit.Entry) error {
	if entry == nil {
		return nil
	}
	err := tx.QueryRowContext(ctx, `
		insert into audit_logs (id, actor_id, action, entity_type, entity_id, origin, details)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning seq, created_at
	`, entry.ID, nullIfEmpty(entry.ActorID), entry.Action, entry.EntityType, entry.EntityID,
		entry.Origin, entry.Details).Scan(&entry.Seq, &entry.CreatedAt)
	if err != nil {
		return err
	}
	obs.CountAuditRecord(entry.Action)
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
