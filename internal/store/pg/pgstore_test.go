package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"grcore.org/internal/access"
	"grcore.org/internal/audit"
	"grcore.org/internal/auth"
	"grcore.org/internal/compliance"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestDecideWinsWhilePending(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("update access_requests").
		WithArgs("req1", access.StatusApproved, "mgr", now).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "resource", "requested_role", "status", "requested_by", "approved_by", "created_at", "decided_at",
		}).AddRow("req1", "vpn", "user", "APPROVED", "emp", "mgr", now.Add(-time.Hour), now))
	mock.ExpectQuery("insert into audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at"}).AddRow(int64(7), now))
	mock.ExpectCommit()

	entry, err := audit.NewEntry(context.Background(), "mgr", audit.ActionAccessRequestApprove, "access_request", "req1", "")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	req, err := s.AccessRequests().Decide(context.Background(), "req1", access.StatusApproved, "mgr", now, entry)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if req.Status != access.StatusApproved || req.ApprovedBy != "mgr" || req.DecidedAt == nil {
		t.Fatalf("unexpected request: %+v", req)
	}
	if entry.Seq != 7 {
		t.Fatalf("audit seq not filled in: %d", entry.Seq)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDecideAlreadyDecided(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("update access_requests").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "resource", "requested_role", "status", "requested_by", "approved_by", "created_at", "decided_at",
		}))
	mock.ExpectQuery("select exists").
		WithArgs("req1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := s.AccessRequests().Decide(context.Background(), "req1", access.StatusDenied, "mgr", now, nil)
	if !errors.Is(err, access.ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDecideMissingRequest(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("update access_requests").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "resource", "requested_role", "status", "requested_by", "approved_by", "created_at", "decided_at",
		}))
	mock.ExpectQuery("select exists").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := s.AccessRequests().Decide(context.Background(), "nope", access.StatusApproved, "mgr", time.Now(), nil)
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserCreateUniqueViolation(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	u := &auth.User{ID: "u1", Email: "a@local", PasswordHash: "x"}
	if err := s.Users().Create(context.Background(), u, nil); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMappingConflictAndMissingReference(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into control_mappings").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	m := &compliance.Mapping{ID: "m1", ControlID: "c1", FrameworkID: "f1", Status: compliance.StatusPartial}
	if err := s.Compliance().CreateMapping(context.Background(), m, nil); !errors.Is(err, compliance.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("insert into control_mappings").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	if err := s.Compliance().CreateMapping(context.Background(), m, nil); !errors.Is(err, compliance.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditListNewestFirst(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select id, seq, actor_id").
		WithArgs(500).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "seq", "actor_id", "action", "entity_type", "entity_id", "origin", "details", "created_at",
		}).
			AddRow("e2", int64(2), "actor", "RISK_UPDATE", "risk", "r1", "", "score=6", now).
			AddRow("e1", int64(1), nil, "RISK_CREATE", "risk", "r1", "", "score=9", now.Add(-time.Minute)))

	entries, err := s.Audit().List(context.Background(), 500)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Seq != 2 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[1].ActorID != "" {
		t.Fatalf("null actor should scan to empty string, got %q", entries[1].ActorID)
	}
}
