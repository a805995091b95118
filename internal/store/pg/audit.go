package pg

import (
	"context"
	"database/sql"

	"grcore.org/internal/audit"
)

// Audit exposes the audit trail store.
func (s *Store) Audit() audit.Store { return pgAuditStore{s} }

var _ audit.Store = pgAuditStore{}

type pgAuditStore struct{ s *Store }

func (a pgAuditStore) Append(ctx context.Context, entry *audit.Entry) error {
	tx, err := a.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (a pgAuditStore) List(ctx context.Context, limit int) ([]audit.Entry, error) {
	rows, err := a.s.db.QueryContext(ctx, `
		select id, seq, actor_id, action, entity_type, entity_id, origin, details, created_at
		from audit_logs
		order by seq desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e       audit.Entry
			actorID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Seq, &actorID, &e.Action, &e.EntityType, &e.EntityID,
			&e.Origin, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = actorID.String
		out = append(out, e)
	}
	return out, rows.Err()
}
