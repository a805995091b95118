package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"grcore.org/internal/access"
	"grcore.org/internal/audit"
	"grcore.org/internal/compliance"
	"grcore.org/internal/risk"
)

// AccessRequests exposes the access request store.
func (s *Store) AccessRequests() access.Store { return pgAccessStore{s} }

// Risks exposes the risk register store.
func (s *Store) Risks() risk.Store { return pgRiskStore{s} }

// Compliance exposes the compliance store.
func (s *Store) Compliance() compliance.Store { return pgComplianceStore{s} }

var (
	_ access.Store     = pgAccessStore{}
	_ risk.Store       = pgRiskStore{}
	_ compliance.Store = pgComplianceStore{}
)

type pgAccessStore struct{ s *Store }

func (a pgAccessStore) Create(ctx context.Context, req *access.Request, entry *audit.Entry) error {
	tx, err := a.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into access_requests (id, resource, requested_role, status, requested_by)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, req.ID, req.Resource, req.RequestedRole, req.Status, req.RequestedBy).Scan(&req.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return access.ErrNotFound
		}
		return err
	}
	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (a pgAccessStore) Find(ctx context.Context, id string) (access.Request, error) {
	row := a.s.db.QueryRowContext(ctx, `
		select id, resource, requested_role, status, requested_by, approved_by, created_at, decided_at
		from access_requests where id = $1
	`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Request{}, access.ErrNotFound
	}
	return req, err
}

func (a pgAccessStore) List(ctx context.Context) ([]access.Request, error) {
	rows, err := a.s.db.QueryContext(ctx, `
		select id, resource, requested_role, status, requested_by, approved_by, created_at, decided_at
		from access_requests
		order by created_at desc, id desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Decide performs the PENDING check and the status write as one
// conditional update, so two concurrent deciders cannot both win.
func (a pgAccessStore) Decide(ctx context.Context, id string, target access.Status, approverID string, decidedAt time.Time, entry *audit.Entry) (access.Request, error) {
	tx, err := a.s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.Request{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		update access_requests
		set status = $2, approved_by = $3, decided_at = $4
		where id = $1 and status = 'PENDING'
		returning id, resource, requested_role, status, requested_by, approved_by, created_at, decided_at
	`, id, target, approverID, decidedAt)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx, `select exists(select 1 from access_requests where id = $1)`, id).Scan(&exists); err != nil {
			return access.Request{}, err
		}
		if !exists {
			return access.Request{}, access.ErrNotFound
		}
		return access.Request{}, access.ErrAlreadyDecided
	}
	if err != nil {
		return access.Request{}, err
	}
	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return access.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return access.Request{}, err
	}
	return req, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (access.Request, error) {
	var (
		req        access.Request
		approvedBy sql.NullString
		decidedAt  sql.NullTime
	)
	err := row.Scan(&req.ID, &req.Resource, &req.RequestedRole, &req.Status, &req.RequestedBy,
		&approvedBy, &req.CreatedAt, &decidedAt)
	if err != nil {
		return access.Request{}, err
	}
	req.ApprovedBy = approvedBy.String
	if decidedAt.Valid {
		t := decidedAt.Time
		req.DecidedAt = &t
	}
	return req, nil
}

type pgRiskStore struct{ s *Store }

func (r pgRiskStore) Create(ctx context.Context, rk *risk.Risk, entry *audit.Entry) error {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into risks (id, title, description, likelihood, impact, score, owner_id, mitigation_plan, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rk.ID, rk.Title, rk.Description, rk.Likelihood, rk.Impact, rk.Score,
		nullIfEmpty(rk.OwnerID), rk.MitigationPlan, rk.CreatedAt, rk.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return risk.ErrNotFound
		}
		return err
	}
	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (r pgRiskStore) Find(ctx context.Context, id string) (risk.Risk, error) {
	row := r.s.db.QueryRowContext(ctx, `
		select id, title, description, likelihood, impact, score, owner_id, mitigation_plan, created_at, updated_at
		from risks where id = $1
	`, id)
	rk, err := scanRisk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return risk.Risk{}, risk.ErrNotFound
	}
	return rk, err
}

func (r pgRiskStore) List(ctx context.Context) ([]risk.Risk, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		select id, title, description, likelihood, impact, score, owner_id, mitigation_plan, created_at, updated_at
		from risks
		order by score desc, updated_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []risk.Risk
	for rows.Next() {
		rk, err := scanRisk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rk)
	}
	return out, rows.Err()
}

func (r pgRiskStore) Update(ctx context.Context, rk risk.Risk, entry *audit.Entry) (risk.Risk, error) {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return risk.Risk{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update risks
		set title = $2, description = $3, likelihood = $4, impact = $5,
		    score = $6, owner_id = $7, mitigation_plan = $8, updated_at = $9
		where id = $1
	`, rk.ID, rk.Title, rk.Description, rk.Likelihood, rk.Impact, rk.Score,
		nullIfEmpty(rk.OwnerID), rk.MitigationPlan, rk.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return risk.Risk{}, risk.ErrNotFound
		}
		return risk.Risk{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return risk.Risk{}, err
	}
	if affected == 0 {
		return risk.Risk{}, risk.ErrNotFound
	}
	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return risk.Risk{}, err
	}
	if err := tx.Commit(); err != nil {
		return risk.Risk{}, err
	}
	return rk, nil
}

func scanRisk(row rowScanner) (risk.Risk, error) {
	var (
		rk      risk.Risk
		ownerID sql.NullString
	)
	err := row.Scan(&rk.ID, &rk.Title, &rk.Description, &rk.Likelihood, &rk.Impact,
		&rk.Score, &ownerID, &rk.MitigationPlan, &rk.CreatedAt, &rk.UpdatedAt)
	if err != nil {
		return risk.Risk{}, err
	}
	rk.OwnerID = ownerID.String
	return rk, nil
}

type pgComplianceStore struct{ s *Store }

func (c pgComplianceStore) CreateFramework(ctx context.Context, f *compliance.Framework, entry *audit.Entry) error {
	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into frameworks (id, name, description)
		values ($1, $2, $3)
		returning created_at
	`, f.ID, f.Name, f.Description).Scan(&f.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return compliance.ErrConflict
		}
		return err
	}
	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (c pgComplianceStore) FindFramework(ctx context.Context, id string) (compliance.Framework, error) {
	var f compliance.Framework
	err := c.s.db.QueryRowContext(ctx, `
		select id, name, description, created_at from frameworks where id = $1
	`, id).Scan(&f.ID, &f.Name, &f.Description, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return compliance.Framework{}, compliance.ErrNotFound
	}
	return f, err
}

func (c pgComplianceStore) ListFrameworks(ctx context.Context) ([]compliance.Framework, error) {
	rows, err := c.s.db.QueryContext(ctx, `
		select id, name, description, created_at from frameworks order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []compliance.Framework
	for rows.Next() {
		var f compliance.Framework
		if err := rows.Scan(&f.ID, &f.Name, &f.Description, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (c pgComplianceStore) CreateControl(ctx context.Context, ctl *compliance.Control, entry *audit.Entry) error {
	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into controls (id, name, description)
		values ($1, $2, $3)
		returning created_at
	`, ctl.ID, ctl.Name, ctl.Description).Scan(&ctl.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return compliance.ErrConflict
		}
		return err
	}
	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (c pgComplianceStore) FindControl(ctx context.Context, id string) (compliance.Control, error) {
	var ctl compliance.Control
	err := c.s.db.QueryRowContext(ctx, `
		select id, name, description, created_at from controls where id = $1
	`, id).Scan(&ctl.ID, &ctl.Name, &ctl.Description, &ctl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return compliance.Control{}, compliance.ErrNotFound
	}
	return ctl, err
}

func (c pgComplianceStore) ListControls(ctx context.Context) ([]compliance.Control, error) {
	rows, err := c.s.db.QueryContext(ctx, `
		select id, name, description, created_at from controls order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []compliance.Control
	for rows.Next() {
		var ctl compliance.Control
		if err := rows.Scan(&ctl.ID, &ctl.Name, &ctl.Description, &ctl.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ctl)
	}
	return out, rows.Err()
}

func (c pgComplianceStore) CreateMapping(ctx context.Context, m *compliance.Mapping, entry *audit.Entry) error {
	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into control_mappings (id, control_id, framework_id, status, notes)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, m.ID, m.ControlID, m.FrameworkID, m.Status, m.Notes).Scan(&m.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return compliance.ErrConflict
			case pgErrForeignKeyViolation:
				return compliance.ErrNotFound
			}
		}
		return err
	}
	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (c pgComplianceStore) ListMappings(ctx context.Context) ([]compliance.Mapping, error) {
	rows, err := c.s.db.QueryContext(ctx, `
		select id, control_id, framework_id, status, notes, created_at
		from control_mappings
		order by created_at desc, id desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []compliance.Mapping
	for rows.Next() {
		var m compliance.Mapping
		if err := rows.Scan(&m.ID, &m.ControlID, &m.FrameworkID, &m.Status, &m.Notes, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
