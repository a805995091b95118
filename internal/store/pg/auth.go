package pg

import (
	"context"
	"database/sql"
	"errors"

	"grcore.org/internal/audit"
	"grcore.org/internal/auth"
	"grcore.org/internal/ids"
)

var _ auth.Store = (*Store)(nil)

func (s *Store) Users() auth.UserStore             { return userStore{s} }
func (s *Store) Roles() auth.RoleStore             { return roleStore{s} }
func (s *Store) Permissions() auth.PermissionStore { return permStore{s} }

type userStore struct{ s *Store }

func (u userStore) Create(ctx context.Context, user *auth.User, entry *audit.Entry) error {
	tx, err := u.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into users (id, email, full_name, password_hash)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, user.ID, user.Email, user.FullName, user.PasswordHash).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (u userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return u.scanOne(ctx, `
		select id, email, full_name, password_hash, created_at, updated_at
		from users where id = $1
	`, id)
}

func (u userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return u.scanOne(ctx, `
		select id, email, full_name, password_hash, created_at, updated_at
		from users where email = $1
	`, email)
}

func (u userStore) scanOne(ctx context.Context, query string, arg any) (*auth.User, error) {
	var user auth.User
	err := u.s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u userStore) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := u.s.db.QueryContext(ctx, `
		select id, email, full_name, password_hash, created_at, updated_at
		from users order by email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.User
	for rows.Next() {
		var user auth.User
		if err := rows.Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash,
			&user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &user)
	}
	return out, rows.Err()
}

func (u userStore) ReplaceRoles(ctx context.Context, userID string, roleIDs []string, entry *audit.Entry) error {
	tx, err := u.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from users where id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return auth.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id) values ($1, $2)
			on conflict do nothing
		`, userID, roleID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
	}
	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (u userStore) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := u.s.db.QueryContext(ctx, `
		select r.id, r.name, r.created_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

type roleStore struct{ s *Store }

func (r roleStore) Ensure(ctx context.Context, name string) (auth.Role, error) {
	var role auth.Role
	// "do update" makes the insert return the existing row instead of
	// nothing on conflict.
	err := r.s.db.QueryRowContext(ctx, `
		insert into roles (id, name) values ($1, $2)
		on conflict (name) do update set name = excluded.name
		returning id, name, created_at
	`, ids.New(), name).Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err != nil {
		return auth.Role{}, err
	}
	return role, nil
}

func (r roleStore) FindByNames(ctx context.Context, names []string) ([]auth.Role, []string, error) {
	var found []auth.Role
	var missing []string
	for _, name := range names {
		var role auth.Role
		err := r.s.db.QueryRowContext(ctx, `
			select id, name, created_at from roles where name = $1
		`, name).Scan(&role.ID, &role.Name, &role.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, name)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		found = append(found, role)
	}
	return found, missing, nil
}

func (r roleStore) List(ctx context.Context) ([]auth.Role, error) {
	rows, err := r.s.db.QueryContext(ctx, `select id, name, created_at from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

type permStore struct{ s *Store }

func (p permStore) Ensure(ctx context.Context, codes []string) error {
	for _, code := range codes {
		if _, err := p.s.db.ExecContext(ctx, `
			insert into permissions (id, code) values ($1, $2)
			on conflict (code) do nothing
		`, ids.New(), code); err != nil {
			return err
		}
	}
	return nil
}

func (p permStore) SetForRole(ctx context.Context, roleID string, codes []string) error {
	tx, err := p.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, code := range codes {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			select $1, id from permissions where code = $2
			on conflict do nothing
		`, roleID, code); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

func (p permStore) CodesForRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := p.s.db.QueryContext(ctx, `
		select perm.code
		from permissions perm
		join role_permissions rp on rp.permission_id = perm.id
		where rp.role_id = $1
		order by perm.code
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
