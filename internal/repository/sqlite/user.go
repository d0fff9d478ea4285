package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/contentcrm/internal/repository/sqlutil"
	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

const userColumns = `id, email, name, phone, role, approved, password_hash, created_at, updated_at`

func scanUser(s sqlutil.Scanner) (*models.User, error) {
	var (
		u                models.User
		created, updated int64
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.Role, &u.Approved, &u.PasswordHash, &created, &updated); err != nil {
		return nil, err
	}
	u.CreatedAt = sqlutil.FromMillis(created)
	u.UpdatedAt = sqlutil.FromMillis(updated)
	return &u, nil
}

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if u == nil {
		return 0, fmt.Errorf("user is nil")
	}
	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO users (email, name, phone, role, approved, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.Name, u.Phone, string(u.Role), u.Approved, u.PasswordHash, sqlutil.Millis(ts), sqlutil.Millis(ts))
	if err != nil {
		return 0, fmt.Errorf("insert user %s: %w", u.Email, wrapDuplicate(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	u.ID, u.CreatedAt, u.UpdatedAt = id, ts, ts
	return id, nil
}

func (r *SQLiteRepo) FindUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *SQLiteRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *SQLiteRepo) listUsers(ctx context.Context, where string, args ...any) ([]models.User, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+userColumns+` FROM users`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// ListApproved answers the recurring "approved users of a role" query in one place.
func (r *SQLiteRepo) ListApproved(ctx context.Context, role models.Role) ([]models.User, error) {
	return r.listUsers(ctx, ` WHERE approved = 1 AND role = ?`, string(role))
}

func (r *SQLiteRepo) ListPending(ctx context.Context) ([]models.User, error) {
	return r.listUsers(ctx, ` WHERE approved = 0`)
}

func (r *SQLiteRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	return r.listUsers(ctx, "")
}

func (r *SQLiteRepo) ApproveUser(ctx context.Context, id int64) error {
	return r.execOne(ctx, `UPDATE users SET approved = 1, updated_at = ? WHERE id = ?`, sqlutil.Millis(now()), id)
}

func (r *SQLiteRepo) SetUserRole(ctx context.Context, id int64, role models.Role) error {
	return r.execOne(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, string(role), sqlutil.Millis(now()), id)
}

func (r *SQLiteRepo) DeleteUser(ctx context.Context, id int64) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id = ?`, id)
}

// execOne runs a statement addressed at a single row and maps "no row" to ErrNotFound.
func (r *SQLiteRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.conn.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
