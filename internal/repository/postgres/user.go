package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/garnizeh/contentcrm/internal/repository/sqlutil"
	"github.com/garnizeh/contentcrm/pkg/models"
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

func (r *Repo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if u == nil {
		return 0, fmt.Errorf("user is nil")
	}
	ts := now()
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, phone, role, approved, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		u.Email, u.Name, u.Phone, string(u.Role), u.Approved, u.PasswordHash, sqlutil.Millis(ts), sqlutil.Millis(ts)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user %s: %w", u.Email, wrapDuplicate(err))
	}
	u.ID, u.CreatedAt, u.UpdatedAt = id, ts, ts
	return id, nil
}

func (r *Repo) findUser(ctx context.Context, col string, arg any) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+col+` = $1`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *Repo) FindUser(ctx context.Context, id int64) (*models.User, error) {
	return r.findUser(ctx, "id", id)
}

func (r *Repo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findUser(ctx, "email", email)
}

func (r *Repo) listUsers(ctx context.Context, where string, args ...any) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users`+where+` ORDER BY id`, args...)
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

func (r *Repo) ListApproved(ctx context.Context, role models.Role) ([]models.User, error) {
	return r.listUsers(ctx, ` WHERE approved AND role = $1`, string(role))
}

func (r *Repo) ListPending(ctx context.Context) ([]models.User, error) {
	return r.listUsers(ctx, ` WHERE NOT approved`)
}

func (r *Repo) ListUsers(ctx context.Context) ([]models.User, error) {
	return r.listUsers(ctx, "")
}

func (r *Repo) ApproveUser(ctx context.Context, id int64) error {
	return r.execOne(ctx, `UPDATE users SET approved = TRUE, updated_at = $1 WHERE id = $2`, sqlutil.Millis(now()), id)
}

func (r *Repo) SetUserRole(ctx context.Context, id int64, role models.Role) error {
	return r.execOne(ctx, `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`, string(role), sqlutil.Millis(now()), id)
}

func (r *Repo) DeleteUser(ctx context.Context, id int64) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id = $1`, id)
}
