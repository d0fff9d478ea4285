package postgres

import (
	"context"
	"fmt"

	"github.com/garnizeh/contentcrm/internal/repository/sqlutil"
	"github.com/garnizeh/contentcrm/pkg/models"
)

func (r *Repo) CreateNotification(ctx context.Context, n *models.Notification) (int64, error) {
	if n == nil {
		return 0, fmt.Errorf("notification is nil")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO notifications (user_id, job_id, message, is_read, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		n.UserID, sqlutil.IDArg(n.JobID), n.Message, n.Read, sqlutil.Millis(n.CreatedAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert notification for user %d: %w", n.UserID, err)
	}
	n.ID = id
	return id, nil
}

func (r *Repo) ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	q := `SELECT id, user_id, job_id, message, is_read, created_at FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]models.Notification, 0)
	for rows.Next() {
		var (
			n       models.Notification
			created int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.JobID, &n.Message, &n.Read, &created); err != nil {
			return nil, err
		}
		n.CreatedAt = sqlutil.FromMillis(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repo) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var c int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&c); err != nil {
		return 0, err
	}
	return c, nil
}

func (r *Repo) MarkRead(ctx context.Context, userID, id int64) error {
	return r.execOne(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *Repo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
