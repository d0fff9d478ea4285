package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/contentcrm/internal/repository/sqlutil"
	"github.com/garnizeh/contentcrm/pkg/models"
)

func (r *SQLiteRepo) CreateNotification(ctx context.Context, n *models.Notification) (int64, error) {
	if n == nil {
		return 0, fmt.Errorf("notification is nil")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO notifications (user_id, job_id, message, is_read, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.UserID, sqlutil.IDArg(n.JobID), n.Message, n.Read, sqlutil.Millis(n.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert notification for user %d: %w", n.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	n.ID = id
	return id, nil
}

// ListNotifications returns the user's notifications, newest first.
func (r *SQLiteRepo) ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.conn.QueryRows(ctx, `SELECT id, user_id, job_id, message, is_read, created_at FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]models.Notification, 0)
	for rows.Next() {
		var (
			n       models.Notification
			jobID   sql.NullInt64
			created int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &jobID, &n.Message, &n.Read, &created); err != nil {
			return nil, err
		}
		if jobID.Valid {
			id := jobID.Int64
			n.JobID = &id
		}
		n.CreatedAt = sqlutil.FromMillis(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var c int64
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&c); err != nil {
		return 0, err
	}
	return c, nil
}

// MarkRead flags one notification owned by userID as read.
func (r *SQLiteRepo) MarkRead(ctx context.Context, userID, id int64) error {
	return r.execOne(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
}

func (r *SQLiteRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := r.conn.Exec(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
