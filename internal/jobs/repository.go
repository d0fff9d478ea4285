package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/contentcrm/internal/db"
)

const taskColumns = `id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`

type Repository struct {
	db  *db.DB
	now func() time.Time
}

func NewRepository(d *db.DB) *Repository {
	return &Repository{db: d, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue inserts a queued task and returns its id.
func (r *Repository) Enqueue(ctx context.Context, t *Task) (int64, error) {
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = defaultMaxAttempts
	}
	now := r.now()
	if t.ScheduledAt.IsZero() {
		t.ScheduledAt = now
	}
	q := `INSERT INTO background_tasks(type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?)`
	res, err := r.db.Exec(ctx, q, t.Type, string(t.Payload), StatusQueued, t.Attempts, t.MaxAttempts, t.Priority,
		t.ScheduledAt.UnixMilli(), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", t.Type, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.ID, t.Status = id, StatusQueued
	return id, nil
}

// Claim picks the next due task and marks it running. A task another worker
// claimed first is skipped, so each task runs once per attempt.
func (r *Repository) Claim(ctx context.Context) (*Task, error) {
	for {
		t, err := r.next(ctx)
		if err != nil || t == nil {
			return nil, err
		}
		res, err := r.db.Exec(ctx, `UPDATE background_tasks SET status = ?, updated = ? WHERE id = ? AND status IN (?, ?)`,
			StatusRunning, r.now().UnixMilli(), t.ID, StatusQueued, StatusRetry)
		if err != nil {
			return nil, fmt.Errorf("claim task %d: %w", t.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 1 {
			t.Status = StatusRunning
			return t, nil
		}
	}
}

func (r *Repository) next(ctx context.Context) (*Task, error) {
	now := r.now().UnixMilli()
	q := `SELECT ` + taskColumns + ` FROM background_tasks
		WHERE status IN (?, ?) AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ?
		ORDER BY priority ASC, scheduled_at ASC, id ASC LIMIT 1`
	t, err := scanTask(r.db.QueryRow(ctx, q, StatusQueued, StatusRetry, now, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch next task: %w", err)
	}
	return t, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Task, error) {
	t, err := scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM background_tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// Update writes status, attempts, next_try_at and last_error.
func (r *Repository) Update(ctx context.Context, t *Task) error {
	var nextTry any
	if t.NextTryAt != nil {
		nextTry = t.NextTryAt.UnixMilli()
	}
	q := `UPDATE background_tasks SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	if _, err := r.db.Exec(ctx, q, t.Status, t.Attempts, nextTry, t.LastError, r.now().UnixMilli(), t.ID); err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return nil
}

// MoveToDeadLetter copies the task to dead_letter_tasks and deletes the original.
func (r *Repository) MoveToDeadLetter(ctx context.Context, t *Task) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		insert := `INSERT INTO dead_letter_tasks(task_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`
		if _, err := tx.ExecContext(ctx, insert, t.ID, t.Type, string(t.Payload), t.Attempts, t.LastError, r.now().UnixMilli()); err != nil {
			return fmt.Errorf("insert dead letter %d: %w", t.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM background_tasks WHERE id = ?`, t.ID); err != nil {
			return fmt.Errorf("delete task %d: %w", t.ID, err)
		}
		return nil
	})
}

// DeadLetterCount returns how many tasks of the type failed permanently; an
// empty type counts all of them.
func (r *Repository) DeadLetterCount(ctx context.Context, typ string) (int64, error) {
	var n int64
	q := `SELECT COUNT(1) FROM dead_letter_tasks`
	args := []any{}
	if typ != "" {
		q += ` WHERE type = ?`
		args = append(args, typ)
	}
	if err := r.db.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// Counts groups live tasks by status.
func (r *Repository) Counts(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryRows(ctx, `SELECT status, COUNT(1) FROM background_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var s string
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

func scanTask(row interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		t           Task
		payload     sql.NullString
		scheduledAt int64
		nextTry     sql.NullInt64
		lastError   sql.NullString
		created     int64
		updated     int64
	)
	if err := row.Scan(&t.ID, &t.Type, &payload, &t.Status, &t.Attempts, &t.MaxAttempts, &t.Priority,
		&scheduledAt, &nextTry, &lastError, &created, &updated); err != nil {
		return nil, err
	}
	t.ScheduledAt = time.UnixMilli(scheduledAt).UTC()
	t.Created = time.UnixMilli(created).UTC()
	t.Updated = time.UnixMilli(updated).UTC()
	if payload.Valid {
		t.Payload = json.RawMessage(payload.String)
	}
	if nextTry.Valid {
		nt := time.UnixMilli(nextTry.Int64).UTC()
		t.NextTryAt = &nt
	}
	t.LastError = lastError.String
	return &t, nil
}
