package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/garnizeh/contentcrm/internal/repository/sqlutil"
	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

func (r *SQLiteRepo) CreateJob(ctx context.Context, j *models.Job) (int64, error) {
	if j == nil {
		return 0, fmt.Errorf("job is nil")
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now()
	}
	j.UpdatedAt = j.CreatedAt

	att, err := json.Marshal(j.Attachments)
	if err != nil {
		return 0, fmt.Errorf("encode attachments: %w", err)
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO jobs (code, created_by, writer_id, process_id, allocated_by, decoration_assignee_id,
		decoration_assignee_kind, status, writer_status, process_status, decoration_status, topic, instruction, word_count,
		referencing_style, writing_style, value_cents, expected_deadline, strict_deadline, status_note, summary,
		final_copy_summary, attachments, created_at, updated_at, start_time, end_time, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		j.Code, j.CreatedBy, sqlutil.IDArg(j.WriterID), sqlutil.IDArg(j.ProcessID), sqlutil.IDArg(j.AllocatedBy),
		sqlutil.IDArg(j.DecorationAssigneeID), string(j.DecorationAssigneeKind), string(j.Status), string(j.WriterStatus),
		string(j.ProcessStatus), string(j.DecorationStatus), j.Topic, j.Instruction, j.WordCount, j.ReferencingStyle,
		j.WritingStyle, j.ValueCents, sqlutil.Millis(j.ExpectedDeadline), sqlutil.Millis(j.StrictDeadline), j.StatusNote,
		j.Summary, j.FinalCopySummary, string(att), sqlutil.Millis(j.CreatedAt), sqlutil.Millis(j.UpdatedAt),
		sqlutil.MillisPtr(j.StartTime), sqlutil.MillisPtr(j.EndTime))
	if err != nil {
		return 0, fmt.Errorf("insert job %s: %w", j.Code, wrapDuplicate(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	j.ID = id
	j.Version = 1
	return id, nil
}

func (r *SQLiteRepo) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+sqlutil.JobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := sqlutil.ScanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

func (r *SQLiteRepo) GetJobByCode(ctx context.Context, code string) (*models.Job, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+sqlutil.JobColumns+` FROM jobs WHERE code = ?`, code)
	j, err := sqlutil.ScanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

// UpdateJob writes every mutable column in one statement guarded by the
// version the caller read.
func (r *SQLiteRepo) UpdateJob(ctx context.Context, j *models.Job, expectedVersion int64) error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}
	args, err := sqlutil.MutableArgs(j)
	if err != nil {
		return err
	}
	sets := make([]string, len(sqlutil.MutableColumns))
	for i, c := range sqlutil.MutableColumns {
		sets[i] = c + " = ?"
	}
	q := `UPDATE jobs SET ` + strings.Join(sets, ", ") + `, version = version + 1 WHERE id = ? AND version = ?`
	args = append(args, j.ID, expectedVersion)

	res, err := r.conn.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update job %d: %w", j.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missOrConflict(ctx, j.ID)
	}
	j.Version = expectedVersion + 1
	return nil
}

func (r *SQLiteRepo) missOrConflict(ctx context.Context, id int64) error {
	var count int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM jobs WHERE id = ?`, id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *SQLiteRepo) DeleteJob(ctx context.Context, id, expectedVersion int64) error {
	res, err := r.conn.Exec(ctx, `DELETE FROM jobs WHERE id = ? AND version = ?`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *SQLiteRepo) ListJobs(ctx context.Context, f repository.JobFilter) ([]models.Job, error) {
	where, args := sqlutil.Where(f, sqlutil.Question, 0)
	rows, err := r.conn.QueryRows(ctx, `SELECT `+sqlutil.JobColumns+` FROM jobs`+where+sqlutil.OrderLimit(f), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]models.Job, 0)
	for rows.Next() {
		j, err := sqlutil.ScanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) CountJobs(ctx context.Context, f repository.JobFilter) (int64, error) {
	where, args := sqlutil.Where(f, sqlutil.Question, 0)
	var count int64
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM jobs`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return count, nil
}

// SumCompletedValue returns the number and total value of completed jobs.
func (r *SQLiteRepo) SumCompletedValue(ctx context.Context) (int64, int64, error) {
	var count, total int64
	err := r.conn.QueryRow(ctx, `SELECT COUNT(1), COALESCE(SUM(value_cents), 0) FROM jobs WHERE status = ?`, string(models.StatusCompleted)).Scan(&count, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("sum completed value: %w", err)
	}
	return count, total, nil
}
