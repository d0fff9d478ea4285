package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/garnizeh/contentcrm/internal/repository/sqlutil"
	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

func (r *Repo) CreateJob(ctx context.Context, j *models.Job) (int64, error) {
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

	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO jobs (code, created_by, writer_id, process_id, allocated_by, decoration_assignee_id,
		decoration_assignee_kind, status, writer_status, process_status, decoration_status, topic, instruction, word_count,
		referencing_style, writing_style, value_cents, expected_deadline, strict_deadline, status_note, summary,
		final_copy_summary, attachments, created_at, updated_at, start_time, end_time, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, 1)
		RETURNING id`,
		j.Code, j.CreatedBy, sqlutil.IDArg(j.WriterID), sqlutil.IDArg(j.ProcessID), sqlutil.IDArg(j.AllocatedBy),
		sqlutil.IDArg(j.DecorationAssigneeID), string(j.DecorationAssigneeKind), string(j.Status), string(j.WriterStatus),
		string(j.ProcessStatus), string(j.DecorationStatus), j.Topic, j.Instruction, j.WordCount, j.ReferencingStyle,
		j.WritingStyle, j.ValueCents, sqlutil.Millis(j.ExpectedDeadline), sqlutil.Millis(j.StrictDeadline), j.StatusNote,
		j.Summary, j.FinalCopySummary, string(att), sqlutil.Millis(j.CreatedAt), sqlutil.Millis(j.UpdatedAt),
		sqlutil.MillisPtr(j.StartTime), sqlutil.MillisPtr(j.EndTime)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job %s: %w", j.Code, wrapDuplicate(err))
	}
	j.ID = id
	j.Version = 1
	return id, nil
}

func (r *Repo) getJob(ctx context.Context, where string, arg any) (*models.Job, error) {
	j, err := sqlutil.ScanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE `+where+` = $1`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (r *Repo) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	return r.getJob(ctx, "id", id)
}

func (r *Repo) GetJobByCode(ctx context.Context, code string) (*models.Job, error) {
	return r.getJob(ctx, "code", code)
}

func (r *Repo) UpdateJob(ctx context.Context, j *models.Job, expectedVersion int64) error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}
	args, err := sqlutil.MutableArgs(j)
	if err != nil {
		return err
	}
	sets := make([]string, len(sqlutil.MutableColumns))
	for i, c := range sqlutil.MutableColumns {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	n := len(args)
	q := fmt.Sprintf(`UPDATE jobs SET %s, version = version + 1 WHERE id = $%d AND version = $%d`, strings.Join(sets, ", "), n+1, n+2)
	args = append(args, j.ID, expectedVersion)

	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update job %d: %w", j.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, j.ID)
	}
	j.Version = expectedVersion + 1
	return nil
}

func (r *Repo) missOrConflict(ctx context.Context, id int64) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *Repo) DeleteJob(ctx context.Context, id, expectedVersion int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *Repo) ListJobs(ctx context.Context, f repository.JobFilter) ([]models.Job, error) {
	where, args := sqlutil.Where(f, sqlutil.Dollar, 0)
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs`+where+sqlutil.OrderLimit(f), args...)
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

func (r *Repo) CountJobs(ctx context.Context, f repository.JobFilter) (int64, error) {
	where, args := sqlutil.Where(f, sqlutil.Dollar, 0)
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM jobs`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return count, nil
}

// SumCompletedValue returns the number and total value of completed jobs.
func (r *Repo) SumCompletedValue(ctx context.Context) (int64, int64, error) {
	var count, total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(1), COALESCE(SUM(value_cents), 0)::BIGINT FROM jobs WHERE status = $1`, string(models.StatusCompleted)).Scan(&count, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("sum completed value: %w", err)
	}
	return count, total, nil
}

// jobColumns casts the JSONB attachments column to text so the shared scanner applies.
var jobColumns = strings.Replace(sqlutil.JobColumns, "attachments", "attachments::text", 1)
