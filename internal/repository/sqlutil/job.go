package sqlutil

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garnizeh/contentcrm/pkg/models"
)

// Scanner is satisfied by *sql.Row, *sql.Rows and pgx rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanJob reads one row selected with JobColumns.
func ScanJob(s Scanner) (*models.Job, error) {
	var (
		j                                        models.Job
		writerID, processID, allocatedBy, decoID sql.NullInt64
		expected, strict, created, updated       int64
		startTime, endTime                       sql.NullInt64
		attachments                              string
	)
	err := s.Scan(&j.ID, &j.Code, &j.CreatedBy, &writerID, &processID, &allocatedBy, &decoID, &j.DecorationAssigneeKind,
		&j.Status, &j.WriterStatus, &j.ProcessStatus, &j.DecorationStatus, &j.Topic, &j.Instruction, &j.WordCount,
		&j.ReferencingStyle, &j.WritingStyle, &j.ValueCents, &expected, &strict, &j.StatusNote, &j.Summary,
		&j.FinalCopySummary, &attachments, &created, &updated, &startTime, &endTime, &j.Version)
	if err != nil {
		return nil, err
	}
	j.WriterID = nullID(writerID)
	j.ProcessID = nullID(processID)
	j.AllocatedBy = nullID(allocatedBy)
	j.DecorationAssigneeID = nullID(decoID)
	j.ExpectedDeadline = FromMillis(expected)
	j.StrictDeadline = FromMillis(strict)
	j.CreatedAt = FromMillis(created)
	j.UpdatedAt = FromMillis(updated)
	j.StartTime = nullTime(startTime)
	j.EndTime = nullTime(endTime)
	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &j.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments of job %d: %w", j.ID, err)
		}
	}
	return &j, nil
}

// MutableColumns are the columns rewritten by a compare-and-update, in the
// order returned by MutableArgs.
var MutableColumns = []string{
	"writer_id", "process_id", "allocated_by", "decoration_assignee_id", "decoration_assignee_kind",
	"status", "writer_status", "process_status", "decoration_status", "topic", "instruction", "word_count",
	"referencing_style", "writing_style", "value_cents", "expected_deadline", "strict_deadline", "status_note",
	"summary", "final_copy_summary", "attachments", "updated_at", "start_time", "end_time",
}

// MutableArgs returns the bind values for MutableColumns.
func MutableArgs(j *models.Job) ([]any, error) {
	att, err := json.Marshal(j.Attachments)
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	return []any{
		IDArg(j.WriterID), IDArg(j.ProcessID), IDArg(j.AllocatedBy), IDArg(j.DecorationAssigneeID),
		string(j.DecorationAssigneeKind), string(j.Status), string(j.WriterStatus), string(j.ProcessStatus),
		string(j.DecorationStatus), j.Topic, j.Instruction, j.WordCount, j.ReferencingStyle, j.WritingStyle,
		j.ValueCents, Millis(j.ExpectedDeadline), Millis(j.StrictDeadline), j.StatusNote, j.Summary,
		j.FinalCopySummary, string(att), Millis(j.UpdatedAt), MillisPtr(j.StartTime), MillisPtr(j.EndTime),
	}, nil
}

func nullID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := FromMillis(v.Int64)
	return &t
}
