// Package sqlutil translates repository filters into SQL shared by the
// SQLite and PostgreSQL stores.
package sqlutil

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/garnizeh/contentcrm/pkg/repository"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Question renders SQLite style placeholders.
func Question(int) string { return "?" }

// Dollar renders PostgreSQL style placeholders.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// JobColumns lists the jobs columns in scan order.
const JobColumns = `id, code, created_by, writer_id, process_id, allocated_by, decoration_assignee_id, decoration_assignee_kind,
	status, writer_status, process_status, decoration_status, topic, instruction, word_count, referencing_style, writing_style,
	value_cents, expected_deadline, strict_deadline, status_note, summary, final_copy_summary, attachments,
	created_at, updated_at, start_time, end_time, version`

type builder struct {
	ph   Placeholder
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return b.ph(len(b.args))
}

// Where builds the WHERE clause (including the keyword, or empty) for f.
// startArg offsets placeholder numbering for callers that bind arguments first.
func Where(f repository.JobFilter, ph Placeholder, startArg int) (string, []any) {
	b := &builder{ph: func(n int) string { return ph(n + startArg) }}
	conds := b.conds(f)
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), b.args
}

func (b *builder) conds(f repository.JobFilter) []string {
	var out []string
	if c := in(b, "status", f.Statuses, false); c != "" {
		out = append(out, c)
	}
	if c := in(b, "status", f.ExcludeStatuses, true); c != "" {
		out = append(out, c)
	}
	if c := in(b, "writer_status", f.WriterStatuses, false); c != "" {
		out = append(out, c)
	}
	if c := in(b, "writer_status", f.ExcludeWriterStatuses, true); c != "" {
		out = append(out, c)
	}
	if c := in(b, "process_status", f.ProcessStatuses, false); c != "" {
		out = append(out, c)
	}
	if c := in(b, "decoration_status", f.DecorationStatuses, false); c != "" {
		out = append(out, c)
	}
	if f.WriterID != nil {
		out = append(out, "writer_id = "+b.arg(*f.WriterID))
	}
	if f.ProcessID != nil {
		out = append(out, "process_id = "+b.arg(*f.ProcessID))
	}
	if f.CreatedBy != nil {
		out = append(out, "created_by = "+b.arg(*f.CreatedBy))
	}
	if f.DecorationAssigneeID != nil {
		out = append(out, "decoration_assignee_id = "+b.arg(*f.DecorationAssigneeID))
	}
	if f.WriterUnassigned {
		out = append(out, "writer_id IS NULL")
	}
	if f.ProcessUnassigned {
		out = append(out, "process_id IS NULL")
	}
	if f.DecorationUnassigned {
		out = append(out, "decoration_assignee_id IS NULL")
	}
	if f.HasNote {
		out = append(out, "status_note <> ''")
	}
	if f.StrictDeadlineAfter != nil {
		out = append(out, "strict_deadline > "+b.arg(Millis(*f.StrictDeadlineAfter)))
	}
	if f.StrictDeadlineNotAfter != nil {
		out = append(out, "strict_deadline <= "+b.arg(Millis(*f.StrictDeadlineNotAfter)))
	}
	if len(f.Or) > 0 {
		mark := len(b.args)
		alts := make([]string, 0, len(f.Or))
		for _, alt := range f.Or {
			c := b.conds(alt)
			if len(c) == 0 {
				// an unconstrained alternative matches everything
				b.args = b.args[:mark]
				alts = nil
				break
			}
			alts = append(alts, "("+strings.Join(c, " AND ")+")")
		}
		if len(alts) > 0 {
			out = append(out, "("+strings.Join(alts, " OR ")+")")
		}
	}
	return out
}

func in[T ~string](b *builder, col string, vals []T, negate bool) string {
	if len(vals) == 0 {
		return ""
	}
	ps := make([]string, len(vals))
	for i, v := range vals {
		ps[i] = b.arg(string(v))
	}
	op := " IN ("
	if negate {
		op = " NOT IN ("
	}
	return col + op + strings.Join(ps, ", ") + ")"
}

// OrderLimit renders ORDER BY, LIMIT and OFFSET for f.
func OrderLimit(f repository.JobFilter) string {
	var sb strings.Builder
	switch f.Order {
	case repository.OrderStrictDeadlineAsc:
		sb.WriteString(" ORDER BY strict_deadline ASC, id DESC")
	case repository.OrderUpdatedDesc:
		sb.WriteString(" ORDER BY updated_at DESC, id DESC")
	default:
		sb.WriteString(" ORDER BY created_at DESC, id DESC")
	}
	limit := int64(f.Limit)
	if limit <= 0 && f.Offset > 0 {
		limit = math.MaxInt64
	}
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	if f.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", f.Offset)
	}
	return sb.String()
}

// Millis converts t to the unix-millisecond representation stored in the database.
func Millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// MillisPtr converts an optional time, keeping nil as SQL NULL.
func MillisPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return Millis(*t)
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// IDArg converts an optional id, keeping nil as SQL NULL.
func IDArg(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
