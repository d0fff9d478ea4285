package repository

import (
	"context"
	"errors"
	"time"

	"github.com/garnizeh/contentcrm/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
//
// Single-row lookups return (nil, nil) when the row does not exist. Mutations
// addressed at a missing row return ErrNotFound.

var (
	// ErrConflict means the stored version no longer matches the one the caller read.
	ErrConflict = errors.New("repository: version conflict")
	// ErrNotFound means the addressed row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate means a unique key (job code, user email) is already taken.
	ErrDuplicate = errors.New("repository: duplicate key")
)

// JobStore holds one record per job. UpdateJob is the compare-and-update
// primitive: it writes every mutable field of j in a single statement only if
// the stored version equals expectedVersion, then bumps the version. DeleteJob
// applies the same version check.
type JobStore interface {
	CreateJob(ctx context.Context, j *models.Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	GetJobByCode(ctx context.Context, code string) (*models.Job, error)
	UpdateJob(ctx context.Context, j *models.Job, expectedVersion int64) error
	DeleteJob(ctx context.Context, id, expectedVersion int64) error
	ListJobs(ctx context.Context, f JobFilter) ([]models.Job, error)
	CountJobs(ctx context.Context, f JobFilter) (int64, error)
}

// UserDirectory resolves actors and answers "approved users by role".
type UserDirectory interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	FindUser(ctx context.Context, id int64) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListApproved(ctx context.Context, role models.Role) ([]models.User, error)
	ListPending(ctx context.Context) ([]models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ApproveUser(ctx context.Context, id int64) error
	SetUserRole(ctx context.Context, id int64, role models.Role) error
	DeleteUser(ctx context.Context, id int64) error
}

// NotificationSink persists notifications. Read-state changes are scoped to
// the owning user; a notification owned by someone else is reported as ErrNotFound.
type NotificationSink interface {
	CreateNotification(ctx context.Context, n *models.Notification) (int64, error)
	ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

// JobOrder selects the sort order of ListJobs.
type JobOrder int

const (
	OrderCreatedDesc JobOrder = iota
	OrderStrictDeadlineAsc
	OrderUpdatedDesc
)

// JobFilter is a conjunction of predicates over the status triple and the
// assignment references. Empty fields do not constrain. Or holds
// alternatives: when non-empty, at least one of them must match as well.
type JobFilter struct {
	Statuses               []models.Status
	ExcludeStatuses        []models.Status
	WriterStatuses         []models.WriterStatus
	ExcludeWriterStatuses  []models.WriterStatus
	ProcessStatuses        []models.ProcessStatus
	DecorationStatuses     []models.DecorationStatus
	WriterID               *int64
	ProcessID              *int64
	CreatedBy              *int64
	DecorationAssigneeID   *int64
	WriterUnassigned       bool
	ProcessUnassigned      bool
	DecorationUnassigned   bool
	HasNote                bool
	StrictDeadlineAfter    *time.Time
	StrictDeadlineNotAfter *time.Time
	Or                     []JobFilter

	Order  JobOrder
	Limit  int
	Offset int
}

// Match evaluates the filter predicates against j in memory. Order, Limit
// and Offset are ignored.
func (f JobFilter) Match(j *models.Job) bool {
	if len(f.Statuses) > 0 && !contains(f.Statuses, j.Status) {
		return false
	}
	if contains(f.ExcludeStatuses, j.Status) {
		return false
	}
	if len(f.WriterStatuses) > 0 && !contains(f.WriterStatuses, j.WriterStatus) {
		return false
	}
	if contains(f.ExcludeWriterStatuses, j.WriterStatus) {
		return false
	}
	if len(f.ProcessStatuses) > 0 && !contains(f.ProcessStatuses, j.ProcessStatus) {
		return false
	}
	if len(f.DecorationStatuses) > 0 && !contains(f.DecorationStatuses, j.DecorationStatus) {
		return false
	}
	if f.WriterID != nil && !j.HasWriter(*f.WriterID) {
		return false
	}
	if f.ProcessID != nil && !j.HasProcessHandler(*f.ProcessID) {
		return false
	}
	if f.CreatedBy != nil && j.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.DecorationAssigneeID != nil && !j.HasDecorationAssignee(*f.DecorationAssigneeID) {
		return false
	}
	if f.WriterUnassigned && j.WriterID != nil {
		return false
	}
	if f.ProcessUnassigned && j.ProcessID != nil {
		return false
	}
	if f.DecorationUnassigned && j.DecorationAssigneeID != nil {
		return false
	}
	if f.HasNote && j.StatusNote == "" {
		return false
	}
	if f.StrictDeadlineAfter != nil && !j.StrictDeadline.After(*f.StrictDeadlineAfter) {
		return false
	}
	if f.StrictDeadlineNotAfter != nil && j.StrictDeadline.After(*f.StrictDeadlineNotAfter) {
		return false
	}
	if len(f.Or) > 0 {
		for _, alt := range f.Or {
			if alt.Match(j) {
				return true
			}
		}
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
