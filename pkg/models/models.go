package models

// Domain models matching the database schema in db/migrations/0001_init.sql

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleAdmin       Role = "admin"
	RoleManager     Role = "manager"
	RoleMarketing   Role = "marketing"
	RoleAllocater   Role = "allocater"
	RoleWriter      Role = "writer"
	RoleProcessTeam Role = "process_team"
	RoleAccounts    Role = "accounts"
)

// Roles lists every role in display order.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleManager, RoleMarketing, RoleAllocater, RoleWriter, RoleProcessTeam, RoleAccounts}
}

func (r Role) Valid() bool {
	for _, v := range Roles() {
		if v == r {
			return true
		}
	}
	return false
}

// CanAllocate reports whether the role may run allocation actions.
func (r Role) CanAllocate() bool {
	switch r {
	case RoleAllocater, RoleManager, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether the role may use the administrative override paths.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

type Status string

const (
	StatusDrop       Status = "drop"
	StatusAllocated  Status = "allocated"
	StatusQuery      Status = "query"
	StatusHold       Status = "hold"
	StatusCancel     Status = "cancel"
	StatusProcess    Status = "process"
	StatusDecoration Status = "decoration"
	StatusCompleted  Status = "completed"
)

// Terminal reports whether only administrative overrides may mutate a job in this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancel
}

type WriterStatus string

const (
	WriterPending    WriterStatus = "pending"
	WriterOpen       WriterStatus = "open"
	WriterInProgress WriterStatus = "in_progress"
	WriterClosed     WriterStatus = "closed"
)

type ProcessStatus string

const (
	ProcessNotAssigned ProcessStatus = "not_assigned"
	ProcessPending     ProcessStatus = "pending"
	ProcessInProgress  ProcessStatus = "in_progress"
	ProcessCompleted   ProcessStatus = "completed"
	ProcessClosed      ProcessStatus = "closed"
)

type DecorationStatus string

const (
	DecorationPending    DecorationStatus = "pending"
	DecorationInProgress DecorationStatus = "in_progress"
	DecorationCompleted  DecorationStatus = "completed"
)

// AssigneeKind tags who holds the decoration track.
type AssigneeKind string

const (
	AssigneeProcessTeam AssigneeKind = "process_team"
	AssigneeWriter      AssigneeKind = "writer"
)

// Role returns the directory role an assignee of this kind must hold.
func (k AssigneeKind) Role() Role {
	switch k {
	case AssigneeProcessTeam:
		return RoleProcessTeam
	case AssigneeWriter:
		return RoleWriter
	}
	return ""
}

func (k AssigneeKind) Valid() bool {
	return k == AssigneeProcessTeam || k == AssigneeWriter
}

// Attachments holds opaque file references per pipeline stage.
type Attachments struct {
	Brief string `json:"brief,omitempty"`

	Structure string `json:"structure,omitempty"`
	FinalCopy string `json:"final_copy,omitempty"`
	Software  string `json:"software,omitempty"`

	AIPlagFinal      string `json:"ai_plag_final,omitempty"`
	AIPlagAIReport   string `json:"ai_plag_ai_report,omitempty"`
	AIPlagPlagReport string `json:"ai_plag_plag_report,omitempty"`
	AIPlagSoftware   string `json:"ai_plag_software,omitempty"`

	DecorationFinal      string `json:"decoration_final,omitempty"`
	DecorationAIReport   string `json:"decoration_ai_report,omitempty"`
	DecorationPlagReport string `json:"decoration_plag_report,omitempty"`
	DecorationSoftware   string `json:"decoration_software,omitempty"`
	DecorationDecorated  string `json:"decoration_decorated,omitempty"`
}

type Job struct {
	ID   int64  `json:"id" db:"id"`
	Code string `json:"code" db:"code"`

	CreatedBy              int64        `json:"created_by" db:"created_by"`
	WriterID               *int64       `json:"writer_id,omitempty" db:"writer_id"`
	ProcessID              *int64       `json:"process_id,omitempty" db:"process_id"`
	AllocatedBy            *int64       `json:"allocated_by,omitempty" db:"allocated_by"`
	DecorationAssigneeID   *int64       `json:"decoration_assignee_id,omitempty" db:"decoration_assignee_id"`
	DecorationAssigneeKind AssigneeKind `json:"decoration_assignee_kind,omitempty" db:"decoration_assignee_kind"`

	Status           Status           `json:"status" db:"status"`
	WriterStatus     WriterStatus     `json:"writer_status" db:"writer_status"`
	ProcessStatus    ProcessStatus    `json:"process_status" db:"process_status"`
	DecorationStatus DecorationStatus `json:"decoration_status" db:"decoration_status"`

	Topic            string    `json:"topic" db:"topic"`
	Instruction      string    `json:"instruction" db:"instruction"`
	WordCount        int       `json:"word_count" db:"word_count"`
	ReferencingStyle string    `json:"referencing_style,omitempty" db:"referencing_style"`
	WritingStyle     string    `json:"writing_style,omitempty" db:"writing_style"`
	ValueCents       int64     `json:"value_cents" db:"value_cents"`
	ExpectedDeadline time.Time `json:"expected_deadline" db:"expected_deadline"`
	StrictDeadline   time.Time `json:"strict_deadline" db:"strict_deadline"`
	StatusNote       string    `json:"status_note,omitempty" db:"status_note"`
	Summary          string    `json:"summary,omitempty" db:"summary"`
	FinalCopySummary string    `json:"final_copy_summary,omitempty" db:"final_copy_summary"`

	Attachments Attachments `json:"attachments" db:"attachments"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	StartTime *time.Time `json:"start_time,omitempty" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`

	// Version increments on every committed update; stores compare it before writing.
	Version int64 `json:"version" db:"version"`
}

// MaskedCode shows only the last four characters of the job code.
func (j *Job) MaskedCode() string {
	if r := []rune(j.Code); len(r) > 4 {
		return "***" + string(r[len(r)-4:])
	}
	return "****"
}

// IsOverdue reports whether the strict deadline passed before completion.
func (j *Job) IsOverdue(now time.Time) bool {
	return now.After(j.StrictDeadline) && j.Status != StatusCompleted
}

// TimeSpent returns the writer's working time when both ends are recorded.
func (j *Job) TimeSpent() (time.Duration, bool) {
	if j.StartTime == nil || j.EndTime == nil {
		return 0, false
	}
	return j.EndTime.Sub(*j.StartTime), true
}

// HasWriter reports whether uid is the current writer.
func (j *Job) HasWriter(uid int64) bool {
	return j.WriterID != nil && *j.WriterID == uid
}

// HasProcessHandler reports whether uid is the current process handler.
func (j *Job) HasProcessHandler(uid int64) bool {
	return j.ProcessID != nil && *j.ProcessID == uid
}

// HasDecorationAssignee reports whether uid holds the decoration track.
func (j *Job) HasDecorationAssignee(uid int64) bool {
	return j.DecorationAssigneeID != nil && *j.DecorationAssigneeID == uid
}

// Clone returns a deep copy so callers can compute a new state without aliasing.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.WriterID = cloneID(j.WriterID)
	c.ProcessID = cloneID(j.ProcessID)
	c.AllocatedBy = cloneID(j.AllocatedBy)
	c.DecorationAssigneeID = cloneID(j.DecorationAssigneeID)
	c.StartTime = cloneTime(j.StartTime)
	c.EndTime = cloneTime(j.EndTime)
	return &c
}

// Violations lists the status-triple invariants this record breaks. An empty
// result means the record is consistent.
func (j *Job) Violations() []string {
	var out []string
	if j.Status == StatusCompleted && j.WriterStatus != WriterClosed {
		out = append(out, fmt.Sprintf("completed job has writer_status=%s", j.WriterStatus))
	}
	if j.Status == StatusDrop && j.WriterID != nil {
		out = append(out, "dropped job has a writer assigned")
	}
	if j.Status == StatusCancel && (j.WriterStatus != WriterClosed || j.ProcessStatus != ProcessClosed) {
		out = append(out, fmt.Sprintf("cancelled job has writer_status=%s process_status=%s", j.WriterStatus, j.ProcessStatus))
	}
	if j.WriterStatus == WriterInProgress && j.WriterID == nil {
		out = append(out, "writer in progress with no writer assigned")
	}
	if j.ProcessStatus == ProcessInProgress && j.ProcessID == nil {
		out = append(out, "process in progress with no handler assigned")
	}
	if !j.StrictDeadline.IsZero() && !j.CreatedAt.IsZero() && j.StrictDeadline.Before(j.CreatedAt) {
		out = append(out, "strict deadline precedes creation")
	}
	return out
}

func cloneID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email" validate:"required,email"`
	Name         string    `json:"name" db:"name" validate:"required"`
	Phone        string    `json:"phone,omitempty" db:"phone"`
	Role         Role      `json:"role" db:"role"`
	Approved     bool      `json:"approved" db:"approved"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName prefers the user's name and falls back to the email.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

type Notification struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	JobID     *int64    `json:"job_id,omitempty" db:"job_id"`
	Message   string    `json:"message" db:"message"`
	Read      bool      `json:"read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
