package workflow

import (
	"time"

	"github.com/garnizeh/contentcrm/pkg/models"
)

type Action string

const (
	ActionAllocate          Action = "allocate"
	ActionQuery             Action = "query"
	ActionHold              Action = "hold"
	ActionCancel            Action = "cancel"
	ActionChangeWriter      Action = "change_writer"
	ActionAllocateToProcess Action = "allocate_to_process"
	ActionChangeProcess     Action = "change_process"
	ActionAssignDecoration  Action = "assign_decoration"
	ActionResume            Action = "resume"
	ActionStart             Action = "start"
	ActionWriterQuery       Action = "writer_query"
	ActionSubmit            Action = "submit"
	ActionUploadAIPlag      Action = "upload_ai_plag"
	ActionUploadDecoration  Action = "upload_decoration"
	ActionEdit              Action = "edit"
	ActionDelete            Action = "delete"
	ActionRetract           Action = "retract"
	ActionSummarize         Action = "summarize"
)

// Actions lists every action Apply understands.
func Actions() []Action {
	return []Action{
		ActionAllocate, ActionQuery, ActionHold, ActionCancel, ActionChangeWriter, ActionAllocateToProcess,
		ActionChangeProcess, ActionAssignDecoration, ActionResume, ActionStart, ActionWriterQuery, ActionSubmit,
		ActionUploadAIPlag, ActionUploadDecoration, ActionEdit, ActionDelete, ActionRetract, ActionSummarize,
	}
}

func (a Action) Valid() bool {
	for _, v := range Actions() {
		if v == a {
			return true
		}
	}
	return false
}

// bypassesStateMachine reports whether the action ignores the job's current
// status, including terminal ones.
func (a Action) bypassesStateMachine() bool {
	return a == ActionEdit || a == ActionDelete || a == ActionSummarize
}

// Actor is the identity performing an action. System actors are internal
// workers and skip directory verification.
type Actor struct {
	UserID int64       `json:"user_id"`
	Role   models.Role `json:"role"`
	System bool        `json:"-"`
}

// SystemActor identifies background workers.
var SystemActor = Actor{System: true}

// Payload carries the action-specific input. Fields irrelevant to the action are ignored.
type Payload struct {
	WriterID         *int64              `json:"writer_id,omitempty"`
	ProcessID        *int64              `json:"process_id,omitempty"`
	AssigneeID       *int64              `json:"assignee_id,omitempty"`
	AssigneeKind     models.AssigneeKind `json:"assignee_kind,omitempty"`
	Note             string              `json:"note,omitempty"`
	Attachments      models.Attachments  `json:"attachments"`
	FinalCopySummary string              `json:"final_copy_summary,omitempty"`
	Summary          string              `json:"summary,omitempty"`
	Edit             *JobEdit            `json:"edit,omitempty"`
}

// JobEdit lists the content fields an edit may overwrite; nil leaves a field unchanged.
type JobEdit struct {
	Topic            *string    `json:"topic,omitempty"`
	Instruction      *string    `json:"instruction,omitempty"`
	WordCount        *int       `json:"word_count,omitempty"`
	ReferencingStyle *string    `json:"referencing_style,omitempty"`
	WritingStyle     *string    `json:"writing_style,omitempty"`
	ValueCents       *int64     `json:"value_cents,omitempty"`
	ExpectedDeadline *time.Time `json:"expected_deadline,omitempty"`
	StrictDeadline   *time.Time `json:"strict_deadline,omitempty"`
	Brief            *string    `json:"brief,omitempty"`
}

// assigneeID returns the user the payload proposes for assignment, if any.
func (p Payload) assigneeID(a Action) *int64 {
	switch a {
	case ActionAllocate, ActionChangeWriter:
		return p.WriterID
	case ActionAllocateToProcess, ActionChangeProcess:
		return p.ProcessID
	case ActionAssignDecoration:
		return p.AssigneeID
	}
	return nil
}

// Request is one call to Apply.
type Request struct {
	JobID   int64
	Actor   Actor
	Action  Action
	Payload Payload
	// Now is the caller-supplied current time; zero means the wall clock.
	Now time.Time
}

// Event is a notification addressed to one user, produced by a committed transition.
type Event struct {
	UserID  int64  `json:"user_id"`
	JobID   *int64 `json:"job_id,omitempty"`
	Message string `json:"message"`
}

// Result is the outcome of a successful Apply.
type Result struct {
	Job     *models.Job `json:"job"`
	Events  []Event     `json:"events"`
	Deleted bool        `json:"deleted,omitempty"`
	// Undelivered counts events the notification sink refused.
	Undelivered int `json:"undelivered,omitempty"`
}
