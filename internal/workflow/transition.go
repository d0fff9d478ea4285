package workflow

import (
	"fmt"
	"time"

	"github.com/garnizeh/contentcrm/pkg/models"
)

// Notice is a recipient-agnostic notification produced by Transition. Exactly
// one of UserID and Role is set: Role addresses every approved member of that
// role. Template holds a single %s replaced by the job identifier.
type Notice struct {
	UserID   int64
	Role     models.Role
	Template string
}

func toUser(id int64, format string, args ...any) Notice {
	return Notice{UserID: id, Template: fmt.Sprintf(format, args...)}
}

func toRole(r models.Role, format string, args ...any) Notice {
	return Notice{Role: r, Template: fmt.Sprintf(format, args...)}
}

// Input is everything Transition needs besides the job itself.
type Input struct {
	Actor   Actor
	Action  Action
	Payload Payload
	Now     time.Time
	// Assignee is the directory record for the user the payload names, or nil
	// when the action names none or the id did not resolve.
	Assignee *models.User
}

// deletion is returned in place of a next state by delete and retract.
var deletion = &models.Job{}

// Transition validates one action against job and computes the next state and
// the notices it triggers. It never mutates job and performs no I/O, so the
// same inputs always produce the same outcome.
func Transition(job *models.Job, in Input) (*models.Job, []Notice, error) {
	if !in.Action.Valid() {
		return nil, nil, reject(ErrInvalidPayload, "unknown action %q", in.Action)
	}
	if err := authorize(job, in); err != nil {
		return nil, nil, err
	}
	if job.Status.Terminal() && !in.Action.bypassesStateMachine() {
		return nil, nil, reject(ErrInvalidTransition, "job %s is %s", job.Code, job.Status)
	}

	next := job.Clone()
	next.UpdatedAt = in.Now
	var notices []Notice
	p := in.Payload

	switch in.Action {
	case ActionAllocate:
		if job.Status != models.StatusDrop {
			return nil, nil, reject(ErrInvalidTransition, "allocate requires status drop, job is %s", job.Status)
		}
		w, err := eligible(in, models.RoleWriter)
		if err != nil {
			return nil, nil, err
		}
		next.WriterID = &w.ID
		next.AllocatedBy = &in.Actor.UserID
		next.Status = models.StatusAllocated
		next.WriterStatus = models.WriterOpen
		next.StartTime = nil
		next.StatusNote = p.Note
		notices = append(notices,
			toUser(w.ID, "New job assigned: %%s"),
			toUser(in.Actor.UserID, "Job %%s allocated to writer %s", w.DisplayName()),
		)

	case ActionQuery, ActionHold, ActionCancel:
		switch job.Status {
		case models.StatusAllocated, models.StatusProcess, models.StatusQuery, models.StatusHold:
		default:
			return nil, nil, reject(ErrInvalidTransition, "%s not allowed from status %s", in.Action, job.Status)
		}
		next.StatusNote = p.Note
		var tmpl string
		switch in.Action {
		case ActionQuery:
			next.Status = models.StatusQuery
			tmpl = "Job %s has been put on query."
		case ActionHold:
			next.Status = models.StatusHold
			tmpl = "Job %s has been put on hold."
		case ActionCancel:
			next.Status = models.StatusCancel
			next.WriterStatus = models.WriterClosed
			next.ProcessStatus = models.ProcessClosed
			tmpl = "Job %s has been cancelled."
		}
		if job.WriterID != nil {
			notices = append(notices, Notice{UserID: *job.WriterID, Template: tmpl})
		}
		if job.ProcessID != nil {
			notices = append(notices, Notice{UserID: *job.ProcessID, Template: tmpl})
		}

	case ActionChangeWriter:
		if job.Status != models.StatusAllocated {
			return nil, nil, reject(ErrInvalidTransition, "change_writer requires status allocated, job is %s", job.Status)
		}
		if p.WriterID != nil && job.HasWriter(*p.WriterID) {
			return nil, nil, reject(ErrInvalidTransition, "user %d is already the writer", *p.WriterID)
		}
		w, err := eligible(in, models.RoleWriter)
		if err != nil {
			return nil, nil, err
		}
		next.WriterID = &w.ID
		next.WriterStatus = models.WriterOpen
		next.StartTime = nil
		next.StatusNote = ""
		notices = append(notices, toUser(w.ID, "Job reassigned to you: %%s"))
		if job.WriterID != nil {
			notices = append(notices, toUser(*job.WriterID, "Job %%s has been reassigned to another writer."))
		}

	case ActionAllocateToProcess:
		if job.Status != models.StatusProcess || job.ProcessID != nil {
			return nil, nil, reject(ErrInvalidTransition, "allocate_to_process requires status process with no handler")
		}
		m, err := eligible(in, models.RoleProcessTeam)
		if err != nil {
			return nil, nil, err
		}
		next.ProcessID = &m.ID
		next.ProcessStatus = models.ProcessPending
		notices = append(notices, toUser(m.ID, "Job assigned for processing: %%s"))

	case ActionChangeProcess:
		if !inProcessing(job) || job.ProcessID == nil {
			return nil, nil, reject(ErrInvalidTransition, "change_process requires a handled job in process or decoration")
		}
		if p.ProcessID != nil && job.HasProcessHandler(*p.ProcessID) {
			return nil, nil, reject(ErrInvalidTransition, "user %d is already the process handler", *p.ProcessID)
		}
		m, err := eligible(in, models.RoleProcessTeam)
		if err != nil {
			return nil, nil, err
		}
		next.ProcessID = &m.ID
		next.ProcessStatus = models.ProcessPending
		next.StatusNote = ""
		notices = append(notices,
			toUser(m.ID, "Job assigned for processing: %%s"),
			toUser(*job.ProcessID, "Job %%s has been reassigned to another process team member."),
		)

	case ActionAssignDecoration:
		if !inProcessing(job) || job.WriterStatus != models.WriterClosed {
			return nil, nil, reject(ErrInvalidTransition, "decoration can be assigned only after the writer submitted")
		}
		if !p.AssigneeKind.Valid() {
			return nil, nil, reject(ErrInvalidPayload, "assignee_kind must be process_team or writer")
		}
		a, err := eligible(in, p.AssigneeKind.Role())
		if err != nil {
			return nil, nil, err
		}
		next.DecorationAssigneeID = &a.ID
		next.DecorationAssigneeKind = p.AssigneeKind
		next.DecorationStatus = models.DecorationInProgress
		notices = append(notices, toUser(a.ID, "Job assigned for decoration: %%s"))

	case ActionResume:
		if job.Status != models.StatusQuery && job.Status != models.StatusHold {
			return nil, nil, reject(ErrInvalidTransition, "resume requires status query or hold, job is %s", job.Status)
		}
		next.StatusNote = ""
		switch {
		case job.WriterID == nil:
			next.Status = models.StatusDrop
			next.WriterStatus = models.WriterPending
		case job.WriterStatus == models.WriterClosed:
			next.Status = models.StatusProcess
		default:
			next.Status = models.StatusAllocated
			next.WriterStatus = models.WriterOpen
			next.StartTime = nil
		}
		if job.WriterID != nil {
			notices = append(notices, toUser(*job.WriterID, "Job %%s has been resumed."))
		}
		if job.ProcessID != nil {
			notices = append(notices, toUser(*job.ProcessID, "Job %%s has been resumed."))
		}

	case ActionStart:
		if job.Status != models.StatusAllocated || job.WriterStatus != models.WriterOpen {
			return nil, nil, reject(ErrInvalidTransition, "start requires allocated/open, job is %s/%s", job.Status, job.WriterStatus)
		}
		now := in.Now
		next.Status = models.StatusProcess
		next.WriterStatus = models.WriterInProgress
		next.StartTime = &now
		notices = append(notices, allocaters(job, "Writer started working on job %%s")...)

	case ActionWriterQuery:
		if err := writerWorking(job); err != nil {
			return nil, nil, err
		}
		if p.Note == "" {
			return nil, nil, reject(ErrInvalidPayload, "a query needs a note")
		}
		next.Status = models.StatusQuery
		next.WriterStatus = models.WriterPending
		next.StatusNote = p.Note
		notices = append(notices, allocaters(job, "Writer raised query for job %%s: %s", truncate(p.Note, 100))...)

	case ActionSubmit:
		if err := writerWorking(job); err != nil {
			return nil, nil, err
		}
		if p.Attachments.FinalCopy == "" {
			return nil, nil, reject(ErrInvalidPayload, "submit needs a final copy attachment")
		}
		now := in.Now
		next.WriterStatus = models.WriterClosed
		next.ProcessStatus = models.ProcessPending
		next.EndTime = &now
		next.Attachments.Structure = p.Attachments.Structure
		next.Attachments.FinalCopy = p.Attachments.FinalCopy
		next.Attachments.Software = p.Attachments.Software
		if p.FinalCopySummary != "" {
			next.FinalCopySummary = p.FinalCopySummary
		}
		notices = append(notices, allocaters(job, "Writer completed job %%s and submitted for processing")...)
		if job.ProcessID != nil {
			notices = append(notices, toUser(*job.ProcessID, "New job ready for processing: %%s"))
		} else {
			notices = append(notices, toRole(models.RoleProcessTeam, "New job ready for processing: %%s"))
		}

	case ActionUploadAIPlag:
		if !inProcessing(job) || job.WriterStatus != models.WriterClosed {
			return nil, nil, reject(ErrInvalidTransition, "AI/plagiarism reports need a submitted job in process")
		}
		a := p.Attachments
		if a.AIPlagFinal == "" && a.AIPlagAIReport == "" && a.AIPlagPlagReport == "" && a.AIPlagSoftware == "" {
			return nil, nil, reject(ErrInvalidPayload, "no AI/plagiarism attachment given")
		}
		if job.ProcessID == nil {
			next.ProcessID = &in.Actor.UserID
		}
		next.ProcessStatus = models.ProcessInProgress
		next.Attachments.AIPlagFinal = a.AIPlagFinal
		next.Attachments.AIPlagAIReport = a.AIPlagAIReport
		next.Attachments.AIPlagPlagReport = a.AIPlagPlagReport
		next.Attachments.AIPlagSoftware = a.AIPlagSoftware
		notices = append(notices, allocaters(job, "AI/plagiarism reports uploaded for job %%s")...)

	case ActionUploadDecoration:
		if !inProcessing(job) || job.WriterStatus != models.WriterClosed {
			return nil, nil, reject(ErrInvalidTransition, "decoration needs a submitted job in process or decoration")
		}
		a := p.Attachments
		if a.DecorationFinal == "" && a.DecorationAIReport == "" && a.DecorationPlagReport == "" && a.DecorationSoftware == "" && a.DecorationDecorated == "" {
			return nil, nil, reject(ErrInvalidPayload, "no decoration attachment given")
		}
		if job.DecorationAssigneeID != nil && !isDecorationAssignee(job, in.Actor) {
			return nil, nil, reject(ErrInvalidTransition, "decoration of job %s is assigned to user %d", job.Code, *job.DecorationAssigneeID)
		}
		next.Attachments.DecorationFinal = a.DecorationFinal
		next.Attachments.DecorationAIReport = a.DecorationAIReport
		next.Attachments.DecorationPlagReport = a.DecorationPlagReport
		next.Attachments.DecorationSoftware = a.DecorationSoftware
		next.Attachments.DecorationDecorated = a.DecorationDecorated
		if isDecorationAssignee(job, in.Actor) {
			next.Status = models.StatusCompleted
			next.DecorationStatus = models.DecorationCompleted
			next.ProcessStatus = models.ProcessCompleted
			notices = append(notices, allocaters(job, "Job %%s has been completed")...)
			if job.WriterID != nil {
				notices = append(notices, toUser(*job.WriterID, "Job %%s you wrote has been completed."))
			}
		} else {
			if job.ProcessID == nil {
				next.ProcessID = &in.Actor.UserID
			}
			next.Status = models.StatusDecoration
			next.DecorationStatus = models.DecorationPending
			next.ProcessStatus = models.ProcessInProgress
			notices = append(notices, allocaters(job, "Job %%s is awaiting decoration assignment")...)
		}

	case ActionEdit:
		e := p.Edit
		if e == nil {
			return nil, nil, reject(ErrInvalidPayload, "edit needs at least one field")
		}
		applyEdit(next, e)
		if next.StrictDeadline.Before(next.CreatedAt) {
			return nil, nil, reject(ErrInvalidPayload, "strict deadline precedes creation")
		}
		if job.WriterID != nil {
			notices = append(notices, toUser(*job.WriterID, "Job %%s details were updated."))
		}

	case ActionDelete, ActionRetract:
		if in.Action == ActionRetract && (job.Status != models.StatusDrop || job.WriterID != nil) {
			return nil, nil, reject(ErrInvalidTransition, "only unallocated dropped jobs can be retracted")
		}
		for _, id := range []*int64{job.WriterID, job.ProcessID} {
			if id != nil {
				notices = append(notices, toUser(*id, "Job %%s has been deleted."))
			}
		}
		return deletion, notices, nil

	case ActionSummarize:
		if p.Summary == "" && p.FinalCopySummary == "" {
			return nil, nil, reject(ErrInvalidPayload, "summary is empty")
		}
		if p.Summary != "" {
			next.Summary = p.Summary
		}
		if p.FinalCopySummary != "" {
			next.FinalCopySummary = p.FinalCopySummary
		}
		next.UpdatedAt = job.UpdatedAt
	}

	return next, notices, nil
}

// authorize checks the actor's role and, for track-owned actions, identity.
func authorize(job *models.Job, in Input) error {
	a := in.Actor
	if in.Action == ActionSummarize {
		if !a.System {
			return reject(ErrUnauthorized, "summarize is reserved for the system")
		}
		return nil
	}
	if a.System {
		return reject(ErrUnauthorized, "system actor cannot %s", in.Action)
	}

	switch in.Action {
	case ActionAllocate, ActionQuery, ActionHold, ActionCancel, ActionChangeWriter, ActionAllocateToProcess,
		ActionChangeProcess, ActionAssignDecoration, ActionResume:
		if !a.Role.CanAllocate() {
			return reject(ErrUnauthorized, "role %s cannot %s", a.Role, in.Action)
		}
	case ActionStart, ActionWriterQuery, ActionSubmit:
		if a.Role != models.RoleWriter {
			return reject(ErrUnauthorized, "role %s cannot %s", a.Role, in.Action)
		}
		if !job.HasWriter(a.UserID) {
			return reject(ErrUnauthorized, "user %d is not the writer of job %s", a.UserID, job.Code)
		}
	case ActionUploadAIPlag:
		if a.Role != models.RoleProcessTeam {
			return reject(ErrUnauthorized, "role %s cannot %s", a.Role, in.Action)
		}
		if job.ProcessID != nil && !job.HasProcessHandler(a.UserID) {
			return reject(ErrUnauthorized, "job %s is handled by another process team member", job.Code)
		}
	case ActionUploadDecoration:
		if isDecorationAssignee(job, a) {
			return nil
		}
		if a.Role != models.RoleProcessTeam {
			return reject(ErrUnauthorized, "user %d is not the decoration assignee", a.UserID)
		}
		if job.ProcessID != nil && !job.HasProcessHandler(a.UserID) {
			return reject(ErrUnauthorized, "job %s is handled by another process team member", job.Code)
		}
	case ActionEdit:
		if a.Role.IsAdmin() {
			return nil
		}
		if a.Role == models.RoleMarketing && job.CreatedBy == a.UserID {
			if job.Status != models.StatusDrop {
				return reject(ErrInvalidTransition, "marketing can edit only jobs still in drop")
			}
			return nil
		}
		return reject(ErrUnauthorized, "role %s cannot edit job %s", a.Role, job.Code)
	case ActionDelete:
		if !a.Role.IsAdmin() {
			return reject(ErrUnauthorized, "role %s cannot delete jobs", a.Role)
		}
	case ActionRetract:
		if a.Role != models.RoleMarketing || job.CreatedBy != a.UserID {
			return reject(ErrUnauthorized, "only the creating marketing user can retract job %s", job.Code)
		}
	}
	return nil
}

// eligible checks the resolved assignee against the role the action needs.
func eligible(in Input, role models.Role) (*models.User, error) {
	id := in.Payload.assigneeID(in.Action)
	if id == nil {
		return nil, reject(ErrInvalidPayload, "%s needs an assignee", in.Action)
	}
	u := in.Assignee
	if u == nil || u.ID != *id {
		return nil, reject(ErrIneligibleAssignee, "user %d does not exist", *id)
	}
	if u.Role != role {
		return nil, reject(ErrIneligibleAssignee, "user %d has role %s, need %s", u.ID, u.Role, role)
	}
	if !u.Approved {
		return nil, reject(ErrIneligibleAssignee, "user %d is not approved", u.ID)
	}
	return u, nil
}

func writerWorking(job *models.Job) error {
	if job.Status != models.StatusProcess || job.WriterStatus != models.WriterInProgress {
		return reject(ErrInvalidTransition, "writer is not working on job %s (%s/%s)", job.Code, job.Status, job.WriterStatus)
	}
	return nil
}

func inProcessing(job *models.Job) bool {
	return job.Status == models.StatusProcess || job.Status == models.StatusDecoration
}

func isDecorationAssignee(job *models.Job, a Actor) bool {
	return job.HasDecorationAssignee(a.UserID) && job.DecorationAssigneeKind.Role() == a.Role
}

// allocaters addresses every approved allocater plus the allocater of record.
func allocaters(job *models.Job, format string, args ...any) []Notice {
	out := []Notice{toRole(models.RoleAllocater, format, args...)}
	if job.AllocatedBy != nil {
		out = append(out, toUser(*job.AllocatedBy, format, args...))
	}
	return out
}

func applyEdit(j *models.Job, e *JobEdit) {
	if e.Topic != nil {
		j.Topic = *e.Topic
	}
	if e.Instruction != nil {
		j.Instruction = *e.Instruction
	}
	if e.WordCount != nil {
		j.WordCount = *e.WordCount
	}
	if e.ReferencingStyle != nil {
		j.ReferencingStyle = *e.ReferencingStyle
	}
	if e.WritingStyle != nil {
		j.WritingStyle = *e.WritingStyle
	}
	if e.ValueCents != nil {
		j.ValueCents = *e.ValueCents
	}
	if e.ExpectedDeadline != nil {
		j.ExpectedDeadline = e.ExpectedDeadline.UTC()
	}
	if e.StrictDeadline != nil {
		j.StrictDeadline = e.StrictDeadline.UTC()
	}
	if e.Brief != nil {
		j.Attachments.Brief = *e.Brief
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
