package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

const defaultMaxRetries = 3

// Engine is the only component allowed to mutate job records. It holds no
// mutable state of its own; every call reads the store and commits with a
// version check.
type Engine struct {
	jobs       repository.JobStore
	users      repository.UserDirectory
	sink       repository.NotificationSink
	logger     *slog.Logger
	maxRetries int
	newCode    func() string
	clock      func() time.Time
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxRetries bounds how often Apply re-reads a job after losing a
// compare-and-update race.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func WithCodeGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newCode = fn
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.clock = fn
		}
	}
}

func New(jobs repository.JobStore, users repository.UserDirectory, sink repository.NotificationSink, opts ...Option) *Engine {
	e := &Engine{
		jobs:       jobs,
		users:      users,
		sink:       sink,
		logger:     slog.Default(),
		maxRetries: defaultMaxRetries,
		newCode:    generateCode,
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Apply validates and commits one action. Rejections are returned as
// *Rejection before anything is written; a lost race re-reads the job and
// re-validates up to the retry limit, after which repository.ErrConflict is
// returned. Notification failures never fail the call.
func (e *Engine) Apply(ctx context.Context, req Request) (*Result, error) {
	now := req.Now
	if now.IsZero() {
		now = e.clock()
	}
	now = now.UTC()

	if err := e.verifyActor(ctx, req.Actor); err != nil {
		return nil, err
	}
	assignee, err := e.resolveAssignee(ctx, req)
	if err != nil {
		return nil, err
	}

	in := Input{Actor: req.Actor, Action: req.Action, Payload: req.Payload, Now: now, Assignee: assignee}
	log := e.logger.With("job_id", req.JobID, "action", string(req.Action), "user_id", req.Actor.UserID)

	for attempt := 1; ; attempt++ {
		job, err := e.jobs.GetJob(ctx, req.JobID)
		if err != nil {
			return nil, fmt.Errorf("load job %d: %w", req.JobID, err)
		}
		if job == nil {
			return nil, reject(ErrNotFound, "job %d does not exist", req.JobID)
		}

		next, notices, err := Transition(job, in)
		if err != nil {
			log.Debug("action rejected", "err", err)
			return nil, err
		}

		deleted := next == deletion
		if deleted {
			err = e.jobs.DeleteJob(ctx, job.ID, job.Version)
		} else {
			err = e.jobs.UpdateJob(ctx, next, job.Version)
		}
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrConflict):
			if attempt >= e.maxRetries {
				log.Warn("giving up after concurrent updates", "attempts", attempt)
				return nil, fmt.Errorf("apply %s to job %d: %w", req.Action, req.JobID, repository.ErrConflict)
			}
			log.Debug("job changed underneath, retrying", "attempt", attempt)
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, reject(ErrNotFound, "job %d does not exist", req.JobID)
		default:
			return nil, fmt.Errorf("commit job %d: %w", req.JobID, err)
		}

		res := &Result{Job: next, Deleted: deleted}
		if deleted {
			res.Job = job
		}
		log.Info("action applied", "job_code", job.Code, "status", string(res.Job.Status), "version", res.Job.Version)

		res.Events, err = e.expand(ctx, res.Job, notices, deleted)
		if err != nil {
			log.Warn("could not expand notifications", "err", err)
		}
		res.Undelivered = e.deliver(ctx, res.Events, now)
		return res, nil
	}
}

// verifyActor checks the caller against the directory: the user must exist,
// hold the claimed role and be approved (super_admin is exempt).
func (e *Engine) verifyActor(ctx context.Context, a Actor) error {
	if a.System {
		return nil
	}
	u, err := e.users.FindUser(ctx, a.UserID)
	if err != nil {
		return fmt.Errorf("find actor %d: %w", a.UserID, err)
	}
	if u == nil {
		return reject(ErrNotFound, "user %d does not exist", a.UserID)
	}
	if u.Role != a.Role {
		return reject(ErrUnauthorized, "user %d does not hold role %s", a.UserID, a.Role)
	}
	if !u.Approved && u.Role != models.RoleSuperAdmin {
		return reject(ErrUnauthorized, "user %d is not approved", a.UserID)
	}
	return nil
}

func (e *Engine) resolveAssignee(ctx context.Context, req Request) (*models.User, error) {
	id := req.Payload.assigneeID(req.Action)
	if id == nil {
		return nil, nil
	}
	u, err := e.users.FindUser(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("find assignee %d: %w", *id, err)
	}
	return u, nil
}

// expand turns notices into per-user events, addressing role notices to every
// approved member and keeping only the first event per recipient.
func (e *Engine) expand(ctx context.Context, job *models.Job, notices []Notice, deleted bool) ([]Event, error) {
	var jobID *int64
	if !deleted {
		id := job.ID
		jobID = &id
	}

	seen := map[int64]bool{}
	events := make([]Event, 0, len(notices))
	var errs []error
	add := func(uid int64, role models.Role, tmpl string) {
		if uid == 0 || seen[uid] {
			return
		}
		seen[uid] = true
		events = append(events, Event{UserID: uid, JobID: cloneID(jobID), Message: render(tmpl, displayCode(job, uid, role))})
	}

	for _, n := range notices {
		if n.Role == "" {
			u, err := e.users.FindUser(ctx, n.UserID)
			if err != nil {
				errs = append(errs, err)
			}
			var role models.Role
			if u != nil {
				role = u.Role
			}
			add(n.UserID, role, n.Template)
			continue
		}
		members, err := e.users.ListApproved(ctx, n.Role)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", n.Role, err))
			continue
		}
		for _, m := range members {
			add(m.ID, m.Role, n.Template)
		}
	}
	return events, errors.Join(errs...)
}

// deliver writes each event independently and returns how many failed.
func (e *Engine) deliver(ctx context.Context, events []Event, now time.Time) int {
	failed := 0
	for _, ev := range events {
		n := &models.Notification{UserID: ev.UserID, JobID: ev.JobID, Message: ev.Message, CreatedAt: now}
		if _, err := e.sink.CreateNotification(ctx, n); err != nil {
			failed++
			e.logger.Warn("notification not delivered",
				"user_id", ev.UserID, "err", errors.Join(ErrDeliveryFailed, err))
		}
	}
	return failed
}

// displayCode shows the full code to people already working on the job and
// to allocation roles; everyone else sees the masked form.
func displayCode(job *models.Job, uid int64, role models.Role) string {
	if job.CreatedBy == uid || job.HasWriter(uid) || job.HasProcessHandler(uid) || job.HasDecorationAssignee(uid) ||
		(job.AllocatedBy != nil && *job.AllocatedBy == uid) || role.CanAllocate() {
		return job.Code
	}
	return job.MaskedCode()
}

// VisibleCode is the job code as shown to a: full for people already
// involved with the job, masked for everyone else.
func VisibleCode(job *models.Job, a Actor) string {
	if a.System {
		return job.Code
	}
	return displayCode(job, a.UserID, a.Role)
}

func render(tmpl, code string) string {
	return strings.Replace(tmpl, "%s", code, 1)
}

func cloneID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func generateCode() string {
	return "JOB-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
