package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

const codePrefix = "JOB-"

// maxCodeAttempts bounds regeneration when a generated code collides.
const maxCodeAttempts = 5

// DropRequest is a new job as submitted by marketing.
type DropRequest struct {
	Actor            Actor
	Code             string
	Topic            string
	Instruction      string
	WordCount        int
	ReferencingStyle string
	WritingStyle     string
	ValueCents       int64
	ExpectedDeadline time.Time
	StrictDeadline   time.Time
	Brief            string
	Now              time.Time
}

// NormalizeCode upper-cases a caller supplied code and adds the JOB- prefix.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || strings.HasPrefix(code, codePrefix) {
		return code
	}
	return codePrefix + code
}

// Drop creates a job in the drop stage and tells every approved allocater.
func (e *Engine) Drop(ctx context.Context, req DropRequest) (*Result, error) {
	now := req.Now
	if now.IsZero() {
		now = e.clock()
	}
	now = now.UTC()

	if req.Actor.System || req.Actor.Role != models.RoleMarketing {
		return nil, reject(ErrUnauthorized, "only marketing can drop jobs")
	}
	if err := e.verifyActor(ctx, req.Actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Topic) == "" {
		return nil, reject(ErrInvalidPayload, "topic is required")
	}
	if req.WordCount < 0 || req.ValueCents < 0 {
		return nil, reject(ErrInvalidPayload, "word count and value must not be negative")
	}
	if req.StrictDeadline.IsZero() || req.StrictDeadline.Before(now) {
		return nil, reject(ErrInvalidPayload, "strict deadline must not precede creation")
	}
	expected := req.ExpectedDeadline
	if expected.IsZero() {
		expected = req.StrictDeadline
	}

	job := &models.Job{
		CreatedBy:        req.Actor.UserID,
		Status:           models.StatusDrop,
		WriterStatus:     models.WriterPending,
		ProcessStatus:    models.ProcessNotAssigned,
		DecorationStatus: models.DecorationPending,
		Topic:            strings.TrimSpace(req.Topic),
		Instruction:      req.Instruction,
		WordCount:        req.WordCount,
		ReferencingStyle: req.ReferencingStyle,
		WritingStyle:     req.WritingStyle,
		ValueCents:       req.ValueCents,
		ExpectedDeadline: expected.UTC(),
		StrictDeadline:   req.StrictDeadline.UTC(),
		Attachments:      models.Attachments{Brief: req.Brief},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	supplied := NormalizeCode(req.Code)
	for attempt := 1; ; attempt++ {
		job.Code = supplied
		if job.Code == "" {
			job.Code = e.newCode()
		}
		_, err := e.jobs.CreateJob(ctx, job)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create job: %w", err)
		}
		if supplied != "" {
			return nil, reject(ErrDuplicateCode, "job code %s already exists", supplied)
		}
		if attempt >= maxCodeAttempts {
			return nil, fmt.Errorf("generate unique job code: %w", err)
		}
	}

	e.logger.Info("job dropped", "job_id", job.ID, "job_code", job.Code, "user_id", req.Actor.UserID)

	res := &Result{Job: job}
	events, err := e.expand(ctx, job, []Notice{toRole(models.RoleAllocater, "New job dropped: %%s")}, false)
	if err != nil {
		e.logger.Warn("could not expand notifications", "job_id", job.ID, "err", err)
	}
	res.Events = events
	res.Undelivered = e.deliver(ctx, events, now)
	return res, nil
}
