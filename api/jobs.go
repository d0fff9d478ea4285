package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/garnizeh/contentcrm/internal/schema"
	"github.com/garnizeh/contentcrm/internal/workflow"
	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

// maxBodyBytes bounds request bodies read by the job handlers.
const maxBodyBytes = 1 << 20

// SummaryQueue schedules background summaries for new jobs.
type SummaryQueue interface {
	EnqueueSummary(ctx context.Context, jobID int64) error
}

type JobsHandler struct {
	engine  *workflow.Engine
	jobs    repository.JobStore
	schemas *schema.Registry
	summary SummaryQueue
}

// NewJobsHandler wires the job endpoints. summary may be nil when summaries are disabled.
func NewJobsHandler(engine *workflow.Engine, jobs repository.JobStore, schemas *schema.Registry, summary SummaryQueue) *JobsHandler {
	return &JobsHandler{engine: engine, jobs: jobs, schemas: schemas, summary: summary}
}

type dropRequest struct {
	Code             string     `json:"code"`
	Topic            string     `json:"topic"`
	Instruction      string     `json:"instruction"`
	WordCount        int        `json:"word_count"`
	ReferencingStyle string     `json:"referencing_style"`
	WritingStyle     string     `json:"writing_style"`
	ValueCents       int64      `json:"value_cents"`
	ExpectedDeadline *time.Time `json:"expected_deadline"`
	StrictDeadline   time.Time  `json:"strict_deadline"`
	Brief            string     `json:"brief"`
}

type actionRequest struct {
	Action  workflow.Action  `json:"action"`
	Payload workflow.Payload `json:"payload"`
}

// jobView is a job as returned to a caller, with the code masked when the
// caller is not involved with the job.
type jobView struct {
	models.Job
	Overdue bool `json:"overdue"`
}

type resultResponse struct {
	Job         jobView          `json:"job"`
	Events      []workflow.Event `json:"events"`
	Deleted     bool             `json:"deleted,omitempty"`
	Undelivered int              `json:"undelivered,omitempty"`
}

func viewFor(j *models.Job, a workflow.Actor, now time.Time) jobView {
	v := jobView{Job: *j, Overdue: j.IsOverdue(now)}
	v.Code = workflow.VisibleCode(j, a)
	return v
}

func resultFor(res *workflow.Result, a workflow.Actor) resultResponse {
	events := res.Events
	if events == nil {
		events = []workflow.Event{}
	}
	return resultResponse{
		Job:         viewFor(res.Job, a, time.Now().UTC()),
		Events:      events,
		Deleted:     res.Deleted,
		Undelivered: res.Undelivered,
	}
}

// readValidated reads the body and checks it against the named schema.
func (h *JobsHandler) readValidated(w http.ResponseWriter, r *http.Request, name string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return nil, false
	}
	if err := h.schemas.Validate(r.Context(), name, body); err != nil {
		writeValidation(w, err)
		return nil, false
	}
	return body, true
}

// Drop creates a job from marketing input.
func (h *JobsHandler) Drop(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	body, ok := h.readValidated(w, r, schema.JobDrop)
	if !ok {
		return
	}
	var req dropRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, errorResponse{Error: "invalid request"}, http.StatusBadRequest)
		return
	}

	in := workflow.DropRequest{
		Actor:            actor,
		Code:             req.Code,
		Topic:            req.Topic,
		Instruction:      req.Instruction,
		WordCount:        req.WordCount,
		ReferencingStyle: req.ReferencingStyle,
		WritingStyle:     req.WritingStyle,
		ValueCents:       req.ValueCents,
		StrictDeadline:   req.StrictDeadline,
		Brief:            req.Brief,
	}
	if req.ExpectedDeadline != nil {
		in.ExpectedDeadline = *req.ExpectedDeadline
	}
	res, err := h.engine.Drop(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.summary != nil {
		// a failed enqueue only leaves the job without a summary
		if err := h.summary.EnqueueSummary(r.Context(), res.Job.ID); err != nil {
			logger.Warn("enqueue job summary", slog.Int64("job_id", res.Job.ID), slog.Any("err", err))
		}
	}

	writeJSON(w, resultFor(res, actor), http.StatusCreated)
}

// Apply runs one workflow action against the job in the path.
func (h *JobsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	body, ok := h.readValidated(w, r, schema.Action)
	if !ok {
		return
	}
	var req actionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, errorResponse{Error: "invalid request"}, http.StatusBadRequest)
		return
	}

	res, err := h.engine.Apply(r.Context(), workflow.Request{JobID: id, Actor: actor, Action: req.Action, Payload: req.Payload})
	if err != nil {
		if workflow.IsRejection(err) {
			logger.Info("action rejected",
				slog.Int64("job_id", id), slog.Int64("user_id", actor.UserID),
				slog.String("action", string(req.Action)), slog.Any("err", err))
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, resultFor(res, actor), http.StatusOK)
}

func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	j, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if j == nil {
		writeJSON(w, errorResponse{Error: "job not found"}, http.StatusNotFound)
		return
	}
	writeJSON(w, viewFor(j, actor, time.Now().UTC()), http.StatusOK)
}
