package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garnizeh/contentcrm/internal/jobs"
	"github.com/garnizeh/contentcrm/internal/workflow"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

// TaskType is the background task that produces a job summary.
const TaskType = "job.summarize"

// TaskPayload identifies the job to summarise.
type TaskPayload struct {
	JobID int64 `json:"job_id"`
}

// Applier records workflow actions.
type Applier interface {
	Apply(ctx context.Context, req workflow.Request) (*workflow.Result, error)
}

// Processor turns summarize tasks into summarize actions.
type Processor struct {
	summarizer *Summarizer
	jobs       repository.JobStore
	engine     Applier
	logger     *slog.Logger
}

func NewProcessor(s *Summarizer, store repository.JobStore, engine Applier, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{summarizer: s, jobs: store, engine: engine, logger: logger}
}

// Handle is a jobs.Handler. A job that vanished or already has a summary is
// skipped without error; model failures are returned so the queue retries.
func (p *Processor) Handle(ctx context.Context, t *jobs.Task) error {
	var in TaskPayload
	if err := json.Unmarshal(t.Payload, &in); err != nil {
		return fmt.Errorf("decode %s payload: %w", TaskType, err)
	}

	job, err := p.jobs.GetJob(ctx, in.JobID)
	if err != nil {
		return fmt.Errorf("load job %d: %w", in.JobID, err)
	}
	if job == nil {
		p.logger.Info("summary skipped, job gone", "job_id", in.JobID)
		return nil
	}
	if job.Summary != "" {
		return nil
	}

	resp, err := p.summarizer.Summarize(ctx, job)
	if err != nil {
		return err
	}

	_, err = p.engine.Apply(ctx, workflow.Request{
		JobID:   job.ID,
		Actor:   workflow.SystemActor,
		Action:  workflow.ActionSummarize,
		Payload: workflow.Payload{Summary: resp.Summary},
	})
	if errors.Is(err, workflow.ErrNotFound) {
		p.logger.Info("summary skipped, job deleted meanwhile", "job_id", job.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("record summary for job %d: %w", job.ID, err)
	}

	p.logger.Info("job summarised", "job_id", job.ID, "confidence", *resp.Confidence, "keywords", len(resp.Keywords))
	return nil
}

// Enqueue schedules a summary for jobID.
func Enqueue(ctx context.Context, repo *jobs.Repository, jobID int64, maxAttempts int) (int64, error) {
	return jobs.Enqueue(ctx, repo, TaskType, TaskPayload{JobID: jobID}, 100, maxAttempts)
}

// Queue enqueues summaries on the background task table.
type Queue struct {
	repo        *jobs.Repository
	maxAttempts int
}

func NewQueue(repo *jobs.Repository, maxAttempts int) *Queue {
	return &Queue{repo: repo, maxAttempts: maxAttempts}
}

func (q *Queue) EnqueueSummary(ctx context.Context, jobID int64) error {
	_, err := Enqueue(ctx, q.repo, jobID, q.maxAttempts)
	return err
}
