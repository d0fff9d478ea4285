package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	idleWait  = 500 * time.Millisecond
	errorWait = time.Second
)

type WorkerPool struct {
	repo        *Repository
	handlers    map[string]Handler
	logger      *slog.Logger
	workerCount int
	idle        time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewWorkerPool(repo *Repository, handlers map[string]Handler, logger *slog.Logger, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	if handlers == nil {
		handlers = map[string]Handler{}
	}
	return &WorkerPool{
		repo:        repo,
		handlers:    handlers,
		logger:      logger,
		workerCount: workerCount,
		idle:        idleWait,
		stop:        make(chan struct{}),
	}
}

// SetPollInterval changes how long an idle worker waits before polling again.
func (p *WorkerPool) SetPollInterval(d time.Duration) {
	if d > 0 {
		p.idle = d
	}
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them. It is safe to call twice.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// wait sleeps for d and reports false when the pool is stopping.
func (p *WorkerPool) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.stop:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Info("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Info("context canceled, worker exiting", "id", id)
			return
		default:
		}

		task, err := p.repo.Claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("claim task", "err", err)
			}
			if !p.wait(ctx, errorWait) {
				return
			}
			continue
		}
		if task == nil {
			if !p.wait(ctx, p.idle) {
				return
			}
			continue
		}
		p.run(ctx, task)
	}
}

func (p *WorkerPool) run(ctx context.Context, task *Task) {
	log := p.logger.With("task_id", task.ID, "type", task.Type)

	h, ok := p.handlers[task.Type]
	if !ok {
		task.Status = StatusFailed
		task.LastError = "no handler"
		if err := p.repo.MoveToDeadLetter(ctx, task); err != nil {
			log.Error("move to dead letter", "err", err)
		}
		return
	}

	err := p.call(ctx, h, task)
	if err == nil {
		task.Status = StatusDone
		if upErr := p.repo.Update(ctx, task); upErr != nil {
			log.Error("mark task done", "err", upErr)
		}
		return
	}

	task.Attempts++
	task.LastError = err.Error()
	if task.Attempts >= task.MaxAttempts {
		task.Status = StatusFailed
		log.Warn("task exhausted attempts", "attempts", task.Attempts, "err", err)
		if mvErr := p.repo.MoveToDeadLetter(ctx, task); mvErr != nil {
			log.Error("move to dead letter", "err", mvErr)
		}
		return
	}

	next := time.Now().UTC().Add(BackoffDuration(task.Attempts))
	task.NextTryAt = &next
	task.Status = StatusRetry
	log.Info("task scheduled for retry", "attempts", task.Attempts, "next_try_at", next, "err", err)
	if upErr := p.repo.Update(ctx, task); upErr != nil {
		log.Error("update task for retry", "err", upErr)
	}
}

// call runs h and turns a panic into an error so one bad task cannot take a
// worker down.
func (p *WorkerPool) call(ctx context.Context, h Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, task)
}

// Enqueue convenience helper that creates a task and persists it
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	return Enqueue(ctx, p.repo, typ, payload, priority, maxAttempts)
}

// Enqueue marshals payload and queues a task of the given type.
func Enqueue(ctx context.Context, repo *Repository, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	t := &Task{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts}
	return repo.Enqueue(ctx, t)
}
