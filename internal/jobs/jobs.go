// Package jobs is a small SQLite-backed task queue with retries, backoff and
// a dead-letter table.
package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// Task status values.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusRetry   = "retry"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

const defaultMaxAttempts = 5

// Task is one unit of background work.
type Task struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}

// Handler processes one task. A returned error schedules a retry until the
// task runs out of attempts.
type Handler func(ctx context.Context, t *Task) error

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	if attempt > 16 {
		return 5 * time.Minute
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if max := 5 * time.Minute; d > max {
		return max
	}
	return d
}
