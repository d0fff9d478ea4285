package ollama

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("ollama circuit open")

// breaker counts consecutive failures. Once threshold is reached it rejects
// calls until reset has elapsed, then lets the next call probe the server.
// A non-positive threshold disables it.
type breaker struct {
	threshold int
	reset     time.Duration
	now       func() time.Time

	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

func newBreaker(threshold int, reset time.Duration) *breaker {
	return &breaker{threshold: threshold, reset: reset, now: time.Now}
}

func (b *breaker) allow() error {
	if b.threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return nil
	}
	if b.now().Before(b.openUntil) {
		return ErrCircuitOpen
	}
	b.failures = 0
	return nil
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.threshold > 0 && b.failures >= b.threshold {
		b.openUntil = b.now().Add(b.reset)
	}
}

func (b *breaker) success() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}
