package ollama

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := newBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	b.failure()
	if err := b.allow(); err != nil {
		t.Fatalf("one failure should not open: %v", err)
	}
	b.failure()
	if err := b.allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	now = now.Add(time.Minute)
	if err := b.allow(); err != nil {
		t.Fatalf("expected half-open probe, got %v", err)
	}
	b.failure()
	if err := b.allow(); err != nil {
		t.Fatalf("a single failed probe should not reopen: %v", err)
	}
	b.success()
	b.failure()
	if err := b.allow(); err != nil {
		t.Fatalf("success should reset the count: %v", err)
	}
}

func TestBreaker_Disabled(t *testing.T) {
	b := newBreaker(0, time.Minute)
	for i := 0; i < 10; i++ {
		b.failure()
	}
	if err := b.allow(); err != nil {
		t.Fatalf("disabled breaker rejected a call: %v", err)
	}
}

func TestCanonicalModel(t *testing.T) {
	for in, want := range map[string]string{"llama3": "llama3:latest", "llama3:8b": "llama3:8b"} {
		if got := canonicalModel(in); got != want {
			t.Fatalf("canonicalModel(%q) = %q, want %q", in, got, want)
		}
	}
}
