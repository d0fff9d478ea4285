package workflow

import (
	"errors"
	"fmt"
)

// Rejection kinds. Every guard failure is returned as a *Rejection whose Kind
// is one of these, so callers can switch with errors.Is.
var (
	ErrUnauthorized       = errors.New("workflow: unauthorized")
	ErrIneligibleAssignee = errors.New("workflow: ineligible assignee")
	ErrInvalidTransition  = errors.New("workflow: invalid transition")
	ErrNotFound           = errors.New("workflow: not found")
	ErrInvalidPayload     = errors.New("workflow: invalid payload")
	ErrDuplicateCode      = errors.New("workflow: duplicate job code")
)

// ErrDeliveryFailed marks a notification that could not be persisted. It is
// logged and never returned from Apply.
var ErrDeliveryFailed = errors.New("workflow: notification delivery failed")

// Rejection is a local, expected refusal of an action. No state was changed.
type Rejection struct {
	Kind   error
	Reason string
}

func (r *Rejection) Error() string {
	if r.Reason == "" {
		return r.Kind.Error()
	}
	return r.Kind.Error() + ": " + r.Reason
}

func (r *Rejection) Unwrap() error { return r.Kind }

func reject(kind error, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is a guard rejection rather than an infrastructure failure.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}
