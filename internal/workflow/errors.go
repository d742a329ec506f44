package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a run id is unknown.
	ErrNotFound = errors.New("workflow: run not found")

	// ErrSkipped is returned by a handler that decides its step does not
	// apply to this run (e.g. no backlink data). The step is recorded as
	// Skipped and never retried.
	ErrSkipped = errors.New("workflow: step skipped")

	// ErrStepTimeout marks a step attempt that exceeded the configured
	// per-step timeout. Retryable up to the run's retry policy.
	ErrStepTimeout = errors.New("workflow: step timed out")

	// ErrTerminal is returned when an operation targets a run that already
	// reached a terminal status.
	ErrTerminal = errors.New("workflow: run already terminal")

	// ErrInvalidTransition is returned for pause/resume calls that do not
	// match the current status.
	ErrInvalidTransition = errors.New("workflow: invalid status transition")
)

// ValidationError reports a rejected request. Raised before any step is
// dispatched; never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow: invalid request: %s: %s", e.Field, e.Reason)
}
