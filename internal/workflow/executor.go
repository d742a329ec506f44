package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seoforge/orchestrator/internal/dataforseo"
)

// ExecPolicy is the per-step execution policy in effect for a run, after
// request options have been merged over the engine defaults.
type ExecPolicy struct {
	StepTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Executor runs a single step under timeout and retry policy and produces
// its terminal StepRecord.
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	return &Executor{registry: registry, logger: logger}
}

// Execute drives one step to a terminal state. The returned record is
// always terminal: Succeeded, Skipped, or Failed with the last error.
func (e *Executor) Execute(ctx context.Context, wc *Context, step Step, policy ExecPolicy) StepRecord {
	rec := StepRecord{
		Name:      step.Name,
		Kind:      step.Kind,
		Class:     step.Kind.Class(),
		Status:    StepRunning,
		StartedAt: time.Now().UTC(),
	}

	handler, err := e.registry.Lookup(step.Kind)
	if err != nil {
		rec.Status = StepFailed
		rec.Error = err.Error()
		rec.FinishedAt = time.Now().UTC()
		return rec
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		rec.Attempts = attempt + 1

		output, err := e.attempt(ctx, wc, handler, step, policy.StepTimeout)
		if err == nil {
			rec.Status = StepSucceeded
			rec.Output = output
			rec.FinishedAt = time.Now().UTC()
			return rec
		}
		if errors.Is(err, ErrSkipped) {
			rec.Status = StepSkipped
			rec.Error = skipReason(err)
			rec.FinishedAt = time.Now().UTC()
			return rec
		}
		lastErr = err

		if !retryable(err) || attempt >= policy.MaxRetries || ctx.Err() != nil {
			break
		}

		backoff := policy.RetryBackoff << attempt
		e.logger.Warn("step attempt failed, retrying",
			zap.String("step", step.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Keep the failure that exhausted the step; the cancellation
			// only explains why no further attempt was made.
			lastErr = fmt.Errorf("%w (retry abandoned: %v)", lastErr, ctx.Err())
		case <-timer.C:
			continue
		}
		break
	}

	rec.Status = StepFailed
	rec.Error = lastErr.Error()
	rec.FinishedAt = time.Now().UTC()
	return rec
}

// attempt runs the handler once under the per-attempt timeout. A deadline
// hit on the attempt context is reported as ErrStepTimeout; cancellation
// of the parent passes through untouched.
func (e *Executor) attempt(ctx context.Context, wc *Context, handler Handler, step Step, timeout time.Duration) (*StepOutput, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	output, err := handler.Run(attemptCtx, wc, step)
	if err == nil {
		return output, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s: %s", ErrStepTimeout, timeout, step.Name)
	}
	return nil, err
}

// retryable limits retries to timeouts and transient upstream failures.
// Validation, authentication and quota errors fail fast.
func retryable(err error) bool {
	if errors.Is(err, ErrStepTimeout) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return dataforseo.Retryable(err)
}

func skipReason(err error) string {
	if errors.Is(err, ErrSkipped) && err != ErrSkipped {
		return err.Error()
	}
	return ""
}
