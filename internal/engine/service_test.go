package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/seoforge/orchestrator/internal/config"
	"github.com/seoforge/orchestrator/internal/scoring"
	"github.com/seoforge/orchestrator/internal/workflow"
)

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		Workers:      4,
		StepTimeout:  "1s",
		MaxRetries:   0,
		RetryBackoff: "1ms",
		Parallel:     true,
	}
}

func okHandler(workflow.Kind) workflow.HandlerFunc {
	return func(ctx context.Context, wc *workflow.Context, step workflow.Step) (*workflow.StepOutput, error) {
		return &workflow.StepOutput{Data: map[string]any{"step": step.Name}}, nil
	}
}

func reportHandler(composite float64) workflow.HandlerFunc {
	return func(ctx context.Context, wc *workflow.Context, step workflow.Step) (*workflow.StepOutput, error) {
		return &workflow.StepOutput{Report: &scoring.Report{Composite: composite}}, nil
	}
}

// trackingKinds covers every kind the keyword_tracking plan dispatches.
var trackingKinds = []workflow.Kind{
	workflow.KindSerpSnapshot,
	workflow.KindKeywordMetrics,
	workflow.KindRankedKeywords,
	workflow.KindPositionTrends,
}

func newTestService(t *testing.T, overrides map[workflow.Kind]workflow.HandlerFunc) *Service {
	t.Helper()
	reg := workflow.NewRegistry()
	kinds := append([]workflow.Kind{
		workflow.KindTechnicalAudit,
		workflow.KindContentAudit,
		workflow.KindPerformanceAudit,
		workflow.KindBacklinkProfile,
		workflow.KindAggregate,
	}, trackingKinds...)
	for _, kind := range kinds {
		h, ok := overrides[kind]
		if !ok {
			if kind == workflow.KindAggregate {
				h = reportHandler(75)
			} else {
				h = okHandler(kind)
			}
		}
		require.NoError(t, reg.Register(kind, h))
	}

	logger := zaptest.NewLogger(t)
	executor := workflow.NewExecutor(reg, logger)
	svc := NewService(testConfig(), executor, workflow.NopPublisher{}, workflow.NopArchive{}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func trackingRequest() workflow.Request {
	return workflow.Request{
		Workflow: "keyword_tracking",
		Target:   "example.com",
		Keywords: []string{"widgets"},
	}
}

func TestRunCompletes(t *testing.T) {
	svc := newTestService(t, nil)

	run, err := svc.Submit(trackingRequest())
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, 5, run.Total)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusCompleted, result.Status)
	require.NotNil(t, result.Report)
	assert.InDelta(t, 75.0, result.Report.Composite, 1e-9)
	for _, step := range result.Steps {
		assert.Equal(t, workflow.StepSucceeded, step.Status, step.Name)
	}

	progress, err := svc.Progress(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, progress.Completed)
	assert.InDelta(t, 100.0, progress.Percent, 1e-9)
}

func TestRunFailsWithPartialRecords(t *testing.T) {
	svc := newTestService(t, map[workflow.Kind]workflow.HandlerFunc{
		workflow.KindRankedKeywords: func(ctx context.Context, wc *workflow.Context, step workflow.Step) (*workflow.StepOutput, error) {
			return nil, errors.New("labs endpoint rejected the target")
		},
	})

	run, err := svc.Submit(trackingRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "ranked_keywords")
	assert.Nil(t, result.Report)

	byName := make(map[string]workflow.StepRecord)
	for _, step := range result.Steps {
		byName[step.Name] = step
	}
	assert.Equal(t, workflow.StepFailed, byName["ranked_keywords"].Status)
	assert.Equal(t, workflow.StepSucceeded, byName["position_check"].Status)
	assert.Equal(t, workflow.StepPending, byName["trend_analysis"].Status, "later groups never start")
	assert.Equal(t, workflow.StepPending, byName["result_aggregation"].Status)
}

func TestOptionalStepFailureTolerated(t *testing.T) {
	svc := newTestService(t, map[workflow.Kind]workflow.HandlerFunc{
		workflow.KindBacklinkProfile: func(ctx context.Context, wc *workflow.Context, step workflow.Step) (*workflow.StepOutput, error) {
			return nil, errors.New("backlink quota exhausted")
		},
	})

	run, err := svc.Submit(workflow.Request{
		Workflow: "seo_audit",
		Target:   "example.com",
		Depth:    "basic",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusCompleted, result.Status)
	byName := make(map[string]workflow.StepRecord)
	for _, step := range result.Steps {
		byName[step.Name] = step
	}
	assert.Equal(t, workflow.StepFailed, byName["authority_analysis"].Status)
	assert.Equal(t, workflow.StepSucceeded, byName["result_aggregation"].Status)
}

func TestSkippedStepCountsAsProgress(t *testing.T) {
	svc := newTestService(t, map[workflow.Kind]workflow.HandlerFunc{
		workflow.KindSerpSnapshot: func(ctx context.Context, wc *workflow.Context, step workflow.Step) (*workflow.StepOutput, error) {
			return nil, workflow.ErrSkipped
		},
	})

	run, err := svc.Submit(trackingRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusCompleted, result.Status)
	progress, err := svc.Progress(run.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.Total, progress.Completed)
}

func TestCancelMidRun(t *testing.T) {
	started := make(chan struct{})
	svc := newTestService(t, map[workflow.Kind]workflow.HandlerFunc{
		workflow.KindSerpSnapshot: func(ctx context.Context, wc *workflow.Context, step workflow.Step) (*workflow.StepOutput, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	run, err := svc.Submit(trackingRequest())
	require.NoError(t, err)

	<-started
	require.NoError(t, svc.Cancel(run.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusCancelled, result.Status)
	assert.False(t, result.Ended.IsZero())

	assert.ErrorIs(t, svc.Cancel(run.ID), workflow.ErrTerminal)
}

func TestPauseAndResume(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 8)
	svc := newTestService(t, map[workflow.Kind]workflow.HandlerFunc{
		workflow.KindSerpSnapshot: func(ctx context.Context, wc *workflow.Context, step workflow.Step) (*workflow.StepOutput, error) {
			started <- struct{}{}
			select {
			case <-release:
				return &workflow.StepOutput{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})

	run, err := svc.Submit(trackingRequest())
	require.NoError(t, err)

	<-started
	require.NoError(t, svc.Pause(run.ID))
	assert.ErrorIs(t, svc.Pause(run.ID), workflow.ErrInvalidTransition)

	snapshot, err := svc.Run(run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPaused, snapshot.Status)

	// Let the first group finish; the run must hold at the boundary.
	close(release)
	time.Sleep(50 * time.Millisecond)
	progress, err := svc.Progress(run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPaused, progress.Status)
	assert.Less(t, progress.Completed, progress.Total)

	require.NoError(t, svc.Resume(run.ID))
	assert.ErrorIs(t, svc.Resume(run.ID), workflow.ErrInvalidTransition)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, result.Status)
}

func TestPauseHoldsStepsNotYetDispatched(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	var laterStarts atomic.Int32
	counting := func(ctx context.Context, wc *workflow.Context, step workflow.Step) (*workflow.StepOutput, error) {
		laterStarts.Add(1)
		return &workflow.StepOutput{}, nil
	}

	svc := newTestService(t, map[workflow.Kind]workflow.HandlerFunc{
		workflow.KindSerpSnapshot: func(ctx context.Context, wc *workflow.Context, step workflow.Step) (*workflow.StepOutput, error) {
			close(firstStarted)
			select {
			case <-releaseFirst:
				return &workflow.StepOutput{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		workflow.KindKeywordMetrics: counting,
		workflow.KindRankedKeywords: counting,
	})

	// One worker: the two remaining steps of the first group have not
	// started when the pause lands.
	parallel := false
	req := trackingRequest()
	req.Options.Parallel = &parallel
	run, err := svc.Submit(req)
	require.NoError(t, err)

	<-firstStarted
	require.NoError(t, svc.Pause(run.ID))
	close(releaseFirst)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, laterStarts.Load(), "a paused run must not start further steps of the current group")

	require.NoError(t, svc.Resume(run.ID))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.StatusCompleted, result.Status)
	assert.Equal(t, int32(2), laterStarts.Load())
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Submit(workflow.Request{Workflow: "mystery", Target: "example.com"})
	var verr *workflow.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Submit(workflow.Request{Workflow: "keyword_tracking", Target: "example.com"})
	assert.ErrorAs(t, err, &verr, "keyword_tracking without keywords")
}

func TestUnknownRunIDs(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Run("run_missing")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = svc.Progress("run_missing")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = svc.Result("run_missing")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	assert.ErrorIs(t, svc.Pause("run_missing"), workflow.ErrNotFound)
	assert.ErrorIs(t, svc.Resume("run_missing"), workflow.ErrNotFound)
	assert.ErrorIs(t, svc.Cancel("run_missing"), workflow.ErrNotFound)
}

func TestResultBeforeTerminalIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	svc := newTestService(t, map[workflow.Kind]workflow.HandlerFunc{
		workflow.KindSerpSnapshot: func(ctx context.Context, wc *workflow.Context, step workflow.Step) (*workflow.StepOutput, error) {
			select {
			case <-release:
				return &workflow.StepOutput{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})

	run, err := svc.Submit(trackingRequest())
	require.NoError(t, err)

	_, err = svc.Result(run.ID)
	assert.ErrorIs(t, err, ErrRunActive)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = svc.Wait(ctx, run.ID)
	require.NoError(t, err)

	result, err := svc.Result(run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, result.Status)
}

func TestSequentialOptionStillCompletes(t *testing.T) {
	svc := newTestService(t, nil)
	parallel := false

	req := trackingRequest()
	req.Options.Parallel = &parallel
	run, err := svc.Submit(req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := svc.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, result.Status)
}
