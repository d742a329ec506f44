// Package engine owns workflow runs: submission, parallel step dispatch,
// pause/resume/cancel and terminal archiving.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seoforge/orchestrator/internal/config"
	"github.com/seoforge/orchestrator/internal/workflow"
)

// ErrRunActive is returned when a result is requested before the run
// reaches a terminal status.
var ErrRunActive = errors.New("engine: run still active")

type runState struct {
	run    *workflow.Run
	groups [][]workflow.Step
	policy workflow.ExecPolicy
	wc     *workflow.Context

	cancel context.CancelFunc
	paused bool
	// resume is created on pause and closed on resume or cancel, waking
	// every goroutine gated on it.
	resume chan struct{}
	done   chan struct{}

	result *workflow.Result
}

// Service executes workflow runs. All exported methods are safe for
// concurrent use; callers only ever see copies of run state.
type Service struct {
	defaults  workflow.ExecPolicy
	workers   int
	parallel  bool
	executor  *workflow.Executor
	publisher workflow.Publisher
	archive   workflow.Archive
	logger    *zap.Logger

	mu   sync.RWMutex
	runs map[string]*runState

	baseCtx  context.Context
	stopBase context.CancelFunc
}

func NewService(cfg config.EngineConfig, executor *workflow.Executor, publisher workflow.Publisher, archive workflow.Archive, logger *zap.Logger) *Service {
	baseCtx, stop := context.WithCancel(context.Background())
	return &Service{
		defaults: workflow.ExecPolicy{
			StepTimeout:  config.ParseDuration(cfg.StepTimeout, time.Minute),
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: config.ParseDuration(cfg.RetryBackoff, time.Second),
		},
		workers:   cfg.Workers,
		parallel:  cfg.Parallel,
		executor:  executor,
		publisher: publisher,
		archive:   archive,
		logger:    logger,
		runs:      make(map[string]*runState),
		baseCtx:   baseCtx,
		stopBase:  stop,
	}
}

// Submit validates the request, resolves its plan and starts the run
// asynchronously. The returned snapshot is in Pending or later status.
func (s *Service) Submit(req workflow.Request) (workflow.Run, error) {
	if err := workflow.ValidateRequest(req); err != nil {
		return workflow.Run{}, err
	}
	req = req.Clone()
	plan, _ := workflow.PlanByName(req.Workflow)
	steps := plan.Steps(req)
	groups, err := workflow.Resolve(steps)
	if err != nil {
		return workflow.Run{}, err
	}

	now := time.Now().UTC()
	run := &workflow.Run{
		ID:        workflow.NewRunID(),
		Request:   req,
		Status:    workflow.StatusPending,
		Steps:     make([]workflow.StepRecord, 0, len(steps)),
		Total:     len(steps),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, step := range steps {
		run.Steps = append(run.Steps, workflow.StepRecord{
			Name:   step.Name,
			Kind:   step.Kind,
			Class:  step.Kind.Class(),
			Status: workflow.StepPending,
		})
	}

	runCtx, cancel := context.WithCancel(s.baseCtx)
	state := &runState{
		run:    run,
		groups: groups,
		policy: s.policyFor(req.Options),
		wc: &workflow.Context{
			Request: req,
			Outputs: make(map[string]*workflow.StepOutput, len(steps)),
			Logger:  s.logger.With(zap.String("run_id", run.ID)),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[run.ID] = state
	snapshot := cloneRun(run)
	s.mu.Unlock()

	go s.execute(runCtx, state)
	return snapshot, nil
}

// policyFor merges per-request options over the configured defaults.
func (s *Service) policyFor(opts workflow.Options) workflow.ExecPolicy {
	policy := s.defaults
	if opts.StepTimeout > 0 {
		policy.StepTimeout = opts.StepTimeout
	}
	if opts.MaxRetries != nil {
		policy.MaxRetries = *opts.MaxRetries
	}
	if opts.RetryBackoff > 0 {
		policy.RetryBackoff = opts.RetryBackoff
	}
	return policy
}

func (s *Service) execute(ctx context.Context, state *runState) {
	defer close(state.done)

	s.transition(state, workflow.StatusRunning)

	limit := s.workerLimit(state.wc.Request.Options)
	var runErr error

groups:
	for _, group := range state.groups {
		if !s.gate(ctx, state) {
			break groups
		}

		g, groupCtx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		records := make([]workflow.StepRecord, len(group))
		for i, step := range group {
			i, step := i, step
			g.Go(func() error {
				// Re-check the gate per step: a pause mid-group must not
				// dispatch steps that have not started yet.
				if !s.gate(groupCtx, state) {
					return nil
				}
				records[i] = s.executor.Execute(groupCtx, state.wc, step, state.policy)
				return nil
			})
		}
		_ = g.Wait() // step errors land in records, never in the group

		fatal := s.absorbGroup(state, group, records)
		if ctx.Err() != nil {
			break groups
		}
		if fatal != nil {
			runErr = fatal
			break groups
		}
	}

	s.finalize(state, runErr)
}

// gate blocks while the run is paused and reports whether execution may
// proceed. It is consulted at group boundaries and again before each step
// starts; only steps already in flight run to completion under a pause.
func (s *Service) gate(ctx context.Context, state *runState) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		s.mu.RLock()
		paused := state.paused
		resume := state.resume
		s.mu.RUnlock()
		if !paused {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-resume:
		}
	}
}

// absorbGroup folds finished step records into the run and returns the
// fatal error, if any required step failed.
func (s *Service) absorbGroup(state *runState, group []workflow.Step, records []workflow.StepRecord) error {
	s.mu.Lock()

	var events []workflow.Event
	var failures []string
	for i, rec := range records {
		if rec.Name == "" {
			// The step was never dispatched: the run was cancelled while
			// gated. Its record stays pending.
			continue
		}
		step := group[i]
		events = append(events, s.storeRecord(state, rec))

		switch rec.Status {
		case workflow.StepSucceeded:
			state.wc.SetOutput(rec.Name, rec.Output)
		case workflow.StepSkipped:
			if step.WarnOnFailure && rec.Error != "" {
				state.wc.Warnings = append(state.wc.Warnings, fmt.Sprintf("%s skipped: %s", rec.Name, rec.Error))
			}
		case workflow.StepFailed:
			if step.Optional {
				if step.WarnOnFailure {
					state.wc.Warnings = append(state.wc.Warnings, fmt.Sprintf("%s failed: %s", rec.Name, rec.Error))
				}
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %s", rec.Name, rec.Error))
		}
	}

	s.mu.Unlock()

	for _, ev := range events {
		s.publisher.Publish(context.Background(), ev)
	}

	if len(failures) > 0 {
		return fmt.Errorf("engine: %d step(s) failed: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

// storeRecord replaces the pending record and advances progress. Progress
// only ever moves forward: each step counts exactly once, on its first
// terminal record. Caller holds s.mu.
func (s *Service) storeRecord(state *runState, rec workflow.StepRecord) workflow.Event {
	for i := range state.run.Steps {
		if state.run.Steps[i].Name != rec.Name {
			continue
		}
		already := state.run.Steps[i].Status.Terminal()
		state.run.Steps[i] = rec
		if rec.Status.Terminal() && !already {
			state.run.Completed++
		}
		break
	}
	state.run.UpdatedAt = time.Now().UTC()

	return workflow.Event{
		RunID:     state.run.ID,
		Workflow:  state.run.Request.Workflow,
		Status:    state.run.Status,
		Step:      rec.Name,
		StepState: rec.Status,
		Completed: state.run.Completed,
		Total:     state.run.Total,
		At:        state.run.UpdatedAt,
	}
}

func (s *Service) transition(state *runState, status workflow.Status) {
	s.mu.Lock()
	if state.run.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	state.run.Status = status
	state.run.UpdatedAt = now
	if status == workflow.StatusRunning && state.run.StartedAt.IsZero() {
		state.run.StartedAt = now
	}
	if status.Terminal() {
		state.run.EndedAt = now
	}
	ev := workflow.Event{
		RunID:     state.run.ID,
		Workflow:  state.run.Request.Workflow,
		Status:    status,
		Completed: state.run.Completed,
		Total:     state.run.Total,
		At:        now,
	}
	s.mu.Unlock()

	s.publisher.Publish(context.Background(), ev)
}

func (s *Service) finalize(state *runState, runErr error) {
	s.mu.Lock()
	cancelled := state.run.Status == workflow.StatusCancelled
	s.mu.Unlock()

	switch {
	case cancelled:
		// Cancel already transitioned the run; in-flight records were
		// still absorbed above.
	case runErr != nil:
		s.transition(state, workflow.StatusFailed)
	default:
		s.transition(state, workflow.StatusCompleted)
	}

	s.mu.Lock()
	result := workflow.Result{
		RunID:    state.run.ID,
		Workflow: state.run.Request.Workflow,
		Target:   state.run.Request.Target,
		Status:   state.run.Status,
		Steps:    append([]workflow.StepRecord(nil), state.run.Steps...),
		Started:  state.run.StartedAt,
		Ended:    state.run.EndedAt,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	if out := state.wc.Outputs["result_aggregation"]; out != nil {
		result.Report = out.Report
	}
	state.result = &result
	s.mu.Unlock()

	archiveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.archive.SaveResult(archiveCtx, result); err != nil {
		s.logger.Warn("archive run result", zap.String("run_id", result.RunID), zap.Error(err))
	}
}

func (s *Service) workerLimit(opts workflow.Options) int {
	parallel := s.parallel
	if opts.Parallel != nil {
		parallel = *opts.Parallel
	}
	if !parallel {
		return 1
	}
	if s.workers > 0 {
		return s.workers
	}
	return 4
}

// Pause stops the run before any step that has not started yet. Steps
// already in flight run to completion.
func (s *Service) Pause(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[id]
	if !ok {
		return workflow.ErrNotFound
	}
	if state.run.Status.Terminal() {
		return workflow.ErrTerminal
	}
	if state.run.Status != workflow.StatusRunning || state.paused {
		return workflow.ErrInvalidTransition
	}
	state.paused = true
	state.resume = make(chan struct{})
	state.run.Status = workflow.StatusPaused
	state.run.UpdatedAt = time.Now().UTC()
	return nil
}

// Resume restarts a paused run.
func (s *Service) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[id]
	if !ok {
		return workflow.ErrNotFound
	}
	if state.run.Status.Terminal() {
		return workflow.ErrTerminal
	}
	if !state.paused {
		return workflow.ErrInvalidTransition
	}
	state.paused = false
	close(state.resume)
	state.run.Status = workflow.StatusRunning
	state.run.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel stops the run. Steps already in flight run to completion and
// their records are kept, but the run status stays Cancelled.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	state, ok := s.runs[id]
	if !ok {
		s.mu.Unlock()
		return workflow.ErrNotFound
	}
	if state.run.Status.Terminal() {
		s.mu.Unlock()
		return workflow.ErrTerminal
	}
	if state.paused {
		state.paused = false
		close(state.resume)
	}
	state.run.Status = workflow.StatusCancelled
	state.run.UpdatedAt = time.Now().UTC()
	state.run.EndedAt = state.run.UpdatedAt
	ev := workflow.Event{
		RunID:     state.run.ID,
		Workflow:  state.run.Request.Workflow,
		Status:    workflow.StatusCancelled,
		Completed: state.run.Completed,
		Total:     state.run.Total,
		At:        state.run.UpdatedAt,
	}
	s.mu.Unlock()

	state.cancel()
	s.publisher.Publish(context.Background(), ev)
	return nil
}

// Run returns a point-in-time copy of the run.
func (s *Service) Run(id string) (workflow.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.runs[id]
	if !ok {
		return workflow.Run{}, workflow.ErrNotFound
	}
	return cloneRun(state.run), nil
}

// Progress reports completion for pollers. Percent is monotonic for the
// lifetime of a run.
func (s *Service) Progress(id string) (workflow.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.runs[id]
	if !ok {
		return workflow.Progress{}, workflow.ErrNotFound
	}
	run := state.run
	percent := 0.0
	if run.Total > 0 {
		percent = 100 * float64(run.Completed) / float64(run.Total)
	}
	return workflow.Progress{
		RunID:     run.ID,
		Status:    run.Status,
		Completed: run.Completed,
		Total:     run.Total,
		Percent:   percent,
		UpdatedAt: run.UpdatedAt,
	}, nil
}

// Result returns the final result. ErrRunActive until the run is terminal.
func (s *Service) Result(id string) (workflow.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.runs[id]
	if !ok {
		return workflow.Result{}, workflow.ErrNotFound
	}
	if state.result == nil {
		return workflow.Result{}, ErrRunActive
	}
	return *state.result, nil
}

// Wait blocks until the run finishes or ctx expires.
func (s *Service) Wait(ctx context.Context, id string) (workflow.Result, error) {
	s.mu.RLock()
	state, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return workflow.Result{}, workflow.ErrNotFound
	}
	select {
	case <-ctx.Done():
		return workflow.Result{}, ctx.Err()
	case <-state.done:
		return s.Result(id)
	}
}

// Shutdown cancels every active run and waits for their goroutines.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopBase()

	s.mu.RLock()
	states := make([]*runState, 0, len(s.runs))
	for _, state := range s.runs {
		states = append(states, state)
	}
	s.mu.RUnlock()

	for _, state := range states {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-state.done:
		}
	}
	return nil
}

func cloneRun(run *workflow.Run) workflow.Run {
	out := *run
	out.Steps = append([]workflow.StepRecord(nil), run.Steps...)
	return out
}
