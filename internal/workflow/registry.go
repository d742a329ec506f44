package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Context is the per-run state handed to handlers. Outputs holds the
// results of every step that finished before the current one, keyed by
// step name; Order records the names in completion order.
type Context struct {
	Request Request
	Outputs map[string]*StepOutput
	Order   []string
	// Warnings collects failures of optional steps flagged WarnOnFailure;
	// the aggregation step folds them into the final report.
	Warnings []string
	Logger   *zap.Logger
}

// Output returns the named step's output, nil when the step did not run
// or produced nothing.
func (c *Context) Output(step string) *StepOutput {
	if c == nil || c.Outputs == nil {
		return nil
	}
	return c.Outputs[step]
}

// SetOutput records a finished step's output and remembers its position
// in the completion order.
func (c *Context) SetOutput(step string, out *StepOutput) {
	if c.Outputs == nil {
		c.Outputs = make(map[string]*StepOutput)
	}
	if _, seen := c.Outputs[step]; !seen {
		c.Order = append(c.Order, step)
	}
	c.Outputs[step] = out
}

// OutputNames returns step names in completion order, so consumers that
// fold over every output see the same sequence on every run. Names stored
// directly in the map follow, sorted.
func (c *Context) OutputNames() []string {
	names := append([]string(nil), c.Order...)
	ordered := make(map[string]bool, len(names))
	for _, name := range names {
		ordered[name] = true
	}
	var rest []string
	for name := range c.Outputs {
		if !ordered[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Handler executes one step kind. Returning ErrSkipped records the step
// as skipped without failing the run.
type Handler interface {
	Run(ctx context.Context, wc *Context, step Step) (*StepOutput, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, wc *Context, step Step) (*StepOutput, error)

func (f HandlerFunc) Run(ctx context.Context, wc *Context, step Step) (*StepOutput, error) {
	return f(ctx, wc, step)
}

// Registry maps step kinds to handlers. Registration happens during
// startup wiring; lookups are concurrent-safe afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

func (r *Registry) Register(kind Kind, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[kind]; dup {
		return fmt.Errorf("workflow: handler for %q already registered", kind)
	}
	r.handlers[kind] = h
	return nil
}

func (r *Registry) Lookup(kind Kind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("workflow: no handler registered for %q", kind)
	}
	return h, nil
}
