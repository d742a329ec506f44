package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/seoforge/orchestrator/internal/scoring"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further mutation of a run is permitted.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusFailed
}

type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepSucceeded StepStatus = "SUCCEEDED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

func (s StepStatus) Terminal() bool {
	return s == StepSucceeded || s == StepFailed || s == StepSkipped
}

// Request describes one workflow invocation. Immutable once submitted; the
// engine works on its own copy.
type Request struct {
	Workflow    string            `json:"workflow"`
	Target      string            `json:"target"`
	Keywords    []string          `json:"keywords,omitempty"`
	Competitors []string          `json:"competitors,omitempty"`
	Depth       string            `json:"depth,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	Options     Options           `json:"options"`
}

// Options carries the recognized per-run configuration knobs. Zero values
// defer to the engine's configured defaults. On the wire the durations are
// Go duration strings ("30s", "500ms"), never bare numbers.
type Options struct {
	Parallel     *bool
	StepTimeout  time.Duration
	MaxRetries   *int
	RetryBackoff time.Duration
}

type optionsWire struct {
	Parallel     *bool  `json:"parallel,omitempty"`
	StepTimeout  string `json:"step_timeout,omitempty"`
	MaxRetries   *int   `json:"max_retries,omitempty"`
	RetryBackoff string `json:"retry_backoff,omitempty"`
}

func (o Options) MarshalJSON() ([]byte, error) {
	wire := optionsWire{Parallel: o.Parallel, MaxRetries: o.MaxRetries}
	if o.StepTimeout > 0 {
		wire.StepTimeout = o.StepTimeout.String()
	}
	if o.RetryBackoff > 0 {
		wire.RetryBackoff = o.RetryBackoff.String()
	}
	return json.Marshal(wire)
}

func (o *Options) UnmarshalJSON(data []byte) error {
	var wire optionsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	stepTimeout, err := parseOptionDuration("step_timeout", wire.StepTimeout)
	if err != nil {
		return err
	}
	retryBackoff, err := parseOptionDuration("retry_backoff", wire.RetryBackoff)
	if err != nil {
		return err
	}
	*o = Options{
		Parallel:     wire.Parallel,
		StepTimeout:  stepTimeout,
		MaxRetries:   wire.MaxRetries,
		RetryBackoff: retryBackoff,
	}
	return nil
}

func parseOptionDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("options.%s: %q is not a positive duration such as \"30s\"", field, raw)
	}
	return d, nil
}

// Clone deep-copies the request so the engine's copy cannot be mutated
// by the caller after submission.
func (r Request) Clone() Request {
	out := r
	out.Keywords = append([]string(nil), r.Keywords...)
	out.Competitors = append([]string(nil), r.Competitors...)
	if r.Params != nil {
		out.Params = make(map[string]string, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = v
		}
	}
	return out
}

// StepRecord is the per-step execution record kept on a run.
type StepRecord struct {
	Name       string      `json:"name"`
	Kind       Kind        `json:"kind"`
	Class      Class       `json:"class"`
	Status     StepStatus  `json:"status"`
	Attempts   int         `json:"attempts"`
	Error      string      `json:"error,omitempty"`
	Output     *StepOutput `json:"output,omitempty"`
	StartedAt  time.Time   `json:"started_at,omitempty"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
}

// StepOutput is what a handler produces. Dimension and Score feed the
// scoring aggregator; Data carries endpoint-specific findings.
type StepOutput struct {
	Dimension       scoring.Dimension        `json:"dimension,omitempty"`
	Score           float64                  `json:"score,omitempty"`
	Data            map[string]any           `json:"data,omitempty"`
	Recommendations []scoring.Recommendation `json:"recommendations,omitempty"`
	Report          *scoring.Report          `json:"report,omitempty"`
}

// Run is the engine-owned execution state. Callers only ever see copies.
type Run struct {
	ID        string       `json:"id"`
	Request   Request      `json:"request"`
	Status    Status       `json:"status"`
	Steps     []StepRecord `json:"steps"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	StartedAt time.Time    `json:"started_at,omitempty"`
	EndedAt   time.Time    `json:"ended_at,omitempty"`
}

// Progress is a point-in-time snapshot for callers polling a run.
type Progress struct {
	RunID     string    `json:"run_id"`
	Status    Status    `json:"status"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Percent   float64   `json:"percent"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is the final answer handed to callers. It is always well-formed:
// on failure it still carries every StepRecord gathered so far.
type Result struct {
	RunID    string          `json:"run_id"`
	Workflow string          `json:"workflow"`
	Target   string          `json:"target"`
	Status   Status          `json:"status"`
	Steps    []StepRecord    `json:"steps"`
	Report   *scoring.Report `json:"report,omitempty"`
	Error    string          `json:"error,omitempty"`
	Started  time.Time       `json:"started_at"`
	Ended    time.Time       `json:"ended_at"`
}
