package scenario

import (
	"context"
	"net/http"
)

// Keys the runner and the built-in scenarios understand in Shared
const (
	ClientKey  = "http_client"
	MetricsKey = "metrics"
)

// Shared is the context map handed to every execution of a run.
// It is read-only for scenarios.
type Shared map[string]any

// Outcome is what a scenario reports for one execution
type Outcome struct {
	Success    bool
	StatusCode int    // 0 when the scenario has no status
	Detail     string // failure detail, "type: message"
}

// Scenario is one unit of simulated client work.
// A returned error counts as a failed outcome with the error text as detail.
type Scenario interface {
	Name() string
	Execute(ctx context.Context, shared Shared) (Outcome, error)
}

// Recorder receives named custom samples from scenarios
type Recorder interface {
	Record(name string, value float64)
}

type funcScenario struct {
	name string
	fn   func(ctx context.Context, shared Shared) (Outcome, error)
}

func (f *funcScenario) Name() string {
	return f.name
}

func (f *funcScenario) Execute(ctx context.Context, shared Shared) (Outcome, error) {
	return f.fn(ctx, shared)
}

// Func adapts a function to the Scenario interface
func Func(name string, fn func(ctx context.Context, shared Shared) (Outcome, error)) Scenario {
	return &funcScenario{name: name, fn: fn}
}

type nopRecorder struct{}

func (nopRecorder) Record(string, float64) {}

// RecorderFrom returns the custom metric recorder of a run, or a no-op recorder
func RecorderFrom(shared Shared) Recorder {
	if r, ok := shared[MetricsKey].(Recorder); ok && r != nil {
		return r
	}
	return nopRecorder{}
}

// ClientFrom returns the HTTP client placed in shared, or fallback
func ClientFrom(shared Shared, fallback *http.Client) *http.Client {
	if c, ok := shared[ClientKey].(*http.Client); ok && c != nil {
		return c
	}
	return fallback
}

// Clone returns a shallow copy of shared with extra keys set
func (s Shared) Clone(extra map[string]any) Shared {
	out := make(Shared, len(s)+len(extra))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
