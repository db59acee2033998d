package plan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/studiowebux/loadtest/internal/loadtest"
	"github.com/studiowebux/loadtest/internal/pattern"
	"github.com/studiowebux/loadtest/internal/runner"
	"github.com/studiowebux/loadtest/internal/scenario"
)

// ErrInvalidPlan wraps every plan validation failure
var ErrInvalidPlan = errors.New("invalid plan")

// Duration accepts either a Go duration string ("1m30s") or a number of seconds
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Plan is a load test described in a YAML, JSON or JSONC file
type Plan struct {
	Name           string         `yaml:"name"`
	Target         string         `yaml:"target"`
	Duration       Duration       `yaml:"duration"`
	Warmup         *Duration      `yaml:"warmup"`
	MaxConcurrent  int            `yaml:"max_concurrent"`
	Tick           Duration       `yaml:"tick"`
	GracePeriod    Duration       `yaml:"grace_period"`
	Pacing         string         `yaml:"pacing"`
	TrackQueueWait bool           `yaml:"track_queue_wait"`
	Seed           uint64         `yaml:"seed"`
	HTTP           HTTPSettings   `yaml:"http"`
	Shared         map[string]any `yaml:"shared"`
	Pattern        *PatternSpec   `yaml:"pattern"`
	Scenarios      []ScenarioSpec `yaml:"scenarios"`
}

// HTTPSettings configures the client shared by every HTTP scenario
type HTTPSettings struct {
	Timeout  Duration            `yaml:"timeout"`
	MaxConns int                 `yaml:"max_conns"`
	TLS      *scenario.TLSConfig `yaml:"tls"`
}

// PatternSpec describes a rate pattern. Type selects which fields apply.
type PatternSpec struct {
	Type string `yaml:"type"`

	// constant, steady_state
	Rate   float64 `yaml:"rate"`
	Target float64 `yaml:"target"`

	// variable, chaos
	Min            float64  `yaml:"min"`
	Max            float64  `yaml:"max"`
	Period         Duration `yaml:"period"`
	Waveform       string   `yaml:"waveform"`
	ChangeInterval Duration `yaml:"change_interval"`
	Distribution   string   `yaml:"distribution"`

	// ramp, sawtooth, step_ladder
	Start        float64  `yaml:"start"`
	End          float64  `yaml:"end"`
	Peak         float64  `yaml:"peak"`
	Duration     Duration `yaml:"duration"`
	Steps        int      `yaml:"steps"`
	RampUp       Duration `yaml:"ramp_up"`
	Sustain      Duration `yaml:"sustain"`
	RampDown     Duration `yaml:"ramp_down"`
	StepDuration Duration `yaml:"step_duration"`
	Direction    string   `yaml:"direction"`

	// spike
	Baseline      float64  `yaml:"baseline"`
	SpikeRate     float64  `yaml:"spike_rate"`
	SpikeDuration Duration `yaml:"spike_duration"`
	Interval      Duration `yaml:"interval"`
	Jitter        float64  `yaml:"jitter"`
	Count         int      `yaml:"count"`

	// burst
	Initial       float64  `yaml:"initial"`
	BurstRate     float64  `yaml:"burst_rate"`
	BurstDuration Duration `yaml:"burst_duration"`
	Delay         Duration `yaml:"delay"`
	Final         *float64 `yaml:"final"`

	// curve
	Points []pattern.Point `yaml:"points"`

	// composite
	Mode     string        `yaml:"mode"`
	Patterns []PatternSpec `yaml:"patterns"`

	// For bounds this pattern when it is an entry of a composite
	For Duration `yaml:"for"`

	Seed uint64 `yaml:"seed"`
}

// ScenarioSpec describes one weighted scenario
type ScenarioSpec struct {
	Name   string  `yaml:"name"`
	Type   string  `yaml:"type"`
	Weight float64 `yaml:"weight"`

	Method       string            `yaml:"method"`
	URL          string            `yaml:"url"`
	Headers      map[string]string `yaml:"headers"`
	Body         string            `yaml:"body"`
	BodyTemplate string            `yaml:"body_template"`
	TokenKey     string            `yaml:"token_key"`
	AuthHeader   string            `yaml:"auth_header"`
	AuthPrefix   string            `yaml:"auth_prefix"`
	Expect       ExpectSpec        `yaml:"expect"`

	Subprotocols     []string   `yaml:"subprotocols"`
	Steps            []StepSpec `yaml:"steps"`
	HandshakeTimeout Duration   `yaml:"handshake_timeout"`
}

// ExpectSpec lists the checks deciding whether a response succeeded
type ExpectSpec struct {
	Status   []int             `yaml:"status"`
	Exact    string            `yaml:"exact"`
	Contains string            `yaml:"contains"`
	Pattern  string            `yaml:"pattern"`
	Fields   map[string]string `yaml:"fields"`
}

// StepSpec is one WebSocket script step
type StepSpec struct {
	Send     string   `yaml:"send"`
	Receive  bool     `yaml:"receive"`
	Type     string   `yaml:"type"`
	Contains string   `yaml:"contains"`
	Timeout  Duration `yaml:"timeout"`
}

const (
	ScenarioHTTP      = "http"
	ScenarioWebSocket = "websocket"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPlan, fmt.Sprintf(format, args...))
}

// Validate checks the plan and every pattern and scenario it describes
func (p *Plan) Validate() error {
	if p.Name == "" {
		return invalid("name is required")
	}
	if _, err := p.LoadTestConfig(); err != nil {
		return err
	}
	if p.Pattern == nil {
		return invalid("pattern is required")
	}
	if _, err := p.BuildPattern(); err != nil {
		return err
	}
	if len(p.Scenarios) == 0 {
		return invalid("at least one scenario is required")
	}
	if _, err := p.BuildScenarios(nil); err != nil {
		return err
	}
	return nil
}

// LoadTestConfig converts the plan settings into a loadtest.Config.
// Unset fields keep their defaults.
func (p *Plan) LoadTestConfig() (loadtest.Config, error) {
	cfg := loadtest.DefaultConfig()
	cfg.Name = p.Name
	if p.Duration != 0 {
		cfg.Duration = p.Duration.Std()
	}
	if p.Warmup != nil {
		cfg.Warmup = p.Warmup.Std()
	}
	if p.MaxConcurrent != 0 {
		cfg.MaxConcurrent = p.MaxConcurrent
	}
	if p.Tick != 0 {
		cfg.Tick = p.Tick.Std()
	}
	if p.GracePeriod != 0 {
		cfg.GracePeriod = p.GracePeriod.Std()
	}
	cfg.TrackQueueWait = p.TrackQueueWait

	switch strings.ToLower(p.Pacing) {
	case "", "round":
		cfg.Pacing = runner.PacingRound
	case "carry":
		cfg.Pacing = runner.PacingCarry
	default:
		return cfg, invalid("pacing must be 'round' or 'carry', got %q", p.Pacing)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	return cfg, nil
}
