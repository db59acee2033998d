package plan

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/studiowebux/loadtest/internal/pattern"
	"github.com/studiowebux/loadtest/internal/scenario"
)

// Pattern types accepted in PatternSpec.Type
const (
	PatternConstant    = "constant"
	PatternVariable    = "variable"
	PatternRamp        = "ramp"
	PatternSawtooth    = "sawtooth"
	PatternStepLadder  = "step_ladder"
	PatternSpike       = "spike"
	PatternBurst       = "burst"
	PatternSteadyState = "steady_state"
	PatternChaos       = "chaos"
	PatternCurve       = "curve"
	PatternComposite   = "composite"
)

// BuildPattern creates the rate pattern described by the plan
func (p *Plan) BuildPattern() (pattern.Pattern, error) {
	if p.Pattern == nil {
		return nil, invalid("pattern is required")
	}
	pat, err := p.Pattern.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: pattern: %w", ErrInvalidPlan, err)
	}
	return pat, nil
}

// Build creates the rate pattern described by s
func (s PatternSpec) Build() (pattern.Pattern, error) {
	switch strings.ToLower(s.Type) {
	case PatternConstant:
		return pattern.NewConstant(s.Rate)
	case PatternVariable:
		return pattern.NewVariable(pattern.VariableConfig{
			Min:      s.Min,
			Max:      s.Max,
			Period:   s.Period.Std(),
			Waveform: pattern.Waveform(s.Waveform),
		})
	case PatternRamp:
		return pattern.NewRamp(pattern.RampConfig{
			Start:    s.Start,
			End:      s.End,
			Duration: s.Duration.Std(),
			Steps:    s.Steps,
		})
	case PatternSawtooth:
		return pattern.NewSawtoothRamp(pattern.SawtoothRampConfig{
			Start:    s.Start,
			Peak:     s.Peak,
			RampUp:   s.RampUp.Std(),
			Sustain:  s.Sustain.Std(),
			RampDown: s.RampDown.Std(),
			Steps:    s.Steps,
		})
	case PatternStepLadder:
		return pattern.NewStepLadder(pattern.StepLadderConfig{
			Start:        s.Start,
			End:          s.End,
			Steps:        s.Steps,
			StepDuration: s.StepDuration.Std(),
			Direction:    pattern.Direction(s.Direction),
		})
	case PatternSpike:
		return pattern.NewSpike(pattern.SpikeConfig{
			Baseline:      s.Baseline,
			SpikeRate:     s.SpikeRate,
			SpikeDuration: s.SpikeDuration.Std(),
			Interval:      s.Interval.Std(),
			Jitter:        s.Jitter,
			Count:         s.Count,
			Seed:          s.Seed,
		})
	case PatternBurst:
		return pattern.NewBurst(pattern.BurstConfig{
			Initial:       s.Initial,
			BurstRate:     s.BurstRate,
			BurstDuration: s.BurstDuration.Std(),
			Delay:         s.Delay.Std(),
			Final:         s.Final,
		})
	case PatternSteadyState:
		return pattern.NewSteadyState(pattern.SteadyStateConfig{
			Target:       s.Target,
			Jitter:       s.Jitter,
			Distribution: pattern.Distribution(s.Distribution),
			Seed:         s.Seed,
		})
	case PatternChaos:
		return pattern.NewChaos(pattern.ChaosConfig{
			Min:            s.Min,
			Max:            s.Max,
			ChangeInterval: s.ChangeInterval.Std(),
			Distribution:   pattern.Distribution(s.Distribution),
			Seed:           s.Seed,
		})
	case PatternCurve:
		fn, err := pattern.PiecewiseLinear(s.Points)
		if err != nil {
			return nil, err
		}
		return pattern.NewCustomCurve(fn, s.Duration.Std())
	case PatternComposite:
		if len(s.Patterns) == 0 {
			return nil, fmt.Errorf("composite needs at least one pattern")
		}
		entries := make([]pattern.Entry, 0, len(s.Patterns))
		for i, child := range s.Patterns {
			built, err := child.Build()
			if err != nil {
				return nil, fmt.Errorf("patterns[%d]: %w", i, err)
			}
			entries = append(entries, pattern.Entry{Pattern: built, Duration: child.For.Std()})
		}
		return pattern.NewComposite(pattern.Mode(s.Mode), entries...)
	case "":
		return nil, fmt.Errorf("pattern type is required")
	default:
		return nil, fmt.Errorf("unknown pattern type %q", s.Type)
	}
}

// BuildScenarios creates every scenario of the plan with its weight.
// HTTP scenarios share client; a nil client is allowed for validation.
func (p *Plan) BuildScenarios(client *http.Client) ([]scenario.Entry, error) {
	entries := make([]scenario.Entry, 0, len(p.Scenarios))
	for i, spec := range p.Scenarios {
		sc, err := p.buildScenario(spec, client)
		if err != nil {
			return nil, fmt.Errorf("%w: scenarios[%d]: %w", ErrInvalidPlan, i, err)
		}
		weight := spec.Weight
		if weight == 0 {
			weight = 1
		}
		if weight < 0 {
			return nil, invalid("scenarios[%d]: weight must not be negative", i)
		}
		entries = append(entries, scenario.Entry{Scenario: sc, Weight: weight})
	}
	return entries, nil
}

// NewHTTPClient creates the client shared by the plan's HTTP scenarios
func (p *Plan) NewHTTPClient(maxConcurrent int) (*http.Client, error) {
	conns := p.HTTP.MaxConns
	if conns <= 0 {
		conns = maxConcurrent
	}
	return scenario.NewHTTPClient(scenario.ClientConfig{
		MaxConns: conns,
		Timeout:  p.HTTP.Timeout.Std(),
		TLS:      p.HTTP.TLS,
	})
}

func (p *Plan) buildScenario(spec ScenarioSpec, client *http.Client) (scenario.Scenario, error) {
	target, err := p.resolve(spec.URL)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(spec.Type) {
	case "", ScenarioHTTP:
		cfg := scenario.HTTPConfig{
			Name:       spec.Name,
			Method:     spec.Method,
			URL:        target,
			Headers:    spec.Headers,
			Body:       spec.Body,
			TokenKey:   spec.TokenKey,
			AuthHeader: spec.AuthHeader,
			AuthPrefix: spec.AuthPrefix,
			Expect: scenario.Expectations{
				Statuses:     spec.Expect.Status,
				BodyExact:    spec.Expect.Exact,
				BodyContains: spec.Expect.Contains,
				BodyPattern:  spec.Expect.Pattern,
				Fields:       spec.Expect.Fields,
			},
		}
		if spec.BodyTemplate != "" {
			cfg.BodyFunc = templateBody(spec.BodyTemplate)
		}
		return scenario.NewHTTP(cfg, client)

	case ScenarioWebSocket:
		steps := make([]scenario.WSStep, 0, len(spec.Steps))
		for i, st := range spec.Steps {
			switch {
			case st.Receive && st.Send != "":
				return nil, fmt.Errorf("steps[%d]: a step either sends or receives", i)
			case st.Receive:
				steps = append(steps, scenario.WSStep{Direction: "receive", Contains: st.Contains, Timeout: st.Timeout.Std()})
			default:
				steps = append(steps, scenario.WSStep{Direction: "send", Type: st.Type, Content: st.Send})
			}
		}
		return scenario.NewWebSocket(scenario.WebSocketConfig{
			Name:             spec.Name,
			URL:              target,
			Headers:          spec.Headers,
			Subprotocols:     spec.Subprotocols,
			Steps:            steps,
			HandshakeTimeout: spec.HandshakeTimeout.Std(),
			TLS:              p.HTTP.TLS,
		})

	default:
		return nil, fmt.Errorf("unknown scenario type %q", spec.Type)
	}
}

// resolve joins a relative scenario URL onto the plan target
func (p *Plan) resolve(raw string) (string, error) {
	if raw == "" || p.Target == "" {
		return raw, nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if ref.IsAbs() {
		return raw, nil
	}
	base, err := url.Parse(p.Target)
	if err != nil {
		return "", fmt.Errorf("invalid target %q: %w", p.Target, err)
	}
	return base.JoinPath(ref.Path).String() + querySuffix(ref), nil
}

func querySuffix(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

// templateBody returns a body factory substituting {{uuid}}, {{seq}} and {{timestamp}} per execution
func templateBody(tmpl string) func() ([]byte, error) {
	var seq atomic.Int64
	return func() ([]byte, error) {
		r := strings.NewReplacer(
			"{{uuid}}", uuid.NewString(),
			"{{seq}}", strconv.FormatInt(seq.Add(1), 10),
			"{{timestamp}}", strconv.FormatInt(time.Now().Unix(), 10),
		)
		return []byte(r.Replace(tmpl)), nil
	}
}
