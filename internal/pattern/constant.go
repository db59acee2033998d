package pattern

import (
	"math"
	"time"
)

// Constant holds a fixed rate forever
type Constant struct {
	base
	rate float64
}

// NewConstant creates a constant-rate pattern
func NewConstant(rate float64) (*Constant, error) {
	if err := checkRate("rate", rate); err != nil {
		return nil, err
	}
	p := &Constant{rate: rate}
	p.init("Constant", func() Source {
		return SourceFunc(func(time.Duration) float64 { return p.rate })
	})
	return p, nil
}

// Rate returns the configured rate
func (p *Constant) Rate() float64 {
	return p.rate
}

// Waveform selects the shape of a Variable pattern
type Waveform string

const (
	WaveSine     Waveform = "sine"
	WaveSquare   Waveform = "square"
	WaveSawtooth Waveform = "sawtooth"
)

// VariableConfig describes a periodic waveform between Min and Max
type VariableConfig struct {
	Min      float64
	Max      float64
	Period   time.Duration
	Waveform Waveform
}

// Validate checks the waveform parameters
func (c VariableConfig) Validate() error {
	if err := checkRate("min", c.Min); err != nil {
		return err
	}
	if err := checkRate("max", c.Max); err != nil {
		return err
	}
	if c.Min > c.Max {
		return invalid("min (%v) cannot exceed max (%v)", c.Min, c.Max)
	}
	if err := checkPositive("period", c.Period); err != nil {
		return err
	}
	switch c.Waveform {
	case WaveSine, WaveSquare, WaveSawtooth:
		return nil
	default:
		return invalid("unknown waveform %q", c.Waveform)
	}
}

// Variable oscillates between two rates
type Variable struct {
	base
	cfg VariableConfig
}

// NewVariable creates a waveform pattern. An empty waveform defaults to sine.
func NewVariable(cfg VariableConfig) (*Variable, error) {
	if cfg.Waveform == "" {
		cfg.Waveform = WaveSine
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Variable{cfg: cfg}
	p.init("Variable", func() Source { return SourceFunc(p.at) })
	return p, nil
}

func (p *Variable) at(elapsed time.Duration) float64 {
	c := p.cfg
	phase := float64(elapsed%c.Period) / float64(c.Period)
	switch c.Waveform {
	case WaveSquare:
		if phase < 0.5 {
			return c.Max
		}
		return c.Min
	case WaveSawtooth:
		return c.Min + phase*(c.Max-c.Min)
	default:
		return c.Min + (c.Max-c.Min)*(math.Sin(2*math.Pi*phase)+1)/2
	}
}
