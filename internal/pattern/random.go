package pattern

import (
	"math"
	"math/rand/v2"
	"time"
)

// Distribution names a random distribution
type Distribution string

const (
	DistUniform     Distribution = "uniform"
	DistGaussian    Distribution = "gaussian"
	DistExponential Distribution = "exponential"
)

// SteadyStateConfig describes a target rate with random relative jitter
type SteadyStateConfig struct {
	Target       float64
	Jitter       float64
	Distribution Distribution
	Seed         uint64
}

// Validate checks the steady state parameters
func (c SteadyStateConfig) Validate() error {
	if err := checkRate("target", c.Target); err != nil {
		return err
	}
	if err := checkFraction("jitter", c.Jitter); err != nil {
		return err
	}
	switch c.Distribution {
	case DistUniform, DistGaussian:
		return nil
	default:
		return invalid("unknown jitter distribution %q", c.Distribution)
	}
}

// SteadyState yields Target·(1+ε) with ε bounded by ±Jitter
type SteadyState struct {
	base
	cfg SteadyStateConfig
}

// NewSteadyState creates a jittered steady-state pattern. An empty distribution defaults to uniform.
func NewSteadyState(cfg SteadyStateConfig) (*SteadyState, error) {
	if cfg.Distribution == "" {
		cfg.Distribution = DistUniform
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &SteadyState{cfg: cfg}
	p.init("SteadyState", func() Source {
		rng := newRand(cfg.Seed)
		return SourceFunc(func(time.Duration) float64 {
			return p.cfg.Target * (1 + p.variation(rng))
		})
	})
	return p, nil
}

func (p *SteadyState) variation(rng *rand.Rand) float64 {
	j := p.cfg.Jitter
	if j == 0 {
		return 0
	}
	if p.cfg.Distribution == DistGaussian {
		return clamp(rng.NormFloat64()*j/3, -j, j)
	}
	return j * (2*rng.Float64() - 1)
}

// ChaosConfig describes random rates in [Min, Max] redrawn every ChangeInterval
type ChaosConfig struct {
	Min            float64
	Max            float64
	ChangeInterval time.Duration
	Distribution   Distribution
	Seed           uint64
}

// Validate checks the chaos parameters
func (c ChaosConfig) Validate() error {
	if err := checkRate("min", c.Min); err != nil {
		return err
	}
	if err := checkRate("max", c.Max); err != nil {
		return err
	}
	if c.Min > c.Max {
		return invalid("min (%v) cannot exceed max (%v)", c.Min, c.Max)
	}
	if err := checkPositive("change interval", c.ChangeInterval); err != nil {
		return err
	}
	switch c.Distribution {
	case DistUniform, DistGaussian, DistExponential:
		return nil
	default:
		return invalid("unknown distribution %q", c.Distribution)
	}
}

// Chaos holds a random rate and redraws it at a fixed interval
type Chaos struct {
	base
	cfg ChaosConfig
}

// NewChaos creates a chaos pattern. An empty distribution defaults to uniform.
func NewChaos(cfg ChaosConfig) (*Chaos, error) {
	if cfg.Distribution == "" {
		cfg.Distribution = DistUniform
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Chaos{cfg: cfg}
	p.init("Chaos", func() Source { return &chaosSource{p: p, rng: newRand(cfg.Seed)} })
	return p, nil
}

func (p *Chaos) draw(rng *rand.Rand) float64 {
	c := p.cfg
	span := c.Max - c.Min
	switch c.Distribution {
	case DistGaussian:
		mean := (c.Min + c.Max) / 2
		return clamp(mean+rng.NormFloat64()*span/6, c.Min, c.Max)
	case DistExponential:
		return math.Min(c.Min+rng.ExpFloat64()*span/5, c.Max)
	default:
		return c.Min + rng.Float64()*span
	}
}

type chaosSource struct {
	p          *Chaos
	rng        *rand.Rand
	current    float64
	lastChange time.Duration
	drawn      bool
}

func (s *chaosSource) Rate(elapsed time.Duration) (float64, bool) {
	if !s.drawn || elapsed-s.lastChange >= s.p.cfg.ChangeInterval {
		s.current = s.p.draw(s.rng)
		s.lastChange = elapsed
		s.drawn = true
	}
	return s.current, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
