package pattern

import (
	"math/rand/v2"
	"time"
)

// SpikeConfig describes recurring spikes above a baseline.
// The gap between the end of one spike and the start of the next is
// Interval varied by up to ±Jitter·Interval. Count > 0 bounds the number of spikes.
type SpikeConfig struct {
	Baseline      float64
	SpikeRate     float64
	SpikeDuration time.Duration
	Interval      time.Duration
	Jitter        float64
	Count         int
	Seed          uint64
}

// Validate checks the spike parameters
func (c SpikeConfig) Validate() error {
	if err := checkRate("baseline", c.Baseline); err != nil {
		return err
	}
	if err := checkRate("spike rate", c.SpikeRate); err != nil {
		return err
	}
	if err := checkPositive("spike duration", c.SpikeDuration); err != nil {
		return err
	}
	if err := checkPositive("interval", c.Interval); err != nil {
		return err
	}
	if err := checkFraction("jitter", c.Jitter); err != nil {
		return err
	}
	if c.Count < 0 {
		return invalid("spike count cannot be negative, got %d", c.Count)
	}
	return nil
}

// Spike produces periodic spikes of traffic over a baseline
type Spike struct {
	base
	cfg SpikeConfig
}

// NewSpike creates a spike pattern
func NewSpike(cfg SpikeConfig) (*Spike, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Spike{cfg: cfg}
	p.init("Spike", func() Source {
		s := &spikeSource{p: p, rng: newRand(cfg.Seed)}
		s.next = s.gap()
		return s
	})
	return p, nil
}

type spikeSource struct {
	p       *Spike
	rng     *rand.Rand
	next    time.Duration // start of the upcoming spike
	spikes  int
	inSpike bool
}

func (s *spikeSource) gap() time.Duration {
	c := s.p.cfg
	if c.Jitter == 0 {
		return c.Interval
	}
	variation := c.Jitter * (2*s.rng.Float64() - 1)
	return time.Duration(float64(c.Interval) * (1 + variation))
}

func (s *spikeSource) Rate(elapsed time.Duration) (float64, bool) {
	c := s.p.cfg
	for {
		if c.Count > 0 && s.spikes >= c.Count {
			return c.Baseline, true
		}
		if elapsed < s.next {
			return c.Baseline, true
		}
		end := s.next + c.SpikeDuration
		if elapsed < end {
			if !s.inSpike {
				s.inSpike = true
				s.p.emit(EventSpikeStart, elapsed, c.SpikeRate, map[string]any{"spike": s.spikes + 1})
			}
			return c.SpikeRate, true
		}
		if s.inSpike {
			s.inSpike = false
			s.p.emit(EventSpikeEnd, elapsed, c.Baseline, map[string]any{"spike": s.spikes + 1})
		}
		s.spikes++
		s.next = end + s.gap()
	}
}

// BurstConfig describes a single burst after Delay. Final defaults to Initial.
type BurstConfig struct {
	Initial       float64
	BurstRate     float64
	BurstDuration time.Duration
	Delay         time.Duration
	Final         *float64
}

// Validate checks the burst parameters
func (c BurstConfig) Validate() error {
	if err := checkRate("initial rate", c.Initial); err != nil {
		return err
	}
	if err := checkRate("burst rate", c.BurstRate); err != nil {
		return err
	}
	if c.Final != nil {
		if err := checkRate("final rate", *c.Final); err != nil {
			return err
		}
	}
	if err := checkPositive("burst duration", c.BurstDuration); err != nil {
		return err
	}
	return checkNonNegative("delay", c.Delay)
}

// Burst holds an initial rate, bursts once and settles at a final rate
type Burst struct {
	base
	cfg   BurstConfig
	final float64
}

// NewBurst creates a burst pattern
func NewBurst(cfg BurstConfig) (*Burst, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Burst{cfg: cfg, final: cfg.Initial}
	if cfg.Final != nil {
		p.final = *cfg.Final
	}
	p.init("Burst", func() Source { return &burstSource{p: p} })
	return p, nil
}

// Length returns the time at which the burst ends
func (p *Burst) Length() (time.Duration, bool) {
	return p.cfg.Delay + p.cfg.BurstDuration, true
}

// At returns the rate at an elapsed offset
func (p *Burst) At(elapsed time.Duration) float64 {
	switch {
	case elapsed < p.cfg.Delay:
		return p.cfg.Initial
	case elapsed < p.cfg.Delay+p.cfg.BurstDuration:
		return p.cfg.BurstRate
	default:
		return p.final
	}
}

type burstSource struct {
	p       *Burst
	started bool
	ended   bool
}

func (s *burstSource) Rate(elapsed time.Duration) (float64, bool) {
	c := s.p.cfg
	rate := s.p.At(elapsed)
	if !s.started && elapsed >= c.Delay {
		s.started = true
		s.p.emit(EventBurstStart, elapsed, c.BurstRate, nil)
	}
	if s.started && !s.ended && elapsed >= c.Delay+c.BurstDuration {
		s.ended = true
		s.p.emit(EventBurstEnd, elapsed, s.p.final, nil)
	}
	return rate, true
}

// newRand returns a PCG generator; seed 0 picks a random seed
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
