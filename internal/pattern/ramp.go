package pattern

import (
	"math"
	"time"
)

// RampConfig describes a linear ramp from Start to End over Duration.
// Steps > 0 quantizes the ramp to that many discrete levels.
type RampConfig struct {
	Start    float64
	End      float64
	Duration time.Duration
	Steps    int
}

// Validate checks the ramp parameters
func (c RampConfig) Validate() error {
	if err := checkRate("start", c.Start); err != nil {
		return err
	}
	if err := checkRate("end", c.End); err != nil {
		return err
	}
	if err := checkPositive("duration", c.Duration); err != nil {
		return err
	}
	if c.Steps < 0 {
		return invalid("steps cannot be negative, got %d", c.Steps)
	}
	return nil
}

// Ramp moves linearly between two rates and holds at the end rate afterwards
type Ramp struct {
	base
	cfg RampConfig
}

// NewRamp creates a simple ramp pattern
func NewRamp(cfg RampConfig) (*Ramp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Ramp{cfg: cfg}
	p.init("Ramp", func() Source { return &rampSource{p: p} })
	return p, nil
}

// Length returns the ramp duration
func (p *Ramp) Length() (time.Duration, bool) {
	return p.cfg.Duration, true
}

// At returns the ramp rate at an elapsed offset
func (p *Ramp) At(elapsed time.Duration) float64 {
	c := p.cfg
	if elapsed >= c.Duration {
		return c.End
	}
	progress := quantize(seconds(elapsed)/seconds(c.Duration), c.Steps)
	return c.Start + progress*(c.End-c.Start)
}

type rampSource struct {
	p       *Ramp
	started bool
	ended   bool
}

func (s *rampSource) Rate(elapsed time.Duration) (float64, bool) {
	rate := s.p.At(elapsed)
	if !s.started {
		s.started = true
		s.p.emit(EventRampStart, elapsed, rate, map[string]any{"target": s.p.cfg.End})
	}
	if !s.ended && elapsed >= s.p.cfg.Duration {
		s.ended = true
		s.p.emit(EventRampEnd, elapsed, rate, nil)
	}
	return rate, true
}

// SawtoothRampConfig describes a ramp up to Peak, a sustain phase and a ramp back down to Start
type SawtoothRampConfig struct {
	Start    float64
	Peak     float64
	RampUp   time.Duration
	Sustain  time.Duration
	RampDown time.Duration
	Steps    int
}

// Validate checks the sawtooth parameters
func (c SawtoothRampConfig) Validate() error {
	if err := checkRate("start", c.Start); err != nil {
		return err
	}
	if err := checkRate("peak", c.Peak); err != nil {
		return err
	}
	if err := checkPositive("ramp up duration", c.RampUp); err != nil {
		return err
	}
	if err := checkNonNegative("sustain duration", c.Sustain); err != nil {
		return err
	}
	if err := checkPositive("ramp down duration", c.RampDown); err != nil {
		return err
	}
	if c.Steps < 0 {
		return invalid("steps cannot be negative, got %d", c.Steps)
	}
	return nil
}

// SawtoothRamp ramps up, sustains and ramps down, then holds at the start rate
type SawtoothRamp struct {
	base
	cfg SawtoothRampConfig
}

// NewSawtoothRamp creates an up-sustain-down ramp
func NewSawtoothRamp(cfg SawtoothRampConfig) (*SawtoothRamp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &SawtoothRamp{cfg: cfg}
	p.init("SawtoothRamp", func() Source { return &sawtoothSource{p: p} })
	return p, nil
}

// Length returns the combined length of the three phases
func (p *SawtoothRamp) Length() (time.Duration, bool) {
	return p.cfg.RampUp + p.cfg.Sustain + p.cfg.RampDown, true
}

// At returns the rate at an elapsed offset
func (p *SawtoothRamp) At(elapsed time.Duration) float64 {
	c := p.cfg
	switch {
	case elapsed < c.RampUp:
		progress := quantize(seconds(elapsed)/seconds(c.RampUp), c.Steps)
		return c.Start + progress*(c.Peak-c.Start)
	case elapsed < c.RampUp+c.Sustain:
		return c.Peak
	case elapsed < c.RampUp+c.Sustain+c.RampDown:
		down := elapsed - c.RampUp - c.Sustain
		progress := quantize(seconds(down)/seconds(c.RampDown), c.Steps)
		return c.Peak - progress*(c.Peak-c.Start)
	default:
		return c.Start
	}
}

const (
	phaseUp = iota
	phaseSustain
	phaseDown
	phaseDone
)

type sawtoothSource struct {
	p     *SawtoothRamp
	phase int
	begun bool
}

func (s *sawtoothSource) Rate(elapsed time.Duration) (float64, bool) {
	c := s.p.cfg
	rate := s.p.At(elapsed)

	if !s.begun {
		s.begun = true
		s.p.emit(EventRampStart, elapsed, rate, map[string]any{"phase": "up"})
	}
	if s.phase == phaseUp && elapsed >= c.RampUp {
		s.phase = phaseSustain
		s.p.emit(EventRampEnd, elapsed, rate, map[string]any{"phase": "up"})
	}
	if s.phase == phaseSustain && elapsed >= c.RampUp+c.Sustain {
		s.phase = phaseDown
		s.p.emit(EventRampStart, elapsed, rate, map[string]any{"phase": "down"})
	}
	if s.phase == phaseDown && elapsed >= c.RampUp+c.Sustain+c.RampDown {
		s.phase = phaseDone
		s.p.emit(EventRampEnd, elapsed, rate, map[string]any{"phase": "down"})
	}
	return rate, true
}

// Direction selects the order of StepLadder levels
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionUpDown Direction = "updown"
)

// StepLadderConfig describes a staircase of Steps levels held for StepDuration each
type StepLadderConfig struct {
	Start        float64
	End          float64
	Steps        int
	StepDuration time.Duration
	Direction    Direction
}

// Validate checks the ladder parameters
func (c StepLadderConfig) Validate() error {
	if err := checkRate("start", c.Start); err != nil {
		return err
	}
	if err := checkRate("end", c.End); err != nil {
		return err
	}
	if c.Steps < 1 {
		return invalid("steps must be at least 1, got %d", c.Steps)
	}
	if err := checkPositive("step duration", c.StepDuration); err != nil {
		return err
	}
	switch c.Direction {
	case DirectionUp, DirectionDown, DirectionUpDown:
		return nil
	default:
		return invalid("unknown direction %q", c.Direction)
	}
}

// StepLadder holds discrete levels in turn, then stays at the last one
type StepLadder struct {
	base
	cfg    StepLadderConfig
	levels []float64
}

// NewStepLadder creates a step ladder. An empty direction defaults to up.
func NewStepLadder(cfg StepLadderConfig) (*StepLadder, error) {
	if cfg.Direction == "" {
		cfg.Direction = DirectionUp
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &StepLadder{cfg: cfg, levels: ladderLevels(cfg)}
	p.init("StepLadder", func() Source { return &ladderSource{p: p, step: -1} })
	return p, nil
}

// Levels returns the computed level for each step
func (p *StepLadder) Levels() []float64 {
	return append([]float64(nil), p.levels...)
}

// Length returns Steps * StepDuration
func (p *StepLadder) Length() (time.Duration, bool) {
	return time.Duration(p.cfg.Steps) * p.cfg.StepDuration, true
}

func (p *StepLadder) index(elapsed time.Duration) int {
	i := int(elapsed / p.cfg.StepDuration)
	if i >= len(p.levels) {
		return len(p.levels) - 1
	}
	return i
}

func ladderLevels(c StepLadderConfig) []float64 {
	levels := make([]float64, 0, c.Steps)
	switch c.Direction {
	case DirectionUp:
		for i := 0; i < c.Steps; i++ {
			levels = append(levels, c.Start+(c.End-c.Start)*fraction(i, c.Steps-1))
		}
	case DirectionDown:
		for i := 0; i < c.Steps; i++ {
			levels = append(levels, c.End+(c.Start-c.End)*fraction(i, c.Steps-1))
		}
	case DirectionUpDown:
		// Ascend through the first half, then come back down toward the midpoint
		mid := (c.Start + c.End) / 2
		up := c.Steps / 2
		down := c.Steps - up
		for i := 0; i < up; i++ {
			levels = append(levels, c.Start+(c.End-c.Start)*fraction(i, max(up-1, 1)))
		}
		for i := 1; i <= down; i++ {
			levels = append(levels, c.End-(c.End-mid)*fraction(i, max(down-1, 1)))
		}
	}
	return levels
}

type ladderSource struct {
	p     *StepLadder
	step  int
	ended bool
}

func (s *ladderSource) Rate(elapsed time.Duration) (float64, bool) {
	i := s.p.index(elapsed)
	rate := s.p.levels[i]
	if i != s.step {
		s.step = i
		s.p.emit(EventRampStart, elapsed, rate, map[string]any{"step": i})
	}
	if total, _ := s.p.Length(); !s.ended && elapsed >= total {
		s.ended = true
		s.p.emit(EventRampEnd, elapsed, rate, map[string]any{"step": i})
	}
	return rate, true
}

// quantize snaps progress in [0,1) down to one of steps levels; steps <= 0 leaves it smooth
func quantize(progress float64, steps int) float64 {
	if steps <= 0 {
		return progress
	}
	return math.Floor(progress*float64(steps)) / float64(steps)
}

func fraction(i, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(i) / float64(n)
}
