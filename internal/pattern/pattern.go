package pattern

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultInterval is the cadence at which a Sequence produces samples
const DefaultInterval = 100 * time.Millisecond

// ErrInvalidConfig is wrapped by every constructor validation error
var ErrInvalidConfig = errors.New("invalid pattern configuration")

// Source computes the target rate for an elapsed offset since generation start.
// A Source holds the per-run state of a pattern, is used by a single consumer and
// is always called with non-decreasing offsets. ok is false once the source is exhausted.
type Source interface {
	Rate(elapsed time.Duration) (rate float64, ok bool)
}

// Pattern produces a time-varying target rate in requests per second
type Pattern interface {
	Name() string
	// Source returns fresh per-run state with its phase at t=0
	Source() Source
	// Generate starts a new rate sequence from now
	Generate() *Sequence
	// Stop ends every sequence generated so far within one cadence tick
	Stop()
	// On registers a lifecycle event listener
	On(t EventType, l Listener)
}

// Bounded is implemented by patterns with a natural length.
// Sequential composites use it for entries without an explicit duration.
type Bounded interface {
	Length() (time.Duration, bool)
}

// SourceFunc adapts a stateless rate function to the Source interface
type SourceFunc func(elapsed time.Duration) float64

// Rate implements Source
func (f SourceFunc) Rate(elapsed time.Duration) (float64, bool) {
	return f(elapsed), true
}

// base carries the name, listeners and stop signal shared by every pattern
type base struct {
	name      string
	events    emitter
	newSource func() Source

	mu   sync.Mutex
	stop chan struct{}
}

func (b *base) init(name string, newSource func() Source) {
	b.name = name
	b.newSource = newSource
}

// Name returns the pattern name
func (b *base) Name() string {
	return b.name
}

// Source returns fresh per-run state
func (b *base) Source() Source {
	return b.newSource()
}

// On registers a listener for an event type
func (b *base) On(t EventType, l Listener) {
	b.events.on(t, l)
}

// Generate starts a new sequence with its phase reset to t=0
func (b *base) Generate() *Sequence {
	return &Sequence{
		owner:    b,
		source:   b.newSource(),
		stop:     b.stopSignal(),
		interval: DefaultInterval,
	}
}

// Stop terminates all sequences generated before the call
func (b *base) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		close(b.stop)
		b.stop = nil
	}
}

func (b *base) stopSignal() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop == nil {
		b.stop = make(chan struct{})
	}
	return b.stop
}

func (b *base) emit(t EventType, elapsed time.Duration, rate float64, metadata map[string]any) {
	b.events.emit(Event{
		Type:     t,
		Pattern:  b.name,
		Elapsed:  elapsed,
		Rate:     rate,
		Metadata: metadata,
	})
}

// Sequence is a pull-based iterator over the rates of one pattern run.
// It is not safe for concurrent use; Stop on the owning pattern is.
type Sequence struct {
	owner    *base
	source   Source
	stop     <-chan struct{}
	interval time.Duration

	start   time.Time
	next    time.Time
	last    float64
	started bool
	done    bool
}

// Every sets the sampling cadence. It has no effect once sampling started.
func (s *Sequence) Every(interval time.Duration) *Sequence {
	if interval > 0 && !s.started {
		s.interval = interval
	}
	return s
}

// Interval returns the sampling cadence
func (s *Sequence) Interval() time.Duration {
	return s.interval
}

// Next blocks until the next cadence tick and returns the target rate for it.
// The first call returns immediately. ok is false when the pattern was stopped,
// ctx is done or the pattern is exhausted; the sequence never restarts after that.
func (s *Sequence) Next(ctx context.Context) (rate float64, ok bool) {
	if s.done {
		return 0, false
	}

	if !s.started {
		if s.halted(ctx) {
			return s.finish()
		}
		s.started = true
		s.start = time.Now()
		s.next = s.start.Add(s.interval)
		s.owner.emit(EventStart, 0, 0, nil)
		return s.sample(0)
	}

	if wait := time.Until(s.next); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return s.finish()
		case <-s.stop:
			return s.finish()
		case <-timer.C:
		}
	} else if s.halted(ctx) {
		return s.finish()
	}

	now := time.Now()
	s.next = s.next.Add(s.interval)
	if s.next.Before(now) {
		// Drop ticks the consumer was too slow to take
		s.next = now.Add(s.interval)
	}
	return s.sample(now.Sub(s.start))
}

func (s *Sequence) sample(elapsed time.Duration) (float64, bool) {
	rate, ok := s.source.Rate(elapsed)
	if !ok {
		return s.finish()
	}
	s.last = clampRate(rate)
	return s.last, true
}

func (s *Sequence) halted(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Sequence) finish() (float64, bool) {
	if !s.done {
		s.done = true
		var elapsed time.Duration
		if s.started {
			elapsed = time.Since(s.start)
		}
		s.owner.emit(EventStop, elapsed, s.last, nil)
	}
	return 0, false
}

// clampRate floors negative and non-finite rates at zero
func clampRate(rate float64) float64 {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return 0
	}
	return rate
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func checkRate(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return invalid("%s must be a non-negative number, got %v", name, v)
	}
	return nil
}

func checkPositive(name string, d time.Duration) error {
	if d <= 0 {
		return invalid("%s must be positive, got %s", name, d)
	}
	return nil
}

func checkNonNegative(name string, d time.Duration) error {
	if d < 0 {
		return invalid("%s cannot be negative, got %s", name, d)
	}
	return nil
}

func checkFraction(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return invalid("%s must be between 0 and 1, got %v", name, v)
	}
	return nil
}
