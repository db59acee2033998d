package pattern

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func rateAt(t *testing.T, src Source, elapsed time.Duration) float64 {
	t.Helper()
	rate, ok := src.Rate(elapsed)
	if !ok {
		t.Fatalf("Source exhausted at %s", elapsed)
	}
	return rate
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRamp_MonotonicAndHoldsAtEnd(t *testing.T) {
	p, err := NewRamp(RampConfig{Start: 10, End: 100, Duration: 60 * time.Second})
	if err != nil {
		t.Fatalf("NewRamp failed: %v", err)
	}
	src := p.Source()

	prev := -1.0
	for i := 0; i <= 600; i++ {
		rate := rateAt(t, src, ms(i*100))
		if rate < prev {
			t.Fatalf("Rate decreased at %s: %v < %v", ms(i*100), rate, prev)
		}
		prev = rate
	}
	for i := 600; i <= 1200; i += 7 {
		if rate := rateAt(t, src, ms(i*100)); rate != 100 {
			t.Fatalf("Expected end rate 100 at %s, got %v", ms(i*100), rate)
		}
	}
}

func TestRamp_Steps(t *testing.T) {
	p, err := NewRamp(RampConfig{Start: 0, End: 100, Duration: 10 * time.Second, Steps: 4})
	if err != nil {
		t.Fatalf("NewRamp failed: %v", err)
	}

	tests := []struct {
		at       time.Duration
		expected float64
	}{
		{0, 0},
		{time.Second, 0},
		{2500 * time.Millisecond, 25},
		{5 * time.Second, 50},
		{9900 * time.Millisecond, 75},
		{10 * time.Second, 100},
	}
	for _, tt := range tests {
		if got := p.At(tt.at); !approx(got, tt.expected) {
			t.Errorf("At(%s) = %v, expected %v", tt.at, got, tt.expected)
		}
	}
}

func TestRamp_Events(t *testing.T) {
	p, err := NewRamp(RampConfig{Start: 1, End: 2, Duration: time.Second})
	if err != nil {
		t.Fatalf("NewRamp failed: %v", err)
	}
	var starts, ends int
	p.On(EventRampStart, func(Event) error { starts++; return nil })
	p.On(EventRampEnd, func(Event) error { ends++; return nil })

	src := p.Source()
	for i := 0; i <= 20; i++ {
		src.Rate(ms(i * 100))
	}
	if starts != 1 || ends != 1 {
		t.Errorf("Expected one ramp start and end, got %d and %d", starts, ends)
	}
}

func TestSawtoothRamp(t *testing.T) {
	p, err := NewSawtoothRamp(SawtoothRampConfig{
		Start:    10,
		Peak:     50,
		RampUp:   4 * time.Second,
		Sustain:  2 * time.Second,
		RampDown: 4 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSawtoothRamp failed: %v", err)
	}

	tests := []struct {
		at       time.Duration
		expected float64
	}{
		{0, 10},
		{2 * time.Second, 30},
		{4 * time.Second, 50},
		{5 * time.Second, 50},
		{8 * time.Second, 30},
		{10 * time.Second, 10},
		{time.Minute, 10},
	}
	for _, tt := range tests {
		if got := p.At(tt.at); !approx(got, tt.expected) {
			t.Errorf("At(%s) = %v, expected %v", tt.at, got, tt.expected)
		}
	}
	if length, ok := p.Length(); !ok || length != 10*time.Second {
		t.Errorf("Expected length 10s, got %s (%v)", length, ok)
	}
}

func TestVariable_Waveforms(t *testing.T) {
	tests := []struct {
		waveform Waveform
		at       time.Duration
		expected float64
	}{
		{WaveSine, 0, 50},
		{WaveSine, 2500 * time.Millisecond, 100},
		{WaveSine, 7500 * time.Millisecond, 0},
		{WaveSquare, time.Second, 100},
		{WaveSquare, 6 * time.Second, 0},
		{WaveSawtooth, 0, 0},
		{WaveSawtooth, 5 * time.Second, 50},
		{WaveSawtooth, 12500 * time.Millisecond, 25},
	}
	for _, tt := range tests {
		p, err := NewVariable(VariableConfig{Min: 0, Max: 100, Period: 10 * time.Second, Waveform: tt.waveform})
		if err != nil {
			t.Fatalf("NewVariable failed: %v", err)
		}
		if got := rateAt(t, p.Source(), tt.at); math.Abs(got-tt.expected) > 1e-6 {
			t.Errorf("%s at %s = %v, expected %v", tt.waveform, tt.at, got, tt.expected)
		}
	}
}

func TestStepLadder_Levels(t *testing.T) {
	tests := []struct {
		direction Direction
		expected  []float64
	}{
		{DirectionUp, []float64{10, 40, 70, 100}},
		{DirectionDown, []float64{100, 70, 40, 10}},
		{DirectionUpDown, []float64{10, 100, 55, 10}},
	}
	for _, tt := range tests {
		t.Run(string(tt.direction), func(t *testing.T) {
			p, err := NewStepLadder(StepLadderConfig{
				Start:        10,
				End:          100,
				Steps:        4,
				StepDuration: time.Second,
				Direction:    tt.direction,
			})
			if err != nil {
				t.Fatalf("NewStepLadder failed: %v", err)
			}
			levels := p.Levels()
			if len(levels) != len(tt.expected) {
				t.Fatalf("Expected %d levels, got %v", len(tt.expected), levels)
			}
			for i, want := range tt.expected {
				if !approx(levels[i], want) {
					t.Errorf("Level %d = %v, expected %v", i, levels[i], want)
				}
			}

			src := p.Source()
			if got := rateAt(t, src, 1500*time.Millisecond); !approx(got, tt.expected[1]) {
				t.Errorf("Expected second level at 1.5s, got %v", got)
			}
			if got := rateAt(t, src, time.Hour); !approx(got, tt.expected[3]) {
				t.Errorf("Expected last level after the ladder, got %v", got)
			}
		})
	}
}

func TestStepLadder_SingleStep(t *testing.T) {
	p, err := NewStepLadder(StepLadderConfig{Start: 5, End: 50, Steps: 1, StepDuration: time.Second})
	if err != nil {
		t.Fatalf("NewStepLadder failed: %v", err)
	}
	if levels := p.Levels(); len(levels) != 1 || levels[0] != 5 {
		t.Errorf("Expected a single level of 5, got %v", levels)
	}
}

func TestSpike_WindowsAndCount(t *testing.T) {
	p, err := NewSpike(SpikeConfig{
		Baseline:      10,
		SpikeRate:     100,
		SpikeDuration: time.Second,
		Interval:      5 * time.Second,
		Count:         2,
	})
	if err != nil {
		t.Fatalf("NewSpike failed: %v", err)
	}
	var starts, ends int
	p.On(EventSpikeStart, func(Event) error { starts++; return nil })
	p.On(EventSpikeEnd, func(Event) error { ends++; return nil })

	src := p.Source()
	tests := []struct {
		at       time.Duration
		expected float64
	}{
		{0, 10},
		{4900 * time.Millisecond, 10},
		{5 * time.Second, 100},
		{5900 * time.Millisecond, 100},
		{6 * time.Second, 10},
		{11500 * time.Millisecond, 100},
		{12 * time.Second, 10},
		{17500 * time.Millisecond, 10},
		{time.Hour, 10},
	}
	for _, tt := range tests {
		if got := rateAt(t, src, tt.at); got != tt.expected {
			t.Errorf("Rate(%s) = %v, expected %v", tt.at, got, tt.expected)
		}
	}
	if starts != 2 || ends != 2 {
		t.Errorf("Expected 2 spike starts and ends, got %d and %d", starts, ends)
	}
}

func TestSpike_JitterStaysInRange(t *testing.T) {
	p, err := NewSpike(SpikeConfig{
		Baseline:      0,
		SpikeRate:     1,
		SpikeDuration: 100 * time.Millisecond,
		Interval:      time.Second,
		Jitter:        0.5,
		Seed:          7,
	})
	if err != nil {
		t.Fatalf("NewSpike failed: %v", err)
	}

	var starts []time.Duration
	p.On(EventSpikeStart, func(ev Event) error { starts = append(starts, ev.Elapsed); return nil })

	src := p.Source()
	for i := 0; i <= 3000; i++ {
		src.Rate(ms(i * 10))
	}
	if len(starts) < 2 {
		t.Fatalf("Expected several spikes, got %d", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		gap := starts[i] - starts[i-1] - 100*time.Millisecond
		if gap < 490*time.Millisecond || gap > 1510*time.Millisecond {
			t.Errorf("Spike gap %s outside jitter range", gap)
		}
	}
}

func TestBurst(t *testing.T) {
	final := 5.0
	tests := []struct {
		name  string
		final *float64
		after float64
	}{
		{"default final", nil, 10},
		{"explicit final", &final, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewBurst(BurstConfig{
				Initial:       10,
				BurstRate:     500,
				BurstDuration: 2 * time.Second,
				Delay:         3 * time.Second,
				Final:         tt.final,
			})
			if err != nil {
				t.Fatalf("NewBurst failed: %v", err)
			}
			var events []EventType
			p.On(EventBurstStart, func(ev Event) error { events = append(events, ev.Type); return nil })
			p.On(EventBurstEnd, func(ev Event) error { events = append(events, ev.Type); return nil })

			src := p.Source()
			if got := rateAt(t, src, time.Second); got != 10 {
				t.Errorf("Expected initial rate before delay, got %v", got)
			}
			if got := rateAt(t, src, 4*time.Second); got != 500 {
				t.Errorf("Expected burst rate, got %v", got)
			}
			if got := rateAt(t, src, 6*time.Second); got != tt.after {
				t.Errorf("Expected final rate %v, got %v", tt.after, got)
			}
			if len(events) != 2 || events[0] != EventBurstStart || events[1] != EventBurstEnd {
				t.Errorf("Unexpected burst events: %v", events)
			}
		})
	}
}

func TestSteadyState_JitterBounds(t *testing.T) {
	for _, dist := range []Distribution{DistUniform, DistGaussian} {
		t.Run(string(dist), func(t *testing.T) {
			p, err := NewSteadyState(SteadyStateConfig{Target: 100, Jitter: 0.2, Distribution: dist})
			if err != nil {
				t.Fatalf("NewSteadyState failed: %v", err)
			}
			src := p.Source()
			varied := false
			for i := 0; i < 1000; i++ {
				rate := rateAt(t, src, ms(i*100))
				if rate < 80-1e-9 || rate > 120+1e-9 {
					t.Fatalf("Rate %v outside [80, 120]", rate)
				}
				if rate != 100 {
					varied = true
				}
			}
			if !varied {
				t.Error("Expected jitter to vary the rate")
			}
		})
	}

	p, err := NewSteadyState(SteadyStateConfig{Target: 100})
	if err != nil {
		t.Fatalf("NewSteadyState failed: %v", err)
	}
	src := p.Source()
	for i := 0; i < 1000; i++ {
		if rate := rateAt(t, src, ms(i*100)); rate != 100 {
			t.Fatalf("Expected exactly 100 without jitter, got %v", rate)
		}
	}
}

func TestChaos_BoundsAndHold(t *testing.T) {
	for _, dist := range []Distribution{DistUniform, DistGaussian, DistExponential} {
		t.Run(string(dist), func(t *testing.T) {
			p, err := NewChaos(ChaosConfig{
				Min:            20,
				Max:            80,
				ChangeInterval: time.Second,
				Distribution:   dist,
				Seed:           42,
			})
			if err != nil {
				t.Fatalf("NewChaos failed: %v", err)
			}
			src := p.Source()
			first := rateAt(t, src, 0)
			if held := rateAt(t, src, 900*time.Millisecond); held != first {
				t.Errorf("Expected rate held between changes, got %v then %v", first, held)
			}
			for i := 1; i <= 500; i++ {
				rate := rateAt(t, src, time.Duration(i)*time.Second)
				if rate < 20 || rate > 80 {
					t.Fatalf("Rate %v outside [20, 80]", rate)
				}
			}
		})
	}
}

func TestSeed_ReplaysSequence(t *testing.T) {
	p, err := NewChaos(ChaosConfig{Min: 0, Max: 100, ChangeInterval: time.Second, Seed: 9})
	if err != nil {
		t.Fatalf("NewChaos failed: %v", err)
	}
	a, b := p.Source(), p.Source()
	for i := 0; i < 50; i++ {
		at := time.Duration(i) * time.Second
		if ra, rb := rateAt(t, a, at), rateAt(t, b, at); ra != rb {
			t.Fatalf("Seeded sources diverged at %s: %v != %v", at, ra, rb)
		}
	}
}

func TestCustomCurve(t *testing.T) {
	p, err := NewCustomCurve(func(t float64) float64 { return t * 10 }, 5*time.Second)
	if err != nil {
		t.Fatalf("NewCustomCurve failed: %v", err)
	}
	src := p.Source()
	if got := rateAt(t, src, 2*time.Second); got != 20 {
		t.Errorf("Expected 20 at 2s, got %v", got)
	}
	if got := rateAt(t, src, time.Minute); got != 50 {
		t.Errorf("Expected curve frozen at 50, got %v", got)
	}

	if _, err := NewCustomCurve(nil, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for nil curve, got %v", err)
	}
}

func TestPiecewiseLinear(t *testing.T) {
	fn, err := PiecewiseLinear([]Point{{T: 10, Rate: 100}, {T: 0, Rate: 0}, {T: 20, Rate: 50}})
	if err != nil {
		t.Fatalf("PiecewiseLinear failed: %v", err)
	}
	tests := []struct {
		t        float64
		expected float64
	}{
		{0, 0},
		{5, 50},
		{10, 100},
		{15, 75},
		{30, 50},
	}
	for _, tt := range tests {
		if got := fn(tt.t); !approx(got, tt.expected) {
			t.Errorf("fn(%v) = %v, expected %v", tt.t, got, tt.expected)
		}
	}

	if _, err := PiecewiseLinear(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for empty points, got %v", err)
	}
	if _, err := PiecewiseLinear([]Point{{T: 1, Rate: 1}, {T: 1, Rate: 2}}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for duplicate points, got %v", err)
	}
}

func TestComposite_Sequential(t *testing.T) {
	constant, _ := NewConstant(5)
	ramp, _ := NewRamp(RampConfig{Start: 0, End: 10, Duration: 2 * time.Second})
	p, err := NewComposite(ModeSequential,
		Entry{Pattern: constant, Duration: time.Second},
		Entry{Pattern: ramp},
	)
	if err != nil {
		t.Fatalf("NewComposite failed: %v", err)
	}
	if length, ok := p.Length(); !ok || length != 3*time.Second {
		t.Errorf("Expected length 3s, got %s (%v)", length, ok)
	}

	src := p.Source()
	if got := rateAt(t, src, 500*time.Millisecond); got != 5 {
		t.Errorf("Expected first segment rate 5, got %v", got)
	}
	if got := rateAt(t, src, time.Second); got != 0 {
		t.Errorf("Expected ramp to restart at 0, got %v", got)
	}
	if got := rateAt(t, src, 2*time.Second); !approx(got, 5) {
		t.Errorf("Expected ramp midpoint 5, got %v", got)
	}
	if _, ok := src.Rate(3 * time.Second); ok {
		t.Error("Expected composite to be exhausted after its last segment")
	}
}

func TestComposite_Blend(t *testing.T) {
	low, _ := NewConstant(10)
	high, _ := NewConstant(20)
	p, err := NewComposite(ModeBlend,
		Entry{Pattern: low, Duration: 2 * time.Second},
		Entry{Pattern: high, Duration: time.Second},
	)
	if err != nil {
		t.Fatalf("NewComposite failed: %v", err)
	}

	src := p.Source()
	if got := rateAt(t, src, 0); got != 15 {
		t.Errorf("Expected blended rate 15, got %v", got)
	}
	if got := rateAt(t, src, 1500*time.Millisecond); got != 10 {
		t.Errorf("Expected only the low entry after 1s, got %v", got)
	}
	if _, ok := src.Rate(2 * time.Second); ok {
		t.Error("Expected blend to be exhausted with no active entries")
	}
}

func TestValidation(t *testing.T) {
	constant, _ := NewConstant(1)
	tests := []struct {
		name  string
		build func() error
	}{
		{"negative constant", func() error { _, err := NewConstant(-1); return err }},
		{"NaN constant", func() error { _, err := NewConstant(math.NaN()); return err }},
		{"min above max", func() error {
			_, err := NewVariable(VariableConfig{Min: 10, Max: 5, Period: time.Second})
			return err
		}},
		{"zero period", func() error {
			_, err := NewVariable(VariableConfig{Min: 1, Max: 5})
			return err
		}},
		{"unknown waveform", func() error {
			_, err := NewVariable(VariableConfig{Min: 1, Max: 5, Period: time.Second, Waveform: "triangle"})
			return err
		}},
		{"zero ramp duration", func() error {
			_, err := NewRamp(RampConfig{Start: 1, End: 2})
			return err
		}},
		{"negative ramp end", func() error {
			_, err := NewRamp(RampConfig{Start: 1, End: -2, Duration: time.Second})
			return err
		}},
		{"zero ramp down", func() error {
			_, err := NewSawtoothRamp(SawtoothRampConfig{Start: 1, Peak: 2, RampUp: time.Second})
			return err
		}},
		{"jitter above one", func() error {
			_, err := NewSteadyState(SteadyStateConfig{Target: 10, Jitter: 1.5})
			return err
		}},
		{"unknown jitter distribution", func() error {
			_, err := NewSteadyState(SteadyStateConfig{Target: 10, Distribution: DistExponential})
			return err
		}},
		{"zero steps", func() error {
			_, err := NewStepLadder(StepLadderConfig{Start: 1, End: 2, StepDuration: time.Second})
			return err
		}},
		{"unknown direction", func() error {
			_, err := NewStepLadder(StepLadderConfig{Start: 1, End: 2, Steps: 2, StepDuration: time.Second, Direction: "sideways"})
			return err
		}},
		{"zero spike interval", func() error {
			_, err := NewSpike(SpikeConfig{Baseline: 1, SpikeRate: 2, SpikeDuration: time.Second})
			return err
		}},
		{"negative burst delay", func() error {
			_, err := NewBurst(BurstConfig{Initial: 1, BurstRate: 2, BurstDuration: time.Second, Delay: -time.Second})
			return err
		}},
		{"zero chaos interval", func() error {
			_, err := NewChaos(ChaosConfig{Min: 1, Max: 2})
			return err
		}},
		{"unknown chaos distribution", func() error {
			_, err := NewChaos(ChaosConfig{Min: 1, Max: 2, ChangeInterval: time.Second, Distribution: "poisson"})
			return err
		}},
		{"empty composite", func() error { _, err := NewComposite(ModeSequential); return err }},
		{"unknown composite mode", func() error {
			_, err := NewComposite("interleave", Entry{Pattern: constant})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.build(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestGenerate_RestartResetsPhase(t *testing.T) {
	ramp, _ := NewRamp(RampConfig{Start: 10, End: 100, Duration: time.Minute})
	steady, _ := NewSteadyState(SteadyStateConfig{Target: 50, Jitter: 0.3, Seed: 3})
	chaos, _ := NewChaos(ChaosConfig{Min: 1, Max: 99, ChangeInterval: time.Second, Seed: 3})

	ctx := context.Background()
	for _, p := range []Pattern{ramp, steady, chaos} {
		first, ok := p.Generate().Next(ctx)
		if !ok {
			t.Fatalf("%s: expected a first sample", p.Name())
		}
		second, ok := p.Generate().Next(ctx)
		if !ok {
			t.Fatalf("%s: expected a first sample after restart", p.Name())
		}
		if first != second {
			t.Errorf("%s: first samples differ across restarts: %v != %v", p.Name(), first, second)
		}
	}
}

func TestSequence_StopEndsPromptly(t *testing.T) {
	p, _ := NewConstant(10)
	seq := p.Generate().Every(20 * time.Millisecond)
	ctx := context.Background()

	if _, ok := seq.Next(ctx); !ok {
		t.Fatal("Expected a first sample")
	}

	var stoppedAt atomic.Int64
	go func() {
		time.Sleep(60 * time.Millisecond)
		stoppedAt.Store(time.Now().UnixNano())
		p.Stop()
	}()

	samples := 1
	for {
		if _, ok := seq.Next(ctx); !ok {
			break
		}
		samples++
		if samples > 1000 {
			t.Fatal("Sequence did not stop")
		}
	}
	lag := time.Since(time.Unix(0, stoppedAt.Load()))
	if lag > 200*time.Millisecond {
		t.Errorf("Sequence took %s to stop", lag)
	}
	if _, ok := seq.Next(ctx); ok {
		t.Error("Stopped sequence must not resume")
	}

	// A fresh Generate after Stop runs again
	if _, ok := p.Generate().Next(ctx); !ok {
		t.Error("Expected a new sequence after Stop")
	}
}

func TestSequence_ContextCancel(t *testing.T) {
	p, _ := NewConstant(10)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	seq := p.Generate().Every(10 * time.Millisecond)
	start := time.Now()
	for {
		if _, ok := seq.Next(ctx); !ok {
			break
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Sequence ignored context cancellation for %s", elapsed)
	}
}

func TestSequence_EndsWhenExhausted(t *testing.T) {
	constant, _ := NewConstant(3)
	p, _ := NewComposite(ModeSequential, Entry{Pattern: constant, Duration: 50 * time.Millisecond})

	seq := p.Generate().Every(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	samples := 0
	for {
		rate, ok := seq.Next(ctx)
		if !ok {
			break
		}
		if rate != 3 {
			t.Errorf("Expected rate 3, got %v", rate)
		}
		samples++
	}
	if ctx.Err() != nil {
		t.Fatal("Sequence ran until the context deadline instead of ending")
	}
	if samples == 0 {
		t.Error("Expected at least one sample")
	}
}

func TestSequence_ClampsInvalidRates(t *testing.T) {
	ctx := context.Background()
	for _, v := range []float64{-5, math.NaN(), math.Inf(1)} {
		p, _ := NewCustomCurve(func(float64) float64 { return v }, 0)
		rate, ok := p.Generate().Next(ctx)
		if !ok || rate != 0 {
			t.Errorf("Expected %v to clamp to 0, got %v (%v)", v, rate, ok)
		}
	}
}

func TestListenerErrorsDoNotAffectGeneration(t *testing.T) {
	p, _ := NewConstant(7)
	var stops int
	p.On(EventStart, func(Event) error { panic("listener exploded") })
	p.On(EventStart, func(Event) error { return errors.New("listener failed") })
	p.On(EventStop, func(ev Event) error {
		stops++
		if ev.Pattern != "Constant" {
			t.Errorf("Unexpected pattern name %q", ev.Pattern)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	seq := p.Generate()
	rate, ok := seq.Next(ctx)
	if !ok || rate != 7 {
		t.Fatalf("Expected 7, got %v (%v)", rate, ok)
	}
	cancel()
	if _, ok := seq.Next(ctx); ok {
		t.Fatal("Expected sequence to end after cancel")
	}
	if stops != 1 {
		t.Errorf("Expected one stop event, got %d", stops)
	}
}
