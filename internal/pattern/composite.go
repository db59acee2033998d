package pattern

import "time"

// Mode selects how a Composite combines its entries
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeBlend      Mode = "blend"
)

// Entry is one member of a Composite.
// In sequential mode Duration is how long the entry plays; zero means the
// pattern's natural length, or forever when it has none. In blend mode a
// positive Duration limits the window during which the entry contributes.
type Entry struct {
	Pattern  Pattern
	Duration time.Duration
}

// Composite plays patterns one after another or averages them
type Composite struct {
	base
	mode    Mode
	entries []Entry
}

// NewComposite creates a composite pattern. An empty mode defaults to sequential.
func NewComposite(mode Mode, entries ...Entry) (*Composite, error) {
	if mode == "" {
		mode = ModeSequential
	}
	if mode != ModeSequential && mode != ModeBlend {
		return nil, invalid("unknown composite mode %q", mode)
	}
	if len(entries) == 0 {
		return nil, invalid("composite needs at least one pattern")
	}
	for i, e := range entries {
		if e.Pattern == nil {
			return nil, invalid("composite entry %d has no pattern", i)
		}
		if err := checkNonNegative("entry duration", e.Duration); err != nil {
			return nil, err
		}
	}

	p := &Composite{mode: mode, entries: append([]Entry(nil), entries...)}
	p.init("Composite", func() Source {
		if p.mode == ModeBlend {
			return newBlendSource(p.entries)
		}
		return &sequentialSource{entries: p.entries}
	})
	return p, nil
}

// Mode returns the composition mode
func (p *Composite) Mode() Mode {
	return p.mode
}

// Stop ends the composite's sequences and those of every member
func (p *Composite) Stop() {
	p.base.Stop()
	for _, e := range p.entries {
		e.Pattern.Stop()
	}
}

// Length is the sum of the entry lengths in sequential mode and the longest
// entry window in blend mode. It is unbounded when any entry is.
func (p *Composite) Length() (time.Duration, bool) {
	var total time.Duration
	for _, e := range p.entries {
		var d time.Duration
		var ok bool
		if p.mode == ModeBlend {
			d, ok = e.Duration, e.Duration > 0
		} else {
			d, ok = entryLength(e)
		}
		if !ok {
			return 0, false
		}
		if p.mode == ModeBlend {
			total = max(total, d)
		} else {
			total += d
		}
	}
	return total, true
}

func entryLength(e Entry) (time.Duration, bool) {
	if e.Duration > 0 {
		return e.Duration, true
	}
	if b, ok := e.Pattern.(Bounded); ok {
		return b.Length()
	}
	return 0, false
}

type sequentialSource struct {
	entries []Entry
	index   int
	offset  time.Duration // elapsed time at which the current entry started
	current Source
}

func (s *sequentialSource) Rate(elapsed time.Duration) (float64, bool) {
	for s.index < len(s.entries) {
		e := s.entries[s.index]
		local := elapsed - s.offset
		if length, ok := entryLength(e); ok && local >= length {
			s.advance(s.offset + length)
			continue
		}
		if s.current == nil {
			s.current = e.Pattern.Source()
		}
		rate, ok := s.current.Rate(local)
		if !ok {
			s.advance(elapsed)
			continue
		}
		return rate, true
	}
	return 0, false
}

func (s *sequentialSource) advance(offset time.Duration) {
	s.index++
	s.offset = offset
	s.current = nil
}

type blendSource struct {
	entries []Entry
	sources []Source
	done    []bool
}

func newBlendSource(entries []Entry) *blendSource {
	s := &blendSource{
		entries: entries,
		sources: make([]Source, len(entries)),
		done:    make([]bool, len(entries)),
	}
	for i, e := range entries {
		s.sources[i] = e.Pattern.Source()
	}
	return s
}

func (s *blendSource) Rate(elapsed time.Duration) (float64, bool) {
	var sum float64
	var active int
	for i, e := range s.entries {
		if s.done[i] {
			continue
		}
		if e.Duration > 0 && elapsed >= e.Duration {
			s.done[i] = true
			continue
		}
		rate, ok := s.sources[i].Rate(elapsed)
		if !ok {
			s.done[i] = true
			continue
		}
		sum += clampRate(rate)
		active++
	}
	if active == 0 {
		return 0, false
	}
	return sum / float64(active), true
}
