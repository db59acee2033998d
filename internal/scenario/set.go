package scenario

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
)

// ErrInvalidWeight is returned when a scenario weight is negative or not a number
var ErrInvalidWeight = errors.New("invalid scenario weight")

// Entry pairs a scenario with its selection weight
type Entry struct {
	Scenario Scenario
	Weight   float64
}

// Set is an ordered list of weighted scenarios.
// Selection probability is weight / total weight. Safe for concurrent use.
type Set struct {
	mu      sync.Mutex
	entries []Entry
	total   float64
	rng     *rand.Rand
}

// NewSet creates an empty set with a randomly seeded generator
func NewSet() *Set {
	return NewSetWithSeed(rand.Uint64())
}

// NewSetWithSeed creates an empty set whose selections are reproducible
func NewSetWithSeed(seed uint64) *Set {
	return &Set{rng: rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5))}
}

// Add appends a scenario with the given weight
func (s *Set) Add(sc Scenario, weight float64) error {
	if sc == nil {
		return errors.New("scenario is nil")
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		return fmt.Errorf("%w: %v for scenario %s", ErrInvalidWeight, weight, sc.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{Scenario: sc, Weight: weight})
	s.total += weight
	return nil
}

// Entries returns a copy of the entries in insertion order
func (s *Set) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Len returns the number of entries
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// TotalWeight returns the sum of all weights
func (s *Set) TotalWeight() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Select draws a scenario by weight. It returns false for an empty set or a zero total weight.
func (s *Set) Select() (Scenario, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 || s.total <= 0 {
		return nil, false
	}

	draw := s.rng.Float64() * s.total
	var cumulative float64
	var last Scenario
	for _, e := range s.entries {
		if e.Weight == 0 {
			continue
		}
		cumulative += e.Weight
		last = e.Scenario
		if cumulative >= draw {
			return e.Scenario, true
		}
	}
	// Rounding can leave the draw just above the final prefix sum
	return last, true
}
