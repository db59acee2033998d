package pattern

import (
	"sync"
	"time"
)

// EventType identifies a pattern lifecycle event
type EventType int

const (
	EventStart EventType = iota
	EventRampStart
	EventRampEnd
	EventSpikeStart
	EventSpikeEnd
	EventBurstStart
	EventBurstEnd
	EventStop
)

var eventNames = map[EventType]string{
	EventStart:      "start",
	EventRampStart:  "ramp_start",
	EventRampEnd:    "ramp_end",
	EventSpikeStart: "spike_start",
	EventSpikeEnd:   "spike_end",
	EventBurstStart: "burst_start",
	EventBurstEnd:   "burst_end",
	EventStop:       "stop",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is delivered to listeners registered with Pattern.On
type Event struct {
	Type     EventType
	Pattern  string
	Time     time.Time
	Elapsed  time.Duration
	Rate     float64
	Metadata map[string]any
}

// Listener receives pattern events. Returned errors and panics are discarded.
type Listener func(Event) error

// emitter fans events out to listeners. Listener errors never affect generation.
type emitter struct {
	mu        sync.RWMutex
	listeners map[EventType][]Listener
}

func (e *emitter) on(t EventType, l Listener) {
	if l == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[EventType][]Listener)
	}
	e.listeners[t] = append(e.listeners[t], l)
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	listeners := append([]Listener(nil), e.listeners[ev.Type]...)
	e.mu.RUnlock()

	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, l := range listeners {
		deliver(l, ev)
	}
}

func deliver(l Listener, ev Event) {
	defer func() {
		_ = recover()
	}()
	_ = l(ev)
}
