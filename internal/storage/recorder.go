package storage

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/studiowebux/loadtest/internal/runner"
)

// DefaultBatchSize is the number of samples written per transaction
const DefaultBatchSize = 100

// Recorder persists every observed sample of one run.
// Samples are buffered and written in batches by a single goroutine.
// Observe blocks once the buffer is full, so a database slower than the
// generated load throttles executions instead of losing samples.
type Recorder struct {
	manager   *Manager
	runID     int64
	batchSize int
	log       *zap.Logger

	samples chan runner.Sample
	done    chan struct{}

	mu      sync.RWMutex
	closed  bool
	saved   atomic.Int64
	dropped int64 // owned by collect
}

// NewRecorder starts a recorder that stores samples under runID
func NewRecorder(manager *Manager, runID int64, batchSize int, log *zap.Logger) *Recorder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{
		manager:   manager,
		runID:     runID,
		batchSize: batchSize,
		log:       log,
		samples:   make(chan runner.Sample, batchSize*2),
		done:      make(chan struct{}),
	}
	go r.collect()
	return r
}

// Observe implements runner.Observer. It waits for buffer space; samples
// arriving after Close are dropped.
func (r *Recorder) Observe(s runner.Sample) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.samples <- s
}

// Close flushes buffered samples and stops the recorder
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.samples)
	r.mu.Unlock()

	<-r.done
}

// Saved returns the number of samples written so far
func (r *Recorder) Saved() int64 {
	return r.saved.Load()
}

func (r *Recorder) collect() {
	defer close(r.done)

	buf := make([]*Sample, 0, r.batchSize)
	for s := range r.samples {
		buf = append(buf, &Sample{
			RunID:       r.runID,
			Scenario:    s.Scenario,
			ScheduledAt: s.Scheduled,
			ElapsedMs:   float64(s.Elapsed.Microseconds()) / 1000,
			QueueWaitMs: float64(s.QueueWait.Microseconds()) / 1000,
			Success:     s.Success,
			StatusCode:  s.StatusCode,
			Detail:      s.Detail,
		})
		if len(buf) >= r.batchSize {
			buf = r.flush(buf)
		}
	}
	r.flush(buf)

	if r.dropped > 0 {
		r.log.Warn("samples could not be saved", zap.Int64("dropped", r.dropped))
	}
}

func (r *Recorder) flush(buf []*Sample) []*Sample {
	if len(buf) == 0 {
		return buf
	}

	// A failed batch is logged and dropped; the run continues
	if err := r.manager.SaveSamplesBatch(buf); err != nil {
		r.log.Error("failed to save samples", zap.Error(err), zap.Int("count", len(buf)))
		r.dropped += int64(len(buf))
	} else {
		r.saved.Add(int64(len(buf)))
	}
	return buf[:0]
}
