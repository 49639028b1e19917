package analytics

import (
	"sync"
	"time"
)

const maxRecordedDurations = 1000

// Recorder keeps a rolling window of operation durations plus lifetime counts.
type Recorder struct {
	mu         sync.Mutex
	durations  []time.Duration
	next       int
	full       bool
	operations int64
	failures   int64
}

func NewRecorder() *Recorder {
	return &Recorder{durations: make([]time.Duration, maxRecordedDurations)}
}

func (r *Recorder) RecordOperation(duration time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.durations[r.next] = duration
	r.next = (r.next + 1) % len(r.durations)
	if r.next == 0 {
		r.full = true
	}
	r.operations++
	if !success {
		r.failures++
	}
}

// AverageResponseTime is the mean of the retained durations.
func (r *Recorder) AverageResponseTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.durations)
	}
	if n == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range r.durations[:n] {
		total += d
	}
	return total / time.Duration(n)
}

// ErrorRate is failures over operations, or 0 before any operation.
func (r *Recorder) ErrorRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.operations == 0 {
		return 0
	}
	return float64(r.failures) / float64(r.operations)
}

func (r *Recorder) OperationCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.operations
}
