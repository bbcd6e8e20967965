// Package metrics keeps rolling latency statistics for the pipeline tick.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the number of samples kept.
const DefaultWindow = 100

// Snapshot summarizes the current window.
type Snapshot struct {
	Samples int           `json:"samples"`
	Average time.Duration `json:"average"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
	Max     time.Duration `json:"max"`
	Total   uint64        `json:"total"`
}

// LatencyTracker holds the last N latency samples.
type LatencyTracker struct {
	mu      sync.Mutex
	window  int
	samples []time.Duration
	next    int
	total   uint64
}

// NewLatencyTracker creates a tracker keeping the last window samples.
// A non-positive window uses DefaultWindow.
func NewLatencyTracker(window int) *LatencyTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &LatencyTracker{window: window, samples: make([]time.Duration, 0, window)}
}

// Record adds one sample, evicting the oldest when full.
func (l *LatencyTracker) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total++
	if len(l.samples) < l.window {
		l.samples = append(l.samples, d)
		return
	}
	l.samples[l.next] = d
	l.next = (l.next + 1) % l.window
}

// Average returns the mean of the window, zero when empty.
func (l *LatencyTracker) Average() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return average(l.samples)
}

// Percentile returns the sample at index floor(n*p) of the sorted window,
// clamped to the last sample. p is in [0,1].
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.Lock()
	sorted := l.sortedLocked()
	l.mu.Unlock()
	return percentile(sorted, p)
}

// Len returns the number of samples in the window.
func (l *LatencyTracker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.samples)
}

// Snapshot computes every summary statistic at once.
func (l *LatencyTracker) Snapshot() Snapshot {
	l.mu.Lock()
	sorted := l.sortedLocked()
	avg := average(l.samples)
	total := l.total
	l.mu.Unlock()

	s := Snapshot{Samples: len(sorted), Average: avg, Total: total}
	if len(sorted) > 0 {
		s.P95 = percentile(sorted, 0.95)
		s.P99 = percentile(sorted, 0.99)
		s.Max = sorted[len(sorted)-1]
	}
	return s
}

// Reset drops all samples.
func (l *LatencyTracker) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = l.samples[:0]
	l.next = 0
	l.total = 0
}

func (l *LatencyTracker) sortedLocked() []time.Duration {
	out := make([]time.Duration, len(l.samples))
	copy(out, l.samples)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func average(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return sum / time.Duration(len(samples))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
