package metrics

import (
	"testing"
	"time"
)

func TestLatencyPercentiles(t *testing.T) {
	l := NewLatencyTracker(0)
	// Record 10ms..1000ms in reverse to make sure order does not matter.
	for i := 100; i >= 1; i-- {
		l.Record(time.Duration(i*10) * time.Millisecond)
	}

	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 10 * time.Millisecond},
		{0.5, 510 * time.Millisecond},
		{0.95, 960 * time.Millisecond},
		{0.99, 1000 * time.Millisecond},
		{1, 1000 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := l.Percentile(tt.p); got != tt.want {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	s := l.Snapshot()
	if s.Samples != 100 || s.P95 != 960*time.Millisecond || s.P99 != time.Second || s.Max != time.Second {
		t.Errorf("Snapshot() = %+v", s)
	}
	if s.Average != 505*time.Millisecond {
		t.Errorf("Average = %v, want 505ms", s.Average)
	}
}

func TestLatencyWindowEvicts(t *testing.T) {
	l := NewLatencyTracker(3)
	for _, ms := range []int{100, 100, 100, 1, 2, 3} {
		l.Record(time.Duration(ms) * time.Millisecond)
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if got := l.Average(); got != 2*time.Millisecond {
		t.Errorf("Average() = %v, want 2ms", got)
	}
	if got := l.Snapshot().Total; got != 6 {
		t.Errorf("Total = %d, want 6", got)
	}
}

func TestLatencyEmpty(t *testing.T) {
	l := NewLatencyTracker(10)
	if l.Average() != 0 || l.Percentile(0.95) != 0 {
		t.Error("empty tracker returned non-zero stats")
	}
	l.Record(time.Millisecond)
	l.Reset()
	if s := l.Snapshot(); s.Samples != 0 || s.Total != 0 {
		t.Errorf("Snapshot() after Reset = %+v", s)
	}
}
