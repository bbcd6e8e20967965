package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/screen-guide/internal/log"
)

func TestEveryRunsUntilStop(t *testing.T) {
	s := New(log.Discard())
	var runs atomic.Int32

	if _, err := s.Every("count", 5*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	}); err != nil {
		t.Fatalf("Every() error = %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	s.Stop()
	after := runs.Load()
	if after == 0 {
		t.Fatal("task never ran")
	}

	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Errorf("task ran after Stop: %d -> %d", after, runs.Load())
	}
}

func TestEveryValidation(t *testing.T) {
	s := New(log.Discard())
	defer s.Stop()

	tests := []struct {
		name     string
		interval time.Duration
		wantErr  error
	}{
		{"zero", 0, ErrInvalidInterval},
		{"negative", -time.Second, ErrInvalidInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Every(tt.name, tt.interval, func(context.Context) {})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Every() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEveryAfterStop(t *testing.T) {
	s := New(log.Discard())
	s.Stop()
	s.Stop() // idempotent

	if _, err := s.Every("late", time.Millisecond, func(context.Context) {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Every() error = %v, want ErrStopped", err)
	}
	if !s.Stopped() {
		t.Error("Stopped() = false")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(log.Discard())
	var runs atomic.Int32

	task, err := s.Every("boom", 5*time.Millisecond, func(context.Context) {
		runs.Add(1)
		panic("bad frame")
	})
	if err != nil {
		t.Fatalf("Every() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if runs.Load() < 2 {
		t.Errorf("runs = %d, want the task to keep running after a panic", runs.Load())
	}
	if task.Stats().Panics == 0 {
		t.Error("Panics = 0")
	}
}

func TestTaskCancel(t *testing.T) {
	s := New(log.Discard())
	defer s.Stop()

	task, err := s.Every("once", time.Millisecond, func(context.Context) {})
	if err != nil {
		t.Fatalf("Every() error = %v", err)
	}
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not exit after Cancel")
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := s.Task("once"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cancelled task still registered")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTaskReset(t *testing.T) {
	s := New(log.Discard())
	defer s.Stop()

	task, err := s.Every("slow", time.Hour, func(context.Context) {})
	if err != nil {
		t.Fatalf("Every() error = %v", err)
	}
	if err := task.Reset(2 * time.Millisecond); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if task.Interval() != 2*time.Millisecond {
		t.Errorf("Interval() = %v", task.Interval())
	}

	deadline := time.Now().Add(time.Second)
	for task.Stats().Runs == 0 {
		if time.Now().After(deadline) {
			t.Fatal("task did not run after Reset")
		}
		time.Sleep(time.Millisecond)
	}

	if err := task.Reset(0); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("Reset(0) error = %v", err)
	}
}

func TestReplaceByName(t *testing.T) {
	s := New(log.Discard())
	defer s.Stop()

	first, _ := s.Every("tick", time.Hour, func(context.Context) {})
	second, _ := s.Every("tick", time.Hour, func(context.Context) {})

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("replaced task did not exit")
	}
	got, ok := s.Task("tick")
	if !ok || got != second {
		t.Error("Task(tick) is not the replacement")
	}
}

func TestStopCancelsContext(t *testing.T) {
	s := New(log.Discard())
	entered := make(chan struct{})
	exited := make(chan struct{})
	var once atomic.Bool

	_, err := s.Every("blocking", time.Millisecond, func(ctx context.Context) {
		if once.CompareAndSwap(false, true) {
			close(entered)
			<-ctx.Done()
			close(exited)
		}
	})
	if err != nil {
		t.Fatalf("Every() error = %v", err)
	}

	<-entered
	s.Stop()
	select {
	case <-exited:
	default:
		t.Fatal("Stop returned before the in-flight run observed cancellation")
	}
}
