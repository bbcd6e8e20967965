// Package scheduler owns the pipeline's repeating tasks.
//
// Every periodic loop in the pipeline (capture, orchestrator tick, behavioral
// analysis, render) is registered here, so stopping the scheduler is the one
// place that cancels all of them. Each task runs on its own goroutine and never
// overlaps itself: a run that takes longer than the interval causes the missed
// ticks to be dropped and counted as overruns.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned when registering a task on a stopped scheduler.
var ErrStopped = errors.New("scheduler: stopped")

// ErrInvalidInterval is returned for non-positive intervals.
var ErrInvalidInterval = errors.New("scheduler: interval must be positive")

// Func is the body of a repeating task. The context is cancelled when the task
// or the scheduler is stopped.
type Func func(ctx context.Context)

// Scheduler owns a set of cancellable repeating tasks.
type Scheduler struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	tasks   map[string]*Task
	wg      sync.WaitGroup
	stopped bool
	logger  *slog.Logger
}

// New creates a scheduler. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*Task),
		logger: logger.With("component", "scheduler"),
	}
}

// Every registers fn to run every interval until cancelled. Registering a name
// that already exists cancels the previous task first.
func (s *Scheduler) Every(name string, interval time.Duration, fn Func) (*Task, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s=%v", ErrInvalidInterval, name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	if prev, ok := s.tasks[name]; ok {
		prev.Cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &Task{
		name:    name,
		fn:      fn,
		ctx:     ctx,
		cancel:  cancel,
		resetCh: make(chan time.Duration, 1),
		done:    make(chan struct{}),
		logger:  s.logger.With("task", name),
	}
	t.interval.Store(int64(interval))
	s.tasks[name] = t

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t.loop()
		s.mu.Lock()
		if s.tasks[name] == t {
			delete(s.tasks, name)
		}
		s.mu.Unlock()
	}()

	s.logger.Debug("task scheduled", "task", name, "interval", interval)
	return t, nil
}

// Task returns the running task with the given name.
func (s *Scheduler) Task(name string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	return t, ok
}

// Stats returns a snapshot of every running task.
func (s *Scheduler) Stats() []TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStats, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Stats())
	}
	return out
}

// Stop cancels every task and waits for in-flight runs to return.
// It must not be called from inside a task body.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("scheduler stopped")
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Task is one repeating unit of work.
type Task struct {
	name     string
	fn       Func
	ctx      context.Context
	cancel   context.CancelFunc
	interval atomic.Int64
	resetCh  chan time.Duration
	done     chan struct{}
	logger   *slog.Logger

	runs     atomic.Int64
	overruns atomic.Int64
	panics   atomic.Int64
	lastRun  atomic.Int64 // duration of the last run, ns
}

// TaskStats is a snapshot of a task's counters.
type TaskStats struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Runs     int64         `json:"runs"`
	Overruns int64         `json:"overruns"`
	Panics   int64         `json:"panics"`
	LastRun  time.Duration `json:"last_run"`
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Interval returns the current interval.
func (t *Task) Interval() time.Duration { return time.Duration(t.interval.Load()) }

// Reset changes the interval. The next run happens one new interval from now.
func (t *Task) Reset(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s=%v", ErrInvalidInterval, t.name, interval)
	}
	t.interval.Store(int64(interval))
	// Replace any pending reset so the latest value wins.
	select {
	case <-t.resetCh:
	default:
	}
	select {
	case t.resetCh <- interval:
	default:
	}
	return nil
}

// Cancel stops the task. It does not wait for an in-flight run; use Done for that.
func (t *Task) Cancel() { t.cancel() }

// Done is closed once the task loop has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Stats returns a snapshot of the task counters.
func (t *Task) Stats() TaskStats {
	return TaskStats{
		Name:     t.name,
		Interval: t.Interval(),
		Runs:     t.runs.Load(),
		Overruns: t.overruns.Load(),
		Panics:   t.panics.Load(),
		LastRun:  time.Duration(t.lastRun.Load()),
	}
}

func (t *Task) loop() {
	defer close(t.done)

	ticker := time.NewTicker(t.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case d := <-t.resetCh:
			ticker.Reset(d)
		case <-ticker.C:
			t.runOnce()
		}
	}
}

func (t *Task) runOnce() {
	if t.ctx.Err() != nil {
		return
	}
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		t.lastRun.Store(int64(elapsed))
		t.runs.Add(1)
		if elapsed > t.Interval() {
			t.overruns.Add(1)
		}
		if r := recover(); r != nil {
			t.panics.Add(1)
			t.logger.Error("task panicked", "panic", r)
		}
	}()
	t.fn(t.ctx)
}
