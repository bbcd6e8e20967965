package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/screen-guide/pkg/clock"
	"github.com/teslashibe/screen-guide/pkg/debug"
	"github.com/teslashibe/screen-guide/pkg/scheduler"
)

// TaskName is the scheduler name of the render loop.
const TaskName = "overlay.render"

// DefaultFPS is the render loop rate.
const DefaultFPS = 60

// TrianglesPerTarget is the geometry cost of one highlight.
const TrianglesPerTarget = 64

// ErrDisposed is returned by operations on a disposed renderer.
var ErrDisposed = errors.New("overlay: renderer disposed")

// Stats describes the last rendered frame.
type Stats struct {
	FPS       float64       `json:"fps"`
	FrameTime time.Duration `json:"frame_time"`
	DrawCalls int           `json:"draw_calls"`
	Triangles int           `json:"triangles"`
	Frames    uint64        `json:"frames"`
	Errors    uint64        `json:"errors"`
}

// Renderer owns the active target list and redraws it on its own loop.
type Renderer struct {
	surface Surface
	clock   clock.Clock
	logger  *slog.Logger
	fps     int

	mu        sync.RWMutex
	targets   []Target
	stats     Stats
	lastFrame time.Time
	task      *scheduler.Task
	disposed  bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock sets the clock used for frame timing.
func WithClock(c clock.Clock) Option {
	return func(r *Renderer) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// WithFPS sets the render rate.
func WithFPS(fps int) Option {
	return func(r *Renderer) {
		if fps > 0 {
			r.fps = fps
		}
	}
}

// NewRenderer creates a renderer drawing to surface. A nil surface uses a
// NullSurface.
func NewRenderer(surface Surface, opts ...Option) *Renderer {
	if surface == nil {
		surface = &NullSurface{}
	}
	r := &Renderer{
		surface: surface,
		clock:   clock.Real{},
		logger:  slog.Default(),
		fps:     DefaultFPS,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "overlay")
	return r
}

// Surface returns the drawing backend.
func (r *Renderer) Surface() Surface { return r.surface }

// Start schedules the render loop. Starting a running renderer is a no-op.
func (r *Renderer) Start(sched *scheduler.Scheduler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrDisposed
	}
	if r.task != nil {
		return nil
	}
	task, err := sched.Every(TaskName, time.Second/time.Duration(r.fps), r.RenderTick)
	if err != nil {
		return fmt.Errorf("overlay: schedule render: %w", err)
	}
	r.task = task
	return nil
}

// Stop cancels the render loop. Targets are kept.
func (r *Renderer) Stop() {
	r.mu.Lock()
	task := r.task
	r.task = nil
	r.mu.Unlock()
	if task != nil {
		task.Cancel()
		<-task.Done()
	}
}

// Dispose stops rendering, drops all targets and releases the surface.
func (r *Renderer) Dispose() error {
	r.Stop()
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	r.disposed = true
	r.targets = nil
	r.mu.Unlock()
	return r.surface.Close()
}

// AddTarget adds a highlight. A target with the same label replaces the
// existing one.
func (r *Renderer) AddTarget(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	for i := range r.targets {
		if r.targets[i].Label == t.Label {
			r.targets[i] = t
			return
		}
	}
	r.targets = append(r.targets, t)
}

// RemoveTarget removes the target with the given label, reporting whether
// one existed.
func (r *Renderer) RemoveTarget(label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.targets {
		if r.targets[i].Label == label {
			r.targets = append(r.targets[:i], r.targets[i+1:]...)
			return true
		}
	}
	return false
}

// ClearAll removes every target.
func (r *Renderer) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = nil
}

// Targets returns a snapshot of the active targets.
func (r *Renderer) Targets() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Target, len(r.targets))
	copy(out, r.targets)
	return out
}

// HitTest returns the highest-priority target containing (x, y).
func (r *Renderer) HitTest(x, y float64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := -1
	for i, t := range r.targets {
		if !t.Contains(x, y) {
			continue
		}
		if best < 0 || t.Priority > r.targets[best].Priority {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return r.targets[best].Label, true
}

// Stats returns a snapshot of the render statistics.
func (r *Renderer) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// RenderTick draws one frame of the current target list. An empty list
// clears the surface and presents nothing else.
func (r *Renderer) RenderTick(_ context.Context) {
	targets := r.Targets()

	now := r.clock.Now()
	drawCalls, err := r.draw(targets)
	elapsed := r.clock.Now().Sub(now)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lastFrame.IsZero() {
		if delta := now.Sub(r.lastFrame); delta > 0 {
			r.stats.FPS = float64(time.Second) / float64(delta)
		}
	}
	r.lastFrame = now
	r.stats.FrameTime = elapsed
	r.stats.DrawCalls = drawCalls
	r.stats.Triangles = drawCalls * TrianglesPerTarget
	r.stats.Frames++
	if err != nil {
		r.stats.Errors++
		if r.stats.Errors == 1 {
			r.logger.Warn("render failed", "error", err)
		}
		return
	}
	debug.Log("overlay frame", "targets", len(targets), "frame_time", elapsed)
}

func (r *Renderer) draw(targets []Target) (int, error) {
	if err := r.surface.Clear(); err != nil {
		return 0, err
	}
	calls := 0
	for _, t := range targets {
		if err := r.surface.DrawTarget(t, ColorFor(t.Priority)); err != nil {
			return calls, err
		}
		calls++
	}
	return calls, r.surface.Present()
}
