// Package pipeline wires the frame source, edge engine, behavioral tracker
// and overlay renderer together and runs the fixed-cadence guidance tick.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/screen-guide/pkg/alert"
	"github.com/teslashibe/screen-guide/pkg/behavior"
	"github.com/teslashibe/screen-guide/pkg/clock"
	"github.com/teslashibe/screen-guide/pkg/debug"
	"github.com/teslashibe/screen-guide/pkg/edge"
	"github.com/teslashibe/screen-guide/pkg/frame"
	"github.com/teslashibe/screen-guide/pkg/metrics"
	"github.com/teslashibe/screen-guide/pkg/overlay"
	"github.com/teslashibe/screen-guide/pkg/priority"
	"github.com/teslashibe/screen-guide/pkg/scheduler"
	"github.com/teslashibe/screen-guide/pkg/stream"
)

// TaskName is the scheduler name of the orchestrator tick.
const TaskName = "pipeline.tick"

var (
	// ErrNotInitialized is returned by Start before Initialize.
	ErrNotInitialized = errors.New("pipeline: not initialized, call Initialize first")

	// ErrDisposed is returned after Dispose.
	ErrDisposed = errors.New("pipeline: disposed")

	// ErrMissingComponent is returned when a required component is nil.
	ErrMissingComponent = errors.New("pipeline: missing component")
)

// RemoteStream is the optional outbound frame channel.
type RemoteStream interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, chunk stream.Chunk) error
	Close() error
}

// TextSource extracts the visible text for a frame (an OCR collaborator).
type TextSource interface {
	Text(f frame.Frame) string
}

// TextFunc adapts a function to TextSource.
type TextFunc func(f frame.Frame) string

// Text calls fn.
func (fn TextFunc) Text(f frame.Frame) string { return fn(f) }

// Components are the parts the pipeline orchestrates. Source, Tracker and
// Renderer are required.
type Components struct {
	Source   *frame.Source
	Engine   *edge.Engine
	Tracker  *behavior.Tracker
	Renderer *overlay.Renderer
	Stream   RemoteStream
	Alerts   alert.Sink
	Text     TextSource
}

// Status is the pipeline's introspection snapshot.
type Status struct {
	Initialized     bool          `json:"initialized"`
	Running         bool          `json:"running"`
	EdgeProcessing  bool          `json:"edge_processing"`
	StreamConnected bool          `json:"stream_connected"`
	AverageLatency  time.Duration `json:"average_latency"`
	FPS             float64       `json:"fps"`
	SLABreached     bool          `json:"sla_breached"`
	Ticks           uint64        `json:"ticks"`
	SkippedTicks    uint64        `json:"skipped_ticks"`
	InferenceErrors uint64        `json:"inference_errors"`
	SessionID       string        `json:"session_id"`
}

// Metrics are the latency figures against the SLA.
type Metrics struct {
	AverageLatency time.Duration `json:"average_latency"`
	P95Latency     time.Duration `json:"p95_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
	Samples        int           `json:"samples"`
	TargetLatency  time.Duration `json:"target_latency"`
	SLABreached    bool          `json:"sla_breached"`
	FPS            float64       `json:"fps"`
}

// Pipeline owns component lifecycles and runs the guidance tick.
type Pipeline struct {
	cfg     Config
	c       Components
	sched   *scheduler.Scheduler
	clock   clock.Clock
	logger  *slog.Logger
	latency *metrics.LatencyTracker

	mu              sync.Mutex
	initialized     bool
	disposed        bool
	task            *scheduler.Task
	streamConnected bool
	lastEvent       map[string]time.Time
	subs            map[int]func(Event)
	nextSub         int

	running         atomic.Bool
	busy            atomic.Bool
	slaBreached     atomic.Bool
	inferenceFailed atomic.Bool
	ticks           atomic.Uint64
	skipped         atomic.Uint64
	inferenceErrors atomic.Uint64

	alertsWG sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for tick latency and event cooldowns.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithScheduler shares an existing scheduler. By default the pipeline owns
// its own and stops it on Dispose.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(p *Pipeline) { p.sched = s }
}

// New creates a pipeline. Nothing starts until Initialize and Start.
func New(c Components, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		c:         c,
		clock:     clock.Real{},
		logger:    slog.Default(),
		lastEvent: make(map[string]time.Time),
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	if p.sched == nil {
		p.sched = scheduler.New(p.logger)
	}
	if p.cfg.TickInterval <= 0 {
		p.cfg.TickInterval = DefaultConfig().TickInterval
	}
	p.latency = metrics.NewLatencyTracker(p.cfg.LatencyWindow)
	return p
}

// Scheduler returns the scheduler that owns every periodic task.
func (p *Pipeline) Scheduler() *scheduler.Scheduler { return p.sched }

// Components returns the orchestrated components.
func (p *Pipeline) Components() Components { return p.c }

// Subscribe registers fn for guidance events and returns a function that
// removes it. fn runs on the tick goroutine and must not block.
func (p *Pipeline) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Initialize brings components up in order: renderer, edge models,
// behavioral tracker, frame source, then the optional remote stream.
// A capture failure is returned and leaves the pipeline uninitialized;
// calling Initialize again retries. A stream failure is only logged.
func (p *Pipeline) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrDisposed
	}
	if p.initialized {
		return nil
	}
	if p.c.Source == nil || p.c.Tracker == nil || p.c.Renderer == nil {
		return fmt.Errorf("%w: source, tracker and renderer are required", ErrMissingComponent)
	}

	p.logger.Info("initializing pipeline")

	p.logger.Info("phase 1: overlay renderer")
	if err := p.c.Renderer.Start(p.sched); err != nil {
		return fmt.Errorf("pipeline: start renderer: %w", err)
	}

	if p.cfg.EnableEdge && p.c.Engine != nil {
		p.logger.Info("phase 2: edge models")
		if err := p.c.Engine.LoadModels(ctx); err != nil {
			p.c.Renderer.Stop()
			return fmt.Errorf("pipeline: load models: %w", err)
		}
		for _, err := range p.c.Engine.LoadErrors() {
			p.logger.Warn("model running on stub", "error", err)
		}
	}

	p.logger.Info("phase 3: behavioral tracker")
	p.c.Tracker.SetTargetLocator(p.c.Renderer)
	if err := p.c.Tracker.StartTracking(p.sched); err != nil {
		p.c.Renderer.Stop()
		return fmt.Errorf("pipeline: start tracker: %w", err)
	}

	p.logger.Info("phase 4: frame source")
	if err := p.c.Source.Initialize(ctx, p.cfg.Capture); err != nil {
		p.c.Tracker.StopTracking()
		p.c.Renderer.Stop()
		return err
	}

	p.streamConnected = false
	if p.cfg.EnableStream && p.c.Stream != nil {
		p.logger.Info("phase 5: remote stream")
		if err := p.c.Stream.Connect(ctx); err != nil {
			p.logger.Warn("remote stream unavailable, continuing locally", "error", err)
		} else {
			p.c.Source.SetStreamer(p.c.Stream)
			p.streamConnected = true
		}
	}

	p.initialized = true
	p.logger.Info("pipeline initialized",
		"edge", p.cfg.EnableEdge && p.c.Engine != nil,
		"stream", p.streamConnected)
	return nil
}

// Start begins capture and the orchestrator tick. Starting a running
// pipeline is a no-op.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrDisposed
	}
	if !p.initialized {
		return ErrNotInitialized
	}
	if p.running.Load() {
		p.logger.Warn("pipeline already running")
		return nil
	}

	// The tracker and renderer loops are detached by Stop; reattach them.
	if err := p.c.Tracker.StartTracking(p.sched); err != nil {
		return fmt.Errorf("pipeline: start tracker: %w", err)
	}
	if err := p.c.Renderer.Start(p.sched); err != nil {
		return fmt.Errorf("pipeline: start renderer: %w", err)
	}
	if err := p.c.Source.Start(p.sched); err != nil {
		return fmt.Errorf("pipeline: start capture: %w", err)
	}
	task, err := p.sched.Every(TaskName, p.cfg.TickInterval, p.Tick)
	if err != nil {
		p.c.Source.Stop()
		return fmt.Errorf("pipeline: schedule tick: %w", err)
	}
	p.task = task
	p.running.Store(true)
	p.logger.Info("pipeline running", "tick", p.cfg.TickInterval)
	return nil
}

// Running reports whether the tick is active.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Tick runs one orchestrator pass. It never panics out and never overlaps
// itself: a call made while the previous one is still in flight is skipped.
func (p *Pipeline) Tick(ctx context.Context) {
	if !p.running.Load() {
		return
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		debug.Log("tick skipped, previous still in flight")
		return
	}
	defer p.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("tick panicked", "panic", r)
		}
	}()

	start := p.clock.Now()

	f, ok := p.c.Source.Latest()
	if !ok {
		return
	}
	p.ticks.Add(1)

	if p.cfg.EnableEdge && p.c.Engine != nil && p.c.Engine.Ready() {
		p.analyze(ctx, f)
	}
	if !p.running.Load() {
		return
	}

	confusion := p.c.Tracker.DetectConfusion()
	if confusion.Detected && confusion.Severity == priority.Critical {
		p.raise(ctx, Event{Kind: EventNeedsHelp, Confusion: &confusion}, string(EventNeedsHelp))
	}

	intent := p.c.Tracker.PredictIntent()
	if intent.Confidence > p.cfg.SuggestConfidence {
		p.raise(ctx, Event{Kind: EventSuggestedAction, Intent: &intent}, string(EventSuggestedAction)+":"+string(intent.Action))
	}

	p.recordLatency(p.clock.Now().Sub(start))
}

func (p *Pipeline) analyze(ctx context.Context, f frame.Frame) {
	text := ""
	if p.c.Text != nil {
		text = p.c.Text.Text(f)
	}

	a, err := p.c.Engine.AnalyzeFrame(ctx, f, text)
	if err != nil {
		p.inferenceErrors.Add(1)
		if p.inferenceFailed.CompareAndSwap(false, true) {
			p.logger.Warn("frame analysis failed, skipping guidance update", "error", err)
		}
		return
	}
	if p.inferenceFailed.CompareAndSwap(true, false) {
		p.logger.Info("frame analysis recovered")
	}
	// Results that resolve after Stop are discarded.
	if !p.running.Load() {
		return
	}

	existing := make(map[string]bool)
	for _, t := range p.c.Renderer.Targets() {
		existing[t.Label] = true
	}
	for _, el := range a.Elements {
		if el.Confidence <= p.cfg.RelevanceThreshold {
			continue
		}
		target := overlay.Target{
			X:          el.Box.X,
			Y:          el.Box.Y,
			Width:      el.Box.Width,
			Height:     el.Box.Height,
			Label:      el.Label,
			Confidence: el.Confidence,
			Priority:   el.Priority,
		}
		p.c.Renderer.AddTarget(target)
		if !existing[target.Label] {
			existing[target.Label] = true
			p.raise(ctx, Event{Kind: EventTargetAdded, Target: &target}, "")
		}
	}
	debug.Log("frame analyzed",
		"elements", len(a.Elements),
		"category", a.Content.Category,
		"total", a.Timings.Total)
}

// raise delivers ev to subscribers and the alert sink. A non-empty key
// suppresses repeats of the same event within EventCooldown.
func (p *Pipeline) raise(ctx context.Context, ev Event, key string) {
	now := p.clock.Now()
	ev.Time = now
	ev.SessionID = p.c.Tracker.SessionID()

	p.mu.Lock()
	if key != "" && p.cfg.EventCooldown > 0 {
		if last, ok := p.lastEvent[key]; ok && now.Sub(last) < p.cfg.EventCooldown {
			p.mu.Unlock()
			return
		}
		p.lastEvent[key] = now
	}
	subs := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	switch ev.Kind {
	case EventNeedsHelp:
		p.logger.Warn("user needs help",
			"indicators", ev.Confusion.Indicators,
			"intervention", ev.Confusion.SuggestedIntervention)
	case EventSuggestedAction:
		p.logger.Info("suggesting action",
			"action", ev.Intent.Action,
			"confidence", ev.Intent.Confidence)
	}

	for _, fn := range subs {
		fn(ev)
	}

	if p.c.Alerts != nil {
		msg, err := ev.Message()
		if err != nil {
			p.logger.Error("encode event", "kind", ev.Kind, "error", err)
			return
		}
		p.alertsWG.Add(1)
		go func() {
			defer p.alertsWG.Done()
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := p.c.Alerts.Publish(actx, msg); err != nil {
				p.logger.Warn("alert delivery failed", "kind", ev.Kind, "error", err)
			}
		}()
	}
}

func (p *Pipeline) recordLatency(d time.Duration) {
	p.latency.Record(d)
	avg := p.latency.Average()
	breached := p.cfg.TargetLatency > 0 && avg > p.cfg.TargetLatency
	if p.slaBreached.Swap(breached) != breached {
		if breached {
			p.logger.Warn("average latency exceeds target", "average", avg, "target", p.cfg.TargetLatency)
		} else {
			p.logger.Info("average latency back within target", "average", avg)
		}
	}
}

// Status returns the pipeline state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	initialized, streamConnected := p.initialized, p.streamConnected
	p.mu.Unlock()

	s := Status{
		Initialized:     initialized,
		Running:         p.running.Load(),
		StreamConnected: streamConnected,
		AverageLatency:  p.latency.Average(),
		FPS:             p.c.Renderer.Stats().FPS,
		SLABreached:     p.slaBreached.Load(),
		Ticks:           p.ticks.Load(),
		SkippedTicks:    p.skipped.Load(),
		InferenceErrors: p.inferenceErrors.Load(),
		SessionID:       p.c.Tracker.SessionID(),
	}
	if p.cfg.EnableEdge && p.c.Engine != nil {
		s.EdgeProcessing = p.c.Engine.Ready()
	}
	return s
}

// Metrics returns latency percentiles over the rolling window.
func (p *Pipeline) Metrics() Metrics {
	snap := p.latency.Snapshot()
	return Metrics{
		AverageLatency: snap.Average,
		P95Latency:     snap.P95,
		P99Latency:     snap.P99,
		MaxLatency:     snap.Max,
		Samples:        snap.Samples,
		TargetLatency:  p.cfg.TargetLatency,
		SLABreached:    p.slaBreached.Load(),
		FPS:            p.c.Renderer.Stats().FPS,
	}
}

// Stop cancels the tick, capture, behavioral analysis and render loops and
// detaches input listeners. It must not be called from inside a tick.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	wasRunning := p.running.Swap(false)
	task := p.task
	p.task = nil
	p.mu.Unlock()

	if task != nil {
		task.Cancel()
		<-task.Done()
	}
	if p.c.Source != nil {
		p.c.Source.Stop()
	}
	if p.c.Tracker != nil {
		p.c.Tracker.StopTracking()
	}
	if p.c.Renderer != nil {
		p.c.Renderer.Stop()
	}
	if wasRunning {
		p.logger.Info("pipeline stopped")
	}
}

// Dispose stops the pipeline and releases models, the capture device, the
// render surface, the remote stream and alert sinks. The pipeline cannot be
// restarted afterwards.
func (p *Pipeline) Dispose() error {
	p.Stop()

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	p.initialized = false
	p.mu.Unlock()

	var errs []error
	if p.c.Renderer != nil {
		errs = append(errs, p.c.Renderer.Dispose())
	}
	if p.c.Source != nil {
		errs = append(errs, p.c.Source.Close())
	}
	if p.c.Engine != nil {
		errs = append(errs, p.c.Engine.Close())
	}
	if p.c.Tracker != nil {
		p.c.Tracker.Reset()
	}
	if p.c.Stream != nil {
		errs = append(errs, p.c.Stream.Close())
	}
	p.alertsWG.Wait()
	if p.c.Alerts != nil {
		errs = append(errs, p.c.Alerts.Close())
	}
	p.sched.Stop()

	p.logger.Info("pipeline disposed")
	return errors.Join(errs...)
}
