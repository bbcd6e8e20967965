// Package behavior turns raw pointer, click and scroll events into a rolling
// behavioral pattern, a predicted intent and a confusion signal.
package behavior

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/screen-guide/pkg/clock"
	"github.com/teslashibe/screen-guide/pkg/debug"
	"github.com/teslashibe/screen-guide/pkg/priority"
	"github.com/teslashibe/screen-guide/pkg/scheduler"
)

// TaskName is the scheduler name of the analysis loop.
const TaskName = "behavior.analysis"

// TargetLocator tells the tracker whether a click landed on an active target.
type TargetLocator interface {
	HitTest(x, y float64) (label string, ok bool)
}

type scrollSample struct {
	deltaY    float64
	velocity  float64
	timestamp time.Time
}

type point struct{ x, y float64 }

// Tracker maintains the behavioral pattern for one user session.
type Tracker struct {
	cfg     Config
	input   InputSource
	clock   clock.Clock
	logger  *slog.Logger
	locator TargetLocator

	mu          sync.Mutex
	sessionID   string
	tracking    bool
	unsubscribe func()
	task        *scheduler.Task

	moves   []Event
	clicks  []Event
	scrolls []scrollSample
	heatmap *Heatmap
	pattern Pattern

	hoverAt    *point
	hoverTimer clock.Timer
	hoverGen   uint64

	lastTarget     *point
	lastTargetTime time.Time

	clickTotal   int
	clickChecked int
	clickHits    int

	history []IntentPrediction
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(t *Tracker) { t.cfg = cfg }
}

// WithClock sets the clock used for timestamps and the hesitation timer.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithTargetLocator enables click accuracy against live targets.
func WithTargetLocator(l TargetLocator) Option {
	return func(t *Tracker) { t.locator = l }
}

// NewTracker creates a tracker reading from input. A nil input means events
// are only delivered through HandleEvent.
func NewTracker(input InputSource, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:       DefaultConfig(),
		input:     input,
		clock:     clock.Real{},
		logger:    slog.Default(),
		sessionID: uuid.NewString(),
		pattern:   NewPattern(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.cfg.HistorySize <= 0 {
		t.cfg.HistorySize = DefaultConfig().HistorySize
	}
	t.heatmap = NewHeatmap(t.cfg.HeatmapCellSize, t.cfg.HeatmapMaxCells, t.cfg.HeatmapKeepCells)
	t.logger = t.logger.With("component", "behavior.tracker")
	return t
}

// SetTargetLocator attaches or detaches the click target locator.
func (t *Tracker) SetTargetLocator(l TargetLocator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locator = l
}

// SessionID identifies the current tracking session. Reset starts a new one.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// StartTracking subscribes to input and schedules the analysis loop on sched.
// A nil sched tracks events without the periodic analysis. Calling it while
// already tracking is a no-op.
func (t *Tracker) StartTracking(sched *scheduler.Scheduler) error {
	t.mu.Lock()
	if t.tracking {
		t.mu.Unlock()
		return nil
	}
	t.tracking = true
	t.mu.Unlock()

	var unsub func()
	if t.input != nil {
		unsub = t.input.Subscribe(t.HandleEvent)
	}

	var task *scheduler.Task
	if sched != nil {
		var err error
		task, err = sched.Every(TaskName, t.cfg.AnalysisInterval, func(context.Context) { t.Analyze() })
		if err != nil {
			if unsub != nil {
				unsub()
			}
			t.mu.Lock()
			t.tracking = false
			t.mu.Unlock()
			return fmt.Errorf("behavior: schedule analysis: %w", err)
		}
	}

	t.mu.Lock()
	t.unsubscribe = unsub
	t.task = task
	t.mu.Unlock()

	t.logger.Info("behavioral tracking started", "session", t.SessionID())
	return nil
}

// StopTracking detaches input listeners, cancels the analysis loop and any
// pending hesitation timer. The pattern is kept.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	if !t.tracking {
		t.mu.Unlock()
		return
	}
	t.tracking = false
	unsub, task := t.unsubscribe, t.task
	t.unsubscribe, t.task = nil, nil
	t.stopHoverLocked()
	t.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if task != nil {
		task.Cancel()
	}
	t.logger.Info("behavioral tracking stopped")
}

// Tracking reports whether the tracker is attached.
func (t *Tracker) Tracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

// HandleEvent ingests one raw event. Events arriving while not tracking are
// ignored. A zero timestamp is replaced by the clock's current time.
func (t *Tracker) HandleEvent(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.clock.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracking {
		return
	}

	switch ev.Kind {
	case EventMove:
		t.handleMove(ev)
	case EventClick:
		t.handleClick(ev)
	case EventScroll:
		t.handleScroll(ev)
	}
}

func (t *Tracker) handleMove(ev Event) {
	t.moves = pruneEvents(append(t.moves, ev), ev.Timestamp.Add(-t.cfg.MoveWindow))
	t.heatmap.Add(ev.X, ev.Y)
	t.checkHesitation(ev)
}

// checkHesitation restarts the stillness timer whenever the pointer moves
// further than MovementThreshold from where it settled.
func (t *Tracker) checkHesitation(ev Event) {
	if t.hoverAt != nil && distance(t.hoverAt.x, t.hoverAt.y, ev.X, ev.Y) <= t.cfg.MovementThreshold {
		return
	}
	t.stopHoverLocked()
	t.hoverAt = &point{ev.X, ev.Y}
	t.hoverGen++
	gen := t.hoverGen
	t.hoverTimer = t.clock.AfterFunc(t.cfg.HesitationDelay, func() { t.hesitated(gen) })
}

func (t *Tracker) hesitated(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracking || gen != t.hoverGen {
		return
	}
	t.hoverTimer = nil
	t.pattern.HesitationCount++
	debug.BehaviorLog("hesitation detected", "count", t.pattern.HesitationCount)
}

func (t *Tracker) stopHoverLocked() {
	if t.hoverTimer != nil {
		t.hoverTimer.Stop()
		t.hoverTimer = nil
	}
	t.hoverGen++
}

func (t *Tracker) handleClick(ev Event) {
	t.clicks = pruneEvents(append(t.clicks, ev), ev.Timestamp.Add(-t.cfg.ClickWindow))

	if t.lastTarget != nil {
		d := distance(t.lastTarget.x, t.lastTarget.y, ev.X, ev.Y)
		dt := ev.Timestamp.Sub(t.lastTargetTime)
		if d < t.cfg.RepeatDistance && dt < t.cfg.RepeatWindow {
			t.pattern.RepeatAttempts++
			debug.BehaviorLog("repeated attempt", "count", t.pattern.RepeatAttempts, "x", ev.X, "y", ev.Y)
		} else {
			t.pattern.RepeatAttempts = 0
		}
	}
	t.lastTarget = &point{ev.X, ev.Y}
	t.lastTargetTime = ev.Timestamp

	t.clickTotal++
	if t.locator != nil {
		t.clickChecked++
		if _, ok := t.locator.HitTest(ev.X, ev.Y); ok {
			t.clickHits++
		}
	}
	t.pattern.AvgClickAccuracy = t.clickAccuracy()
}

func (t *Tracker) clickAccuracy() float64 {
	switch {
	case t.clickChecked > 0:
		return float64(t.clickHits) / float64(t.clickChecked)
	case t.clickTotal > 0:
		return t.cfg.DefaultClickAccuracy
	default:
		return 0
	}
}

func (t *Tracker) handleScroll(ev Event) {
	velocity := 0.0
	if n := len(t.scrolls); n > 0 {
		if ms := float64(ev.Timestamp.Sub(t.scrolls[n-1].timestamp)) / float64(time.Millisecond); ms > 0 {
			velocity = math.Abs(ev.DeltaY) / ms
		}
	}

	t.scrolls = append(t.scrolls, scrollSample{deltaY: ev.DeltaY, velocity: velocity, timestamp: ev.Timestamp})
	cutoff := ev.Timestamp.Add(-t.cfg.ScrollWindow)
	i := 0
	for i < len(t.scrolls) && t.scrolls[i].timestamp.Before(cutoff) {
		i++
	}
	t.scrolls = t.scrolls[i:]

	t.pattern.ScrollPattern = t.classifyScroll()
}

func (t *Tracker) classifyScroll() ScrollPattern {
	n := len(t.scrolls)
	if n < t.cfg.ScrollMinSamples || n == 0 {
		return ScrollSmooth
	}
	var sum float64
	for _, s := range t.scrolls {
		sum += s.velocity
	}
	mean := sum / float64(n)
	var variance float64
	for _, s := range t.scrolls {
		variance += (s.velocity - mean) * (s.velocity - mean)
	}
	variance /= float64(n)

	switch {
	case variance < t.cfg.SmoothVariance:
		return ScrollSmooth
	case variance < t.cfg.UncertainVariance:
		return ScrollUncertain
	default:
		return ScrollJerky
	}
}

// erratic is the fraction of consecutive move segments that change direction
// on either axis. A straight line scores 0, a zig-zag scores 1.
func (t *Tracker) erratic() float64 {
	if len(t.moves) < t.cfg.ErraticMinMoves || len(t.moves) < 3 {
		return 0
	}
	changes := 0
	prevDX := t.moves[1].X - t.moves[0].X
	prevDY := t.moves[1].Y - t.moves[0].Y
	for i := 2; i < len(t.moves); i++ {
		dx := t.moves[i].X - t.moves[i-1].X
		dy := t.moves[i].Y - t.moves[i-1].Y
		if sign(dx) != sign(prevDX) || sign(dy) != sign(prevDY) {
			changes++
		}
		prevDX, prevDY = dx, dy
	}
	return math.Min(float64(changes)/float64(len(t.moves)-2), 1)
}

// Pattern returns a snapshot of the current pattern with the derived
// erratic and confidence scores filled in.
func (t *Tracker) Pattern() Pattern {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.patternLocked()
}

func (t *Tracker) patternLocked() Pattern {
	p := t.pattern
	p.ErraticMovement = t.erratic()
	p.ConfidenceLevel = Confidence(p)
	return p
}

// PredictIntent applies the intent rules to the current pattern and heatmap.
func (t *Tracker) PredictIntent() IntentPrediction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.predictLocked()
}

func (t *Tracker) predictLocked() IntentPrediction {
	x, y, ok := t.heatmap.Hotspot()
	pred := IntentFor(t.patternLocked(), x, y, ok)
	pred.Timestamp = t.clock.Now()
	return pred
}

// DetectConfusion evaluates the current pattern.
func (t *Tracker) DetectConfusion() ConfusionSignal {
	return ConfusionFor(t.Pattern())
}

// Analyze runs one analysis pass: it predicts intent, records it in the
// bounded history and logs any confusion above low severity.
func (t *Tracker) Analyze() (IntentPrediction, ConfusionSignal) {
	t.mu.Lock()
	pred := t.predictLocked()
	t.history = append(t.history, pred)
	if over := len(t.history) - t.cfg.HistorySize; over > 0 {
		t.history = append([]IntentPrediction(nil), t.history[over:]...)
	}
	signal := ConfusionFor(t.patternLocked())
	t.mu.Unlock()

	if signal.Severity > priority.Low {
		t.logger.Warn("confusion detected",
			"severity", signal.Severity,
			"indicators", signal.Indicators,
			"intervention", signal.SuggestedIntervention)
	}
	return pred, signal
}

// History returns the recorded predictions, oldest first.
func (t *Tracker) History() []IntentPrediction {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]IntentPrediction, len(t.history))
	copy(out, t.history)
	return out
}

// SmoothedIntent returns the most frequent action in the history with its
// mean confidence. Ties go to the most recent action.
func (t *Tracker) SmoothedIntent() (IntentPrediction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) == 0 {
		return IntentPrediction{}, false
	}

	type agg struct {
		count int
		conf  float64
		last  int
	}
	byAction := make(map[IntentAction]*agg)
	for i, p := range t.history {
		a, ok := byAction[p.Action]
		if !ok {
			a = &agg{}
			byAction[p.Action] = a
		}
		a.count++
		a.conf += p.Confidence
		a.last = i
	}

	var best IntentAction
	var bestAgg *agg
	for action, a := range byAction {
		if bestAgg == nil || a.count > bestAgg.count || (a.count == bestAgg.count && a.last > bestAgg.last) {
			best, bestAgg = action, a
		}
	}
	latest := t.history[bestAgg.last]
	return IntentPrediction{
		Action:     best,
		Confidence: bestAgg.conf / float64(bestAgg.count),
		Reasoning:  latest.Reasoning,
		Timestamp:  latest.Timestamp,
	}, true
}

// HeatmapCells exports the heatmap, hottest first.
func (t *Tracker) HeatmapCells() []CellCount {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.heatmap.Cells()
}

// Reset clears every buffer, counter and the intent history, and starts a new
// session. Tracking state is unchanged.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopHoverLocked()
	t.hoverAt = nil
	t.moves, t.clicks, t.scrolls = nil, nil, nil
	t.heatmap.Clear()
	t.pattern = NewPattern()
	t.lastTarget = nil
	t.lastTargetTime = time.Time{}
	t.clickTotal, t.clickChecked, t.clickHits = 0, 0, 0
	t.history = nil
	t.sessionID = uuid.NewString()
}

func pruneEvents(events []Event, cutoff time.Time) []Event {
	i := 0
	for i < len(events) && events[i].Timestamp.Before(cutoff) {
		i++
	}
	return events[i:]
}

func distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
