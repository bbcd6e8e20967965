package edge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/screen-guide/pkg/frame"
)

// ModelStats summarizes one model's inference history.
type ModelStats struct {
	Backend    string        `json:"backend"`
	Calls      uint64        `json:"calls"`
	Errors     uint64        `json:"errors"`
	OverBudget uint64        `json:"over_budget"`
	Last       time.Duration `json:"last"`
	Average    time.Duration `json:"average"`
	Budget     time.Duration `json:"budget"`

	total time.Duration
}

// Stats is a snapshot of engine state.
type Stats struct {
	Ready      bool                  `json:"ready"`
	Frames     uint64                `json:"frames"`
	LastTotal  time.Duration         `json:"last_total"`
	OverBudget uint64                `json:"over_budget"`
	Models     map[string]ModelStats `json:"models"`
	LoadErrors []string              `json:"load_errors,omitempty"`
}

// Engine runs the three models in parallel on each frame.
type Engine struct {
	loaders Loaders
	config  Config
	logger  *slog.Logger

	loadMu sync.Mutex // serializes LoadModels and Close

	mu         sync.RWMutex
	detector   ElementDetector
	classifier ContentClassifier
	text       TextAnalyzer
	ready      bool
	closed     bool
	loadErrs   []error

	statsMu sync.Mutex
	stats   Stats
}

// NewEngine creates an engine. Nothing is loaded until LoadModels.
func NewEngine(loaders Loaders, opts ...Option) *Engine {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		loaders: loaders,
		config:  cfg,
		logger:  cfg.Logger.With("component", "edge.engine"),
		stats: Stats{Models: map[string]ModelStats{
			ModelDetector:   {Budget: cfg.DetectionBudget},
			ModelClassifier: {Budget: cfg.ClassificationBudget},
			ModelText:       {Budget: cfg.TextBudget},
		}},
	}
}

// LoadModels loads and warms up every model in parallel. It is idempotent.
// A model that fails to load or warm up is replaced by its stub and the
// failure is kept in LoadErrors; only a cancelled context or a closed engine
// makes LoadModels itself fail.
func (e *Engine) LoadModels(ctx context.Context) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.mu.RLock()
	closed, ready := e.closed, e.ready
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if ready {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	warmFrame := frame.Frame{
		Timestamp: start,
		Pixels:    make([]byte, e.config.WarmupWidth*e.config.WarmupHeight*3),
		Width:     e.config.WarmupWidth,
		Height:    e.config.WarmupHeight,
		Format:    frame.FormatBGR,
	}

	var (
		detector   ElementDetector
		classifier ContentClassifier
		text       TextAnalyzer
		errs       [3]error
	)

	var g errgroup.Group
	g.Go(func() error {
		detector, errs[0] = loadModel(ctx, e.config.LoadTimeout, ModelDetector, e.loaders.Detector, ElementDetector(StubDetector{}), warmFrame)
		return nil
	})
	g.Go(func() error {
		classifier, errs[1] = loadModel(ctx, e.config.LoadTimeout, ModelClassifier, e.loaders.Classifier, ContentClassifier(StubClassifier{}), warmFrame)
		return nil
	})
	g.Go(func() error {
		text, errs[2] = loadModel(ctx, e.config.LoadTimeout, ModelText, e.loaders.Text, TextAnalyzer(StubText{}), e.config.WarmupText)
		return nil
	})
	_ = g.Wait()

	var loadErrs []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		loadErrs = append(loadErrs, err)
		if errors.Is(err, ErrNoBackend) {
			e.logger.Info("no backend configured, using stub", "error", err)
		} else {
			e.logger.Warn("model unavailable, using stub", "error", err)
		}
	}

	e.mu.Lock()
	e.detector, e.classifier, e.text = detector, classifier, text
	e.loadErrs = loadErrs
	e.ready = true
	e.mu.Unlock()

	e.statsMu.Lock()
	e.setBackend(ModelDetector, detector.Name())
	e.setBackend(ModelClassifier, classifier.Name())
	e.setBackend(ModelText, text.Name())
	e.stats.Ready = true
	e.stats.LoadErrors = e.stats.LoadErrors[:0]
	for _, err := range loadErrs {
		e.stats.LoadErrors = append(e.stats.LoadErrors, err.Error())
	}
	e.statsMu.Unlock()

	e.logger.Info("models ready",
		"detector", detector.Name(),
		"classifier", classifier.Name(),
		"text", text.Name(),
		"took", time.Since(start))
	return nil
}

// loadModel constructs and warms one backend, falling back to stub.
func loadModel[In, Out any](ctx context.Context, timeout time.Duration, name string, loader Loader[In, Out], stub Model[In, Out], warm In) (m Model[In, Out], err error) {
	if loader == nil {
		return stub, &LoadError{Model: name, Stage: "load", Err: ErrNoBackend}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stage := "load"
	defer func() {
		if r := recover(); r != nil {
			m, err = stub, &LoadError{Model: name, Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	loaded, lerr := loader(ctx)
	if lerr != nil {
		return stub, &LoadError{Model: name, Stage: stage, Err: lerr}
	}
	if loaded == nil {
		return stub, &LoadError{Model: name, Stage: stage, Err: ErrNoBackend}
	}

	stage = "warmup"
	if _, werr := loaded.Infer(ctx, warm); werr != nil {
		_ = loaded.Close()
		return stub, &LoadError{Model: name, Stage: stage, Err: werr}
	}
	return loaded, nil
}

// Ready reports whether LoadModels has completed.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// LoadErrors returns the failures recorded by the last LoadModels.
func (e *Engine) LoadErrors() []error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]error(nil), e.loadErrs...)
}

// Backends returns the active backend name for each model.
func (e *Engine) Backends() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return map[string]string{}
	}
	return map[string]string{
		ModelDetector:   e.detector.Name(),
		ModelClassifier: e.classifier.Name(),
		ModelText:       e.text.Name(),
	}
}

// AnalyzeFrame runs all three models in parallel and joins their results.
// The call takes as long as the slowest model. If any model fails the
// first failure is returned as *InferenceError.
func (e *Engine) AnalyzeFrame(ctx context.Context, f frame.Frame, text string) (Analysis, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return Analysis{}, ErrClosed
	}
	if !e.ready {
		e.mu.RUnlock()
		return Analysis{}, ErrModelsNotLoaded
	}
	detector, classifier, analyzer := e.detector, e.classifier, e.text
	e.mu.RUnlock()

	start := time.Now()
	var a Analysis
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t0 := time.Now()
		elements, err := infer(gctx, ModelDetector, detector, f)
		a.Timings.Detection = time.Since(t0)
		e.record(ModelDetector, a.Timings.Detection, err)
		if elements == nil {
			elements = []Element{}
		}
		a.Elements = elements
		return err
	})
	g.Go(func() error {
		t0 := time.Now()
		content, err := infer(gctx, ModelClassifier, classifier, f)
		a.Timings.Classification = time.Since(t0)
		e.record(ModelClassifier, a.Timings.Classification, err)
		if content.Category == "" {
			content.Category = CategoryUnknown
		}
		a.Content = content
		return err
	})
	g.Go(func() error {
		t0 := time.Now()
		analysis, err := infer(gctx, ModelText, analyzer, text)
		a.Timings.Text = time.Since(t0)
		e.record(ModelText, a.Timings.Text, err)
		if analysis.Entities == nil {
			analysis.Entities = []string{}
		}
		if analysis.Intent == "" {
			analysis.Intent = IntentUnknown
		}
		if analysis.Sentiment == "" {
			analysis.Sentiment = SentimentNeutral
		}
		a.Text = analysis
		return err
	})

	err := g.Wait()
	a.Timings.Total = time.Since(start)

	e.statsMu.Lock()
	e.stats.Frames++
	e.stats.LastTotal = a.Timings.Total
	if e.config.TotalBudget > 0 && a.Timings.Total > e.config.TotalBudget {
		e.stats.OverBudget++
	}
	e.statsMu.Unlock()

	if err != nil {
		return a, err
	}
	return a, nil
}

// infer calls one model, converting errors and panics to *InferenceError.
func infer[In, Out any](ctx context.Context, name string, m Model[In, Out], in In) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InferenceError{Model: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = m.Infer(ctx, in)
	if err != nil {
		return out, &InferenceError{Model: name, Err: err}
	}
	return out, nil
}

func (e *Engine) record(model string, d time.Duration, err error) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	s := e.stats.Models[model]
	s.Calls++
	s.Last = d
	s.total += d
	s.Average = s.total / time.Duration(s.Calls)
	if err != nil {
		s.Errors++
	}
	if s.Budget > 0 && d > s.Budget {
		s.OverBudget++
		e.logger.Debug("model over budget", "model", model, "took", d, "budget", s.Budget)
	}
	e.stats.Models[model] = s
}

// setBackend updates a model's backend name. Caller holds statsMu.
func (e *Engine) setBackend(model, backend string) {
	s := e.stats.Models[model]
	s.Backend = backend
	e.stats.Models[model] = s
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	out := e.stats
	out.Models = make(map[string]ModelStats, len(e.stats.Models))
	for k, v := range e.stats.Models {
		out.Models[k] = v
	}
	out.LoadErrors = append([]string(nil), e.stats.LoadErrors...)
	return out
}

// Close releases every model. The engine cannot be reloaded afterwards.
func (e *Engine) Close() error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	wasReady := e.ready
	e.ready = false
	detector, classifier, text := e.detector, e.classifier, e.text
	e.detector, e.classifier, e.text = nil, nil, nil
	e.mu.Unlock()

	e.statsMu.Lock()
	e.stats.Ready = false
	e.statsMu.Unlock()

	if !wasReady {
		return nil
	}

	var firstErr error
	for _, c := range []interface{ Close() error }{detector, classifier, text} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.logger.Info("models released")
	return firstErr
}
