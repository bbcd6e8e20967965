// Package edge runs the on-device models against captured frames.
//
// Three models run per frame: a UI-element detector, a content classifier and
// a text analyzer. Each is a Model with a real backend chosen at load time and
// a deterministic stub substituted when the real backend cannot be loaded, so
// callers never need to know which one is active.
package edge

import (
	"context"

	"github.com/teslashibe/screen-guide/pkg/frame"
)

// Model is a loaded inference backend.
type Model[In, Out any] interface {
	// Name identifies the backend in logs and stats.
	Name() string

	// Infer runs one inference.
	Infer(ctx context.Context, in In) (Out, error)

	// Close releases backend resources.
	Close() error
}

// ElementDetector finds UI elements in a frame.
type ElementDetector = Model[frame.Frame, []Element]

// ContentClassifier classifies what kind of page a frame shows.
type ContentClassifier = Model[frame.Frame, ContentClassification]

// TextAnalyzer extracts sentiment, intent and urgency from visible text.
type TextAnalyzer = Model[string, TextAnalysis]

// Loader constructs a backend. It is called once by LoadModels.
type Loader[In, Out any] func(ctx context.Context) (Model[In, Out], error)

// Loaders holds one optional loader per model. A nil loader selects the stub.
type Loaders struct {
	Detector   Loader[frame.Frame, []Element]
	Classifier Loader[frame.Frame, ContentClassification]
	Text       Loader[string, TextAnalysis]
}

// Model names used in errors, timings and stats.
const (
	ModelDetector   = "element_detector"
	ModelClassifier = "content_classifier"
	ModelText       = "text_analyzer"
)
