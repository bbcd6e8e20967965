package edge

import (
	"context"

	"github.com/teslashibe/screen-guide/pkg/frame"
)

// StubDetector reports no elements. It stands in for a detector that failed to load.
type StubDetector struct{}

// Name returns "stub".
func (StubDetector) Name() string { return "stub" }

// Infer returns an empty element list.
func (StubDetector) Infer(ctx context.Context, f frame.Frame) ([]Element, error) {
	return []Element{}, nil
}

// Close is a no-op.
func (StubDetector) Close() error { return nil }

// StubClassifier always reports unknown content with zero confidence.
type StubClassifier struct{}

// Name returns "stub".
func (StubClassifier) Name() string { return "stub" }

// Infer returns CategoryUnknown.
func (StubClassifier) Infer(ctx context.Context, f frame.Frame) (ContentClassification, error) {
	return ContentClassification{Category: CategoryUnknown, Confidence: 0}, nil
}

// Close is a no-op.
func (StubClassifier) Close() error { return nil }

// StubText always reports neutral text with unknown intent.
type StubText struct{}

// Name returns "stub".
func (StubText) Name() string { return "stub" }

// Infer returns a neutral analysis.
func (StubText) Infer(ctx context.Context, text string) (TextAnalysis, error) {
	return TextAnalysis{
		Sentiment:    SentimentNeutral,
		Entities:     []string{},
		Intent:       IntentUnknown,
		UrgencyScore: 0,
	}, nil
}

// Close is a no-op.
func (StubText) Close() error { return nil }

// Compile-time interface checks.
var (
	_ ElementDetector   = StubDetector{}
	_ ContentClassifier = StubClassifier{}
	_ TextAnalyzer      = StubText{}
)
