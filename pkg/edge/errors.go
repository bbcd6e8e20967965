package edge

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrModelsNotLoaded is returned by AnalyzeFrame before LoadModels.
	ErrModelsNotLoaded = errors.New("edge: models not loaded")

	// ErrNoBackend is recorded when no real backend is configured for a model.
	ErrNoBackend = errors.New("edge: no backend configured")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("edge: engine closed")

	// ErrEmptyFrame is returned by backends given a frame without pixels.
	ErrEmptyFrame = errors.New("edge: empty frame")
)

// LoadError records a model that failed to load or warm up. It is not fatal:
// the engine substitutes the stub and keeps going.
type LoadError struct {
	Model string
	Stage string // "load" or "warmup"
	Err   error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("edge [%s]: %s: %v", e.Model, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// InferenceError wraps a failure of one model on one frame.
type InferenceError struct {
	Model string
	Err   error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("edge [%s]: inference: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *InferenceError) Unwrap() error {
	return e.Err
}
