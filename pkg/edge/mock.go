package edge

import (
	"context"
	"sync"
	"time"
)

// Mock implements Model for testing.
type Mock[In, Out any] struct {
	// ModelName is returned by Name. Defaults to "mock".
	ModelName string

	// InferFunc is called when Infer is invoked.
	InferFunc func(ctx context.Context, in In) (Out, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu     sync.Mutex
	calls  []MockCall
	closed bool
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock returning out for every call.
func NewMock[In, Out any](out Out) *Mock[In, Out] {
	return &Mock[In, Out]{
		InferFunc: func(ctx context.Context, in In) (Out, error) {
			return out, nil
		},
	}
}

// Name returns ModelName or "mock".
func (m *Mock[In, Out]) Name() string {
	if m.ModelName != "" {
		return m.ModelName
	}
	return "mock"
}

// Infer calls InferFunc and records the call.
func (m *Mock[In, Out]) Infer(ctx context.Context, in In) (Out, error) {
	m.record("Infer")
	if m.InferFunc != nil {
		return m.InferFunc(ctx, in)
	}
	var zero Out
	return zero, nil
}

// Close calls CloseFunc and records the call.
func (m *Mock[In, Out]) Close() error {
	m.record("Close")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Closed reports whether Close was called.
func (m *Mock[In, Out]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Calls returns all recorded calls.
func (m *Mock[In, Out]) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of calls to method.
func (m *Mock[In, Out]) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (m *Mock[In, Out]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Mock[In, Out]) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
}

// Loader returns a loader that hands out m.
func (m *Mock[In, Out]) Loader() Loader[In, Out] {
	return func(ctx context.Context) (Model[In, Out], error) {
		return m, nil
	}
}

// FailingLoader returns a loader that always fails with err.
func FailingLoader[In, Out any](err error) Loader[In, Out] {
	return func(ctx context.Context) (Model[In, Out], error) {
		return nil, err
	}
}
