// Package alert delivers guidance events (needs help, suggested action) to
// the collaborators that act on them: dashboard websocket clients and an
// external alerting service listening on Redis.
package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/screen-guide/pkg/hub"
	"github.com/teslashibe/screen-guide/pkg/protocol"
)

// Sink receives guidance events.
type Sink interface {
	Publish(ctx context.Context, msg *protocol.Message) error
	Close() error
}

// HubSink broadcasts events to every websocket client of a hub.
type HubSink struct {
	hub *hub.Hub
}

// NewHubSink wraps h.
func NewHubSink(h *hub.Hub) *HubSink {
	return &HubSink{hub: h}
}

// Publish encodes msg and queues it on the hub.
func (s *HubSink) Publish(_ context.Context, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	s.hub.Broadcast(hub.NewJSONMessage(data))
	return nil
}

// Close is a no-op; the hub outlives its sinks.
func (s *HubSink) Close() error { return nil }

// Multi fans events out to several sinks. A failing sink does not stop
// delivery to the others.
type Multi struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *slog.Logger
}

// NewMulti creates a fan-out over sinks.
func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{sinks: sinks, logger: logger.With("component", "alert")}
}

// Add appends a sink.
func (m *Multi) Add(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

// Publish delivers msg to every sink and joins their errors.
func (m *Multi) Publish(ctx context.Context, msg *protocol.Message) error {
	m.mu.RLock()
	sinks := append([]Sink(nil), m.sinks...)
	m.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Publish(ctx, msg); err != nil {
			m.logger.Warn("alert delivery failed", "type", msg.Type, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *Multi) Close() error {
	m.mu.Lock()
	sinks := m.sinks
	m.sinks = nil
	m.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
