package pipeline

import (
	"time"

	"github.com/teslashibe/screen-guide/pkg/frame"
)

// Config holds orchestrator settings.
type Config struct {
	// === Tick ===
	TickInterval       time.Duration `json:"tick_interval" mapstructure:"tick_interval"`             // Orchestrator cadence (~30 Hz)
	RelevanceThreshold float64       `json:"relevance_threshold" mapstructure:"relevance_threshold"` // Min element confidence for a target
	SuggestConfidence  float64       `json:"suggest_confidence" mapstructure:"suggest_confidence"`   // Intent confidence that raises a suggestion

	// === Latency ===
	TargetLatency time.Duration `json:"target_latency" mapstructure:"target_latency"` // SLA for one tick
	LatencyWindow int           `json:"latency_window" mapstructure:"latency_window"` // Samples in the rolling history

	// === Events ===
	EventCooldown time.Duration `json:"event_cooldown" mapstructure:"event_cooldown"` // Min gap between identical events

	// === Features ===
	EnableEdge   bool `json:"enable_edge" mapstructure:"enable_edge"`     // Load and run on-device models
	EnableStream bool `json:"enable_stream" mapstructure:"enable_stream"` // Connect the outbound stream

	Capture frame.Config `json:"capture" mapstructure:"capture"`
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		TickInterval:       time.Second / 30,
		RelevanceThreshold: 0.7,
		SuggestConfidence:  0.8,
		TargetLatency:      50 * time.Millisecond,
		LatencyWindow:      100,
		EventCooldown:      5 * time.Second,
		EnableEdge:         true,
		EnableStream:       false,
		Capture:            frame.DefaultConfig(),
	}
}
