package edge

import (
	"log/slog"
	"time"
)

// Config holds engine configuration.
type Config struct {
	// Per-model budgets. Exceeding one is logged and counted, never enforced.
	DetectionBudget      time.Duration
	ClassificationBudget time.Duration
	TextBudget           time.Duration
	TotalBudget          time.Duration

	// Warmup input
	WarmupWidth  int    // Synthetic frame width
	WarmupHeight int    // Synthetic frame height
	WarmupText   string // Synthetic text

	// LoadTimeout bounds each model's load plus warmup.
	LoadTimeout time.Duration

	// Logger for engine operations.
	Logger *slog.Logger
}

// DefaultConfig returns the documented budgets.
func DefaultConfig() Config {
	return Config{
		DetectionBudget:      15 * time.Millisecond,
		ClassificationBudget: 20 * time.Millisecond,
		TextBudget:           10 * time.Millisecond,
		TotalBudget:          45 * time.Millisecond,
		WarmupWidth:          224,
		WarmupHeight:         224,
		WarmupText:           "warmup",
		LoadTimeout:          30 * time.Second,
		Logger:               slog.Default(),
	}
}

// Option configures the engine.
type Option func(*Config)

// WithBudgets overrides the per-model budgets.
func WithBudgets(detection, classification, text, total time.Duration) Option {
	return func(c *Config) {
		c.DetectionBudget = detection
		c.ClassificationBudget = classification
		c.TextBudget = text
		c.TotalBudget = total
	}
}

// WithLoadTimeout sets the per-model load timeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.LoadTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
