package behavior

import "time"

// Config holds tracker parameters.
type Config struct {
	// === Rolling windows ===
	MoveWindow   time.Duration `json:"move_window" mapstructure:"move_window"`     // Pointer-move buffer span
	ScrollWindow time.Duration `json:"scroll_window" mapstructure:"scroll_window"` // Scroll buffer span
	ClickWindow  time.Duration `json:"click_window" mapstructure:"click_window"`   // Click buffer span

	// === Hesitation ===
	HesitationDelay   time.Duration `json:"hesitation_delay" mapstructure:"hesitation_delay"`     // Stillness that counts as hesitation
	MovementThreshold float64       `json:"movement_threshold" mapstructure:"movement_threshold"` // Pixels that count as real movement

	// === Repeat attempts ===
	RepeatDistance float64       `json:"repeat_distance" mapstructure:"repeat_distance"` // Pixels between clicks on "the same" target
	RepeatWindow   time.Duration `json:"repeat_window" mapstructure:"repeat_window"`     // Max gap between repeated clicks

	// === Movement / scroll analysis ===
	ErraticMinMoves   int     `json:"erratic_min_moves" mapstructure:"erratic_min_moves"`     // Moves needed before scoring erratic movement
	ScrollMinSamples  int     `json:"scroll_min_samples" mapstructure:"scroll_min_samples"`   // Scrolls needed before classifying
	SmoothVariance    float64 `json:"smooth_variance" mapstructure:"smooth_variance"`         // Below this: smooth
	UncertainVariance float64 `json:"uncertain_variance" mapstructure:"uncertain_variance"` // Below this: uncertain, else jerky

	// === Heatmap ===
	HeatmapCellSize  float64 `json:"heatmap_cell_size" mapstructure:"heatmap_cell_size"`
	HeatmapMaxCells  int     `json:"heatmap_max_cells" mapstructure:"heatmap_max_cells"`
	HeatmapKeepCells int     `json:"heatmap_keep_cells" mapstructure:"heatmap_keep_cells"`

	// === Analysis loop ===
	AnalysisInterval time.Duration `json:"analysis_interval" mapstructure:"analysis_interval"`
	HistorySize      int           `json:"history_size" mapstructure:"history_size"`

	// DefaultClickAccuracy is reported when clicks cannot be checked against targets.
	DefaultClickAccuracy float64 `json:"default_click_accuracy" mapstructure:"default_click_accuracy"`
}

// DefaultConfig returns the production tracker settings.
func DefaultConfig() Config {
	return Config{
		MoveWindow:   5 * time.Second,
		ScrollWindow: 3 * time.Second,
		ClickWindow:  10 * time.Second,

		HesitationDelay:   2 * time.Second,
		MovementThreshold: 5,

		RepeatDistance: 50,
		RepeatWindow:   5 * time.Second,

		ErraticMinMoves:   10,
		ScrollMinSamples:  5,
		SmoothVariance:    0.1,
		UncertainVariance: 0.5,

		HeatmapCellSize:  50,
		HeatmapMaxCells:  1000,
		HeatmapKeepCells: 500,

		AnalysisInterval: 500 * time.Millisecond,
		HistorySize:      20,

		DefaultClickAccuracy: 0.85,
	}
}
