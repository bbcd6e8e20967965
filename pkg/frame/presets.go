package frame

// Quality names a streaming preset.
type Quality string

// Quality levels for AdjustQuality.
const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Preset is the bitrate and frame rate for one quality level.
type Preset struct {
	BitrateKbps int `json:"bitrate_kbps"`
	FPS         int `json:"fps"`
}

// Presets returns all quality presets.
func Presets() map[Quality]Preset {
	return map[Quality]Preset{
		QualityLow:    {BitrateKbps: 500, FPS: 15},
		QualityMedium: {BitrateKbps: 1000, FPS: 24},
		QualityHigh:   {BitrateKbps: 2000, FPS: 30},
	}
}

// QualityNames returns the preset names from lowest to highest.
func QualityNames() []Quality {
	return []Quality{QualityLow, QualityMedium, QualityHigh}
}

// GetPreset returns the preset for q.
func GetPreset(q Quality) (Preset, bool) {
	p, ok := Presets()[q]
	return p, ok
}
