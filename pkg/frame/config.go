package frame

import (
	"fmt"
	"time"
)

// Config holds capture parameters.
type Config struct {
	// === Geometry ===
	Width  int    `json:"width" mapstructure:"width"`   // Capture width in pixels
	Height int    `json:"height" mapstructure:"height"` // Capture height in pixels
	Format Format `json:"format" mapstructure:"format"` // Pixel format requested from the capturer

	// === Cadence ===
	// TargetFPS sets the capture tick interval (1000/TargetFPS ms).
	TargetFPS int `json:"target_fps" mapstructure:"target_fps"`

	// BitrateKbps is the encoder target. Changed live by AdjustQuality.
	BitrateKbps int `json:"bitrate_kbps" mapstructure:"bitrate_kbps"`

	// Quality is the preset currently applied.
	Quality Quality `json:"quality" mapstructure:"quality"`

	// === Buffering / streaming ===
	BufferSize       int `json:"buffer_size" mapstructure:"buffer_size"`             // Ring capacity
	KeyframeInterval int `json:"keyframe_interval" mapstructure:"keyframe_interval"` // Frames between keyframes

	// Device selects the capture device for device-backed capturers.
	Device string `json:"device" mapstructure:"device"`
}

// DefaultConfig returns 1080p capture at the high preset.
func DefaultConfig() Config {
	high := Presets()[QualityHigh]
	return Config{
		Width:            1920,
		Height:           1080,
		Format:           FormatBGR,
		TargetFPS:        high.FPS,
		BitrateKbps:      high.BitrateKbps,
		Quality:          QualityHigh,
		BufferSize:       DefaultBufferSize,
		KeyframeInterval: 30,
		Device:           "0",
	}
}

// Interval returns the capture tick interval.
func (c Config) Interval() time.Duration {
	if c.TargetFPS <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.TargetFPS)
}

// Validate checks the configuration for impossible values.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("frame: invalid size %dx%d", c.Width, c.Height)
	}
	if c.TargetFPS <= 0 || c.TargetFPS > 240 {
		return fmt.Errorf("frame: target fps %d out of range 1-240", c.TargetFPS)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("frame: buffer size must be positive, got %d", c.BufferSize)
	}
	if c.KeyframeInterval <= 0 {
		return fmt.Errorf("frame: keyframe interval must be positive, got %d", c.KeyframeInterval)
	}
	if c.Quality != "" {
		if _, ok := Presets()[c.Quality]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownQuality, c.Quality)
		}
	}
	return nil
}
