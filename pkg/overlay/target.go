// Package overlay draws guidance targets over the user's screen at a fixed
// frame rate, independent of the inference cadence.
package overlay

import (
	"fmt"

	"github.com/teslashibe/screen-guide/pkg/priority"
)

// Target is one highlighted region.
type Target struct {
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Label      string         `json:"label"`
	Confidence float64        `json:"confidence"`
	Priority   priority.Level `json:"priority"`
}

// Contains reports whether (x, y) falls inside the target.
func (t Target) Contains(x, y float64) bool {
	return x >= t.X && x <= t.X+t.Width && y >= t.Y && y <= t.Y+t.Height
}

// Color is an 8-bit RGBA color.
type Color struct {
	R, G, B, A uint8
}

// Hex returns the color as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Priority colors.
var (
	ColorCritical = Color{R: 255, G: 51, B: 51, A: 255}  // red
	ColorHigh     = Color{R: 255, G: 153, B: 0, A: 255}  // orange
	ColorMedium   = Color{R: 51, G: 204, B: 77, A: 255}  // green
	ColorLow      = Color{R: 102, G: 153, B: 255, A: 255} // blue
)

// ColorFor maps a priority to its highlight color. Unknown levels render as low.
func ColorFor(p priority.Level) Color {
	switch p {
	case priority.Critical:
		return ColorCritical
	case priority.High:
		return ColorHigh
	case priority.Medium:
		return ColorMedium
	default:
		return ColorLow
	}
}
