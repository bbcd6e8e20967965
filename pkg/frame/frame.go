// Package frame captures screen frames, keeps a bounded rolling buffer of
// them and forwards an encoded copy to the outbound stream.
package frame

import "time"

// Format identifies the pixel layout of a Frame.
type Format string

// Supported pixel formats.
const (
	FormatRGBA Format = "rgba"
	FormatBGR  Format = "bgr"
	FormatGray Format = "gray"
	FormatJPEG Format = "jpeg"
)

// BytesPerPixel returns the raw pixel width of the format, or 0 for
// compressed formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGBA:
		return 4
	case FormatBGR:
		return 3
	case FormatGray:
		return 1
	default:
		return 0
	}
}

// Frame is one captured image sample. A Frame is immutable once created:
// Pixels must not be modified by holders of the value.
type Frame struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Pixels    []byte    `json:"-"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Format    Format    `json:"format"`
}

// New creates a Frame that owns a private copy of pixels.
func New(ts time.Time, pixels []byte, width, height int, format Format) Frame {
	owned := make([]byte, len(pixels))
	copy(owned, pixels)
	return Frame{
		Timestamp: ts,
		Pixels:    owned,
		Width:     width,
		Height:    height,
		Format:    format,
	}
}

// IsZero reports whether f is the zero Frame.
func (f Frame) IsZero() bool {
	return f.Timestamp.IsZero() && f.Width == 0 && f.Height == 0 && len(f.Pixels) == 0
}

// Size returns the frame dimensions.
func (f Frame) Size() (int, int) {
	return f.Width, f.Height
}
