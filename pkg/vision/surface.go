package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/screen-guide/pkg/overlay"
)

// ErrSurfaceClosed is returned when drawing on a closed surface.
var ErrSurfaceClosed = errors.New("vision: surface closed")

// MatSurface rasterizes overlay targets into an OpenCV image. The last
// presented frame is kept and can be exported as PNG.
type MatSurface struct {
	mu        sync.Mutex
	canvas    gocv.Mat
	presented gocv.Mat
	frames    uint64
	closed    bool
	thickness int
}

// NewMatSurface creates a width x height BGR surface.
func NewMatSurface(width, height int) (*MatSurface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("vision: invalid surface size %dx%d", width, height)
	}
	return &MatSurface{
		canvas:    gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3),
		presented: gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3),
		thickness: 3,
	}, nil
}

// Clear blanks the canvas.
func (s *MatSurface) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSurfaceClosed
	}
	s.canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return nil
}

// DrawTarget outlines t and writes its label above the box.
func (s *MatSurface) DrawTarget(t overlay.Target, c overlay.Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSurfaceClosed
	}
	rgba := color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A}
	r := image.Rect(int(t.X), int(t.Y), int(t.X+t.Width), int(t.Y+t.Height))
	gocv.Rectangle(&s.canvas, r, rgba, s.thickness)
	if t.Label != "" {
		org := image.Pt(r.Min.X, max(r.Min.Y-6, 12))
		gocv.PutText(&s.canvas, t.Label, org, gocv.FontHersheySimplex, 0.5, rgba, 1)
	}
	return nil
}

// Present publishes the canvas as the current frame.
func (s *MatSurface) Present() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSurfaceClosed
	}
	s.canvas.CopyTo(&s.presented)
	s.frames++
	return nil
}

// Frames returns the number of presented frames.
func (s *MatSurface) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// PNG encodes the last presented frame.
func (s *MatSurface) PNG() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSurfaceClosed
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, s.presented)
	if err != nil {
		return nil, fmt.Errorf("vision: encode png: %w", err)
	}
	defer buf.Close()
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases both images.
func (s *MatSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.canvas.Close()
	s.presented.Close()
	return nil
}
