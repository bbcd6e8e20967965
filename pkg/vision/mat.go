// Package vision holds the OpenCV-backed implementations of the pipeline's
// device boundaries: a camera/screen capturer, a JPEG stream encoder, ONNX
// element detection and content classification, and a raster overlay surface.
package vision

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/screen-guide/pkg/frame"
)

// ErrEmptyFrame is returned when a frame carries no pixels.
var ErrEmptyFrame = errors.New("vision: empty frame")

// ToMat converts f to a BGR Mat. The caller must Close the result.
func ToMat(f frame.Frame) (gocv.Mat, error) {
	if len(f.Pixels) == 0 {
		return gocv.NewMat(), ErrEmptyFrame
	}

	if f.Format == frame.FormatJPEG {
		m, err := gocv.IMDecode(f.Pixels, gocv.IMReadColor)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("vision: decode jpeg: %w", err)
		}
		if m.Empty() {
			m.Close()
			return gocv.NewMat(), fmt.Errorf("vision: decode jpeg: %w", ErrEmptyFrame)
		}
		return m, nil
	}

	var (
		mt   gocv.MatType
		code gocv.ColorConversionCode
		conv bool
	)
	switch f.Format {
	case frame.FormatBGR:
		mt = gocv.MatTypeCV8UC3
	case frame.FormatRGBA:
		mt, code, conv = gocv.MatTypeCV8UC4, gocv.ColorRGBAToBGR, true
	case frame.FormatGray:
		mt, code, conv = gocv.MatTypeCV8UC1, gocv.ColorGrayToBGR, true
	default:
		return gocv.NewMat(), fmt.Errorf("vision: unsupported format %q", f.Format)
	}

	if want := f.Width * f.Height * f.Format.BytesPerPixel(); len(f.Pixels) != want {
		return gocv.NewMat(), fmt.Errorf("vision: %dx%d %s frame has %d bytes, want %d",
			f.Width, f.Height, f.Format, len(f.Pixels), want)
	}

	src, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Pixels)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("vision: wrap pixels: %w", err)
	}
	if !conv {
		return src, nil
	}
	defer src.Close()

	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, code)
	return dst, nil
}

// FromMat copies a BGR Mat into a frame.
func FromMat(m gocv.Mat) frame.Frame {
	return frame.Frame{
		Pixels: m.ToBytes(),
		Width:  m.Cols(),
		Height: m.Rows(),
		Format: frame.FormatBGR,
	}
}
