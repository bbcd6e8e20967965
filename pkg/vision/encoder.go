package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/screen-guide/pkg/frame"
)

// DefaultJPEGQuality is used when JPEGEncoder.Quality is zero.
const DefaultJPEGQuality = 80

// JPEGEncoder compresses frames for the outbound stream.
type JPEGEncoder struct {
	Quality int // 1-100
}

// Encode returns f as JPEG. JPEG frames pass through unchanged.
func (e JPEGEncoder) Encode(f frame.Frame) ([]byte, error) {
	if f.Format == frame.FormatJPEG {
		return f.Pixels, nil
	}
	m, err := ToMat(f)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	q := e.Quality
	if q <= 0 || q > 100 {
		q = DefaultJPEGQuality
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m, []int{gocv.IMWriteJpegQuality, q})
	if err != nil {
		return nil, fmt.Errorf("vision: encode jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory freed by Close.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
