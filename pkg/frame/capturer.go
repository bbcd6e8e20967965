package frame

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/screen-guide/pkg/clock"
)

// Capturer is the boundary to whatever produces raw frames: a screen grabber,
// a camera, or a test fixture.
type Capturer interface {
	// Open prepares the device. Failures are reported as *CaptureError.
	Open(ctx context.Context, config Config) error

	// Read returns the next frame.
	Read(ctx context.Context) (Frame, error)

	// Close releases the device.
	Close() error
}

// SyntheticCapturer generates solid-color frames. It backs tests and the
// "synthetic" capture device so the pipeline can run without a display.
type SyntheticCapturer struct {
	// OpenErr is returned by Open when set.
	OpenErr error

	// ReadErr, when set, is returned by Read for frames whose index makes
	// FailEvery divide evenly (index starts at 1).
	ReadErr   error
	FailEvery int

	// Static makes every frame identical, for duplicate detection.
	Static bool

	clock clock.Clock

	mu     sync.Mutex
	config Config
	opened bool
	reads  int
}

// NewSyntheticCapturer creates a synthetic capturer. A nil clock uses the wall clock.
func NewSyntheticCapturer(c clock.Clock) *SyntheticCapturer {
	if c == nil {
		c = clock.Real{}
	}
	return &SyntheticCapturer{clock: c}
}

// Open records the config.
func (s *SyntheticCapturer) Open(ctx context.Context, config Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return &CaptureError{Device: "synthetic", Op: "open", Err: s.OpenErr}
	}
	s.config = config
	s.opened = true
	s.reads = 0
	return nil
}

// Read produces the next frame. Pixel values cycle with the read count
// unless Static is set.
func (s *SyntheticCapturer) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return Frame{}, &CaptureError{Device: "synthetic", Op: "read", Err: ErrClosed}
	}
	s.reads++
	if s.ReadErr != nil && s.FailEvery > 0 && s.reads%s.FailEvery == 0 {
		return Frame{}, &CaptureError{Device: "synthetic", Op: "read", Err: s.ReadErr}
	}

	w, h := s.config.Width, s.config.Height
	format := s.config.Format
	if format == "" || format.BytesPerPixel() == 0 {
		format = FormatGray
	}
	// Keep synthetic frames small: a 1080p RGBA frame per tick is wasted memory.
	pw, ph := min(w, 64), min(h, 36)
	pixels := make([]byte, pw*ph*format.BytesPerPixel())
	fill := byte(0x80)
	if !s.Static {
		fill = byte(s.reads)
	}
	for i := range pixels {
		pixels[i] = fill
	}

	return Frame{
		Timestamp: s.clock.Now(),
		Pixels:    pixels,
		Width:     pw,
		Height:    ph,
		Format:    format,
	}, nil
}

// Reads returns how many times Read was called since Open.
func (s *SyntheticCapturer) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Close marks the capturer closed.
func (s *SyntheticCapturer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}

// ReplayCapturer plays back a fixed frame sequence, then repeats the last frame.
type ReplayCapturer struct {
	mu     sync.Mutex
	frames []Frame
	next   int
	opened bool
}

// NewReplayCapturer creates a capturer that returns frames in order.
func NewReplayCapturer(frames ...Frame) *ReplayCapturer {
	return &ReplayCapturer{frames: frames}
}

// Open resets playback.
func (r *ReplayCapturer) Open(ctx context.Context, config Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return &CaptureError{Device: "replay", Op: "open", Err: ErrDeviceUnavailable}
	}
	r.next = 0
	r.opened = true
	return nil
}

// Read returns the next recorded frame stamped with the current time.
func (r *ReplayCapturer) Read(ctx context.Context) (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return Frame{}, &CaptureError{Device: "replay", Op: "read", Err: ErrClosed}
	}
	f := r.frames[min(r.next, len(r.frames)-1)]
	r.next++
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	return f, nil
}

// Close stops playback.
func (r *ReplayCapturer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = false
	return nil
}
