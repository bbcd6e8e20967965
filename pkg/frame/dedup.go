package frame

import (
	"hash/fnv"
	"sync"
)

// DuplicateDetector decides whether a frame repeats the previous one and can
// skip encoding.
type DuplicateDetector interface {
	IsDuplicate(f Frame) bool
	Reset()
}

// AlwaysProcess never reports duplicates.
type AlwaysProcess struct{}

// IsDuplicate always returns false.
func (AlwaysProcess) IsDuplicate(Frame) bool { return false }

// Reset is a no-op.
func (AlwaysProcess) Reset() {}

// ChecksumDetector flags a frame whose pixel checksum and size match the
// previous frame's.
type ChecksumDetector struct {
	mu   sync.Mutex
	last uint64
	w, h int
	seen bool
}

// IsDuplicate hashes f and compares it with the previous frame.
func (d *ChecksumDetector) IsDuplicate(f Frame) bool {
	h := fnv.New64a()
	_, _ = h.Write(f.Pixels)
	sum := h.Sum64()

	d.mu.Lock()
	defer d.mu.Unlock()
	dup := d.seen && sum == d.last && f.Width == d.w && f.Height == d.h
	d.last, d.w, d.h, d.seen = sum, f.Width, f.Height, true
	return dup
}

// Reset forgets the previous frame.
func (d *ChecksumDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = false
}

// Encoder turns a frame into the payload sent on the stream.
type Encoder interface {
	Encode(f Frame) ([]byte, error)
}

// RawEncoder forwards pixels unchanged.
type RawEncoder struct{}

// Encode returns the frame's pixels.
func (RawEncoder) Encode(f Frame) ([]byte, error) { return f.Pixels, nil }
