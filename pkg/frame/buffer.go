package frame

import "sync"

// DefaultBufferSize holds about one second of frames at 30 FPS.
const DefaultBufferSize = 30

// Buffer is a fixed-capacity ring of frames. Pushing into a full buffer
// evicts the oldest frame. Reads return copies so an eviction can never
// tear an in-flight read.
type Buffer struct {
	mu    sync.RWMutex
	ring  []Frame
	head  int // index of the oldest frame
	count int
}

// NewBuffer creates a ring buffer. Non-positive capacities use DefaultBufferSize.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Buffer{ring: make([]Frame, capacity)}
}

// Push appends a frame, evicting the oldest when full. It reports whether
// a frame was evicted.
func (b *Buffer) Push(f Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.ring)
	if b.count < capacity {
		b.ring[(b.head+b.count)%capacity] = f
		b.count++
		return false
	}
	b.ring[b.head] = f
	b.head = (b.head + 1) % capacity
	return true
}

// Snapshot returns the buffered frames, oldest first.
func (b *Buffer) Snapshot() []Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Frame, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	return out
}

// Latest returns the most recently pushed frame.
func (b *Buffer) Latest() (Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return Frame{}, false
	}
	return b.ring[(b.head+b.count-1)%len(b.ring)], true
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.ring)
}

// Clear drops all frames.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.ring {
		b.ring[i] = Frame{}
	}
	b.head = 0
	b.count = 0
}
