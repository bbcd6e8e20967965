package overlay

import "sync/atomic"

// Surface is a drawing backend. The renderer calls Clear, then DrawTarget for
// each target, then Present, all from its render goroutine.
type Surface interface {
	Clear() error
	DrawTarget(t Target, c Color) error
	Present() error
	Close() error
}

// NullSurface discards all drawing and counts presented frames.
type NullSurface struct {
	frames atomic.Uint64
	closed atomic.Bool
}

func (*NullSurface) Clear() error { return nil }
func (*NullSurface) DrawTarget(Target, Color) error { return nil }

func (s *NullSurface) Present() error {
	s.frames.Add(1)
	return nil
}

func (s *NullSurface) Close() error {
	s.closed.Store(true)
	return nil
}

// Frames returns the number of presented frames.
func (s *NullSurface) Frames() uint64 { return s.frames.Load() }

// Closed reports whether Close was called.
func (s *NullSurface) Closed() bool { return s.closed.Load() }
