package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/screen-guide/pkg/clock"
	"github.com/teslashibe/screen-guide/pkg/debug"
	"github.com/teslashibe/screen-guide/pkg/scheduler"
	"github.com/teslashibe/screen-guide/pkg/stream"
)

// TaskName is the scheduler task name of the capture loop.
const TaskName = "capture"

// Streamer receives encoded chunks. *stream.Client satisfies it.
type Streamer interface {
	Send(ctx context.Context, chunk stream.Chunk) error
}

// NetworkQuality grades the achieved capture rate.
type NetworkQuality string

// Network quality grades.
const (
	NetworkExcellent NetworkQuality = "excellent"
	NetworkGood      NetworkQuality = "good"
	NetworkPoor      NetworkQuality = "poor"
	NetworkCritical  NetworkQuality = "critical"
)

// GradeFPS maps an achieved frame rate to a network quality grade.
func GradeFPS(fps float64) NetworkQuality {
	switch {
	case fps >= 28:
		return NetworkExcellent
	case fps >= 24:
		return NetworkGood
	case fps >= 15:
		return NetworkPoor
	default:
		return NetworkCritical
	}
}

// Stats is a snapshot of capture counters.
type Stats struct {
	FPS            float64        `json:"fps"`
	BitrateBps     int64          `json:"bitrate_bps"`
	FramesCaptured uint64         `json:"frames_captured"`
	FramesDropped  uint64         `json:"frames_dropped"`
	CaptureErrors  uint64         `json:"capture_errors"`
	StreamErrors   uint64         `json:"stream_errors"`
	ChunksStreamed uint64         `json:"chunks_streamed"`
	Buffered       int            `json:"buffered"`
	NetworkQuality NetworkQuality `json:"network_quality"`
	Quality        Quality        `json:"quality"`
	TargetFPS      int            `json:"target_fps"`
}

// Option configures a Source.
type Option func(*Source)

// WithEncoder sets the stream payload encoder. Default: RawEncoder.
func WithEncoder(e Encoder) Option {
	return func(s *Source) { s.encoder = e }
}

// WithStreamer sets the outbound channel. Default: none.
func WithStreamer(st Streamer) Option {
	return func(s *Source) { s.streamer = st }
}

// WithDuplicateDetector sets the duplicate strategy. Default: AlwaysProcess.
func WithDuplicateDetector(d DuplicateDetector) Option {
	return func(s *Source) { s.dedup = d }
}

// WithClock sets the time source used for stats.
func WithClock(c clock.Clock) Option {
	return func(s *Source) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// Source owns the frame buffer. The capture task is its only writer.
type Source struct {
	capturer Capturer
	encoder  Encoder
	dedup    DuplicateDetector
	clock    clock.Clock
	logger   *slog.Logger

	mu          sync.Mutex
	streamer    Streamer
	config      Config
	initialized bool
	task        *scheduler.Task
	buffer      *Buffer
	frameCount  uint64
	lastCapture time.Time
	fps         float64
	bitrate     int64
	streamDown  bool

	captured      atomic.Uint64
	dropped       atomic.Uint64
	captureErrors atomic.Uint64
	streamErrors  atomic.Uint64
	streamed      atomic.Uint64
}

// NewSource creates a frame source around a capturer.
func NewSource(capturer Capturer, opts ...Option) *Source {
	s := &Source{
		capturer: capturer,
		encoder:  RawEncoder{},
		dedup:    AlwaysProcess{},
		clock:    clock.Real{},
		logger:   slog.Default(),
		buffer:   NewBuffer(DefaultBufferSize),
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "frame.source")
	return s
}

// Initialize opens the capturer. A failure is returned as *CaptureError and
// leaves the source uninitialized; calling Initialize again retries.
func (s *Source) Initialize(ctx context.Context, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	if err := s.capturer.Open(ctx, config); err != nil {
		var ce *CaptureError
		if !errors.As(err, &ce) {
			err = &CaptureError{Device: config.Device, Op: "open", Err: err}
		}
		s.logger.Error("capture initialization failed", "error", err)
		return err
	}

	s.mu.Lock()
	s.config = config
	s.buffer = NewBuffer(config.BufferSize)
	s.frameCount = 0
	s.lastCapture = time.Time{}
	s.fps = 0
	s.initialized = true
	s.mu.Unlock()

	s.dedup.Reset()
	s.logger.Info("capture initialized",
		"width", config.Width, "height", config.Height,
		"fps", config.TargetFPS, "quality", config.Quality)
	return nil
}

// Start schedules the capture loop at 1000/TargetFPS ms.
func (s *Source) Start(sched *scheduler.Scheduler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	if s.task != nil {
		return nil
	}
	task, err := sched.Every(TaskName, s.config.Interval(), s.CaptureTick)
	if err != nil {
		return fmt.Errorf("frame: schedule capture: %w", err)
	}
	s.task = task
	return nil
}

// SetStreamer attaches or detaches the outbound channel at runtime.
func (s *Source) SetStreamer(st Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamer = st
	s.streamDown = false
}

// CaptureTick reads one frame, buffers it and streams the encoded payload.
// A failure on one tick is logged and never affects later ticks.
func (s *Source) CaptureTick(ctx context.Context) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}
	keyframeInterval := uint64(s.config.KeyframeInterval)
	s.mu.Unlock()

	f, err := s.capturer.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.captureErrors.Add(1)
		s.logger.Warn("frame capture failed", "error", err)
		return
	}

	if s.dedup.IsDuplicate(f) {
		s.dropped.Add(1)
		return
	}

	now := s.clock.Now()
	s.mu.Lock()
	f.Seq = s.frameCount
	s.frameCount++
	keyframe := f.Seq%keyframeInterval == 0
	s.buffer.Push(f)
	s.updateRate(now)
	streamer := s.streamer
	targetFPS := s.config.TargetFPS
	s.mu.Unlock()
	s.captured.Add(1)

	debug.Log("frame captured", "seq", f.Seq, "keyframe", keyframe)

	if streamer == nil {
		return
	}
	payload, err := s.encoder.Encode(f)
	if err != nil {
		s.logger.Warn("frame encode failed", "seq", f.Seq, "error", err)
		return
	}

	s.mu.Lock()
	s.bitrate = int64(len(payload)) * 8 * int64(targetFPS)
	s.mu.Unlock()

	if err := streamer.Send(ctx, stream.NewChunk(keyframe, f.Timestamp, payload)); err != nil {
		s.streamErrors.Add(1)
		s.mu.Lock()
		first := !s.streamDown
		s.streamDown = true
		s.mu.Unlock()
		if first {
			s.logger.Warn("stream send failed, continuing locally", "error", err)
		}
		return
	}
	s.streamed.Add(1)
	s.mu.Lock()
	if s.streamDown {
		s.logger.Info("stream recovered")
	}
	s.streamDown = false
	s.mu.Unlock()
}

// updateRate recomputes the instantaneous capture rate. Caller holds mu.
func (s *Source) updateRate(now time.Time) {
	if !s.lastCapture.IsZero() {
		if dt := now.Sub(s.lastCapture); dt > 0 {
			s.fps = float64(time.Second) / float64(dt)
		}
	}
	s.lastCapture = now
}

// AdjustQuality applies a quality preset live, retiming the capture task.
func (s *Source) AdjustQuality(q Quality) error {
	preset, ok := GetPreset(q)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQuality, q)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Quality = q
	s.config.TargetFPS = preset.FPS
	s.config.BitrateKbps = preset.BitrateKbps
	if s.task != nil {
		if err := s.task.Reset(s.config.Interval()); err != nil {
			return err
		}
	}
	s.logger.Info("quality adjusted", "quality", q, "fps", preset.FPS, "bitrate_kbps", preset.BitrateKbps)
	return nil
}

// Buffer returns a snapshot of the buffered frames, oldest first.
func (s *Source) Buffer() []Frame {
	s.mu.Lock()
	buf := s.buffer
	s.mu.Unlock()
	return buf.Snapshot()
}

// Latest returns the newest buffered frame.
func (s *Source) Latest() (Frame, bool) {
	s.mu.Lock()
	buf := s.buffer
	s.mu.Unlock()
	return buf.Latest()
}

// Config returns the active configuration.
func (s *Source) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Initialized reports whether Initialize succeeded.
func (s *Source) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Stats returns a snapshot of capture counters.
func (s *Source) Stats() Stats {
	s.mu.Lock()
	fps := s.fps
	bitrate := s.bitrate
	cfg := s.config
	buffered := s.buffer.Len()
	s.mu.Unlock()

	return Stats{
		FPS:            fps,
		BitrateBps:     bitrate,
		FramesCaptured: s.captured.Load(),
		FramesDropped:  s.dropped.Load(),
		CaptureErrors:  s.captureErrors.Load(),
		StreamErrors:   s.streamErrors.Load(),
		ChunksStreamed: s.streamed.Load(),
		Buffered:       buffered,
		NetworkQuality: GradeFPS(fps),
		Quality:        cfg.Quality,
		TargetFPS:      cfg.TargetFPS,
	}
}

// Stop cancels the capture task but keeps the device open.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
}

// Close stops capture and releases the device.
func (s *Source) Close() error {
	s.Stop()
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
	return s.capturer.Close()
}
