package frame

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/screen-guide/internal/log"
	"github.com/teslashibe/screen-guide/pkg/clock"
	"github.com/teslashibe/screen-guide/pkg/scheduler"
	"github.com/teslashibe/screen-guide/pkg/stream"
)

type recordingStreamer struct {
	mu     sync.Mutex
	chunks []stream.Chunk
	err    error
}

func (r *recordingStreamer) Send(ctx context.Context, c stream.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.chunks = append(r.chunks, c)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 32, 18
	cfg.KeyframeInterval = 3
	cfg.BufferSize = 5
	return cfg
}

func TestInitializeCaptureError(t *testing.T) {
	tests := []struct {
		name     string
		openErr  error
		wantPerm bool
	}{
		{"device unavailable", ErrDeviceUnavailable, false},
		{"permission denied", ErrPermissionDenied, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capt := NewSyntheticCapturer(nil)
			capt.OpenErr = tt.openErr
			src := NewSource(capt, WithLogger(log.Discard()))

			err := src.Initialize(context.Background(), testConfig())
			var ce *CaptureError
			if !errors.As(err, &ce) {
				t.Fatalf("Initialize() error = %v, want *CaptureError", err)
			}
			if !errors.Is(err, tt.openErr) {
				t.Errorf("error does not wrap %v", tt.openErr)
			}
			if ce.IsPermission() != tt.wantPerm {
				t.Errorf("IsPermission() = %v", ce.IsPermission())
			}
			if src.Initialized() {
				t.Error("source initialized after failure")
			}

			// Retrying after the device recovers succeeds.
			capt.OpenErr = nil
			if err := src.Initialize(context.Background(), testConfig()); err != nil {
				t.Fatalf("retry Initialize() error = %v", err)
			}
		})
	}
}

func TestInitializeValidates(t *testing.T) {
	src := NewSource(NewSyntheticCapturer(nil), WithLogger(log.Discard()))
	cfg := testConfig()
	cfg.TargetFPS = 0
	if err := src.Initialize(context.Background(), cfg); err == nil {
		t.Error("Initialize() accepted zero fps")
	}
}

func TestStartRequiresInitialize(t *testing.T) {
	src := NewSource(NewSyntheticCapturer(nil), WithLogger(log.Discard()))
	sched := scheduler.New(log.Discard())
	defer sched.Stop()
	if err := src.Start(sched); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Start() error = %v, want ErrNotInitialized", err)
	}
}

func TestCaptureTickBuffersAndStreams(t *testing.T) {
	fake := clock.NewFake(time.Unix(100, 0))
	streamer := &recordingStreamer{}
	src := NewSource(NewSyntheticCapturer(fake),
		WithClock(fake), WithStreamer(streamer), WithLogger(log.Discard()))
	if err := src.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 7; i++ {
		src.CaptureTick(context.Background())
		fake.Advance(time.Second / 30)
	}

	if got := len(src.Buffer()); got != 5 {
		t.Errorf("len(Buffer()) = %d, want 5", got)
	}
	if len(streamer.chunks) != 7 {
		t.Fatalf("streamed %d chunks, want 7", len(streamer.chunks))
	}
	for i, c := range streamer.chunks {
		if want := i%3 == 0; c.KeyFrame != want {
			t.Errorf("chunk %d KeyFrame = %v, want %v", i, c.KeyFrame, want)
		}
	}

	stats := src.Stats()
	if stats.FramesCaptured != 7 || stats.ChunksStreamed != 7 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.FPS < 29 || stats.FPS > 31 {
		t.Errorf("FPS = %.1f, want ~30", stats.FPS)
	}
	if stats.NetworkQuality != NetworkExcellent {
		t.Errorf("NetworkQuality = %s", stats.NetworkQuality)
	}
	latest, ok := src.Latest()
	if !ok || latest.Seq != 6 {
		t.Errorf("Latest().Seq = %d, %v", latest.Seq, ok)
	}
}

func TestCaptureFailureDoesNotStopLaterTicks(t *testing.T) {
	capt := NewSyntheticCapturer(nil)
	capt.ReadErr = errors.New("grab failed")
	capt.FailEvery = 2
	src := NewSource(capt, WithLogger(log.Discard()))
	if err := src.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 6; i++ {
		src.CaptureTick(context.Background())
	}
	stats := src.Stats()
	if stats.CaptureErrors != 3 || stats.FramesCaptured != 3 {
		t.Errorf("errors=%d captured=%d, want 3/3", stats.CaptureErrors, stats.FramesCaptured)
	}
}

func TestStreamFailureKeepsLocalCapture(t *testing.T) {
	streamer := &recordingStreamer{err: stream.ErrNotConnected}
	src := NewSource(NewSyntheticCapturer(nil), WithStreamer(streamer), WithLogger(log.Discard()))
	if err := src.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		src.CaptureTick(context.Background())
	}
	stats := src.Stats()
	if stats.StreamErrors != 4 || stats.FramesCaptured != 4 || stats.Buffered != 4 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestDuplicatesAreDropped(t *testing.T) {
	capt := NewSyntheticCapturer(nil)
	capt.Static = true
	src := NewSource(capt, WithDuplicateDetector(&ChecksumDetector{}), WithLogger(log.Discard()))
	if err := src.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		src.CaptureTick(context.Background())
	}
	stats := src.Stats()
	if stats.FramesCaptured != 1 || stats.FramesDropped != 3 {
		t.Errorf("captured=%d dropped=%d, want 1/3", stats.FramesCaptured, stats.FramesDropped)
	}
}

func TestAdjustQuality(t *testing.T) {
	src := NewSource(NewSyntheticCapturer(nil), WithLogger(log.Discard()))
	if err := src.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}
	sched := scheduler.New(log.Discard())
	defer sched.Stop()
	if err := src.Start(sched); err != nil {
		t.Fatal(err)
	}

	for _, q := range QualityNames() {
		t.Run(string(q), func(t *testing.T) {
			if err := src.AdjustQuality(q); err != nil {
				t.Fatalf("AdjustQuality() error = %v", err)
			}
			preset, _ := GetPreset(q)
			cfg := src.Config()
			if cfg.TargetFPS != preset.FPS || cfg.BitrateKbps != preset.BitrateKbps {
				t.Errorf("config = %+v, want %+v", cfg, preset)
			}
			task, ok := sched.Task(TaskName)
			if !ok || task.Interval() != time.Second/time.Duration(preset.FPS) {
				t.Errorf("capture task interval not updated")
			}
		})
	}

	if err := src.AdjustQuality("ultra"); !errors.Is(err, ErrUnknownQuality) {
		t.Errorf("AdjustQuality(ultra) error = %v", err)
	}
}

func TestGradeFPS(t *testing.T) {
	tests := []struct {
		fps  float64
		want NetworkQuality
	}{
		{30, NetworkExcellent},
		{28, NetworkExcellent},
		{25, NetworkGood},
		{15, NetworkPoor},
		{14.9, NetworkCritical},
		{0, NetworkCritical},
	}
	for _, tt := range tests {
		if got := GradeFPS(tt.fps); got != tt.want {
			t.Errorf("GradeFPS(%v) = %s, want %s", tt.fps, got, tt.want)
		}
	}
}
