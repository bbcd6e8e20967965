package overlay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/screen-guide/internal/log"
	"github.com/teslashibe/screen-guide/pkg/clock"
	"github.com/teslashibe/screen-guide/pkg/priority"
	"github.com/teslashibe/screen-guide/pkg/scheduler"
)

type recordingSurface struct {
	NullSurface
	drawn   []Color
	clears  int
	failing error
}

func (s *recordingSurface) Clear() error {
	s.clears++
	s.drawn = nil
	return nil
}

func (s *recordingSurface) DrawTarget(_ Target, c Color) error {
	if s.failing != nil {
		return s.failing
	}
	s.drawn = append(s.drawn, c)
	return nil
}

func TestColorForIsTotal(t *testing.T) {
	tests := []struct {
		level priority.Level
		want  Color
	}{
		{priority.Critical, ColorCritical},
		{priority.High, ColorHigh},
		{priority.Medium, ColorMedium},
		{priority.Low, ColorLow},
		{priority.Level(42), ColorLow},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := ColorFor(tt.level); got != tt.want {
				t.Errorf("ColorFor(%v) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}

	seen := make(map[Color]bool)
	for _, l := range priority.Levels() {
		seen[ColorFor(l)] = true
	}
	if len(seen) != len(priority.Levels()) {
		t.Errorf("levels share colors: %v", seen)
	}
	if ColorCritical.Hex() != "#ff3333" {
		t.Errorf("ColorCritical.Hex() = %s", ColorCritical.Hex())
	}
}

func TestAddTargetDedupsByLabel(t *testing.T) {
	r := NewRenderer(nil, WithLogger(log.Discard()))
	r.AddTarget(Target{Label: "Compose", X: 1, Priority: priority.Low})
	r.AddTarget(Target{Label: "Send", X: 2})
	r.AddTarget(Target{Label: "Compose", X: 3, Priority: priority.High})

	got := r.Targets()
	if len(got) != 2 {
		t.Fatalf("len(Targets()) = %d, want 2", len(got))
	}
	if got[0].Label != "Compose" || got[0].X != 3 || got[0].Priority != priority.High {
		t.Errorf("Targets()[0] = %+v, want replaced Compose", got[0])
	}

	if !r.RemoveTarget("Send") {
		t.Error("RemoveTarget(Send) = false")
	}
	if r.RemoveTarget("Send") {
		t.Error("RemoveTarget(Send) twice = true")
	}
	r.ClearAll()
	if len(r.Targets()) != 0 {
		t.Error("ClearAll left targets")
	}
}

func TestRenderTick(t *testing.T) {
	clk := clock.NewFake(time.Unix(100, 0))
	surf := &recordingSurface{}
	r := NewRenderer(surf, WithClock(clk), WithLogger(log.Discard()))

	r.RenderTick(context.Background())
	st := r.Stats()
	if st.DrawCalls != 0 || st.Triangles != 0 || st.Errors != 0 {
		t.Errorf("empty frame stats = %+v", st)
	}
	if surf.Frames() != 1 {
		t.Errorf("Frames() = %d, want 1", surf.Frames())
	}

	r.AddTarget(Target{Label: "a", Priority: priority.Critical})
	r.AddTarget(Target{Label: "b", Priority: priority.Medium})
	clk.Advance(16 * time.Millisecond)
	r.RenderTick(context.Background())

	st = r.Stats()
	if st.DrawCalls != 2 || st.Triangles != 2*TrianglesPerTarget {
		t.Errorf("stats = %+v", st)
	}
	if st.FPS < 62 || st.FPS > 63 {
		t.Errorf("FPS = %v, want 62.5", st.FPS)
	}
	if len(surf.drawn) != 2 || surf.drawn[0] != ColorCritical || surf.drawn[1] != ColorMedium {
		t.Errorf("drawn = %v", surf.drawn)
	}
}

func TestRenderTickSurfaceError(t *testing.T) {
	surf := &recordingSurface{failing: errors.New("lost context")}
	r := NewRenderer(surf, WithLogger(log.Discard()))
	r.AddTarget(Target{Label: "a"})
	r.RenderTick(context.Background())
	r.RenderTick(context.Background())
	if got := r.Stats().Errors; got != 2 {
		t.Errorf("Errors = %d, want 2", got)
	}
}

func TestHitTest(t *testing.T) {
	r := NewRenderer(nil, WithLogger(log.Discard()))
	r.AddTarget(Target{Label: "panel", X: 0, Y: 0, Width: 500, Height: 500, Priority: priority.Low})
	r.AddTarget(Target{Label: "button", X: 100, Y: 100, Width: 50, Height: 20, Priority: priority.High})

	tests := []struct {
		x, y   float64
		want   string
		wantOK bool
	}{
		{120, 110, "button", true},
		{10, 10, "panel", true},
		{900, 900, "", false},
	}
	for _, tt := range tests {
		got, ok := r.HitTest(tt.x, tt.y)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("HitTest(%v, %v) = %q, %v; want %q, %v", tt.x, tt.y, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRenderLoopAndDispose(t *testing.T) {
	sched := scheduler.New(log.Discard())
	defer sched.Stop()

	surf := &NullSurface{}
	r := NewRenderer(surf, WithFPS(200), WithLogger(log.Discard()))
	if err := r.Start(sched); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for surf.Frames() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("render loop did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := r.Dispose(); err != nil {
		t.Fatal(err)
	}
	if !surf.Closed() {
		t.Error("surface not closed")
	}
	frames := surf.Frames()
	time.Sleep(30 * time.Millisecond)
	if surf.Frames() != frames {
		t.Error("rendering continued after Dispose")
	}
	if err := r.Start(sched); !errors.Is(err, ErrDisposed) {
		t.Errorf("Start() after Dispose = %v, want ErrDisposed", err)
	}
	r.AddTarget(Target{Label: "late"})
	if len(r.Targets()) != 0 {
		t.Error("AddTarget accepted after Dispose")
	}
}
