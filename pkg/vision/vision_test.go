package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/teslashibe/screen-guide/pkg/edge"
	"github.com/teslashibe/screen-guide/pkg/frame"
	"github.com/teslashibe/screen-guide/pkg/overlay"
	"github.com/teslashibe/screen-guide/pkg/priority"
)

// tensor builds a channel-major [4+classes, n] output.
func tensor(classes int, cands ...[]float32) []float32 {
	rows, n := 4+classes, len(cands)
	data := make([]float32, rows*n)
	for i, c := range cands {
		for r, v := range c {
			data[r*n+i] = v
		}
	}
	return data
}

func TestParseCandidates(t *testing.T) {
	classes := len(edge.ElementTypes)
	button := []float32{160, 120, 120, 40, 0.9, 0.05}
	weak := []float32{300, 300, 10, 10, 0.2, 0.3}
	input := []float32{320, 200, 200, 30, 0.1, 0.8}

	got := parseCandidates(tensor(classes, button, weak, input), 4+classes, 3, 0.5, 2, 1)
	if len(got) != 2 {
		t.Fatalf("parseCandidates() = %d candidates, want 2", len(got))
	}
	if got[0].class != 0 || got[0].box.Min.X != 200 || got[0].box.Max.X != 440 || got[0].box.Min.Y != 100 {
		t.Errorf("button candidate = %+v", got[0])
	}
	if got[1].class != 1 || math.Abs(float64(got[1].score)-0.8) > 1e-6 {
		t.Errorf("input candidate = %+v", got[1])
	}

	if parseCandidates([]float32{1, 2}, 4+classes, 3, 0.5, 1, 1) != nil {
		t.Error("short tensor should yield nothing")
	}
}

func TestToElementLabelIsStable(t *testing.T) {
	a := toElement(candidate{box: imageRect(103, 98, 220, 140), score: 0.9, class: 0}, 50)
	b := toElement(candidate{box: imageRect(108, 96, 224, 141), score: 0.8, class: 0}, 50)
	if a.Label != b.Label {
		t.Errorf("labels differ for jittered boxes: %q vs %q", a.Label, b.Label)
	}
	if a.Label != "button@2,1" || a.Priority != priority.High || a.Type != edge.ElementButton {
		t.Errorf("element = %+v", a)
	}
}

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		t    edge.ElementType
		want priority.Level
	}{
		{edge.ElementButton, priority.High},
		{edge.ElementInput, priority.Medium},
		{edge.ElementCheckbox, priority.Medium},
		{edge.ElementLink, priority.Low},
		{edge.ElementImage, priority.Low},
	}
	for _, tt := range tests {
		t.Run(string(tt.t), func(t *testing.T) {
			if got := PriorityFor(tt.t); got != tt.want {
				t.Errorf("PriorityFor(%s) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	logits := make([]float32, len(edge.Categories))
	logits[5] = 4 // scam

	got := classify(logits)
	if got.Category != edge.CategoryScam {
		t.Errorf("Category = %s, want scam", got.Category)
	}
	want := math.Exp(4) / (math.Exp(4) + float64(len(logits)-1))
	if math.Abs(got.Confidence-want) > 1e-6 {
		t.Errorf("Confidence = %f, want %f", got.Confidence, want)
	}

	if got := classify(nil); got.Category != edge.CategoryUnknown {
		t.Errorf("classify(nil) = %+v", got)
	}
}

func TestLoadersReportMissingModel(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.ModelPath = "/nonexistent/ui.onnx"
	if _, err := DetectorLoader(cfg)(context.Background()); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("detector loader error = %v, want ErrModelNotFound", err)
	}

	ccfg := DefaultClassifierConfig()
	ccfg.ModelPath = "/nonexistent/page.onnx"
	if _, err := ClassifierLoader(ccfg)(context.Background()); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("classifier loader error = %v, want ErrModelNotFound", err)
	}
}

func TestToMat(t *testing.T) {
	tests := []struct {
		name    string
		f       frame.Frame
		wantErr bool
	}{
		{"bgr", frame.New(time.Now(), make([]byte, 4*3*3), 4, 3, frame.FormatBGR), false},
		{"rgba", frame.New(time.Now(), make([]byte, 4*3*4), 4, 3, frame.FormatRGBA), false},
		{"gray", frame.New(time.Now(), make([]byte, 4*3), 4, 3, frame.FormatGray), false},
		{"short buffer", frame.New(time.Now(), make([]byte, 5), 4, 3, frame.FormatBGR), true},
		{"empty", frame.Frame{Format: frame.FormatBGR}, true},
		{"bad jpeg", frame.New(time.Now(), []byte("not a jpeg"), 0, 0, frame.FormatJPEG), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ToMat(tt.f)
			defer m.Close()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToMat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (m.Cols() != 4 || m.Rows() != 3 || m.Channels() != 3) {
				t.Errorf("mat = %dx%d c%d", m.Cols(), m.Rows(), m.Channels())
			}
		})
	}
}

func TestJPEGRoundTrip(t *testing.T) {
	f := frame.New(time.Now(), bytes.Repeat([]byte{0x40}, 32*18*3), 32, 18, frame.FormatBGR)
	data, err := JPEGEncoder{Quality: 90}.Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatalf("not a JPEG: % x", data[:min(len(data), 4)])
	}

	m, err := ToMat(frame.Frame{Pixels: data, Format: frame.FormatJPEG})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if m.Cols() != 32 || m.Rows() != 18 {
		t.Errorf("decoded %dx%d", m.Cols(), m.Rows())
	}
}

func TestMatSurface(t *testing.T) {
	if _, err := NewMatSurface(0, 10); err == nil {
		t.Error("NewMatSurface accepted zero width")
	}

	s, err := NewMatSurface(320, 240)
	if err != nil {
		t.Fatal(err)
	}
	r := overlay.NewRenderer(s)
	r.AddTarget(overlay.Target{X: 20, Y: 30, Width: 100, Height: 40, Label: "Compose Email", Priority: priority.High})
	r.RenderTick(context.Background())

	if s.Frames() != 1 {
		t.Errorf("Frames() = %d, want 1", s.Frames())
	}
	png, err := s.PNG()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("PNG() did not return a PNG")
	}

	if err := r.Dispose(); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); !errors.Is(err, ErrSurfaceClosed) {
		t.Errorf("Clear() after close = %v", err)
	}
}

func imageRect(x0, y0, x1, y1 int) image.Rectangle { return image.Rect(x0, y0, x1, y1) }
