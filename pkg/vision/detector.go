package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/screen-guide/pkg/debug"
	"github.com/teslashibe/screen-guide/pkg/edge"
	"github.com/teslashibe/screen-guide/pkg/frame"
	"github.com/teslashibe/screen-guide/pkg/priority"
)

// ErrModelNotFound is returned when a model file is missing.
var ErrModelNotFound = errors.New("vision: model file not found")

// DetectorConfig holds element detector settings.
type DetectorConfig struct {
	ModelPath        string  `mapstructure:"model_path"`
	ConfidenceThresh float32 `mapstructure:"confidence"`
	NMSThresh        float32 `mapstructure:"nms"`
	InputWidth       int     `mapstructure:"input_width"`
	InputHeight      int     `mapstructure:"input_height"`
	// LabelGrid quantizes box positions in labels so the same element keeps
	// its label across frames despite jitter.
	LabelGrid int `mapstructure:"label_grid"`
}

// DefaultDetectorConfig returns defaults for a YOLOv8-style UI model.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ModelPath:        "models/ui_elements.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		LabelGrid:        50,
	}
}

// ElementDetector finds UI elements with an ONNX network whose output is
// [1, 4+classes, candidates]: (cx, cy, w, h) then one score per class in
// edge.ElementTypes order.
type ElementDetector struct {
	net       gocv.Net
	config    DetectorConfig
	mu        sync.Mutex
	inputSize image.Point
}

// NewElementDetector loads the model.
func NewElementDetector(cfg DetectorConfig) (*ElementDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("vision: load detector from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if cfg.LabelGrid <= 0 {
		cfg.LabelGrid = DefaultDetectorConfig().LabelGrid
	}
	return &ElementDetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// DetectorLoader adapts NewElementDetector to the engine's loader type.
func DetectorLoader(cfg DetectorConfig) edge.Loader[frame.Frame, []edge.Element] {
	return func(ctx context.Context) (edge.ElementDetector, error) {
		return NewElementDetector(cfg)
	}
}

// Name identifies the backend.
func (d *ElementDetector) Name() string { return "onnx" }

// Infer detects elements in f.
func (d *ElementDetector) Infer(ctx context.Context, f frame.Frame) ([]edge.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := ToMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("vision: detector output has shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("vision: read detector output: %w", err)
	}

	cands := parseCandidates(data, dims[1], dims[2], d.config.ConfidenceThresh,
		float32(img.Cols())/float32(d.config.InputWidth),
		float32(img.Rows())/float32(d.config.InputHeight))
	if len(cands) == 0 {
		return []edge.Element{}, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i], scores[i] = c.box, c.score
	}
	keep := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)

	elements := make([]edge.Element, 0, len(keep))
	for _, idx := range keep {
		elements = append(elements, toElement(cands[idx], d.config.LabelGrid))
	}
	debug.Log("elements detected", "count", len(elements))
	return elements, nil
}

// Close releases the network.
func (d *ElementDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

type candidate struct {
	box   image.Rectangle
	score float32
	class int
}

// parseCandidates reads a channel-major [rows, n] tensor: rows 0-3 hold
// (cx, cy, w, h) in model input pixels, rows 4+ hold class scores. Boxes
// are scaled by (sx, sy) to frame pixels.
func parseCandidates(data []float32, rows, n int, thresh, sx, sy float32) []candidate {
	classes := rows - 4
	if classes <= 0 || len(data) < rows*n {
		return nil
	}
	if classes > len(edge.ElementTypes) {
		classes = len(edge.ElementTypes)
	}

	var out []candidate
	for i := 0; i < n; i++ {
		best, cls := float32(0), -1
		for c := 0; c < classes; c++ {
			if s := data[(4+c)*n+i]; s > best {
				best, cls = s, c
			}
		}
		if cls < 0 || best < thresh {
			continue
		}
		cx, cy := data[i], data[n+i]
		w, h := data[2*n+i], data[3*n+i]
		out = append(out, candidate{
			box: image.Rect(
				int((cx-w/2)*sx), int((cy-h/2)*sy),
				int((cx+w/2)*sx), int((cy+h/2)*sy),
			),
			score: best,
			class: cls,
		})
	}
	return out
}

func toElement(c candidate, grid int) edge.Element {
	t := edge.ElementTypes[c.class]
	return edge.Element{
		Type: t,
		Box: edge.BoundingBox{
			X:      float64(c.box.Min.X),
			Y:      float64(c.box.Min.Y),
			Width:  float64(c.box.Dx()),
			Height: float64(c.box.Dy()),
		},
		Confidence: float64(c.score),
		Label:      fmt.Sprintf("%s@%d,%d", t, c.box.Min.X/grid, c.box.Min.Y/grid),
		Priority:   PriorityFor(t),
	}
}

// PriorityFor ranks element kinds by how likely they are the next thing a
// user must act on.
func PriorityFor(t edge.ElementType) priority.Level {
	switch t {
	case edge.ElementButton:
		return priority.High
	case edge.ElementInput, edge.ElementCheckbox:
		return priority.Medium
	default:
		return priority.Low
	}
}
