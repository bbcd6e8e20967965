package vision

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/screen-guide/pkg/edge"
	"github.com/teslashibe/screen-guide/pkg/frame"
)

// ClassifierConfig holds content classifier settings.
type ClassifierConfig struct {
	ModelPath   string `mapstructure:"model_path"`
	InputWidth  int    `mapstructure:"input_width"`
	InputHeight int    `mapstructure:"input_height"`
}

// DefaultClassifierConfig returns defaults for a 224px page classifier.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ModelPath:   "models/page_classifier.onnx",
		InputWidth:  224,
		InputHeight: 224,
	}
}

// ContentClassifier labels a frame with one of edge.Categories using an
// ONNX network that outputs one logit per category.
type ContentClassifier struct {
	net       gocv.Net
	mu        sync.Mutex
	inputSize image.Point
}

// NewContentClassifier loads the model.
func NewContentClassifier(cfg ClassifierConfig) (*ContentClassifier, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("vision: load classifier from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &ContentClassifier{net: net, inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight)}, nil
}

// ClassifierLoader adapts NewContentClassifier to the engine's loader type.
func ClassifierLoader(cfg ClassifierConfig) edge.Loader[frame.Frame, edge.ContentClassification] {
	return func(ctx context.Context) (edge.ContentClassifier, error) {
		return NewContentClassifier(cfg)
	}
}

// Name identifies the backend.
func (c *ContentClassifier) Name() string { return "onnx" }

// Infer classifies f.
func (c *ContentClassifier) Infer(ctx context.Context, f frame.Frame) (edge.ContentClassification, error) {
	if err := ctx.Err(); err != nil {
		return edge.ContentClassification{}, err
	}
	img, err := ToMat(f)
	if err != nil {
		return edge.ContentClassification{}, err
	}
	defer img.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, c.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	c.net.SetInput(blob, "")
	output := c.net.Forward("")
	defer output.Close()

	logits, err := output.DataPtrFloat32()
	if err != nil {
		return edge.ContentClassification{}, fmt.Errorf("vision: read classifier output: %w", err)
	}
	return classify(logits), nil
}

// Close releases the network.
func (c *ContentClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}

// classify applies softmax over the first len(edge.Categories) logits and
// picks the most likely category.
func classify(logits []float32) edge.ContentClassification {
	n := min(len(logits), len(edge.Categories))
	if n == 0 {
		return edge.ContentClassification{Category: edge.CategoryUnknown}
	}

	maxLogit := logits[0]
	for _, l := range logits[1:n] {
		maxLogit = max(maxLogit, l)
	}
	var sum float64
	probs := make([]float64, n)
	for i := 0; i < n; i++ {
		probs[i] = math.Exp(float64(logits[i] - maxLogit))
		sum += probs[i]
	}

	best := 0
	for i := 1; i < n; i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return edge.ContentClassification{
		Category:   edge.Categories[best],
		Confidence: probs[best] / sum,
	}
}
