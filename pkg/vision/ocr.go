package vision

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/teslashibe/screen-guide/pkg/clock"
	"github.com/teslashibe/screen-guide/pkg/frame"
)

// DefaultOCRInterval is the minimum gap between recognitions.
const DefaultOCRInterval = time.Second

// OCRConfig configures screen text recognition.
type OCRConfig struct {
	Languages []string      `mapstructure:"languages"`
	Interval  time.Duration `mapstructure:"interval"`
}

// DefaultOCRConfig returns English recognition once per second.
func DefaultOCRConfig() OCRConfig {
	return OCRConfig{Languages: []string{"eng"}, Interval: DefaultOCRInterval}
}

type recognizeFunc func(img []byte) (string, error)

// OCR extracts on-screen text with Tesseract. Recognition runs in the
// background at most once per Interval; Text always returns immediately
// with the latest result.
type OCR struct {
	cfg    OCRConfig
	clock  clock.Clock
	logger *slog.Logger
	enc    JPEGEncoder

	recognize recognizeFunc

	mu      sync.Mutex
	client  *gosseract.Client
	text    string
	last    time.Time
	running bool
	closed  bool
	wg      sync.WaitGroup
}

// NewOCR creates a Tesseract-backed text source.
func NewOCR(cfg OCRConfig, c clock.Clock, logger *slog.Logger) (*OCR, error) {
	client := gosseract.NewClient()
	if len(cfg.Languages) > 0 {
		if err := client.SetLanguage(cfg.Languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("vision: ocr languages: %w", err)
		}
	}
	o := newOCR(cfg, c, logger, nil)
	o.client = client
	o.recognize = o.tesseract
	return o, nil
}

func newOCR(cfg OCRConfig, c clock.Clock, logger *slog.Logger, fn recognizeFunc) *OCR {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultOCRInterval
	}
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCR{
		cfg:       cfg,
		clock:     c,
		logger:    logger.With("component", "ocr"),
		enc:       JPEGEncoder{Quality: 90},
		recognize: fn,
	}
}

// Text returns the most recent recognition and schedules a new one for f
// when the interval has elapsed.
func (o *OCR) Text(f frame.Frame) string {
	now := o.clock.Now()
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.running || f.IsZero() || (!o.last.IsZero() && now.Sub(o.last) < o.cfg.Interval) {
		return o.text
	}
	img, err := o.enc.Encode(f)
	if err != nil {
		o.logger.Debug("ocr encode failed", "error", err)
		return o.text
	}

	o.running = true
	o.last = now
	o.wg.Add(1)
	go o.run(img)
	return o.text
}

func (o *OCR) run(img []byte) {
	defer o.wg.Done()
	text, err := o.recognize(img)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	if err != nil {
		o.logger.Warn("ocr failed", "error", err)
		return
	}
	o.text = strings.Join(strings.Fields(text), " ")
}

func (o *OCR) tesseract(img []byte) (string, error) {
	// The client is not safe for concurrent use; running serializes calls.
	if err := o.client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("vision: ocr image: %w", err)
	}
	text, err := o.client.Text()
	if err != nil {
		return "", fmt.Errorf("vision: ocr: %w", err)
	}
	return text, nil
}

// Close waits for an in-flight recognition and releases Tesseract.
func (o *OCR) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.wg.Wait()
	if o.client != nil {
		return o.client.Close()
	}
	return nil
}
