// Package config loads screen-guide settings from a TOML file and GUIDE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/screen-guide/pkg/alert"
	"github.com/teslashibe/screen-guide/pkg/behavior"
	"github.com/teslashibe/screen-guide/pkg/edge"
	"github.com/teslashibe/screen-guide/pkg/overlay"
	"github.com/teslashibe/screen-guide/pkg/pipeline"
	"github.com/teslashibe/screen-guide/pkg/stream"
	"github.com/teslashibe/screen-guide/pkg/vision"
	"github.com/teslashibe/screen-guide/pkg/web"
)

// EnvPrefix prefixes every environment override, e.g. GUIDE_WEB_ADDR.
const EnvPrefix = "GUIDE"

// EnvConfigPath names the variable holding an explicit config file path.
const EnvConfigPath = "GUIDE_CONFIG"

// Capturer names accepted in capture.source.
const (
	CapturerSynthetic = "synthetic"
	CapturerDevice    = "device"
)

// Config is the full application configuration.
type Config struct {
	Log      LogConfig       `mapstructure:"log"`
	Pipeline pipeline.Config `mapstructure:"pipeline"`
	Capture  CaptureConfig   `mapstructure:"capture"`
	Edge     EdgeConfig      `mapstructure:"edge"`
	Behavior behavior.Config `mapstructure:"behavior"`
	Overlay  OverlayConfig   `mapstructure:"overlay"`
	Stream   stream.Config   `mapstructure:"stream"`
	Web      web.Config      `mapstructure:"web"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Receiver ReceiverConfig  `mapstructure:"receiver"`
}

// LogConfig selects the log level and verbose debug channels.
type LogConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"` // "text" or "json"
	Debug         bool   `mapstructure:"debug"`
	DebugBehavior bool   `mapstructure:"debug_behavior"`
}

// CaptureConfig picks the capturer backend. Geometry and cadence live in
// pipeline.capture.
type CaptureConfig struct {
	Source      string `mapstructure:"source"` // synthetic or device
	JPEGQuality int    `mapstructure:"jpeg_quality"`
}

// EdgeConfig holds model paths and per-model budgets.
type EdgeConfig struct {
	Detector   vision.DetectorConfig   `mapstructure:"detector"`
	Classifier vision.ClassifierConfig `mapstructure:"classifier"`
	OCR        OCRConfig               `mapstructure:"ocr"`

	DetectionBudget      time.Duration `mapstructure:"detection_budget"`
	ClassificationBudget time.Duration `mapstructure:"classification_budget"`
	TextBudget           time.Duration `mapstructure:"text_budget"`
	TotalBudget          time.Duration `mapstructure:"total_budget"`
	LoadTimeout          time.Duration `mapstructure:"load_timeout"`
}

// EngineOptions converts the budgets to engine options.
func (c EdgeConfig) EngineOptions() []edge.Option {
	return []edge.Option{
		edge.WithBudgets(c.DetectionBudget, c.ClassificationBudget, c.TextBudget, c.TotalBudget),
		edge.WithLoadTimeout(c.LoadTimeout),
	}
}

// OCRConfig enables screen text recognition for the text analyzer.
type OCRConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	vision.OCRConfig `mapstructure:",squash"`
}

// OverlayConfig configures the overlay renderer.
type OverlayConfig struct {
	FPS    int  `mapstructure:"fps"`
	Raster bool `mapstructure:"raster"` // draw into an OpenCV surface instead of discarding
}

// RedisConfig enables the Redis alert sink.
type RedisConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	alert.RedisConfig `mapstructure:",squash"`
}

// ReceiverConfig configures the stream receiver command.
type ReceiverConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the built-in configuration without file or environment
// overrides.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// Defaults always decode.
	_ = v.Unmarshal(&c)
	return c
}

// Load reads configuration from path, or from $GUIDE_CONFIG, or from
// ~/.config/screen-guide/config.toml, then applies GUIDE_* overrides.
// A missing default file is not an error. A missing explicit file is.
func Load(path string) (Config, error) {
	v := newViper()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "screen-guide"))
		}
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if err := c.Pipeline.Capture.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Capture.Source {
	case CapturerSynthetic, CapturerDevice:
	default:
		return fmt.Errorf("config: unknown capture source %q", c.Capture.Source)
	}
	if c.Pipeline.TickInterval <= 0 {
		return fmt.Errorf("config: tick interval must be positive, got %s", c.Pipeline.TickInterval)
	}
	if c.Overlay.FPS <= 0 {
		return fmt.Errorf("config: overlay fps must be positive, got %d", c.Overlay.FPS)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// setDefaults registers every key so env overrides apply even when the
// file omits it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.debug_behavior", false)

	p := pipeline.DefaultConfig()
	v.SetDefault("pipeline.tick_interval", p.TickInterval)
	v.SetDefault("pipeline.relevance_threshold", p.RelevanceThreshold)
	v.SetDefault("pipeline.suggest_confidence", p.SuggestConfidence)
	v.SetDefault("pipeline.target_latency", p.TargetLatency)
	v.SetDefault("pipeline.latency_window", p.LatencyWindow)
	v.SetDefault("pipeline.event_cooldown", p.EventCooldown)
	v.SetDefault("pipeline.enable_edge", p.EnableEdge)
	v.SetDefault("pipeline.enable_stream", p.EnableStream)

	fc := p.Capture
	v.SetDefault("pipeline.capture.width", fc.Width)
	v.SetDefault("pipeline.capture.height", fc.Height)
	v.SetDefault("pipeline.capture.format", string(fc.Format))
	v.SetDefault("pipeline.capture.target_fps", fc.TargetFPS)
	v.SetDefault("pipeline.capture.bitrate_kbps", fc.BitrateKbps)
	v.SetDefault("pipeline.capture.quality", string(fc.Quality))
	v.SetDefault("pipeline.capture.buffer_size", fc.BufferSize)
	v.SetDefault("pipeline.capture.keyframe_interval", fc.KeyframeInterval)
	v.SetDefault("pipeline.capture.device", fc.Device)

	v.SetDefault("capture.source", CapturerSynthetic)
	v.SetDefault("capture.jpeg_quality", vision.DefaultJPEGQuality)

	d := vision.DefaultDetectorConfig()
	v.SetDefault("edge.detector.model_path", d.ModelPath)
	v.SetDefault("edge.detector.confidence", d.ConfidenceThresh)
	v.SetDefault("edge.detector.nms", d.NMSThresh)
	v.SetDefault("edge.detector.input_width", d.InputWidth)
	v.SetDefault("edge.detector.input_height", d.InputHeight)
	v.SetDefault("edge.detector.label_grid", d.LabelGrid)

	cl := vision.DefaultClassifierConfig()
	v.SetDefault("edge.classifier.model_path", cl.ModelPath)
	v.SetDefault("edge.classifier.input_width", cl.InputWidth)
	v.SetDefault("edge.classifier.input_height", cl.InputHeight)

	ocr := vision.DefaultOCRConfig()
	v.SetDefault("edge.ocr.enabled", false)
	v.SetDefault("edge.ocr.languages", ocr.Languages)
	v.SetDefault("edge.ocr.interval", ocr.Interval)

	e := edge.DefaultConfig()
	v.SetDefault("edge.detection_budget", e.DetectionBudget)
	v.SetDefault("edge.classification_budget", e.ClassificationBudget)
	v.SetDefault("edge.text_budget", e.TextBudget)
	v.SetDefault("edge.total_budget", e.TotalBudget)
	v.SetDefault("edge.load_timeout", e.LoadTimeout)

	b := behavior.DefaultConfig()
	v.SetDefault("behavior.move_window", b.MoveWindow)
	v.SetDefault("behavior.scroll_window", b.ScrollWindow)
	v.SetDefault("behavior.click_window", b.ClickWindow)
	v.SetDefault("behavior.hesitation_delay", b.HesitationDelay)
	v.SetDefault("behavior.movement_threshold", b.MovementThreshold)
	v.SetDefault("behavior.repeat_distance", b.RepeatDistance)
	v.SetDefault("behavior.repeat_window", b.RepeatWindow)
	v.SetDefault("behavior.erratic_min_moves", b.ErraticMinMoves)
	v.SetDefault("behavior.scroll_min_samples", b.ScrollMinSamples)
	v.SetDefault("behavior.smooth_variance", b.SmoothVariance)
	v.SetDefault("behavior.uncertain_variance", b.UncertainVariance)
	v.SetDefault("behavior.heatmap_cell_size", b.HeatmapCellSize)
	v.SetDefault("behavior.heatmap_max_cells", b.HeatmapMaxCells)
	v.SetDefault("behavior.heatmap_keep_cells", b.HeatmapKeepCells)
	v.SetDefault("behavior.analysis_interval", b.AnalysisInterval)
	v.SetDefault("behavior.history_size", b.HistorySize)
	v.SetDefault("behavior.default_click_accuracy", b.DefaultClickAccuracy)

	v.SetDefault("overlay.fps", overlay.DefaultFPS)
	v.SetDefault("overlay.raster", false)

	s := stream.DefaultConfig()
	v.SetDefault("stream.url", s.URL)
	v.SetDefault("stream.handshake_timeout", s.HandshakeTimeout)
	v.SetDefault("stream.write_timeout", s.WriteTimeout)
	v.SetDefault("stream.subprotocol", s.Subprotocol)

	w := web.DefaultConfig()
	v.SetDefault("web.addr", w.Addr)
	v.SetDefault("web.static_dir", w.StaticDir)
	v.SetDefault("web.status_interval", w.StatusInterval)

	r := alert.DefaultRedisConfig()
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", r.URL)
	v.SetDefault("redis.channel", r.Channel)
	v.SetDefault("redis.history_key", r.HistoryKey)
	v.SetDefault("redis.history_size", r.HistorySize)
	v.SetDefault("redis.dial_timeout", r.DialTimeout)

	v.SetDefault("receiver.addr", ":8081")
}
