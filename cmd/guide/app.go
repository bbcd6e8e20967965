package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/screen-guide/internal/config"
	"github.com/teslashibe/screen-guide/internal/log"
	"github.com/teslashibe/screen-guide/pkg/alert"
	"github.com/teslashibe/screen-guide/pkg/behavior"
	"github.com/teslashibe/screen-guide/pkg/clock"
	"github.com/teslashibe/screen-guide/pkg/edge"
	"github.com/teslashibe/screen-guide/pkg/frame"
	"github.com/teslashibe/screen-guide/pkg/overlay"
	"github.com/teslashibe/screen-guide/pkg/pipeline"
	"github.com/teslashibe/screen-guide/pkg/stream"
	"github.com/teslashibe/screen-guide/pkg/vision"
	"github.com/teslashibe/screen-guide/pkg/web"
)

// app owns every component of a guide run.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	pipeline *pipeline.Pipeline
	server   *web.Server
	alerts   *alert.Multi
	ocr      *vision.OCR
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := log.L()
	clk := clock.Real{}

	var capturer frame.Capturer
	switch cfg.Capture.Source {
	case config.CapturerDevice:
		capturer = vision.NewDeviceCapturer(clk)
	default:
		capturer = frame.NewSyntheticCapturer(clk)
	}
	source := frame.NewSource(capturer,
		frame.WithEncoder(vision.JPEGEncoder{Quality: cfg.Capture.JPEGQuality}),
		frame.WithDuplicateDetector(&frame.ChecksumDetector{}),
		frame.WithClock(clk),
		frame.WithLogger(log.Component("frame")),
	)

	var engine *edge.Engine
	if cfg.Pipeline.EnableEdge {
		opts := append(cfg.Edge.EngineOptions(), edge.WithLogger(log.Component("edge")))
		engine = edge.NewEngine(edge.Loaders{
			Detector:   vision.DetectorLoader(cfg.Edge.Detector),
			Classifier: vision.ClassifierLoader(cfg.Edge.Classifier),
			Text: func(context.Context) (edge.TextAnalyzer, error) {
				return edge.NewKeywordAnalyzer(), nil
			},
		}, opts...)
	}

	var surface overlay.Surface = &overlay.NullSurface{}
	if cfg.Overlay.Raster {
		ms, err := vision.NewMatSurface(cfg.Pipeline.Capture.Width, cfg.Pipeline.Capture.Height)
		if err != nil {
			return nil, fmt.Errorf("overlay surface: %w", err)
		}
		surface = ms
	}
	renderer := overlay.NewRenderer(surface,
		overlay.WithFPS(cfg.Overlay.FPS),
		overlay.WithClock(clk),
		overlay.WithLogger(log.Component("overlay")),
	)

	input := behavior.NewInputBus()
	tracker := behavior.NewTracker(input,
		behavior.WithConfig(cfg.Behavior),
		behavior.WithClock(clk),
		behavior.WithLogger(log.Component("behavior")),
	)

	alerts := alert.NewMulti(log.Component("alert"))
	if cfg.Redis.Enabled {
		rs, err := alert.NewRedisSink(ctx, cfg.Redis.RedisConfig)
		if err != nil {
			// Guidance still reaches the dashboard without Redis.
			logger.Warn("redis alerts disabled", "error", err)
		} else {
			alerts.Add(rs)
		}
	}

	var ocr *vision.OCR
	if cfg.Pipeline.EnableEdge && cfg.Edge.OCR.Enabled {
		o, err := vision.NewOCR(cfg.Edge.OCR.OCRConfig, clk, log.Component("vision"))
		if err != nil {
			logger.Warn("ocr disabled", "error", err)
		} else {
			ocr = o
		}
	}

	components := pipeline.Components{
		Source:   source,
		Engine:   engine,
		Tracker:  tracker,
		Renderer: renderer,
		Alerts:   alerts,
	}
	if ocr != nil {
		components.Text = ocr
	}
	if cfg.Pipeline.EnableStream {
		components.Stream = stream.NewClient(cfg.Stream, log.Component("stream"))
	}

	p := pipeline.New(components, cfg.Pipeline,
		pipeline.WithClock(clk),
		pipeline.WithLogger(log.Component("pipeline")),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		pipeline: p,
		server:   web.NewServer(cfg.Web, p, input, log.Component("web")),
		alerts:   alerts,
		ocr:      ocr,
	}, nil
}

// Run initializes and starts the pipeline, serves the dashboard until ctx is
// cancelled, then disposes every component.
func (a *app) Run(ctx context.Context) (err error) {
	defer func() {
		if derr := a.pipeline.Dispose(); derr != nil {
			a.logger.Warn("dispose", "error", derr)
		}
		if a.ocr != nil {
			a.ocr.Close()
		}
	}()

	if err := a.pipeline.Initialize(ctx); err != nil {
		var ce *frame.CaptureError
		if errors.As(err, &ce) && ce.IsPermission() {
			return fmt.Errorf("screen capture permission denied: %w", err)
		}
		return fmt.Errorf("initialize: %w", err)
	}
	if err := a.pipeline.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	st := a.pipeline.Status()
	a.logger.Info("guide running",
		"session", st.SessionID,
		"edge", st.EdgeProcessing,
		"stream", st.StreamConnected,
		"alert_sinks", a.alerts.Len(),
		"ocr", a.ocr != nil,
		"dashboard", a.cfg.Web.Addr)

	if err := a.server.Run(ctx); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	a.logger.Info("shutting down")
	return nil
}
