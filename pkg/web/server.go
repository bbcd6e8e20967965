// Package web serves the local guidance dashboard: pipeline status and
// metrics over HTTP, live guidance events and input over websocket.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/screen-guide/pkg/alert"
	"github.com/teslashibe/screen-guide/pkg/behavior"
	"github.com/teslashibe/screen-guide/pkg/hub"
	"github.com/teslashibe/screen-guide/pkg/pipeline"
	"github.com/teslashibe/screen-guide/pkg/protocol"
)

// StatusTaskName is the scheduler name of the status broadcast.
const StatusTaskName = "web.status"

// Snapshotter is implemented by render surfaces that can export the last
// presented frame.
type Snapshotter interface {
	PNG() ([]byte, error)
}

// Config holds dashboard settings.
type Config struct {
	Addr           string        `mapstructure:"addr"`            // listen address, e.g. ":8080"
	StaticDir      string        `mapstructure:"static_dir"`      // optional static assets
	StatusInterval time.Duration `mapstructure:"status_interval"` // status push cadence
}

// DefaultConfig returns dashboard defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: time.Second,
	}
}

// Server is the dashboard server.
type Server struct {
	cfg    Config
	app    *fiber.App
	p      *pipeline.Pipeline
	input  *behavior.InputBus
	logger *slog.Logger

	// events fans guidance out to dashboards; input takes interaction
	// events in from injected page scripts.
	eventsHub *hub.Hub
	inputHub  *hub.Hub
	events    *alert.HubSink

	mu       sync.Mutex
	cancel   context.CancelFunc
	unsub    func()
	received uint64
}

// NewServer creates a dashboard for p. Input events received over HTTP or
// websocket are published on input.
func NewServer(cfg Config, p *pipeline.Pipeline, input *behavior.InputBus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultConfig().StatusInterval
	}
	s := &Server{
		cfg:       cfg,
		p:         p,
		input:     input,
		logger:    logger.With("component", "web"),
		eventsHub: hub.New("events", logger),
		inputHub:  hub.New("input", logger),
	}
	s.events = alert.NewHubSink(s.eventsHub)
	s.inputHub.OnMessage(s.handleInputFrame)

	app := fiber.New(fiber.Config{
		AppName:               "Screen Guide",
		DisableStartupMessage: true,
	})

	// CORS for the injected page script
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/metrics", s.handleMetrics)
	api.Get("/capture", s.handleCapture)
	api.Post("/capture/quality", s.handleQuality)
	api.Get("/targets", s.handleTargets)
	api.Delete("/targets", s.handleClearTargets)
	api.Delete("/targets/:label", s.handleRemoveTarget)
	api.Get("/behavior", s.handleBehavior)
	api.Post("/input", s.handleInput)
	api.Get("/tasks", s.handleTasks)
	api.Get("/overlay.png", s.handleOverlay)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleWS(s.eventsHub)))
	app.Get("/ws/input", websocket.New(s.handleWS(s.inputHub)))

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App { return s.app }

// EventsHub returns the guidance broadcast hub.
func (s *Server) EventsHub() *hub.Hub { return s.eventsHub }

// Run starts the hubs, forwards pipeline events and serves until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	go s.eventsHub.Run(ctx)
	go s.inputHub.Run(ctx)

	unsub := s.p.Subscribe(s.forward)
	defer unsub()

	if _, err := s.p.Scheduler().Every(StatusTaskName, s.cfg.StatusInterval, s.broadcastStatus); err != nil {
		s.logger.Warn("status broadcast disabled", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops a running server.
func (s *Server) Shutdown() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// forward pushes a pipeline event to connected dashboards.
func (s *Server) forward(ev pipeline.Event) {
	msg, err := ev.Message()
	if err != nil {
		s.logger.Error("encode event", "kind", ev.Kind, "error", err)
		return
	}
	if err := s.events.Publish(context.Background(), msg); err != nil {
		s.logger.Error("broadcast event", "kind", ev.Kind, "error", err)
	}
}

func (s *Server) broadcastStatus(context.Context) {
	if s.eventsHub.ClientCount() == 0 {
		return
	}
	msg, err := protocol.NewMessage(protocol.TypeStatus, s.p.Status())
	if err != nil {
		return
	}
	s.events.Publish(context.Background(), msg)
}

func (s *Server) handleWS(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		client := hub.NewClient(h, c)
		if client == nil {
			return
		}
		client.Run()
	}
}

// handleInputFrame publishes one websocket input message on the bus.
func (s *Server) handleInputFrame(_ *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Debug("bad input frame", "error", err)
		return
	}
	if msg.Type != protocol.TypeInput {
		return
	}
	in, err := msg.GetInputData()
	if err != nil {
		return
	}
	if err := s.publishInput(*in); err != nil {
		s.logger.Debug("bad input event", "error", err)
	}
}

// ErrBadInput is returned for input events that cannot be interpreted.
var ErrBadInput = errors.New("web: bad input event")

func (s *Server) publishInput(in protocol.InputData) error {
	ev, err := InputEvent(in)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.received++
	s.mu.Unlock()
	if s.input != nil {
		s.input.Publish(ev)
	}
	return nil
}

// InputEvent converts a wire input event to a behavioral event.
func InputEvent(in protocol.InputData) (behavior.Event, error) {
	var kind behavior.EventKind
	if err := kind.UnmarshalText([]byte(in.Kind)); err != nil {
		return behavior.Event{}, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	ev := behavior.Event{Kind: kind, X: in.X, Y: in.Y, DeltaY: in.DeltaY}
	if in.TS > 0 {
		ev.Timestamp = time.UnixMilli(in.TS)
	}
	return ev, nil
}
