package main

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/screen-guide/internal/config"
	"github.com/teslashibe/screen-guide/internal/log"
	"github.com/teslashibe/screen-guide/pkg/cloud"
	"github.com/teslashibe/screen-guide/pkg/debug"
	"github.com/teslashibe/screen-guide/pkg/protocol"
	"github.com/teslashibe/screen-guide/pkg/stream"
)

// runReceiver serves the stream endpoint until ctx is cancelled.
func runReceiver(ctx context.Context, cfg config.ReceiverConfig) error {
	logger := log.Component("sink")

	h := cloud.NewHub(logger)
	h.OnChunk(func(sessionID string, c stream.Chunk) {
		if c.KeyFrame {
			logger.Info("keyframe", "session", sessionID, "ts", c.Time(), "bytes", c.Len())
			return
		}
		debug.Log("chunk", "session", sessionID, "ts", c.Time(), "bytes", c.Len())
	})
	h.OnInput(func(sessionID string, in *protocol.InputData) {
		debug.Log("input", "session", sessionID, "kind", in.Kind, "x", in.X, "y", in.Y)
	})
	h.OnQuality(func(sessionID string, q *protocol.QualityData) {
		logger.Info("quality change requested", "session", sessionID, "quality", q.Quality)
	})

	app := fiber.New(fiber.Config{
		AppName:               "Screen Guide Sink",
		DisableStartupMessage: true,
	})
	h.RegisterRoutes(app)
	h.RegisterAPIRoutes(app.Group("/api"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sink listening", "addr", cfg.Addr)
		errCh <- app.Listen(cfg.Addr)
	}()

	select {
	case <-ctx.Done():
		h.Close()
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("sink: shutdown: %w", err)
		}
		st := h.Stats()
		logger.Info("sink stopped", "chunks", st.ChunksReceived, "bytes", st.BytesReceived, "decode_errors", st.DecodeErrors)
		return nil
	case err := <-errCh:
		return err
	}
}
