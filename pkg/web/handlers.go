package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/screen-guide/pkg/behavior"
	"github.com/teslashibe/screen-guide/pkg/frame"
	"github.com/teslashibe/screen-guide/pkg/pipeline"
	"github.com/teslashibe/screen-guide/pkg/protocol"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	pipeline.Status
	Dashboards     int    `json:"dashboards"`
	InputClients   int    `json:"input_clients"`
	InputsReceived uint64 `json:"inputs_received"`
}

// handleStatus returns the pipeline state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.Lock()
	received := s.received
	s.mu.Unlock()
	return c.JSON(StatusResponse{
		Status:         s.p.Status(),
		Dashboards:     s.eventsHub.ClientCount(),
		InputClients:   s.inputHub.ClientCount(),
		InputsReceived: received,
	})
}

// handleMetrics returns latency figures against the SLA
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	return c.JSON(s.p.Metrics())
}

// handleCapture returns capture counters
func (s *Server) handleCapture(c *fiber.Ctx) error {
	return c.JSON(s.p.Components().Source.Stats())
}

func (s *Server) handleQuality(c *fiber.Ctx) error {
	var req protocol.QualityData
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.p.Components().Source.AdjustQuality(frame.Quality(req.Quality)); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, frame.ErrUnknownQuality) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"quality": req.Quality})
}

// handleTargets returns the active overlay targets in wire form
func (s *Server) handleTargets(c *fiber.Ctx) error {
	targets := s.p.Components().Renderer.Targets()
	out := make([]protocol.TargetData, 0, len(targets))
	for _, t := range targets {
		out = append(out, pipeline.TargetData(t))
	}
	return c.JSON(protocol.TargetsData{Targets: out})
}

func (s *Server) handleClearTargets(c *fiber.Ctx) error {
	s.p.Components().Renderer.ClearAll()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleRemoveTarget(c *fiber.Ctx) error {
	if !s.p.Components().Renderer.RemoveTarget(c.Params("label")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "target not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// BehaviorResponse is the body of GET /api/behavior.
type BehaviorResponse struct {
	SessionID string                     `json:"session_id"`
	Tracking  bool                       `json:"tracking"`
	Pattern   behavior.Pattern           `json:"pattern"`
	Intent    behavior.IntentPrediction  `json:"intent"`
	Smoothed  *behavior.IntentPrediction `json:"smoothed,omitempty"`
	Confusion behavior.ConfusionSignal   `json:"confusion"`
	Heatmap   []behavior.CellCount       `json:"heatmap"`
}

// handleBehavior returns the behavioral analysis for the current session
func (s *Server) handleBehavior(c *fiber.Ctx) error {
	t := s.p.Components().Tracker
	resp := BehaviorResponse{
		SessionID: t.SessionID(),
		Tracking:  t.Tracking(),
		Pattern:   t.Pattern(),
		Intent:    t.PredictIntent(),
		Confusion: t.DetectConfusion(),
		Heatmap:   t.HeatmapCells(),
	}
	if smoothed, ok := t.SmoothedIntent(); ok {
		resp.Smoothed = &smoothed
	}
	return c.JSON(resp)
}

// handleInput accepts one interaction event
func (s *Server) handleInput(c *fiber.Ctx) error {
	var req protocol.InputData
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.publishInput(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// handleTasks returns scheduler task counters
func (s *Server) handleTasks(c *fiber.Ctx) error {
	return c.JSON(s.p.Scheduler().Stats())
}

// handleOverlay returns the last presented overlay frame
func (s *Server) handleOverlay(c *fiber.Ctx) error {
	snap, ok := s.p.Components().Renderer.Surface().(Snapshotter)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "surface has no snapshot"})
	}
	png, err := snap.PNG()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}
