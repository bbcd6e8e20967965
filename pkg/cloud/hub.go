// Package cloud is the receiving end of the frame stream: guide sessions
// connect over websocket, push binary chunks and JSON control messages, and
// get guidance messages pushed back.
package cloud

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/screen-guide/pkg/protocol"
	"github.com/teslashibe/screen-guide/pkg/stream"
)

// ErrSessionNotFound is returned when sending to an unknown session.
var ErrSessionNotFound = errors.New("cloud: session not connected")

// Session is one connected guide.
type Session struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	chunks   uint64
	bytes    uint64
	lastKey  time.Time
}

// Send writes msg as a text frame.
func (s *Session) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// Hub manages guide sessions.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	onChunk   func(sessionID string, chunk stream.Chunk)
	onInput   func(sessionID string, in *protocol.InputData)
	onQuality func(sessionID string, q *protocol.QualityData)

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	chunksReceived   atomic.Uint64
	bytesReceived    atomic.Uint64
	decodeErrors     atomic.Uint64
}

// NewHub creates a session hub. A nil logger uses slog.Default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger.With("component", "cloud.hub"),
		sessions: make(map[string]*Session),
	}
}

// OnChunk sets the callback for decoded stream chunks.
func (h *Hub) OnChunk(callback func(sessionID string, chunk stream.Chunk)) {
	h.mu.Lock()
	h.onChunk = callback
	h.mu.Unlock()
}

// OnInput sets the callback for forwarded interaction events.
func (h *Hub) OnInput(callback func(sessionID string, in *protocol.InputData)) {
	h.mu.Lock()
	h.onInput = callback
	h.mu.Unlock()
}

// OnQuality sets the callback for quality change requests.
func (h *Hub) OnQuality(callback func(sessionID string, q *protocol.QualityData)) {
	h.mu.Lock()
	h.onQuality = callback
	h.mu.Unlock()
}

// RegisterRoutes registers the stream endpoint on a Fiber app.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	cfg := websocket.Config{Subprotocols: []string{"binary"}}
	app.Get("/ws/stream", websocket.New(h.handleSession, cfg))
	app.Get("/ws/stream/:id", websocket.New(h.handleSession, cfg))
}

func (h *Hub) handleSession(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	sess := &Session{ID: id, Conn: c, Connected: now, lastSeen: now}

	h.mu.Lock()
	if prev, ok := h.sessions[id]; ok {
		h.logger.Warn("session reconnected, replacing previous connection", "session", id)
		prev.Conn.Close()
	}
	h.sessions[id] = sess
	count := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("session connected", "session", id, "sessions", count)

	defer func() {
		h.mu.Lock()
		if h.sessions[id] == sess {
			delete(h.sessions, id)
		}
		count := len(h.sessions)
		h.mu.Unlock()
		h.logger.Info("session disconnected", "session", id, "sessions", count)
	}()

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("session read ended", "session", id, "error", err)
			return
		}
		sess.touch(time.Now())
		h.messagesReceived.Add(1)

		switch mt {
		case websocket.BinaryMessage:
			h.handleChunk(sess, data)
		case websocket.TextMessage:
			h.handleMessage(sess, data)
		}
	}
}

func (h *Hub) handleChunk(sess *Session, data []byte) {
	chunk, err := stream.Decode(data)
	if err != nil {
		h.decodeErrors.Add(1)
		h.logger.Warn("bad chunk", "session", sess.ID, "error", err)
		return
	}
	h.chunksReceived.Add(1)
	h.bytesReceived.Add(uint64(len(data)))

	sess.mu.Lock()
	sess.chunks++
	sess.bytes += uint64(len(data))
	if chunk.KeyFrame {
		sess.lastKey = chunk.Time()
	}
	sess.mu.Unlock()

	h.mu.RLock()
	cb := h.onChunk
	h.mu.RUnlock()
	if cb != nil {
		cb(sess.ID, chunk)
	}
}

func (h *Hub) handleMessage(sess *Session, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Warn("parse error", "session", sess.ID, "error", err)
		return
	}

	h.mu.RLock()
	inputCb, qualityCb := h.onInput, h.onQuality
	h.mu.RUnlock()

	switch msg.Type {
	case protocol.TypeInput:
		if inputCb != nil {
			if in, err := msg.GetInputData(); err == nil {
				inputCb(sess.ID, in)
			}
		}

	case protocol.TypeQuality:
		if qualityCb != nil {
			if q, err := msg.GetQualityData(); err == nil {
				qualityCb(sess.ID, q)
			}
		}

	case protocol.TypePing:
		pingTS := msg.Timestamp
		var pingID string
		if p, err := msg.GetPingData(); err == nil {
			pingID = p.ID
			if p.Timestamp != 0 {
				pingTS = p.Timestamp
			}
		}
		pong, err := protocol.NewPongMessage(pingID, pingTS, time.Now().UnixMilli())
		if err != nil {
			return
		}
		if err := h.SendTo(sess.ID, pong); err != nil {
			h.logger.Warn("pong failed", "session", sess.ID, "error", err)
		}
	}
}

// SendTo sends msg to one session.
func (h *Hub) SendTo(sessionID string, msg *protocol.Message) error {
	h.mu.RLock()
	sess, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	h.messagesSent.Add(1)
	return sess.Send(msg)
}

// Broadcast sends msg to every session and returns the number reached.
func (h *Hub) Broadcast(msg *protocol.Message) int {
	sent := 0
	for _, sess := range h.Sessions() {
		h.messagesSent.Add(1)
		if err := sess.Send(msg); err != nil {
			h.logger.Warn("broadcast failed", "session", sess.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Publish broadcasts msg so the hub can serve as an alert sink.
func (h *Hub) Publish(_ context.Context, msg *protocol.Message) error {
	h.Broadcast(msg)
	return nil
}

// Close disconnects every session.
func (h *Hub) Close() error {
	for _, sess := range h.Sessions() {
		sess.Conn.Close()
	}
	return nil
}

// Session returns a session by ID, or nil.
func (h *Hub) Session(id string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[id]
}

// Sessions returns every connected session.
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Stats contains hub counters.
type Stats struct {
	Sessions         int    `json:"sessions"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	ChunksReceived   uint64 `json:"chunks_received"`
	BytesReceived    uint64 `json:"bytes_received"`
	DecodeErrors     uint64 `json:"decode_errors"`
}

// Stats returns hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Sessions:         h.SessionCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		ChunksReceived:   h.chunksReceived.Load(),
		BytesReceived:    h.bytesReceived.Load(),
		DecodeErrors:     h.decodeErrors.Load(),
	}
}

// SessionInfo describes a connected session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Connected    time.Time `json:"connected"`
	LastSeen     time.Time `json:"last_seen"`
	Chunks       uint64    `json:"chunks"`
	Bytes        uint64    `json:"bytes"`
	LastKeyFrame time.Time `json:"last_keyframe,omitzero"`
}

// SessionInfos returns a snapshot of every session.
func (h *Hub) SessionInfos() []SessionInfo {
	sessions := h.Sessions()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		infos = append(infos, SessionInfo{
			ID:           s.ID,
			Connected:    s.Connected,
			LastSeen:     s.lastSeen,
			Chunks:       s.chunks,
			Bytes:        s.bytes,
			LastKeyFrame: s.lastKey,
		})
		s.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers session management routes.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	sessions := api.Group("/sessions")

	sessions.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sessions": h.SessionInfos(),
			"count":    h.SessionCount(),
		})
	})

	sessions.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.Stats())
	})

	// Push highlight targets to one session.
	sessions.Post("/:id/targets", func(c *fiber.Ctx) error {
		var body protocol.TargetsData
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		msg, err := protocol.NewTargetsMessage(body.Targets)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if err := h.SendTo(c.Params("id"), msg); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "sent"})
	})
}
