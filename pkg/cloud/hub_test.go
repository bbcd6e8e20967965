package cloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/screen-guide/internal/log"
	"github.com/teslashibe/screen-guide/pkg/priority"
	"github.com/teslashibe/screen-guide/pkg/protocol"
	"github.com/teslashibe/screen-guide/pkg/stream"
)

func startServer(t *testing.T, h *Hub, port string) {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h.RegisterRoutes(app)
	h.RegisterAPIRoutes(app.Group("/api"))

	go app.Listen(":" + port)
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	h := NewHub(log.Discard())
	if h.SessionCount() != 0 {
		t.Error("SessionCount should be 0 initially")
	}
	if st := h.Stats(); st.MessagesReceived != 0 || st.ChunksReceived != 0 {
		t.Errorf("Stats() = %+v", st)
	}
	if h.Session("nonexistent") != nil {
		t.Error("Session should return nil for unknown ID")
	}
	if err := h.SendTo("nonexistent", &protocol.Message{Type: protocol.TypePing}); err != ErrSessionNotFound {
		t.Errorf("SendTo() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := NewHub(log.Discard())
	startServer(t, h, "18280")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18280/ws/stream/guide-1", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	waitFor(t, func() bool { return h.SessionCount() == 1 })

	if h.Session("guide-1") == nil {
		t.Error("Session should return the connected guide")
	}

	ws.Close()
	waitFor(t, func() bool { return h.SessionCount() == 0 })
}

func TestStreamChunks(t *testing.T) {
	h := NewHub(log.Discard())

	var mu sync.Mutex
	var got []stream.Chunk
	var from string
	h.OnChunk(func(sessionID string, c stream.Chunk) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
		from = sessionID
	})
	startServer(t, h, "18281")

	cfg := stream.DefaultConfig()
	cfg.URL = "ws://localhost:18281/ws/stream/guide-2"
	client := stream.NewClient(cfg, log.Discard())
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ts := time.UnixMicro(1_700_000_000_000_000)
	if err := client.Send(context.Background(), stream.NewChunk(true, ts, []byte("key"))); err != nil {
		t.Fatal(err)
	}
	if err := client.Send(context.Background(), stream.NewChunk(false, ts.Add(time.Second/30), []byte("delta"))); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	mu.Lock()
	if from != "guide-2" || !got[0].KeyFrame || got[1].KeyFrame || string(got[1].Payload) != "delta" {
		t.Errorf("chunks = %+v from %q", got, from)
	}
	mu.Unlock()

	infos := h.SessionInfos()
	if len(infos) != 1 || infos[0].Chunks != 2 || !infos[0].LastKeyFrame.Equal(ts) {
		t.Errorf("SessionInfos() = %+v", infos)
	}
}

func TestBadChunkCounted(t *testing.T) {
	h := NewHub(log.Discard())
	startServer(t, h, "18282")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18282/ws/stream/guide-3", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer ws.Close()

	ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
	waitFor(t, func() bool { return h.Stats().DecodeErrors == 1 })
	if h.Stats().ChunksReceived != 0 {
		t.Error("short chunk counted as received")
	}
}

func TestPingPongAndInput(t *testing.T) {
	h := NewHub(log.Discard())

	inputs := make(chan *protocol.InputData, 1)
	h.OnInput(func(_ string, in *protocol.InputData) { inputs <- in })
	startServer(t, h, "18283")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18283/ws/stream/guide-4", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer ws.Close()

	ping, _ := protocol.NewMessage(protocol.TypePing, protocol.PingData{ID: "p1", Timestamp: 1000})
	data, _ := ping.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	_, respData, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	var resp protocol.Message
	json.Unmarshal(respData, &resp)
	if resp.Type != protocol.TypePong {
		t.Fatalf("Type = %s, want pong", resp.Type)
	}
	var pong protocol.PongData
	resp.ParseData(&pong)
	if pong.ID != "p1" || pong.PingTS != 1000 {
		t.Errorf("pong = %+v", pong)
	}

	in, _ := protocol.NewMessage(protocol.TypeInput, protocol.InputData{Kind: "click", X: 10, Y: 20})
	data, _ = in.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	select {
	case got := <-inputs:
		if got.Kind != "click" || got.X != 10 || got.Y != 20 {
			t.Errorf("input = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("input callback not called")
	}
}

func TestPublishReachesSessions(t *testing.T) {
	h := NewHub(log.Discard())
	startServer(t, h, "18284")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18284/ws/stream/guide-5", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer ws.Close()
	waitFor(t, func() bool { return h.SessionCount() == 1 })

	msg, _ := protocol.NewNeedsHelpMessage(protocol.NeedsHelpData{Severity: priority.Critical})
	if err := h.Publish(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !strings.Contains(string(data), `"type":"needs_help"`) {
		t.Errorf("message = %s", data)
	}
}

func TestAPIRoutes(t *testing.T) {
	h := NewHub(log.Discard())
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h.RegisterRoutes(app)
	h.RegisterAPIRoutes(app.Group("/api"))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"list", "GET", "/api/sessions/", "", 200, "sessions"},
		{"stats", "GET", "/api/sessions/stats", "", 200, "chunks_received"},
		{"targets to unknown session", "POST", "/api/sessions/nope/targets", `{"targets":[]}`, 404, "not connected"},
		{"plain http on ws route", "GET", "/ws/stream", "", fiber.StatusUpgradeRequired, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request error: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tt.want) {
				t.Errorf("body = %s, want containing %q", body, tt.want)
			}
		})
	}
}
