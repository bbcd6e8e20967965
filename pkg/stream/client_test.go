package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/screen-guide/internal/log"
)

func echoServer(t *testing.T, received chan<- []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: []string{"binary"}}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				received <- data
			}
		}
	}))
}

func TestClientSend(t *testing.T) {
	received := make(chan []byte, 1)
	srv := echoServer(t, received)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewClient(cfg, log.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.Send(ctx, Chunk{KeyFrame: true, Timestamp: 5, Payload: []byte("frame")}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case data := <-received:
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if !got.KeyFrame || got.Timestamp != 5 || string(got.Payload) != "frame" {
			t.Errorf("server got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive chunk")
	}

	stats := client.Stats()
	if !stats.Connected || stats.ChunksSent != 1 || stats.BytesSent != uint64(HeaderSize+5) {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestClientSendWithoutConnection(t *testing.T) {
	client := NewClient(DefaultConfig(), log.Discard())
	if err := client.Send(context.Background(), Chunk{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on idle client error = %v", err)
	}
}

func TestClientDialFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://127.0.0.1:1/ws/stream"
	cfg.HandshakeTimeout = 200 * time.Millisecond
	client := NewClient(cfg, log.Discard())

	err := client.Connect(context.Background())
	var se *StreamError
	if !errors.As(err, &se) || se.Op != "dial" {
		t.Fatalf("Connect() error = %v, want dial StreamError", err)
	}
	if client.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", client.Stats().Errors)
	}
}
