package stream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config holds outbound channel settings.
type Config struct {
	URL              string        `json:"url" mapstructure:"url"`
	HandshakeTimeout time.Duration `json:"handshake_timeout" mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	Subprotocol      string        `json:"subprotocol" mapstructure:"subprotocol"`
}

// DefaultConfig returns settings for a local edge server.
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8081/ws/stream",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     time.Second,
		Subprotocol:      "binary",
	}
}

// Stats counts traffic on the channel.
type Stats struct {
	Connected  bool   `json:"connected"`
	ChunksSent uint64 `json:"chunks_sent"`
	BytesSent  uint64 `json:"bytes_sent"`
	Errors     uint64 `json:"errors"`
}

// Client sends chunks over a gorilla websocket. It is safe for concurrent use.
type Client struct {
	config Config
	logger *slog.Logger

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn

	chunks atomic.Uint64
	bytes  atomic.Uint64
	errs   atomic.Uint64
}

// NewClient creates an unconnected client.
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = time.Second
	}
	return &Client{
		config: config,
		logger: logger.With("component", "stream.client", "url", config.URL),
	}
}

// Connect dials the remote endpoint, replacing any existing connection.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	if c.config.Subprotocol != "" {
		dialer.Subprotocols = []string{c.config.Subprotocol}
	}

	conn, _, err := dialer.DialContext(ctx, c.config.URL, http.Header{})
	if err != nil {
		c.errs.Add(1)
		return &StreamError{URL: c.config.URL, Op: "dial", Err: err}
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	go c.drain(conn)
	c.logger.Info("stream connected")
	return nil
}

// drain reads and discards inbound messages so control frames are handled,
// and notices when the server goes away.
func (c *Client) drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.logger.Warn("stream disconnected", "error", err)
			}
			c.mu.Unlock()
			return
		}
	}
}

// Send writes one chunk as a binary message.
func (c *Client) Send(ctx context.Context, chunk Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)

	data := Encode(chunk)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.errs.Add(1)
		_ = c.conn.Close()
		c.conn = nil
		return &StreamError{URL: c.config.URL, Op: "write", Err: err}
	}
	c.chunks.Add(1)
	c.bytes.Add(uint64(len(data)))
	return nil
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:  c.Connected(),
		ChunksSent: c.chunks.Load(),
		BytesSent:  c.bytes.Load(),
		Errors:     c.errs.Load(),
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return &StreamError{URL: c.config.URL, Op: "close", Err: err}
	}
	return nil
}
