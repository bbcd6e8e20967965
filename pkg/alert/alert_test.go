package alert

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/screen-guide/internal/log"
	"github.com/teslashibe/screen-guide/pkg/hub"
	"github.com/teslashibe/screen-guide/pkg/priority"
	"github.com/teslashibe/screen-guide/pkg/protocol"
)

type fakeRedis struct {
	published map[string][][]byte
	lists     map[string][][]byte
	trims     int
	failOn    string
	closed    bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{published: map[string][][]byte{}, lists: map[string][][]byte{}}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	if f.failOn == "publish" {
		return redis.NewIntResult(0, errors.New("connection reset"))
	}
	f.published[channel] = append(f.published[channel], message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) LPush(_ context.Context, key string, values ...any) *redis.IntCmd {
	for _, v := range values {
		f.lists[key] = append([][]byte{v.([]byte)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.trims++
	if l := f.lists[key]; int64(len(l)) > stop+1 {
		f.lists[key] = l[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func helpMessage(t *testing.T) *protocol.Message {
	t.Helper()
	msg, err := protocol.NewNeedsHelpMessage(protocol.NeedsHelpData{Severity: priority.Critical})
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestRedisSinkPublish(t *testing.T) {
	fake := newFakeRedis()
	cfg := DefaultRedisConfig()
	cfg.HistorySize = 2
	s := &RedisSink{client: fake, cfg: cfg}

	for i := 0; i < 3; i++ {
		if err := s.Publish(context.Background(), helpMessage(t)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	if got := len(fake.published[cfg.Channel]); got != 3 {
		t.Errorf("published %d messages, want 3", got)
	}
	if got := len(fake.lists[cfg.HistoryKey]); got != 2 {
		t.Errorf("history length = %d, want 2", got)
	}
	if !strings.Contains(string(fake.published[cfg.Channel][0]), `"type":"needs_help"`) {
		t.Errorf("payload = %s", fake.published[cfg.Channel][0])
	}

	if err := s.Close(); err != nil || !fake.closed {
		t.Errorf("Close() = %v, closed = %v", err, fake.closed)
	}
}

func TestRedisSinkPublishError(t *testing.T) {
	fake := newFakeRedis()
	fake.failOn = "publish"
	s := &RedisSink{client: fake, cfg: DefaultRedisConfig()}
	if err := s.Publish(context.Background(), helpMessage(t)); err == nil {
		t.Fatal("Publish() succeeded on a failing client")
	}
	if len(fake.lists) != 0 {
		t.Error("history written after publish failure")
	}
}

func TestNewRedisSinkErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  RedisConfig
		want string
	}{
		{"missing url", RedisConfig{}, "required"},
		{"bad url", RedisConfig{URL: "http://nope"}, "parse redis URL"},
		{"unreachable", RedisConfig{URL: "redis://127.0.0.1:1/0", DialTimeout: 200 * time.Millisecond}, "connect to redis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := NewRedisSink(ctx, tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NewRedisSink() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

type recordingSink struct {
	got    []protocol.MessageType
	err    error
	closed bool
}

func (r *recordingSink) Publish(_ context.Context, msg *protocol.Message) error {
	r.got = append(r.got, msg.Type)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestMultiContinuesPastFailures(t *testing.T) {
	bad := &recordingSink{err: errors.New("down")}
	good := &recordingSink{}
	m := NewMulti(log.Discard(), bad)
	m.Add(good)

	err := m.Publish(context.Background(), helpMessage(t))
	if err == nil {
		t.Error("Publish() should report the failing sink")
	}
	if len(good.got) != 1 {
		t.Errorf("healthy sink received %d messages, want 1", len(good.got))
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if !bad.closed || !good.closed || m.Len() != 0 {
		t.Error("Close did not close every sink")
	}
}

func TestHubSink(t *testing.T) {
	h := hub.New("alerts", log.Discard())
	s := NewHubSink(h)
	if err := s.Publish(context.Background(), helpMessage(t)); err != nil {
		t.Fatal(err)
	}
	if h.Dropped() != 0 {
		t.Errorf("Dropped() = %d", h.Dropped())
	}
}
