package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/screen-guide/pkg/protocol"
)

// RedisConfig configures the Redis sink.
type RedisConfig struct {
	URL         string        `mapstructure:"url"`          // redis://host:port/db
	Channel     string        `mapstructure:"channel"`      // pub/sub channel for live events
	HistoryKey  string        `mapstructure:"history_key"`  // list holding recent events
	HistorySize int64         `mapstructure:"history_size"` // entries kept in HistoryKey
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// DefaultRedisConfig returns the default channel names.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:         "redis://localhost:6379/0",
		Channel:     "guide:events",
		HistoryKey:  "guide:events:recent",
		HistorySize: 100,
		DialTimeout: 2 * time.Second,
	}
}

type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisSink publishes events on a Redis channel and keeps a bounded list of
// recent events for collaborators that connect late.
type RedisSink struct {
	client redisClient
	cfg    RedisConfig
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("alert: redis URL is required")
	}
	def := DefaultRedisConfig()
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.HistoryKey == "" {
		cfg.HistoryKey = def.HistoryKey
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("alert: parse redis URL: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("alert: connect to redis: %w", err)
	}
	return &RedisSink{client: client, cfg: cfg}, nil
}

// Publish sends msg on the channel and records it in the history list.
func (s *RedisSink) Publish(ctx context.Context, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.cfg.Channel, data).Err(); err != nil {
		return fmt.Errorf("alert: publish %s: %w", msg.Type, err)
	}
	if err := s.client.LPush(ctx, s.cfg.HistoryKey, data).Err(); err != nil {
		return fmt.Errorf("alert: record %s: %w", msg.Type, err)
	}
	if err := s.client.LTrim(ctx, s.cfg.HistoryKey, 0, s.cfg.HistorySize-1).Err(); err != nil {
		return fmt.Errorf("alert: trim history: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
