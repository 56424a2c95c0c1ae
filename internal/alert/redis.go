package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// RecentFallsKey lists the keys of the most recent fall alerts, newest first.
	RecentFallsKey = "falls:recent"
	// RecentFallsLimit bounds RecentFallsKey.
	RecentFallsLimit = 1000
	// DefaultRedisTTL is how long a published alert stays in Redis.
	DefaultRedisTTL = 24 * time.Hour
)

// RedisSink publishes alerts for dashboards and other devices sharing the Redis instance.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSink connects to addr and verifies the connection.
func NewRedisSink(ctx context.Context, addr string, ttl time.Duration) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		MaxRetries: 3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return newRedisSink(client, ttl), nil
}

func newRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisSink{client: client, ttl: ttl}
}

func (*RedisSink) Name() string { return "redis" }

// FallKey returns the key an alert is stored under.
func FallKey(ev Event) string {
	if ev.ID != "" {
		return "fall:" + ev.ID
	}
	return fmt.Sprintf("fall:%s:%d", ev.DeviceID, ev.OccurredAt.UnixNano())
}

func (s *RedisSink) Alert(ctx context.Context, ev Event) error {
	key := FallKey(ev)

	data, err := json.Marshal(ev.Record())
	if err != nil {
		return fmt.Errorf("failed to marshal fall: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store fall in Redis: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, RecentFallsKey, key)
	pipe.LTrim(ctx, RecentFallsKey, 0, RecentFallsLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update recent falls list: %w", err)
	}
	return nil
}

// Recent returns up to count recent fall keys, newest first.
func (s *RedisSink) Recent(ctx context.Context, count int64) ([]string, error) {
	keys, err := s.client.LRange(ctx, RecentFallsKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent fall keys: %w", err)
	}
	return keys, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
