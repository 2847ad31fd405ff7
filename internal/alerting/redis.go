package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tjfontaine/llm-reliability/internal/domain"
)

// defaultChannel is the pub/sub channel alerts are published on.
const defaultChannel = "reliability.drift_alerts"

// RedisPublisher publishes alerts as JSON on a Redis pub/sub channel
// so downstream consumers (pagers, dashboards) can subscribe without
// polling the store.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher connects to redisURL and publishes on channel.
// An empty channel falls back to the default.
func NewRedisPublisher(redisURL, channel string) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisPublisher{
		client:  redis.NewClient(opt),
		channel: channel,
	}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, alert domain.DriftAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Close releases the client connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
