package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes JSON events on Redis pub/sub channels named after
// the topic.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects and pings the server.
func NewRedisPublisher(ctx context.Context, addr, password string, db int) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("no redis address configured")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error initializing redis publisher: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

// NewRedisPublisherFromClient wraps an existing client.
func NewRedisPublisherFromClient(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) SendEvent(ctx context.Context, topic string, payload map[string]interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.client.Publish(ctx, topic, value).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
