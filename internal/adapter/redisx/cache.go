package redisx

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

// Cache implements domain.Cache as plain GET/SETEX + pub/sub over the same
// Redis client used for streams.
type Cache struct {
	client *redis.Client
}

// NewCache wraps an existing Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the stored blob, or ok=false on miss.
func (c *Cache) Get(ctx domain.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("op=cache.get: %w", err)
	}
	return val, true, nil
}

// SetEX overwrites the key atomically with the given TTL.
func (c *Cache) SetEX(ctx domain.Context, key string, blob []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, blob, ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.setex: %w", err)
	}
	return nil
}

// Publish is best-effort.
func (c *Cache) Publish(ctx domain.Context, channel string, payload []byte) error {
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("op=cache.publish: %w", err)
	}
	return nil
}

// Subscribe returns a channel of payloads; the closer releases it.
func (c *Cache) Subscribe(ctx domain.Context, channel string) (<-chan []byte, func() error, error) {
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("op=cache.subscribe: %w", err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, pubsub.Close, nil
}

// Ping checks connectivity for readiness/health probes.
func (c *Cache) Ping(ctx domain.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("op=cache.ping: %w", err)
	}
	return nil
}
