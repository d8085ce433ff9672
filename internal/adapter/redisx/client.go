// Package redisx adapts github.com/redis/go-redis/v9 to the domain.LogClient
// and domain.Cache ports. Both ports share a single *redis.Client: the log
// client exercises Streams + consumer groups, the cache exercises plain
// GET/SETEX, and both ride the same Pub/Sub primitive.
package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient dials Redis and verifies connectivity with a bounded ping.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("op=redisx.newclient.ping: %w", err)
	}
	return client, nil
}
