package redisx

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		_ = rdb.Close()
		mr.Close()
	}
	return NewCache(rdb), cleanup
}

func TestCache_GetSetEX(t *testing.T) {
	c, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.SetEX(ctx, "key1", []byte("value1"), 60*time.Second))

	val, ok, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value1", string(val))
}

func TestCache_Ping(t *testing.T) {
	c, cleanup := newTestCache(t)
	defer cleanup()
	require.NoError(t, c.Ping(context.Background()))
}

func TestCache_PublishSubscribe(t *testing.T) {
	c, cleanup := newTestCache(t)
	defer cleanup()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, closer, err := c.Subscribe(ctx, "alerts")
	require.NoError(t, err)
	defer closer()

	require.NoError(t, c.Publish(ctx, "alerts", []byte("fired")))

	select {
	case msg := <-ch:
		require.Equal(t, "fired", string(msg))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}
