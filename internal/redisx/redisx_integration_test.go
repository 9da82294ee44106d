//go:build integration

package redisx

import (
	"context"
	"testing"

	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) (context.Context, *StatusCache, *Deduper, *IdempotencyStore) {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	addr, err := c.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb := New(addr)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, Ping(ctx, rdb))

	return ctx, NewStatusCache(rdb, zerolog.Nop()), NewDeduper(rdb, "test"), NewIdempotencyStore(rdb)
}

func TestRedisAdapters(t *testing.T) {
	ctx, cache, dedup, idem := startRedis(t)

	_, ok := cache.Get(ctx, "o1")
	assert.False(t, ok)
	cache.Set(ctx, "o1", orders.StatusConfirmed)
	st, ok := cache.Get(ctx, "o1")
	assert.True(t, ok)
	assert.Equal(t, orders.StatusConfirmed, st)
	cache.Invalidate(ctx, "o1")
	_, ok = cache.Get(ctx, "o1")
	assert.False(t, ok)

	seen, err := dedup.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, dedup.Mark(ctx, "ev-1"))
	seen, err = dedup.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, seen)

	idem.Remember(ctx, "k1", "o1")
	idem.Remember(ctx, "k1", "o2")
	id, ok := idem.Lookup(ctx, "k1")
	assert.True(t, ok)
	assert.Equal(t, "o1", id)
}
