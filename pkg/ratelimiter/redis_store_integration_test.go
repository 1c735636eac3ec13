//go:build integration

package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/internal/testutil/containers"
	"github.com/dmitrymomot/notifier/pkg/ratelimiter"
)

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	cfg := ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Minute}
	store := ratelimiter.NewRedisStore(rc.Client, "test:ratelimit:")
	b, c := newBucket(t, store, cfg)

	for range 2 {
		res, err := b.Allow(ctx, "actor")
		require.NoError(t, err)
		require.True(t, res.Allowed())
	}

	res, err := b.Allow(ctx, "actor")
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, c.Now().Add(time.Minute).UnixMilli(), res.ResetAt.UnixMilli())

	c.Advance(90 * time.Second)
	res, err = b.Allow(ctx, "actor")
	require.NoError(t, err)
	assert.True(t, res.Allowed())
	assert.Equal(t, 0, res.Remaining)

	ttl, err := rc.Client.PTTL(ctx, "test:ratelimit:actor").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	require.NoError(t, b.Reset(ctx, "actor"))
	res, err = b.Status(ctx, "actor")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}
