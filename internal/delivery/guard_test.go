package delivery_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/internal/delivery"
)

func TestMemoryGuard(t *testing.T) {
	t.Parallel()

	t.Run("exclusive until released", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		g := delivery.NewMemoryGuard(time.Minute)
		id := uuid.New()

		release, ok, err := g.Claim(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = g.Claim(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = g.Claim(ctx, uuid.New())
		require.NoError(t, err)
		assert.True(t, ok, "other notifications are independent")

		release()
		release()

		_, ok, err = g.Claim(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("claim lapses after ttl", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		g := delivery.NewMemoryGuard(10 * time.Millisecond)
		id := uuid.New()

		stale, ok, err := g.Claim(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(20 * time.Millisecond)

		_, ok, err = g.Claim(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		// The lapsed holder must not release the new claim.
		stale()
		_, ok, err = g.Claim(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
