//go:build integration

package delivery_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/internal/delivery"
	"github.com/dmitrymomot/notifier/internal/testutil/containers"
	"github.com/dmitrymomot/notifier/pkg/redis"
)

func TestRedisGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()

	// two replicas sharing one redis
	a := delivery.NewRedisGuard(redis.NewLocker(rc.Client, "notifier:"), time.Minute)
	b := delivery.NewRedisGuard(redis.NewLocker(rc.Client, "notifier:"), time.Minute)

	id := uuid.New()

	var (
		wg       sync.WaitGroup
		claimed  atomic.Int32
		releases = make(chan func(), 10)
	)
	for i := range 10 {
		g := a
		if i%2 == 1 {
			g = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, ok, err := g.Claim(ctx, id)
			if err == nil && ok {
				claimed.Add(1)
				releases <- release
			}
		}()
	}
	wg.Wait()
	close(releases)
	require.Equal(t, int32(1), claimed.Load())

	for release := range releases {
		release()
		release()
	}

	release, ok, err := b.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	release()
}
