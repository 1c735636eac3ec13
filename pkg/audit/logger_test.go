package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/pkg/audit"
)

type ctxUser struct{}

func TestLogger(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("log success", func(t *testing.T) {
		t.Parallel()

		storage := audit.NewMemoryStorage()
		l := audit.NewLogger(storage, audit.WithClock(func() time.Time { return fixed }))

		err := l.Log(context.Background(), "reveal",
			audit.WithActor("u1"),
			audit.WithResource("contact_request", "r1"),
			audit.WithMetadata("purpose", "follow-up"))
		require.NoError(t, err)

		events, err := l.Find(context.Background(), audit.Criteria{ResourceID: "r1"})
		require.NoError(t, err)
		require.Len(t, events, 1)

		e := events[0]
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "u1", e.UserID)
		assert.Equal(t, "reveal", e.Action)
		assert.Equal(t, "contact_request", e.Resource)
		assert.Equal(t, audit.ResultSuccess, e.Result)
		assert.Equal(t, "follow-up", e.Metadata["purpose"])
		assert.Equal(t, fixed, e.CreatedAt)
	})

	t.Run("log error", func(t *testing.T) {
		t.Parallel()

		storage := audit.NewMemoryStorage()
		l := audit.NewLogger(storage)

		require.NoError(t, l.LogError(context.Background(), "reveal", errors.New("key retired"), audit.WithActor("u1")))

		events, err := storage.Query(context.Background(), audit.Criteria{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.ResultError, events[0].Result)
		assert.Equal(t, "key retired", events[0].Error)
	})

	t.Run("actor from context", func(t *testing.T) {
		t.Parallel()

		storage := audit.NewMemoryStorage()
		l := audit.NewLogger(storage, audit.WithUserIDExtractor(func(ctx context.Context) (string, bool) {
			v, ok := ctx.Value(ctxUser{}).(string)
			return v, ok
		}))

		ctx := context.WithValue(context.Background(), ctxUser{}, "u9")
		require.NoError(t, l.Log(ctx, "approve"))

		events, _ := storage.Query(ctx, audit.Criteria{UserID: "u9"})
		assert.Len(t, events, 1)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()

		l := audit.NewLogger(audit.NewMemoryStorage())
		assert.ErrorIs(t, l.Log(context.Background(), "", audit.WithActor("u1")), audit.ErrEventValidation)
		assert.ErrorIs(t, l.Log(context.Background(), "reveal"), audit.ErrEventValidation)
	})

	t.Run("written after cancellation", func(t *testing.T) {
		t.Parallel()

		storage := audit.NewMemoryStorage()
		l := audit.NewLogger(storage)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, l.Log(ctx, "expire", audit.WithActor("system")))

		events, _ := storage.Query(context.Background(), audit.Criteria{Action: "expire"})
		assert.Len(t, events, 1)
	})

	t.Run("repeated event id is stored once", func(t *testing.T) {
		t.Parallel()

		storage := audit.NewMemoryStorage()
		l := audit.NewLogger(storage)

		for range 2 {
			require.NoError(t, l.Log(context.Background(), "expire",
				audit.WithActor("system"),
				audit.WithEventID("expire-r1")))
		}

		events, err := storage.Query(context.Background(), audit.Criteria{Action: "expire"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "expire-r1", events[0].ID)
	})

	t.Run("nil storage panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { audit.NewLogger(nil) })
	})
}

func TestMemoryStorage_Query(t *testing.T) {
	t.Parallel()

	storage := audit.NewMemoryStorage()
	l := audit.NewLogger(storage)
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, l.Log(ctx, "expire", audit.WithActor("system"), audit.WithResource("contact_request", id)))
	}

	events, err := storage.Query(ctx, audit.Criteria{Action: "expire", Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "r2", events[0].ResourceID)
}
