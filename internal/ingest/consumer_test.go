package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifier/pkg/resilience"
)

type handlerFunc func(ctx context.Context, msg Message) error

func (f handlerFunc) Process(ctx context.Context, msg Message) error { return f(ctx, msg) }

func TestProcessUntilDone(t *testing.T) {
	t.Parallel()

	backoff := resilience.FixedBackoff{Interval: time.Millisecond}

	t.Run("retries until the handler succeeds", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		h := handlerFunc(func(context.Context, Message) error {
			if calls.Add(1) < 3 {
				return errors.New("database unavailable")
			}
			return nil
		})

		assert.True(t, processUntilDone(context.Background(), h, backoff, slog.Default(), Message{Topic: "events"}))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up when the session ends", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		var calls atomic.Int32
		h := handlerFunc(func(context.Context, Message) error {
			if calls.Add(1) == 2 {
				cancel()
			}
			return errors.New("database unavailable")
		})

		assert.False(t, processUntilDone(ctx, h, backoff, slog.Default(), Message{Topic: "events"}))
		assert.Equal(t, int32(2), calls.Load())
	})
}
