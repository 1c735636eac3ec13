package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/pkg/queue"
)

type redeliverPayload struct {
	NotificationID string `json:"notification_id"`
}

func newStorage(t *testing.T) *queue.MemoryStorage {
	t.Helper()
	s := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnqueuer_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()

		e, err := queue.NewEnqueuer(newStorage(t))
		require.NoError(t, err)

		_, err = e.Enqueue(context.Background(), "", redeliverPayload{})
		assert.ErrorIs(t, err, queue.ErrTaskNameRequired)

		_, err = e.Enqueue(context.Background(), "redeliver", nil)
		assert.ErrorIs(t, err, queue.ErrPayloadNil)

		_, err = e.Enqueue(context.Background(), "redeliver", redeliverPayload{}, queue.WithPriority(101))
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)
	})

	t.Run("nil repository", func(t *testing.T) {
		t.Parallel()

		_, err := queue.NewEnqueuer(nil)
		assert.ErrorIs(t, err, queue.ErrRepositoryNil)
	})

	t.Run("stores scheduled task", func(t *testing.T) {
		t.Parallel()

		storage := newStorage(t)
		e, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		runAt := time.Now().Add(time.Hour)
		id, err := e.Enqueue(context.Background(), "redeliver", redeliverPayload{NotificationID: "n1"},
			queue.WithScheduledAt(runAt),
			queue.WithMaxRetries(5),
		)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)

		pending := storage.Tasks(queue.TaskStatusPending)
		require.Len(t, pending, 1)
		assert.Equal(t, id, pending[0].ID)
		assert.Equal(t, "redeliver", pending[0].TaskName)
		assert.Equal(t, int8(5), pending[0].MaxRetries)
		assert.WithinDuration(t, runAt, pending[0].ScheduledAt, time.Millisecond)
		assert.JSONEq(t, `{"notification_id":"n1"}`, string(pending[0].Payload))
	})

	t.Run("same unique key returns existing id", func(t *testing.T) {
		t.Parallel()

		storage := newStorage(t)
		e, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		ctx := context.Background()
		first, err := e.Enqueue(ctx, "redeliver", redeliverPayload{NotificationID: "n1"},
			queue.WithUniqueKey("redeliver:n1", 0))
		require.NoError(t, err)

		second, err := e.Enqueue(ctx, "redeliver", redeliverPayload{NotificationID: "n1"},
			queue.WithUniqueKey("redeliver:n1", 0))
		require.NoError(t, err)
		assert.Equal(t, first, second)

		other, err := e.Enqueue(ctx, "redeliver", redeliverPayload{NotificationID: "n2"},
			queue.WithUniqueKey("redeliver:n2", 0))
		require.NoError(t, err)
		assert.NotEqual(t, first, other)

		assert.Len(t, storage.Tasks(queue.TaskStatusPending), 2)
	})
}

func TestTask_HoldsUniqueKey(t *testing.T) {
	t.Parallel()

	now := time.Now()
	key := "expire:c1"
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name  string
		task  queue.Task
		holds bool
	}{
		{"no key", queue.Task{Status: queue.TaskStatusPending}, false},
		{"pending", queue.Task{Status: queue.TaskStatusPending, UniqueKey: &key}, true},
		{"processing", queue.Task{Status: queue.TaskStatusProcessing, UniqueKey: &key, UniqueUntil: &future}, false},
		{"completed within period", queue.Task{Status: queue.TaskStatusCompleted, UniqueKey: &key, UniqueUntil: &future}, true},
		{"completed after period", queue.Task{Status: queue.TaskStatusCompleted, UniqueKey: &key, UniqueUntil: &past}, false},
		{"failed without period", queue.Task{Status: queue.TaskStatusFailed, UniqueKey: &key}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.holds, tt.task.HoldsUniqueKey(now))
		})
	}
}
