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

func TestMemoryStorage_Claim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queues := []string{queue.DefaultQueueName}

	t.Run("priority first then schedule", func(t *testing.T) {
		t.Parallel()

		storage := newStorage(t)
		enqueue(t, storage, "cleanup_expired", struct{}{}, queue.WithPriority(10))
		enqueue(t, storage, "redeliver", redeliverPayload{NotificationID: "n1"}, queue.WithPriority(90))
		enqueue(t, storage, "redeliver", redeliverPayload{NotificationID: "n2"}, queue.WithPriority(90),
			queue.WithScheduledAt(time.Now().Add(-time.Minute)))

		var order []string
		for range 3 {
			task, err := storage.ClaimTask(ctx, uuid.New(), queues, time.Minute)
			require.NoError(t, err)
			order = append(order, string(task.Payload))
		}
		assert.Equal(t, []string{`{"notification_id":"n2"}`, `{"notification_id":"n1"}`, `{}`}, order)

		_, err := storage.ClaimTask(ctx, uuid.New(), queues, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
	})

	t.Run("other queues are ignored", func(t *testing.T) {
		t.Parallel()

		storage := newStorage(t)
		enqueue(t, storage, "redeliver", redeliverPayload{}, queue.WithQueue("notifications"))

		_, err := storage.ClaimTask(ctx, uuid.New(), queues, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)

		task, err := storage.ClaimTask(ctx, uuid.New(), []string{"notifications"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "notifications", task.Queue)
	})

	t.Run("lapsed lease is claimable again", func(t *testing.T) {
		t.Parallel()

		storage := newStorage(t)
		enqueue(t, storage, "redeliver", redeliverPayload{})

		first, err := storage.ClaimTask(ctx, uuid.New(), queues, time.Millisecond)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			again, err := storage.ClaimTask(ctx, uuid.New(), queues, time.Minute)
			return err == nil && again.ID == first.ID && again.RetryCount == 0
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("lease extension needs a claimed task", func(t *testing.T) {
		t.Parallel()

		storage := newStorage(t)
		assert.ErrorIs(t, storage.ExtendLock(ctx, uuid.New(), time.Minute), queue.ErrTaskNotFound)

		enqueue(t, storage, "redeliver", redeliverPayload{})
		pending := storage.Tasks(queue.TaskStatusPending)
		require.Len(t, pending, 1)
		assert.ErrorIs(t, storage.ExtendLock(ctx, pending[0].ID, time.Minute), queue.ErrTaskNotClaimed)
		assert.ErrorIs(t, storage.CompleteTask(ctx, pending[0].ID), queue.ErrTaskNotClaimed)
	})

	t.Run("closed storage", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		require.NoError(t, storage.Close())

		_, err := storage.ClaimTask(ctx, uuid.New(), queues, time.Minute)
		assert.ErrorIs(t, err, queue.ErrStorageClosed)
		assert.ErrorIs(t, storage.CreateTask(ctx, &queue.Task{ID: uuid.New()}), queue.ErrStorageClosed)
	})
}
