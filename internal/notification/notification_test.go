package notification_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/validator"
)

func validParams() notification.CreateParams {
	return notification.CreateParams{
		UserID:     "user-1",
		Channel:    notification.ChannelEmail,
		Title:      "Your post matched",
		Body:       "Someone is interested in your post.",
		MaxRetries: 3,
	}
}

func newPending(t *testing.T) *notification.Notification {
	t.Helper()
	n, err := notification.New(validParams())
	require.NoError(t, err)
	return n
}

func ptr[T any](v T) *T { return &v }

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("valid params yield a pending notification", func(t *testing.T) {
		t.Parallel()

		n, err := notification.New(validParams())
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, n.ID)
		assert.Equal(t, notification.StatusPending, n.Status)
		assert.Zero(t, n.RetryCount)
		assert.Equal(t, 3, n.MaxRetries)
		assert.Nil(t, n.FailedAt)
		assert.Nil(t, n.FailureReason)
		assert.NotNil(t, n.Metadata)
		assert.False(t, n.InsertedAt.IsZero())
	})

	t.Run("keeps a caller supplied id", func(t *testing.T) {
		t.Parallel()

		p := validParams()
		p.ID = uuid.New()
		n, err := notification.New(p)
		require.NoError(t, err)
		assert.Equal(t, p.ID, n.ID)
	})

	t.Run("copies metadata", func(t *testing.T) {
		t.Parallel()

		p := validParams()
		p.Metadata = map[string]any{"post_id": "p1"}
		n, err := notification.New(p)
		require.NoError(t, err)

		p.Metadata["post_id"] = "changed"
		assert.Equal(t, "p1", n.Meta("post_id"))
	})

	tests := []struct {
		name   string
		mutate func(*notification.CreateParams)
		field  string
	}{
		{"unknown channel", func(p *notification.CreateParams) { p.Channel = "fax" }, "channel"},
		{"empty title", func(p *notification.CreateParams) { p.Title = " " }, "title"},
		{"empty body", func(p *notification.CreateParams) { p.Body = "" }, "body"},
		{"missing user", func(p *notification.CreateParams) { p.UserID = "" }, "user_id"},
		{"negative max retries", func(p *notification.CreateParams) { p.MaxRetries = -1 }, "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := validParams()
			tt.mutate(&p)

			n, err := notification.New(p)
			require.Error(t, err)
			assert.Nil(t, n)
			assert.ErrorIs(t, err, notification.ErrValidation)
			assert.True(t, validator.ExtractValidationErrors(err).Has(tt.field))
		})
	}
}

func TestReadyToSend(t *testing.T) {
	t.Parallel()

	now := time.Now()

	n := newPending(t)
	assert.True(t, n.ReadyToSendAt(now))

	n.ScheduledAt = ptr(now.Add(time.Minute))
	assert.False(t, n.ReadyToSendAt(now))

	n.ScheduledAt = ptr(now)
	assert.True(t, n.ReadyToSendAt(now))

	n.ScheduledAt = ptr(now.Add(-time.Minute))
	assert.True(t, n.ReadyToSend())
}

func TestSend(t *testing.T) {
	t.Parallel()

	t.Run("pending and due", func(t *testing.T) {
		t.Parallel()

		n := newPending(t)
		require.NoError(t, n.Send())
		assert.Equal(t, notification.StatusSent, n.Status)
		require.NotNil(t, n.SentAt)
	})

	t.Run("scheduled in the future", func(t *testing.T) {
		t.Parallel()

		n := newPending(t)
		n.ScheduledAt = ptr(time.Now().Add(time.Hour))

		err := n.Send()
		require.ErrorIs(t, err, notification.ErrNotReadyToSend)
		assert.Equal(t, notification.StatusPending, n.Status)
		assert.Nil(t, n.SentAt)
	})

	for _, status := range []notification.Status{
		notification.StatusSent,
		notification.StatusDelivered,
		notification.StatusFailed,
		notification.StatusCancelled,
	} {
		t.Run("rejected from "+string(status), func(t *testing.T) {
			t.Parallel()

			n := newPending(t)
			n.Status = status

			err := n.Send()
			require.ErrorIs(t, err, notification.ErrInvalidTransition)
			assert.Contains(t, err.Error(), string(status))
		})
	}
}

func TestMarkDelivered(t *testing.T) {
	t.Parallel()

	n := newPending(t)
	err := n.MarkDelivered()
	require.ErrorIs(t, err, notification.ErrInvalidTransition)

	var te *notification.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, notification.StatusPending, te.Status)

	require.NoError(t, n.Send())
	require.NoError(t, n.MarkDelivered())
	assert.Equal(t, notification.StatusDelivered, n.Status)
	assert.NotNil(t, n.DeliveredAt)
	assert.True(t, n.IsTerminal())

	assert.ErrorIs(t, n.MarkDelivered(), notification.ErrInvalidTransition)
}

func TestMarkFailed(t *testing.T) {
	t.Parallel()

	t.Run("from pending", func(t *testing.T) {
		t.Parallel()

		n := newPending(t)
		require.NoError(t, n.MarkFailed("invalid destination"))
		assert.Equal(t, notification.StatusFailed, n.Status)
		require.NotNil(t, n.FailedAt)
		require.NotNil(t, n.FailureReason)
		assert.Equal(t, "invalid destination", *n.FailureReason)
	})

	t.Run("from sent", func(t *testing.T) {
		t.Parallel()

		n := newPending(t)
		require.NoError(t, n.Send())
		require.NoError(t, n.MarkFailed("bounced"))
		assert.Equal(t, notification.StatusFailed, n.Status)
	})

	t.Run("terminal states reject", func(t *testing.T) {
		t.Parallel()

		n := newPending(t)
		require.NoError(t, n.Cancel("user opted out"))
		assert.ErrorIs(t, n.MarkFailed("late"), notification.ErrInvalidTransition)
		assert.Nil(t, n.FailedAt)
	})
}

func TestCancel(t *testing.T) {
	t.Parallel()

	n := newPending(t)
	require.NoError(t, n.Cancel("post removed"))
	assert.Equal(t, notification.StatusCancelled, n.Status)
	assert.Equal(t, "post removed", n.Meta(notification.MetaCancelReason))
	assert.Nil(t, n.FailureReason)

	sent := newPending(t)
	require.NoError(t, sent.Send())
	err := sent.Cancel("too late")
	require.ErrorIs(t, err, notification.ErrInvalidTransition)
	assert.Contains(t, err.Error(), `"sent"`)
}

func TestIncrementRetry(t *testing.T) {
	t.Parallel()

	p := validParams()
	p.MaxRetries = 2
	n, err := notification.New(p)
	require.NoError(t, err)

	require.NoError(t, n.IncrementRetry())
	require.NoError(t, n.IncrementRetry())
	assert.False(t, n.CanRetry())
	assert.ErrorIs(t, n.IncrementRetry(), notification.ErrRetryBudgetExhausted)
	assert.Equal(t, 2, n.RetryCount)
}

func TestValidForProcessing(t *testing.T) {
	t.Parallel()

	n := newPending(t)
	require.NoError(t, n.ValidForProcessing())

	n.Body = ""
	assert.ErrorIs(t, n.ValidForProcessing(), notification.ErrValidation)
}

func TestParseEnums(t *testing.T) {
	t.Parallel()

	c, err := notification.ParseChannel("whatsapp")
	require.NoError(t, err)
	assert.Equal(t, notification.ChannelWhatsApp, c)

	_, err = notification.ParseChannel("pigeon")
	assert.ErrorIs(t, err, notification.ErrUnknownChannel)

	s, err := notification.ParseStatus("delivered")
	require.NoError(t, err)
	assert.True(t, s.IsTerminal())
	assert.False(t, notification.StatusSent.IsTerminal())

	_, err = notification.ParseStatus("lost")
	assert.ErrorIs(t, err, notification.ErrUnknownStatus)
}

func TestClone(t *testing.T) {
	t.Parallel()

	n := newPending(t)
	n.SetMeta("k", "v")
	c := n.Clone()
	c.SetMeta("k", "changed")
	require.NoError(t, c.Send())

	assert.Equal(t, "v", n.Meta("k"))
	assert.Equal(t, notification.StatusPending, n.Status)
}
