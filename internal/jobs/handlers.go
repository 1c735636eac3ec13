package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/internal/contact"
	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/queue"
)

// Redeliverer re-drives delivery of one notification. It must be a no-op
// for notifications that are no longer pending.
type Redeliverer interface {
	Redeliver(ctx context.Context, id uuid.UUID) error
}

// ContactMaintenance is the contact service surface used by jobs.
type ContactMaintenance interface {
	Expire(ctx context.Context, id uuid.UUID) error
	CleanupExpired(ctx context.Context) (int, error)
	RotateKeys(ctx context.Context) (contact.RotationResult, error)
}

// Observer receives job outcomes. Metrics implement it.
type Observer interface {
	JobFinished(op string, err error)
	ContactsPurged(n int)
}

// Handlers returns the queue handlers for every operation.
func Handlers(d Redeliverer, c ContactMaintenance, obs Observer, log *slog.Logger) []queue.Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("jobs"))

	observe := func(op Operation, err error) error {
		if obs != nil {
			obs.JobFinished(string(op), err)
		}
		return err
	}

	return []queue.Handler{
		queue.NewHandler(string(OpRedeliver), func(ctx context.Context, p RedeliverPayload) error {
			err := d.Redeliver(ctx, p.NotificationID)
			if errors.Is(err, notification.ErrNotFound) {
				err = queue.Permanent(err)
			}
			return observe(OpRedeliver, err)
		}),

		queue.NewHandler(string(OpExpireContact), func(ctx context.Context, p ExpireContactPayload) error {
			err := c.Expire(ctx, p.RequestID)
			if errors.Is(err, contact.ErrNotFound) {
				err = queue.Permanent(err)
			}
			return observe(OpExpireContact, err)
		}),

		queue.NewPeriodicTaskHandler(string(OpCleanupExpired), func(ctx context.Context) error {
			n, err := c.CleanupExpired(ctx)
			if obs != nil {
				obs.ContactsPurged(n)
			}
			log.InfoContext(ctx, "cleanup_expired finished", slog.Int("purged", n), logger.Error(err))
			return observe(OpCleanupExpired, err)
		}),

		queue.NewPeriodicTaskHandler(string(OpRotateKeys), func(ctx context.Context) error {
			res, err := c.RotateKeys(ctx)
			if errors.Is(err, contact.ErrEncryption) {
				// configuration problem; retrying will not help
				err = queue.Permanent(err)
			}
			log.InfoContext(ctx, "rotate_keys finished",
				logger.KeyID(res.KeyID),
				slog.Int("reencrypted", res.Reencrypted),
				logger.Error(err))
			return observe(OpRotateKeys, err)
		}),
	}
}

// Register adds all job handlers to w.
func Register(w *queue.Worker, d Redeliverer, c ContactMaintenance, obs Observer, log *slog.Logger) error {
	return w.RegisterHandlers(Handlers(d, c, obs, log)...)
}

// RegisterPeriodic adds the periodic operations to s.
func RegisterPeriodic(s *queue.Scheduler, cleanup, rotation queue.Schedule) error {
	if err := s.AddTask(string(OpCleanupExpired), cleanup); err != nil {
		return err
	}
	return s.AddTask(string(OpRotateKeys), rotation)
}
