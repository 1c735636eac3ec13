package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/queue"
)

// Enqueuer is the part of queue.Enqueuer the scheduler uses.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// Scheduler schedules typed jobs.
type Scheduler struct {
	enqueuer   Enqueuer
	maxRetries int8
	logger     *slog.Logger
}

type SchedulerOption func(*Scheduler)

// WithMaxRetries sets the job-level retry budget for scheduled tasks.
func WithMaxRetries(n int8) SchedulerOption {
	return func(s *Scheduler) { s.maxRetries = n }
}

func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

func NewScheduler(e Enqueuer, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		enqueuer:   e,
		maxRetries: 3,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type scheduleOptions struct {
	uniqueKey string
	period    time.Duration
}

// ScheduleOption adjusts a single Schedule call.
type ScheduleOption func(*scheduleOptions)

// WithUniqueKey replaces the operation's default uniqueness key. The key is
// held while the job is pending and for period after it was scheduled.
func WithUniqueKey(key string, period time.Duration) ScheduleOption {
	return func(o *scheduleOptions) {
		o.uniqueKey = key
		o.period = period
	}
}

// Schedule enqueues op to run at runAt. A second call with the same
// uniqueness key while the first job is still held returns the first job's id.
func (s *Scheduler) Schedule(ctx context.Context, op Operation, payload any, runAt time.Time, opts ...ScheduleOption) (uuid.UUID, error) {
	key, err := checkPayload(op, payload)
	if err != nil {
		return uuid.Nil, err
	}

	o := scheduleOptions{uniqueKey: key}
	for _, opt := range opts {
		opt(&o)
	}

	id, err := s.enqueuer.Enqueue(ctx, string(op), payload,
		queue.WithScheduledAt(runAt),
		queue.WithMaxRetries(s.maxRetries),
		queue.WithUniqueKey(o.uniqueKey, o.period),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("schedule %s: %w", op, err)
	}

	s.logger.DebugContext(ctx, "job scheduled",
		logger.Operation(op),
		logger.TaskID(id),
		slog.Time("run_at", runAt))

	return id, nil
}

// ScheduleRedelivery schedules another delivery attempt for a notification.
func (s *Scheduler) ScheduleRedelivery(ctx context.Context, notificationID uuid.UUID, at time.Time) error {
	_, err := s.Schedule(ctx, OpRedeliver, RedeliverPayload{NotificationID: notificationID}, at)
	return err
}

// ScheduleExpiry schedules the purge of a contact request.
func (s *Scheduler) ScheduleExpiry(ctx context.Context, requestID uuid.UUID, at time.Time) error {
	_, err := s.Schedule(ctx, OpExpireContact, ExpireContactPayload{RequestID: requestID}, at)
	return err
}
