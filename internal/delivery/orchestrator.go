package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/internal/provider"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/resilience"
)

// RetryScheduler creates redelivery jobs. Implemented by jobs.Scheduler.
type RetryScheduler interface {
	ScheduleRedelivery(ctx context.Context, notificationID uuid.UUID, at time.Time) error
}

// Metrics receives delivery observations.
type Metrics interface {
	DeliveryFinished(channel notification.Channel, outcome Outcome)
	ProviderCall(provider string, elapsed time.Duration, err error)
}

type errorClass int

const (
	classTransient errorClass = iota
	classPermanent
	classOverload
)

// Orchestrator drives a pending notification through one delivery attempt.
// Retries are never performed inline: transient failures become redelivery jobs.
type Orchestrator struct {
	repo      notification.Repository
	retries   RetryScheduler
	senders   map[notification.Channel]provider.Sender
	breakers  *resilience.CircuitBreakers
	bulkheads *resilience.Bulkheads
	guard     Guard
	contacts  notification.ContactDirectory
	backoff   resilience.BackoffStrategy
	timeout   time.Duration
	overload  time.Duration
	metrics   Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator persisting to repo and scheduling retries through retries.
func NewOrchestrator(repo notification.Repository, retries RetryScheduler, opts ...Option) *Orchestrator {
	if repo == nil {
		panic("delivery: repository is required")
	}
	if retries == nil {
		panic("delivery: retry scheduler is required")
	}

	o := &Orchestrator{
		repo:     repo,
		retries:  retries,
		senders:  make(map[notification.Channel]provider.Sender),
		guard:    noGuard{},
		backoff:  resilience.DefaultRetryBackoff(),
		timeout:  30 * time.Second,
		overload: 5 * time.Second,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.breakers == nil {
		o.breakers = resilience.NewCircuitBreakers(resilience.WithFailurePredicate(IsProviderFailure))
	}
	if o.bulkheads == nil {
		o.bulkheads = resilience.NewBulkheads(10, 50)
	}
	o.logger = o.logger.With(logger.Component("delivery"))

	return o
}

// IsProviderFailure decides which errors count against a provider's circuit
// breaker: transient provider errors and timeouts do, permanent rejections
// and caller cancellation do not.
func IsProviderFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

// Deliver makes one delivery attempt for n and persists the result.
// Validation and permanent provider errors end in the failed state and are
// not returned. A non-nil error means n was left untouched in storage.
// Once the guard is held n is refreshed from storage, so a stale copy whose
// row has already left pending is skipped without calling the provider.
func (o *Orchestrator) Deliver(ctx context.Context, n *notification.Notification) (Outcome, error) {
	if n == nil {
		return "", ErrNilNotification
	}
	if n.Status != notification.StatusPending {
		return OutcomeSkipped, nil
	}

	release, ok, err := o.guard.Claim(ctx, n.ID)
	if err != nil {
		return "", err
	}
	if !ok {
		o.logger.DebugContext(ctx, "delivery already in flight", logger.NotificationID(n.ID))
		return OutcomeSkipped, nil
	}
	defer release()

	current, err := o.repo.Get(ctx, n.ID)
	if err != nil {
		return "", err
	}
	*n = *current
	if n.Status != notification.StatusPending {
		o.logger.DebugContext(ctx, "notification no longer pending",
			logger.NotificationID(n.ID),
			logger.Status(n.Status))
		return OutcomeSkipped, nil
	}

	outcome, err := o.attempt(ctx, n)
	if err != nil {
		o.logger.ErrorContext(ctx, "delivery attempt aborted",
			logger.NotificationID(n.ID),
			logger.Channel(n.Channel),
			logger.Error(err))
		return "", err
	}

	if o.metrics != nil {
		o.metrics.DeliveryFinished(n.Channel, outcome)
	}
	return outcome, nil
}

func (o *Orchestrator) attempt(ctx context.Context, n *notification.Notification) (Outcome, error) {
	if err := n.ValidForProcessing(); err != nil {
		return o.fail(ctx, n, err.Error())
	}

	if !n.ReadyToSendAt(o.now()) {
		return OutcomeDeferred, nil
	}

	sender, ok := o.senders[n.Channel]
	if !ok {
		return o.fail(ctx, n, fmt.Sprintf("%s: %s", ErrNoSender, n.Channel))
	}

	dest, err := o.destination(ctx, n)
	switch {
	case errors.Is(err, notification.ErrContactNotFound), errors.Is(err, notification.ErrNoDestination):
		return o.fail(ctx, n, err.Error())
	case err != nil:
		return o.retry(ctx, n, err)
	}

	msg := provider.Message{
		To:      dest,
		Subject: n.Title,
		Body:    n.Body,
		Tag:     n.Meta(notification.MetaEventType),
	}
	if err := sender.ValidateDestination(dest); err != nil {
		return o.fail(ctx, n, err.Error())
	}
	if err := sender.ValidateMessage(msg); err != nil {
		return o.fail(ctx, n, err.Error())
	}

	receipt, err := o.call(ctx, sender, msg)
	if err != nil {
		// Shutdown is not a delivery failure; the redelivery job runs again.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		switch classify(err) {
		case classOverload:
			return o.postpone(ctx, n, err)
		case classPermanent:
			return o.fail(ctx, n, err.Error())
		default:
			return o.retry(ctx, n, err)
		}
	}

	return o.sent(ctx, n, sender, receipt)
}

// call runs the provider request: bulkhead, then circuit breaker, then the per-attempt timeout.
func (o *Orchestrator) call(ctx context.Context, sender provider.Sender, msg provider.Message) (provider.Receipt, error) {
	name := sender.Name()

	permit, err := o.bulkheads.Acquire(ctx, name)
	if err != nil {
		return provider.Receipt{}, err
	}
	defer permit.Release()

	var receipt provider.Receipt
	start := time.Now()
	err = o.breakers.Call(ctx, name, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		r, err := sender.Send(ctx, msg)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})

	if o.metrics != nil && !resilience.IsCircuitOpen(err) {
		o.metrics.ProviderCall(name, time.Since(start), err)
	}
	return receipt, err
}

func (o *Orchestrator) sent(ctx context.Context, n *notification.Notification, sender provider.Sender, receipt provider.Receipt) (Outcome, error) {
	if err := n.SendAt(o.now()); err != nil {
		return "", err
	}
	if receipt.MessageID != "" {
		n.SetMeta(notification.MetaProviderMessageID, receipt.MessageID)
	}

	outcome := OutcomeSent
	if receipt.Delivered {
		if err := n.MarkDelivered(); err != nil {
			return "", err
		}
		outcome = OutcomeDelivered
	}

	if err := o.persist(ctx, n); err != nil {
		return "", err
	}

	o.logger.InfoContext(ctx, "notification sent",
		logger.NotificationID(n.ID),
		logger.Channel(n.Channel),
		logger.Provider(sender.Name()),
		logger.MessageID(receipt.MessageID),
		logger.Status(n.Status))

	return outcome, nil
}

// retry consumes one unit of the retry budget and schedules a redelivery,
// or fails the notification once the budget is spent.
func (o *Orchestrator) retry(ctx context.Context, n *notification.Notification, cause error) (Outcome, error) {
	if !n.CanRetry() {
		return o.fail(ctx, n, fmt.Sprintf("retries exhausted after %d retries: %v", n.RetryCount, cause))
	}

	if err := n.IncrementRetry(); err != nil {
		return "", err
	}
	n.SetMeta(notification.MetaLastError, cause.Error())

	at := o.now().Add(o.backoff.NextInterval(n.RetryCount))
	// Scheduling comes first: if the write below loses, the job finds the
	// notification still pending and simply attempts it again.
	if err := o.retries.ScheduleRedelivery(ctx, n.ID, at); err != nil {
		return "", errors.Join(ErrScheduleRetry, err)
	}
	if err := o.persist(ctx, n); err != nil {
		return "", err
	}

	o.logger.WarnContext(ctx, "delivery failed, retry scheduled",
		logger.NotificationID(n.ID),
		logger.Channel(n.Channel),
		logger.RetryCount(n.RetryCount),
		slog.Time("retry_at", at),
		logger.Error(cause))

	return OutcomeRetryScheduled, nil
}

// postpone reschedules an attempt refused by an overloaded provider pool or an
// open breaker. The retry budget is left alone and nothing is persisted.
func (o *Orchestrator) postpone(ctx context.Context, n *notification.Notification, cause error) (Outcome, error) {
	delay := o.overload
	if d, ok := resilience.RetryAfter(cause); ok && d > 0 {
		delay = d
	}
	at := o.now().Add(delay)

	if err := o.retries.ScheduleRedelivery(ctx, n.ID, at); err != nil {
		return "", errors.Join(ErrScheduleRetry, err)
	}

	o.logger.InfoContext(ctx, "provider unavailable, delivery postponed",
		logger.NotificationID(n.ID),
		logger.Channel(n.Channel),
		slog.Time("retry_at", at),
		logger.Error(cause))

	return OutcomeRetryScheduled, nil
}

func (o *Orchestrator) fail(ctx context.Context, n *notification.Notification, reason string) (Outcome, error) {
	if err := n.MarkFailed(reason); err != nil {
		return "", err
	}
	if err := o.persist(ctx, n); err != nil {
		return "", err
	}

	o.logger.WarnContext(ctx, "notification failed",
		logger.NotificationID(n.ID),
		logger.Channel(n.Channel),
		slog.String("reason", reason))

	return OutcomeFailed, nil
}

// persist writes n back, expecting nobody moved it out of pending meanwhile.
func (o *Orchestrator) persist(ctx context.Context, n *notification.Notification) error {
	if err := o.repo.Update(context.WithoutCancel(ctx), n, notification.StatusPending); err != nil {
		return errors.Join(ErrPersist, err)
	}
	return nil
}

func (o *Orchestrator) destination(ctx context.Context, n *notification.Notification) (string, error) {
	if dest := n.Meta(notification.MetaDestination); dest != "" {
		return dest, nil
	}
	if o.contacts == nil {
		return "", notification.ErrNoDestination
	}

	c, err := o.contacts.Lookup(ctx, n.UserID)
	if err != nil {
		return "", err
	}
	return c.Destination(n.Channel)
}

func classify(err error) errorClass {
	if resilience.IsCircuitOpen(err) || resilience.IsBulkheadRejected(err) {
		return classOverload
	}
	var pe *provider.Error
	if errors.As(err, &pe) && !pe.Retryable() {
		return classPermanent
	}
	return classTransient
}

// Redeliver is the redelivery job entry point. It loads the notification and
// attempts it again; notifications no longer pending are left alone.
func (o *Orchestrator) Redeliver(ctx context.Context, id uuid.UUID) error {
	n, err := o.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.Status != notification.StatusPending {
		o.logger.DebugContext(ctx, "redelivery skipped",
			logger.NotificationID(id),
			logger.Status(n.Status))
		return nil
	}

	outcome, err := o.Deliver(ctx, n)
	if err != nil {
		return err
	}

	// A job that fired early re-arms itself for the scheduled time.
	if outcome == OutcomeDeferred && n.ScheduledAt != nil {
		if err := o.retries.ScheduleRedelivery(ctx, n.ID, *n.ScheduledAt); err != nil {
			return errors.Join(ErrScheduleRetry, err)
		}
	}
	return nil
}

// ConfirmDelivery records an asynchronous delivery receipt for a sent notification.
// Receipts for notifications already delivered are ignored.
func (o *Orchestrator) ConfirmDelivery(ctx context.Context, providerMessageID string) (*notification.Notification, error) {
	n, err := o.repo.FindByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return nil, err
	}
	if n.Status == notification.StatusDelivered {
		return n, nil
	}

	if err := n.MarkDelivered(); err != nil {
		return nil, err
	}
	if err := o.repo.Update(ctx, n, notification.StatusSent); err != nil {
		return nil, errors.Join(ErrPersist, err)
	}
	if o.metrics != nil {
		o.metrics.DeliveryFinished(n.Channel, OutcomeDelivered)
	}

	o.logger.InfoContext(ctx, "delivery confirmed",
		logger.NotificationID(n.ID),
		logger.MessageID(providerMessageID))

	return n, nil
}

// ConfirmFailure records an asynchronous failure receipt for a sent notification.
func (o *Orchestrator) ConfirmFailure(ctx context.Context, providerMessageID, reason string) (*notification.Notification, error) {
	n, err := o.repo.FindByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return nil, err
	}
	if n.Status == notification.StatusFailed {
		return n, nil
	}

	if err := n.MarkFailed(reason); err != nil {
		return nil, err
	}
	if err := o.repo.Update(ctx, n, notification.StatusSent); err != nil {
		return nil, errors.Join(ErrPersist, err)
	}
	if o.metrics != nil {
		o.metrics.DeliveryFinished(n.Channel, OutcomeFailed)
	}

	o.logger.WarnContext(ctx, "provider reported delivery failure",
		logger.NotificationID(n.ID),
		logger.MessageID(providerMessageID),
		slog.String("reason", reason))

	return n, nil
}

// Cancel stops a pending notification. Any redelivery job still queued for it
// becomes a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID, reason string) (*notification.Notification, error) {
	n, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := n.Cancel(reason); err != nil {
		return nil, err
	}
	if err := o.repo.Update(ctx, n, notification.StatusPending); err != nil {
		return nil, errors.Join(ErrPersist, err)
	}

	o.logger.InfoContext(ctx, "notification cancelled",
		logger.NotificationID(id),
		slog.String("reason", reason))

	return n, nil
}
