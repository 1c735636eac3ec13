package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/internal/delivery"
	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/requestid"
)

// idNamespace seeds notification ids derived from bus coordinates, so a
// re-consumed message maps onto the notifications it already created.
var idNamespace = uuid.MustParse("8f0c6b8e-5f3a-4f6e-9a57-2b8c1d0e7a41")

// Message is one record read from the bus.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
}

// Deliverer makes a delivery attempt. Implemented by delivery.Orchestrator.
type Deliverer interface {
	Deliver(ctx context.Context, n *notification.Notification) (delivery.Outcome, error)
}

// Observer receives ingestion outcomes. Metrics implement it.
type Observer interface {
	EventProcessed(eventType string, notifications int, err error)
}

// Processor handles bus messages: it maps them to notifications, persists
// them and hands each one to the orchestrator. Malformed messages and invalid
// notifications are skipped. Any other error means the message has to be
// consumed again; notification ids derive from the message coordinates, so a
// replay picks up the notifications an earlier pass created.
type Processor struct {
	mapper    *Mapper
	repo      notification.Repository
	deliverer Deliverer
	retries   delivery.RetryScheduler
	delay     time.Duration
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

type ProcessorOption func(*Processor)

// WithRedeliveryDelay sets how long to wait before redriving a notification
// whose first attempt was aborted.
func WithRedeliveryDelay(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.delay = d
		}
	}
}

func WithObserver(o Observer) ProcessorOption {
	return func(p *Processor) { p.observer = o }
}

func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(mapper *Mapper, repo notification.Repository, d Deliverer, retries delivery.RetryScheduler, opts ...ProcessorOption) *Processor {
	if mapper == nil || repo == nil || d == nil || retries == nil {
		panic("ingest: processor requires mapper, repository, deliverer and retry scheduler")
	}
	p := &Processor{
		mapper:    mapper,
		repo:      repo,
		deliverer: d,
		retries:   retries,
		delay:     30 * time.Second,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("ingest"))
	return p
}

// Process handles one message. Malformed messages are logged and skipped;
// other failures are returned so the message is consumed again.
func (p *Processor) Process(ctx context.Context, msg Message) error {
	ctx = requestid.WithContext(ctx, requestid.ForMessage(msg.Topic, msg.Partition, msg.Offset))
	log := p.logger.With(logger.Topic(msg.Topic),
		slog.Int("partition", int(msg.Partition)),
		slog.Int64("offset", msg.Offset))

	env, err := DecodeEnvelope(msg.Value)
	if err != nil {
		log.WarnContext(ctx, "skipping malformed message", logger.Error(err))
		p.observe("", 0, err)
		return nil
	}
	log = log.With(logger.EventType(env.EventType))

	params, err := p.mapper.Map(ctx, env)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.observe(env.EventType, 0, err)
		if !IsMalformed(err) {
			return fmt.Errorf("map event: %w", err)
		}
		log.WarnContext(ctx, "skipping invalid event", logger.Error(err))
		return nil
	}

	created := 0
	for _, cp := range params {
		cp.ID = notificationID(msg, cp.UserID, cp.Channel)
		n, err := p.store(ctx, cp)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !errors.Is(err, notification.ErrValidation) {
				p.observe(env.EventType, created, err)
				return fmt.Errorf("create notification: %w", err)
			}
			log.WarnContext(ctx, "skipping invalid notification",
				logger.UserID(cp.UserID),
				logger.Channel(cp.Channel),
				logger.Error(err))
			continue
		}
		created++

		if err := p.deliver(ctx, n); err != nil {
			return err
		}
	}

	p.observe(env.EventType, created, nil)
	log.InfoContext(ctx, "event processed", slog.Int("notifications", created))
	return nil
}

// store persists a new notification or loads the one a previous pass over
// the same message created.
func (p *Processor) store(ctx context.Context, cp notification.CreateParams) (*notification.Notification, error) {
	n, err := notification.New(cp)
	if err != nil {
		return nil, err
	}
	err = p.repo.Create(ctx, n)
	if errors.Is(err, notification.ErrAlreadyExists) {
		return p.repo.Get(ctx, n.ID)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// deliver makes the first attempt. Deferred notifications and aborted
// attempts are left to a redeliver job.
func (p *Processor) deliver(ctx context.Context, n *notification.Notification) error {
	outcome, err := p.deliverer.Deliver(ctx, n)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return p.redeliver(ctx, n, p.now().Add(p.delay), err)
	}

	if outcome == delivery.OutcomeDeferred && n.ScheduledAt != nil {
		return p.redeliver(ctx, n, *n.ScheduledAt, nil)
	}
	return nil
}

func (p *Processor) redeliver(ctx context.Context, n *notification.Notification, at time.Time, cause error) error {
	if err := p.retries.ScheduleRedelivery(ctx, n.ID, at); err != nil {
		return fmt.Errorf("schedule redelivery of %s: %w", n.ID, errors.Join(delivery.ErrScheduleRetry, cause, err))
	}
	if cause != nil {
		p.logger.WarnContext(ctx, "delivery attempt aborted, redelivery scheduled",
			logger.NotificationID(n.ID),
			slog.Time("run_at", at),
			logger.Error(cause))
	}
	return nil
}

func (p *Processor) observe(eventType string, n int, err error) {
	if p.observer != nil {
		p.observer.EventProcessed(eventType, n, err)
	}
}

func notificationID(msg Message, userID string, ch notification.Channel) uuid.UUID {
	name := fmt.Sprintf("%s/%d/%d/%s/%s", msg.Topic, msg.Partition, msg.Offset, userID, ch)
	return uuid.NewSHA1(idNamespace, []byte(name))
}
