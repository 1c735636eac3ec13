package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/resilience"
)

// Handler processes one message. A message whose handler returns an error is
// retried with backoff and stays unmarked until it succeeds.
type Handler interface {
	Process(ctx context.Context, msg Message) error
}

// Consumer reads the event topics as a member of a Kafka consumer group.
// Partitions are processed concurrently; offsets are marked after processing.
type Consumer struct {
	client  sarama.Client
	group   sarama.ConsumerGroup
	topics  []string
	handler Handler
	backoff resilience.BackoffStrategy
	logger  *slog.Logger
}

type ConsumerOption func(*Consumer)

// WithProcessBackoff sets the delay between attempts at a failing message.
func WithProcessBackoff(b resilience.BackoffStrategy) ConsumerOption {
	return func(c *Consumer) {
		if b != nil {
			c.backoff = b
		}
	}
}

func WithConsumerLogger(l *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = l }
}

// NewConsumer joins the consumer group described by cfg.
func NewConsumer(cfg Config, h Handler, opts ...ConsumerOption) (*Consumer, error) {
	sc, err := SaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("connect to kafka: %w", err)
	}
	group, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	c := &Consumer{
		client:  client,
		group:   group,
		topics:  cfg.Topics(),
		handler: h,
		backoff: defaultProcessBackoff,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("ingest.consumer"))
	return c, nil
}

// SaramaConfig translates cfg into a sarama client configuration.
func SaramaConfig(cfg Config) (*sarama.Config, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.GroupID
	sc.Consumer.Return.Errors = true
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	if cfg.SessionTimeout > 0 {
		sc.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	}

	switch cfg.InitialOffset {
	case "", "oldest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	case "newest":
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOffset, cfg.InitialOffset)
	}

	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("parse kafka version: %w", err)
		}
		sc.Version = v
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}
	return sc, nil
}

// Start consumes until ctx is done or the group is closed.
func (c *Consumer) Start(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.ErrorContext(ctx, "consumer group error", logger.Error(err))
		}
	}()

	c.logger.InfoContext(ctx, "consumer started", slog.Any("topics", c.topics))
	for {
		// Consume returns at the end of every session, e.g. on rebalance.
		if err := c.group.Consume(ctx, c.topics, groupHandler{c}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Run returns a function suitable for errgroup. Shutdown through ctx is not an error.
func (c *Consumer) Run(ctx context.Context) func() error {
	return func() error {
		err := c.Start(ctx)
		if closeErr := c.Close(); closeErr != nil {
			c.logger.Error("failed to close consumer", logger.Error(closeErr))
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// Close leaves the group and disconnects from the brokers.
func (c *Consumer) Close() error {
	err := c.group.Close()
	if errors.Is(err, sarama.ErrClosedConsumerGroup) {
		err = nil
	}
	if cerr := c.client.Close(); cerr != nil && !errors.Is(cerr, sarama.ErrClosedClient) {
		err = errors.Join(err, cerr)
	}
	return err
}

// Healthcheck reports whether the subscribed topics' metadata can be
// refreshed from the brokers.
func (c *Consumer) Healthcheck(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- c.client.RefreshMetadata(c.topics...) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBrokersUnavailable, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrBrokersUnavailable, ctx.Err())
	}
}

type groupHandler struct{ c *Consumer }

func (groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			done := processUntilDone(ctx, h.c.handler, h.c.backoff, h.c.logger, Message{
				Topic:     msg.Topic,
				Partition: msg.Partition,
				Offset:    msg.Offset,
				Key:       msg.Key,
				Value:     msg.Value,
			})
			if !done {
				// session is ending; the message is redelivered to the next owner
				return nil
			}
			sess.MarkMessage(msg, "")
		}
	}
}

var defaultProcessBackoff = resilience.ExponentialBackoff{
	InitialInterval: time.Second,
	MaxInterval:     30 * time.Second,
	Multiplier:      2,
	JitterFactor:    0.1,
}

// processUntilDone runs h on msg until it succeeds or ctx ends. It reports
// whether the message was processed and may be marked.
func processUntilDone(ctx context.Context, h Handler, backoff resilience.BackoffStrategy, log *slog.Logger, msg Message) bool {
	for attempt := 1; ; attempt++ {
		err := h.Process(ctx, msg)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		delay := backoff.NextInterval(attempt)
		log.ErrorContext(ctx, "failed to process message, retrying",
			logger.Topic(msg.Topic),
			slog.Int("partition", int(msg.Partition)),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			logger.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}
