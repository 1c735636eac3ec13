package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifier/internal/api"
	"github.com/dmitrymomot/notifier/internal/contact"
	"github.com/dmitrymomot/notifier/internal/delivery"
	"github.com/dmitrymomot/notifier/internal/ingest"
	"github.com/dmitrymomot/notifier/internal/jobs"
	"github.com/dmitrymomot/notifier/internal/metrics"
	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/internal/provider"
	"github.com/dmitrymomot/notifier/internal/store/postgres"
	"github.com/dmitrymomot/notifier/migrations"
	"github.com/dmitrymomot/notifier/pkg/audit"
	"github.com/dmitrymomot/notifier/pkg/config"
	"github.com/dmitrymomot/notifier/pkg/httpserver"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/pg"
	"github.com/dmitrymomot/notifier/pkg/queue"
	"github.com/dmitrymomot/notifier/pkg/ratelimiter"
	"github.com/dmitrymomot/notifier/pkg/redis"
	"github.com/dmitrymomot/notifier/pkg/requestid"
	"github.com/dmitrymomot/notifier/pkg/resilience"
	"github.com/dmitrymomot/notifier/pkg/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("notifier stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.NewFromConfig(cfg.Logger, logger.WithContextExtractors(requestid.LoggerExtractor()))
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Postgres.AutoMigrate {
		if err := pg.Migrate(ctx, pool, migrations.FS, ".", cfg.Postgres, log); err != nil {
			return err
		}
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	m := metrics.New()

	var (
		notifications = postgres.NewNotifications(pool)
		preferences   = postgres.NewPreferences(pool)
		contactBook   = postgres.NewContacts(pool)
		tasks         = postgres.NewTasks(pool)
	)

	enqueuer, err := queue.NewEnqueuer(tasks, queue.WithEnqueuerLogger(log))
	if err != nil {
		return err
	}
	scheduler := jobs.NewScheduler(enqueuer, jobs.WithLogger(log))

	orchestrator, err := newOrchestrator(cfg, log, m, rdb, notifications, contactBook, scheduler)
	if err != nil {
		return err
	}

	contacts, err := newContactService(ctx, cfg.Contact, log, pool, scheduler)
	if err != nil {
		return err
	}

	worker, err := queue.NewWorker(tasks,
		queue.WithPullInterval(cfg.Queue.PollInterval),
		queue.WithLockTimeout(cfg.Queue.LockTimeout),
		queue.WithTaskTimeout(cfg.Queue.TaskTimeout),
		queue.WithMaxConcurrentTasks(cfg.Queue.MaxConcurrentTasks),
		queue.WithShutdownTimeout(cfg.Queue.ShutdownTimeout),
		queue.WithRetryBackoff(resilience.ExponentialBackoff{
			InitialInterval: cfg.Queue.RetryBaseDelay,
			MaxInterval:     cfg.Queue.RetryMaxDelay,
			Multiplier:      2,
			JitterFactor:    0.1,
		}),
		queue.WithWorkerLogger(log),
	)
	if err != nil {
		return err
	}
	if err := jobs.Register(worker, orchestrator, contacts, m, log); err != nil {
		return err
	}

	periodic, err := newPeriodicScheduler(cfg, log, tasks)
	if err != nil {
		return err
	}

	consumer, err := newConsumer(cfg.Ingest, log, m, notifications, preferences, contactBook, orchestrator, scheduler)
	if err != nil {
		return err
	}

	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(rdb, cfg.Redis.KeyPrefix+"ratelimit:"), cfg.RateLimit)
	if err != nil {
		return err
	}

	router := api.New(notifications, preferences, orchestrator,
		api.WithConfig(cfg.API),
		api.WithLogger(log),
		api.WithContacts(contacts),
		api.WithRateLimiter(limiter),
		api.WithMetrics(m),
		api.WithReadinessChecks(
			httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)},
			httpserver.Check{Name: "redis", Probe: redis.Healthcheck(rdb)},
			httpserver.Check{Name: "kafka", Probe: consumer.Healthcheck},
		),
	).Router()
	server := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	log.InfoContext(ctx, "notifier starting", slog.String("addr", cfg.HTTP.Addr))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(periodic.Run(ctx))
	g.Go(consumer.Run(ctx))
	g.Go(func() error { return server.Run(ctx, router) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("notifier stopped")
	return nil
}

func newOrchestrator(
	cfg Config,
	log *slog.Logger,
	m *metrics.Metrics,
	rdb goredis.UniversalClient,
	repo notification.Repository,
	contacts notification.ContactDirectory,
	retries delivery.RetryScheduler,
) (*delivery.Orchestrator, error) {
	senders, err := newSenders(cfg, log)
	if err != nil {
		return nil, err
	}

	breakers := resilience.NewCircuitBreakers(
		resilience.WithConfig(cfg.Resilience),
		resilience.WithFailurePredicate(delivery.IsProviderFailure),
		resilience.WithStateChangeHook(m.CircuitStateChanged),
	)
	bulkheads := resilience.NewBulkheadsFromConfig(cfg.Resilience)

	opts := []delivery.Option{
		delivery.WithConfig(cfg.Delivery),
		delivery.WithCircuitBreakers(breakers),
		delivery.WithBulkheads(bulkheads),
		delivery.WithGuard(delivery.NewRedisGuard(redis.NewLocker(rdb, cfg.Redis.KeyPrefix), cfg.Delivery.GuardTTL)),
		delivery.WithContacts(contacts),
		delivery.WithMetrics(m),
		delivery.WithLogger(log),
	}

	watched := make(map[string]bool)
	for channel, sender := range senders {
		opts = append(opts, delivery.WithSender(channel, sender))
		if !watched[sender.Name()] {
			watched[sender.Name()] = true
			m.WatchBulkhead(bulkheads.Get(sender.Name()))
		}
	}

	return delivery.NewOrchestrator(repo, retries, opts...), nil
}

// newSenders builds the provider adapters. Email falls back to files on disk
// without a Postmark token; SMS and WhatsApp are left unregistered without
// messaging credentials, so their notifications fail with no sender.
func newSenders(cfg Config, log *slog.Logger) (map[notification.Channel]provider.Sender, error) {
	senders := make(map[notification.Channel]provider.Sender, 3)

	if cfg.Postmark.ServerToken != "" {
		email, err := provider.NewPostmark(cfg.Postmark)
		if err != nil {
			return nil, err
		}
		senders[notification.ChannelEmail] = email
	} else {
		log.Warn("postmark token not set, writing emails to disk", slog.String("dir", cfg.Postmark.DevDir))
		senders[notification.ChannelEmail] = provider.NewDiskSender(cfg.Postmark.DevDir)
	}

	if cfg.Messaging.AccountSID == "" {
		log.Warn("messaging credentials not set, sms and whatsapp are disabled")
		return senders, nil
	}
	for channel, kind := range map[notification.Channel]provider.MessagingChannel{
		notification.ChannelSMS:      provider.MessagingSMS,
		notification.ChannelWhatsApp: provider.MessagingWhatsApp,
	} {
		s, err := provider.NewMessaging(cfg.Messaging, kind)
		if err != nil {
			return nil, err
		}
		senders[channel] = s
	}
	return senders, nil
}

func newContactService(ctx context.Context, cfg contact.Config, log *slog.Logger, pool *pgxpool.Pool, expiry contact.ExpiryScheduler) (*contact.Service, error) {
	master, err := secrets.ParseKey(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("contact master key: %w", err)
	}

	keyring, err := contact.NewKeyring(postgres.NewContactKeys(pool), master, cfg.KeyGracePeriod,
		contact.WithKeyringLogger(log))
	if err != nil {
		return nil, err
	}
	if _, err := keyring.Current(ctx); err != nil {
		return nil, fmt.Errorf("contact keyring: %w", err)
	}

	return contact.NewService(
		postgres.NewContactRequests(pool),
		keyring,
		audit.NewLogger(postgres.NewAuditEvents(pool)),
		contact.WithExpiryScheduler(expiry),
		contact.WithRequestTTL(cfg.RequestTTL),
		contact.WithBatchSize(cfg.BatchSize),
		contact.WithLogger(log),
	), nil
}

func newPeriodicScheduler(cfg Config, log *slog.Logger, repo queue.EnqueuerRepository) (*queue.Scheduler, error) {
	cleanup, err := queue.ParseSchedule(cfg.Contact.CleanupSchedule)
	if err != nil {
		return nil, fmt.Errorf("contact cleanup schedule: %w", err)
	}
	rotation, err := queue.ParseSchedule(cfg.Contact.RotationSchedule)
	if err != nil {
		return nil, fmt.Errorf("contact key rotation schedule: %w", err)
	}

	s, err := queue.NewScheduler(repo,
		queue.WithCheckInterval(cfg.Queue.CheckInterval),
		queue.WithSchedulerLogger(log),
	)
	if err != nil {
		return nil, err
	}
	if err := jobs.RegisterPeriodic(s, cleanup, rotation); err != nil {
		return nil, err
	}
	return s, nil
}

func newConsumer(
	cfg ingest.Config,
	log *slog.Logger,
	m *metrics.Metrics,
	repo notification.Repository,
	prefs notification.PreferencesStore,
	contacts notification.ContactBook,
	d ingest.Deliverer,
	retries delivery.RetryScheduler,
) (*ingest.Consumer, error) {
	templates, err := loadTemplates(cfg.TemplatesPath)
	if err != nil {
		return nil, err
	}

	mapper := ingest.NewMapper(templates, prefs, contacts,
		ingest.WithMaxRetries(cfg.MaxRetries),
		ingest.WithMapperLogger(log),
	)
	processor := ingest.NewProcessor(mapper, repo, d, retries,
		ingest.WithRedeliveryDelay(cfg.RedeliveryDelay),
		ingest.WithObserver(m),
		ingest.WithLogger(log),
	)
	return ingest.NewConsumer(cfg, processor, ingest.WithConsumerLogger(log))
}

func loadTemplates(path string) (*ingest.Templates, error) {
	if path == "" {
		return ingest.DefaultTemplates()
	}
	return ingest.LoadTemplates(path)
}
