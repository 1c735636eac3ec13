package main

import (
	"github.com/dmitrymomot/notifier/internal/api"
	"github.com/dmitrymomot/notifier/internal/contact"
	"github.com/dmitrymomot/notifier/internal/delivery"
	"github.com/dmitrymomot/notifier/internal/ingest"
	"github.com/dmitrymomot/notifier/internal/provider"
	"github.com/dmitrymomot/notifier/pkg/httpserver"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/pg"
	"github.com/dmitrymomot/notifier/pkg/queue"
	"github.com/dmitrymomot/notifier/pkg/ratelimiter"
	"github.com/dmitrymomot/notifier/pkg/redis"
	"github.com/dmitrymomot/notifier/pkg/resilience"
)

// Config is the process configuration. Every section reads its own
// environment variables.
type Config struct {
	Logger     logger.Config
	HTTP       httpserver.Config
	API        api.Config
	RateLimit  ratelimiter.Config
	Postgres   pg.Config
	Redis      redis.Config
	Queue      queue.Config
	Resilience resilience.Config
	Delivery   delivery.Config
	Ingest     ingest.Config
	Contact    contact.Config
	Postmark   provider.PostmarkConfig
	Messaging  provider.MessagingConfig
}
