package ingest

import "time"

// Config configures the Kafka consumer group and notification defaults.
type Config struct {
	Brokers            []string      `env:"KAFKA_BROKERS,required" envSeparator:","`
	GroupID            string        `env:"KAFKA_GROUP_ID" envDefault:"notifier"`
	Version            string        `env:"KAFKA_VERSION" envDefault:"2.8.0"`
	InitialOffset      string        `env:"KAFKA_INITIAL_OFFSET" envDefault:"oldest"` // oldest | newest
	SessionTimeout     time.Duration `env:"KAFKA_SESSION_TIMEOUT" envDefault:"10s"`
	PostLifecycleTopic string        `env:"INGEST_TOPIC_POST_LIFECYCLE" envDefault:"post-lifecycle"`
	PostMatchTopic     string        `env:"INGEST_TOPIC_POST_MATCH" envDefault:"post-match"`
	UserLifecycleTopic string        `env:"INGEST_TOPIC_USER_LIFECYCLE" envDefault:"user-lifecycle"`
	TemplatesPath      string        `env:"INGEST_TEMPLATES_PATH"` // embedded defaults when empty
	MaxRetries         int           `env:"INGEST_MAX_RETRIES" envDefault:"5"`
	RedeliveryDelay    time.Duration `env:"INGEST_REDELIVERY_DELAY" envDefault:"30s"`
}

// Topics returns the configured topics in subscription order.
func (c Config) Topics() []string {
	return []string{c.PostLifecycleTopic, c.PostMatchTopic, c.UserLifecycleTopic}
}
