//go:build integration

package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/dmitrymomot/notifier/internal/ingest"
	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/internal/testutil/containers"
)

func TestConsumer_ProcessesPublishedEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rp := containers.GetManager().GetRedpanda(t)
	e := newEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, e.contacts.Put(ctx, notification.Contact{UserID: "owner", Email: "owner@example.com"}))
	require.NoError(t, e.contacts.Put(ctx, notification.Contact{UserID: "seeker", Email: "seeker@example.com"}))

	cfg := ingest.Config{
		Brokers:            rp.Brokers,
		GroupID:            "notifier-it",
		Version:            "2.8.0",
		InitialOffset:      "oldest",
		SessionTimeout:     10 * time.Second,
		PostLifecycleTopic: "it-post-lifecycle",
		PostMatchTopic:     "it-post-match",
		UserLifecycleTopic: "it-user-lifecycle",
	}

	producer, err := kgo.NewClient(kgo.SeedBrokers(rp.Brokers...), kgo.AllowAutoTopicCreation())
	require.NoError(t, err)
	defer producer.Close()

	records := []*kgo.Record{
		{Topic: cfg.PostMatchTopic, Value: message(t, 0, ingest.EventPostMatched, ingest.MatchEvent{
			PostID: "p1", Title: "Bike", OwnerUserID: "owner", MatchedUserID: "seeker",
		}).Value},
		{Topic: cfg.PostLifecycleTopic, Value: []byte(`garbage`)},
		{Topic: cfg.UserLifecycleTopic, Value: message(t, 0, ingest.EventUserRegistered, ingest.UserEvent{
			UserID: "newbie", Email: "newbie@example.com",
		}).Value},
	}
	require.NoError(t, producer.ProduceSync(ctx, records...).FirstErr())

	consumer, err := ingest.NewConsumer(cfg, e.processor)
	require.NoError(t, err)
	require.NoError(t, consumer.Healthcheck(ctx))

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx)() }()

	require.Eventually(t, func() bool {
		return len(e.list(t, "owner")) == 1 &&
			len(e.list(t, "seeker")) == 1 &&
			len(e.list(t, "newbie")) == 1
	}, 45*time.Second, 250*time.Millisecond)

	for _, user := range []string{"owner", "seeker", "newbie"} {
		require.Equal(t, notification.StatusSent, e.list(t, user)[0].Status, user)
	}

	cancel()
	require.NoError(t, <-done)
}
