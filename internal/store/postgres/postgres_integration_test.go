//go:build integration

package postgres_test

import (
	"context"
	"crypto/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/dmitrymomot/notifier/internal/contact"
	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/internal/store/postgres"
	"github.com/dmitrymomot/notifier/internal/testutil/containers"
	"github.com/dmitrymomot/notifier/pkg/audit"
	"github.com/dmitrymomot/notifier/pkg/queue"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"notifications", "user_preferences", "user_contacts",
		"contact_requests", "contact_keys", "queue_tasks", "queue_tasks_dlq")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newNotification(userID string, ch notification.Channel) *notification.Notification {
	n, err := notification.New(notification.CreateParams{
		UserID:     userID,
		Channel:    ch,
		Title:      "Welcome",
		Body:       "Thanks for signing up.",
		Metadata:   map[string]any{notification.MetaEventType: "user.registered"},
		MaxRetries: 3,
	})
	s.Require().NoError(err)
	return n
}

func (s *PostgresStoreSuite) TestNotifications_RoundTrip() {
	ctx := context.Background()
	repo := postgres.NewNotifications(s.postgres.Pool)

	n := s.newNotification("user-1", notification.ChannelSMS)
	s.Require().NoError(repo.Create(ctx, n))
	s.ErrorIs(repo.Create(ctx, n), notification.ErrAlreadyExists)

	got, err := repo.Get(ctx, n.ID)
	s.Require().NoError(err)
	s.Equal(n.UserID, got.UserID)
	s.Equal(notification.ChannelSMS, got.Channel)
	s.Equal(notification.StatusPending, got.Status)
	s.Equal("user.registered", got.Meta(notification.MetaEventType))
	s.WithinDuration(n.InsertedAt, got.InsertedAt, time.Millisecond)

	_, err = repo.Get(ctx, uuid.New())
	s.ErrorIs(err, notification.ErrNotFound)
}

func (s *PostgresStoreSuite) TestNotifications_OptimisticUpdate() {
	ctx := context.Background()
	repo := postgres.NewNotifications(s.postgres.Pool)

	n := s.newNotification("user-1", notification.ChannelSMS)
	s.Require().NoError(repo.Create(ctx, n))

	first, err := repo.Get(ctx, n.ID)
	s.Require().NoError(err)
	second, err := repo.Get(ctx, n.ID)
	s.Require().NoError(err)

	s.Require().NoError(first.Send())
	first.SetMeta(notification.MetaProviderMessageID, "SM123")
	s.Require().NoError(repo.Update(ctx, first, notification.StatusPending))

	s.Require().NoError(second.Cancel("too late"))
	s.ErrorIs(repo.Update(ctx, second, notification.StatusPending), notification.ErrConcurrentUpdate)

	found, err := repo.FindByProviderMessageID(ctx, "SM123")
	s.Require().NoError(err)
	s.Equal(n.ID, found.ID)
	s.Equal(notification.StatusSent, found.Status)
	s.NotNil(found.SentAt)

	missing := s.newNotification("user-1", notification.ChannelSMS)
	s.ErrorIs(repo.Update(ctx, missing, notification.StatusPending), notification.ErrNotFound)
}

func (s *PostgresStoreSuite) TestNotifications_List() {
	ctx := context.Background()
	repo := postgres.NewNotifications(s.postgres.Pool)

	for range 3 {
		s.Require().NoError(repo.Create(ctx, s.newNotification("user-1", notification.ChannelEmail)))
	}
	sms := s.newNotification("user-1", notification.ChannelSMS)
	s.Require().NoError(repo.Create(ctx, sms))
	s.Require().NoError(repo.Create(ctx, s.newNotification("user-2", notification.ChannelEmail)))

	all, err := repo.List(ctx, notification.ListFilter{UserID: "user-1"})
	s.Require().NoError(err)
	s.Len(all, 4)

	bySMS, err := repo.List(ctx, notification.ListFilter{UserID: "user-1", Channel: notification.ChannelSMS})
	s.Require().NoError(err)
	s.Require().Len(bySMS, 1)
	s.Equal(sms.ID, bySMS[0].ID)

	page, err := repo.List(ctx, notification.ListFilter{UserID: "user-1", Limit: 2, Offset: 3})
	s.Require().NoError(err)
	s.Len(page, 1)

	future := time.Now().Add(time.Hour)
	none, err := repo.List(ctx, notification.ListFilter{UserID: "user-1", From: &future})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *PostgresStoreSuite) TestPreferencesAndContacts() {
	ctx := context.Background()
	prefs := postgres.NewPreferences(s.postgres.Pool)

	p, err := prefs.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(notification.DefaultPreferences("user-1").EnabledChannels(), p.EnabledChannels())

	s.Require().NoError(prefs.Save(ctx, notification.Preferences{UserID: "user-1", SMS: true, WhatsApp: true}))
	p, err = prefs.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal([]notification.Channel{notification.ChannelSMS, notification.ChannelWhatsApp}, p.EnabledChannels())

	s.Require().NoError(prefs.Reset(ctx, "user-1"))
	p, err = prefs.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.True(p.Email)

	contacts := postgres.NewContacts(s.postgres.Pool)
	_, err = contacts.Lookup(ctx, "user-1")
	s.ErrorIs(err, notification.ErrContactNotFound)

	s.Require().NoError(contacts.Put(ctx, notification.Contact{UserID: "user-1", Email: "a@example.com"}))
	s.Require().NoError(contacts.Put(ctx, notification.Contact{UserID: "user-1", Phone: "+14155552671"}))
	c, err := contacts.Lookup(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal("a@example.com", c.Email)
	s.Equal("+14155552671", c.Phone)
}

func (s *PostgresStoreSuite) TestTasks_UniqueKeyUnderConcurrency() {
	ctx := context.Background()
	enq, err := queue.NewEnqueuer(postgres.NewTasks(s.postgres.Pool))
	s.Require().NoError(err)

	const goroutines = 20
	var (
		wg  sync.WaitGroup
		ids sync.Map
		ok  atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := enq.Enqueue(ctx, "redeliver", map[string]string{"id": "n-1"},
				queue.WithUniqueKey("redeliver:n-1", 0))
			if err == nil {
				ok.Add(1)
				ids.Store(id, struct{}{})
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(goroutines), ok.Load())
	distinct := 0
	ids.Range(func(any, any) bool { distinct++; return true })
	s.Equal(1, distinct, "every caller gets the same task id")

	var count int
	s.Require().NoError(s.postgres.Pool.QueryRow(ctx, `SELECT count(*) FROM queue_tasks`).Scan(&count))
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestTasks_Lifecycle() {
	ctx := context.Background()
	tasks := postgres.NewTasks(s.postgres.Pool)
	enq, err := queue.NewEnqueuer(tasks)
	s.Require().NoError(err)

	id, err := enq.Enqueue(ctx, "cleanup_expired", map[string]string{}, queue.WithUniqueKey("cleanup_expired", time.Hour))
	s.Require().NoError(err)

	_, err = tasks.ClaimTask(ctx, uuid.New(), []string{"other"}, time.Minute)
	s.ErrorIs(err, queue.ErrNoTaskToClaim)

	worker := uuid.New()
	task, err := tasks.ClaimTask(ctx, worker, []string{queue.DefaultQueueName}, time.Minute)
	s.Require().NoError(err)
	s.Equal(id, task.ID)
	s.Equal(queue.TaskStatusProcessing, task.Status)
	s.Require().NotNil(task.LockedBy)
	s.Equal(worker, *task.LockedBy)

	// processing does not hold the key
	next, err := enq.Enqueue(ctx, "cleanup_expired", map[string]string{}, queue.WithUniqueKey("cleanup_expired", time.Hour))
	s.Require().NoError(err)
	s.NotEqual(id, next)

	s.Require().NoError(tasks.FailTask(ctx, id, "boom", time.Now().Add(-time.Second)))
	retried, err := tasks.ClaimTask(ctx, worker, []string{queue.DefaultQueueName}, time.Minute)
	s.Require().NoError(err)
	s.Equal(int8(1), retried.RetryCount)

	s.Require().NoError(tasks.MoveToDLQ(ctx, retried.ID, "gave up"))
	dead, err := tasks.DeadLetters(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(dead, 1)
	s.Equal(retried.ID, dead[0].TaskID)
	s.Equal("gave up", dead[0].Error)

	s.ErrorIs(tasks.CompleteTask(ctx, uuid.New()), queue.ErrTaskNotFound)
}

func (s *PostgresStoreSuite) TestTasks_LapsedLeaseIsReclaimed() {
	ctx := context.Background()
	tasks := postgres.NewTasks(s.postgres.Pool)
	enq, err := queue.NewEnqueuer(tasks)
	s.Require().NoError(err)

	id, err := enq.Enqueue(ctx, "rotate_keys", map[string]string{})
	s.Require().NoError(err)

	_, err = tasks.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Millisecond)
	s.Require().NoError(err)
	time.Sleep(10 * time.Millisecond)

	again, err := tasks.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
	s.Require().NoError(err)
	s.Equal(id, again.ID)
	s.Zero(again.RetryCount)
}

func (s *PostgresStoreSuite) TestContactExchange_ExpiryWritesOneAuditRecord() {
	ctx := context.Background()

	master := make([]byte, 32)
	_, err := rand.Read(master)
	s.Require().NoError(err)

	keyring, err := contact.NewKeyring(postgres.NewContactKeys(s.postgres.Pool), master, 24*time.Hour)
	s.Require().NoError(err)

	auditLog := audit.NewLogger(postgres.NewAuditEvents(s.postgres.Pool))
	now := time.Now().UTC()
	svc := contact.NewService(postgres.NewContactRequests(s.postgres.Pool), keyring, auditLog,
		contact.WithRequestTTL(time.Hour),
		contact.WithClock(func() time.Time { return now }))

	req, err := svc.Create(ctx, contact.CreateParams{
		RequesterUserID: "requester",
		OwnerUserID:     "owner",
		Purpose:         "post match",
		Contact:         contact.Payload{Email: "owner@example.com"},
	})
	s.Require().NoError(err)

	now = now.Add(2 * time.Hour)

	var wg sync.WaitGroup
	var purged atomic.Int32
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.CleanupExpired(ctx)
			if err == nil {
				purged.Add(int32(n))
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), purged.Load())

	events, err := auditLog.Find(ctx, audit.Criteria{
		Resource:   contact.AuditResource,
		ResourceID: req.ID.String(),
		Action:     contact.ActionExpire,
	})
	s.Require().NoError(err)
	s.Len(events, 1)

	_, err = s.postgres.Pool.Exec(ctx, `DELETE FROM audit_events`)
	s.Error(err, "audit trail is append-only")
}

func (s *PostgresStoreSuite) TestContactKeys_Rotate() {
	ctx := context.Background()
	keys := postgres.NewContactKeys(s.postgres.Pool)

	_, err := keys.Current(ctx)
	s.ErrorIs(err, contact.ErrKeyNotFound)

	now := time.Now().UTC()
	s.Require().NoError(keys.Rotate(ctx, contact.Key{ID: "k1", Material: []byte("one"), CreatedAt: now}, now))
	s.Require().NoError(keys.Rotate(ctx, contact.Key{ID: "k2", Material: []byte("two"), CreatedAt: now.Add(time.Second)}, now.Add(time.Second)))

	current, err := keys.Current(ctx)
	s.Require().NoError(err)
	s.Equal("k2", current.ID)

	old, err := keys.Get(ctx, "k1")
	s.Require().NoError(err)
	s.NotNil(old.RetiredAt)

	s.Require().NoError(keys.Delete(ctx, "k1"))
	all, err := keys.List(ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}
