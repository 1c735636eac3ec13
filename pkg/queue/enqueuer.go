package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new tasks. CreateTask must return
// *DuplicateTaskError when task.UniqueKey is held by another task (see
// Task.HoldsUniqueKey), checking and inserting atomically.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer adds one-time tasks.
type Enqueuer struct {
	repo   EnqueuerRepository
	logger *slog.Logger
	now    func() time.Time
}

type EnqueuerOption func(*Enqueuer)

func WithEnqueuerLogger(l *slog.Logger) EnqueuerOption {
	return func(e *Enqueuer) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	e := &Enqueuer{repo: repo, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Enqueue stores a task named name and returns its id. When the unique key
// is already held the holder's id is returned and nothing is stored.
func (e *Enqueuer) Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	switch {
	case name == "":
		return uuid.Nil, ErrTaskNameRequired
	case payload == nil:
		return uuid.Nil, ErrPayloadNil
	}

	spec := newTaskSpec(opts)
	if !spec.priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode %s payload: %w", name, err)
	}

	task := spec.build(name, TaskTypeOneTime, raw, e.now())
	err = e.repo.CreateTask(ctx, task)

	var dup *DuplicateTaskError
	switch {
	case err == nil:
		return task.ID, nil
	case errors.As(err, &dup):
		e.logger.DebugContext(ctx, "task already enqueued",
			slog.String("task_name", name),
			slog.String("unique_key", dup.UniqueKey),
			slog.String("task_id", dup.ExistingID.String()))
		return dup.ExistingID, nil
	default:
		return uuid.Nil, fmt.Errorf("enqueue %s on %s: %w", name, task.Queue, err)
	}
}

// EnqueueOption adjusts a task before it is stored. The scheduler accepts the
// same options for its periodic tasks.
type EnqueueOption func(*taskSpec)

type taskSpec struct {
	queue      string
	priority   Priority
	maxRetries int8
	runAt      time.Time
	delay      time.Duration
	uniqueKey  string
	uniqueFor  time.Duration
}

func newTaskSpec(opts []EnqueueOption) taskSpec {
	s := taskSpec{queue: DefaultQueueName, priority: PriorityDefault, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s taskSpec) build(name string, typ TaskType, payload []byte, now time.Time) *Task {
	runAt := s.runAt
	if runAt.IsZero() {
		runAt = now.Add(s.delay)
	}

	t := &Task{
		ID:          uuid.New(),
		Queue:       s.queue,
		TaskType:    typ,
		TaskName:    name,
		Payload:     payload,
		Status:      TaskStatusPending,
		Priority:    s.priority,
		MaxRetries:  s.maxRetries,
		ScheduledAt: runAt,
		CreatedAt:   now,
	}
	if s.uniqueKey != "" {
		key := s.uniqueKey
		t.UniqueKey = &key
		if s.uniqueFor > 0 {
			until := now.Add(s.uniqueFor)
			t.UniqueUntil = &until
		}
	}
	return t
}

func WithQueue(name string) EnqueueOption {
	return func(s *taskSpec) {
		if name != "" {
			s.queue = name
		}
	}
}

func WithPriority(p Priority) EnqueueOption {
	return func(s *taskSpec) { s.priority = p }
}

// WithMaxRetries sets how many failed attempts are rescheduled. Values
// outside 0..10 are ignored.
func WithMaxRetries(n int8) EnqueueOption {
	return func(s *taskSpec) {
		if n >= 0 && n <= 10 {
			s.maxRetries = n
		}
	}
}

// WithDelay postpones the task by d from now. WithScheduledAt wins when both are set.
func WithDelay(d time.Duration) EnqueueOption {
	return func(s *taskSpec) {
		if d > 0 {
			s.delay = d
		}
	}
}

func WithScheduledAt(at time.Time) EnqueueOption {
	return func(s *taskSpec) { s.runAt = at }
}

// WithUniqueKey makes the enqueue idempotent: while another task holds key,
// Enqueue returns that task's id instead of inserting. A pending task always
// holds its key; a finished one keeps holding it for period after it was created.
func WithUniqueKey(key string, period time.Duration) EnqueueOption {
	return func(s *taskSpec) {
		s.uniqueKey = key
		s.uniqueFor = max(period, 0)
	}
}
