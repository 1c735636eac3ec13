package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Scheduler turns periodic definitions into tasks, one run ahead.
// Every run is stored under the task name as unique key, so replicas sharing
// one storage produce a single task per run.
type Scheduler struct {
	repo     EnqueuerRepository
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*periodicEntry
}

type periodicEntry struct {
	schedule Schedule
	spec     taskSpec
	next     time.Time // run time of the last stored task; zero until the first
}

type SchedulerOption func(*Scheduler)

// WithCheckInterval sets how often due runs are looked for.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewScheduler(repo EnqueuerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	s := &Scheduler{
		repo:     repo,
		interval: 30 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
		entries:  make(map[string]*periodicEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddTask registers a periodic task. Queue, priority and retry options apply
// to every run; unique key options are ignored.
func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...EnqueueOption) error {
	spec := newTaskSpec(opts)
	if !spec.priority.Valid() {
		return ErrInvalidPriority
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, name)
	}
	s.entries[name] = &periodicEntry{schedule: schedule, spec: spec}

	s.logger.Info("periodic task registered",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()))
	return nil
}

// ListTasks returns the registered task names in order.
func (s *Scheduler) ListTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start stores due runs until ctx is done and returns ctx's error.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.ListTasks()) == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run returns a function suitable for errgroup. Shutdown through ctx is not an error.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for name, e := range s.entries {
		// The stored run has not started yet.
		if !e.next.IsZero() && e.next.After(now) {
			continue
		}

		from := now
		if !e.next.IsZero() {
			from = e.next
		}
		runAt := e.schedule.Next(from)
		if !runAt.After(now) {
			// Runs missed while no scheduler was up are skipped.
			runAt = e.schedule.Next(now)
		}

		if err := s.store(ctx, name, e, runAt, now); err != nil {
			s.logger.ErrorContext(ctx, "periodic task not stored",
				slog.String("task_name", name),
				slog.String("error", err.Error()))
			continue
		}
		e.next = runAt
	}
}

// store creates the run at runAt. Its key is held while pending and, once
// finished, until runAt.
func (s *Scheduler) store(ctx context.Context, name string, e *periodicEntry, runAt, now time.Time) error {
	spec := e.spec
	spec.runAt = runAt
	spec.uniqueKey, spec.uniqueFor = "", 0

	task := spec.build(name, TaskTypePeriodic, []byte("{}"), now)
	key, until := name, runAt
	task.UniqueKey, task.UniqueUntil = &key, &until

	err := s.repo.CreateTask(ctx, task)
	var dup *DuplicateTaskError
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "periodic task stored",
			slog.String("task_name", name),
			slog.Time("run_at", runAt))
		return nil
	case errors.As(err, &dup):
		s.logger.DebugContext(ctx, "periodic run already stored",
			slog.String("task_name", name),
			slog.String("task_id", dup.ExistingID.String()))
		return nil
	default:
		return err
	}
}
