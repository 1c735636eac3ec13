package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/resilience"
)

// WorkerRepository is the storage side of task execution.
type WorkerRepository interface {
	// ClaimTask leases the next due task or returns ErrNoTaskToClaim.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records the error, counts the attempt and reschedules the task at retryAt.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error
	// MoveToDLQ records a dead letter and marks the task failed.
	MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string) error
	// ExtendLock moves the lease of a task being processed to now+duration.
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Worker claims due tasks and runs them with the registered handlers,
// at most the configured number at a time.
type Worker struct {
	repo         WorkerRepository
	id           uuid.UUID
	queues       []string
	pollInterval time.Duration
	lease        time.Duration
	taskTimeout  time.Duration
	stopTimeout  time.Duration
	concurrency  int
	backoff      resilience.BackoffStrategy
	logger       *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	cancel   context.CancelFunc
	loopDone chan struct{}

	active sync.WaitGroup
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	w := &Worker{
		repo:         repo,
		id:           uuid.New(),
		queues:       []string{DefaultQueueName},
		pollInterval: 5 * time.Second,
		lease:        5 * time.Minute,
		concurrency:  1,
		backoff: resilience.ExponentialBackoff{
			InitialInterval: 30 * time.Second,
			MaxInterval:     30 * time.Minute,
			Multiplier:      2,
			JitterFactor:    0.1,
		},
		logger:   slog.Default(),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.taskTimeout == 0 {
		w.taskTimeout = w.lease
	}
	w.logger = w.logger.With(slog.String("worker_id", w.id.String()))
	return w, nil
}

// RegisterHandler adds h, replacing any handler with the same name.
func (w *Worker) RegisterHandler(h Handler) error {
	if h == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[h.Name()] = h
	return nil
}

func (w *Worker) RegisterHandlers(hs ...Handler) error {
	for _, h := range hs {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Start runs the claim loop in the background until Stop or ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.cancel != nil:
		return ErrWorkerStarted
	case len(w.handlers) == 0:
		return ErrNoHandlers
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.loopDone = make(chan struct{})
	go w.loop(ctx, w.loopDone)

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", w.concurrency))
	return nil
}

// Stop ends the claim loop and waits for running tasks. Tasks still running
// after the shutdown timeout are abandoned with ErrShutdownTimeout; their
// leases lapse and another worker claims them again.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel, loopDone := w.cancel, w.loopDone
	w.cancel, w.loopDone = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return ErrWorkerNotStarted
	}
	cancel()
	<-loopDone

	w.logger.Info("worker stopping")
	if !w.drain() {
		w.logger.Warn("worker stopped with tasks still running", slog.Duration("timeout", w.stopTimeout))
		return ErrShutdownTimeout
	}
	w.logger.Info("worker stopped")
	return nil
}

// Run returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) drain() bool {
	done := make(chan struct{})
	go func() {
		w.active.Wait()
		close(done)
	}()

	if w.stopTimeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(w.stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// loop fills free slots with claimed tasks and sleeps when the queue is
// drained or every slot is busy. Only loop adds to the active group, and
// Stop waits for loop to return before waiting on the group.
func (w *Worker) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	slots := make(chan struct{}, w.concurrency)
	wait := time.NewTimer(0)
	defer wait.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wait.C:
		}

	fill:
		for ctx.Err() == nil {
			select {
			case slots <- struct{}{}:
			default:
				break fill
			}

			task, err := w.claim(ctx)
			if task == nil {
				<-slots
				if err != nil && ctx.Err() == nil {
					w.logger.Error("claim failed", slog.String("error", err.Error()))
				}
				break
			}

			w.active.Add(1)
			go func() {
				defer w.active.Done()
				defer func() { <-slots }()
				if err := w.execute(ctx, task); err != nil && !errors.Is(err, ErrHandlerNotFound) {
					w.logger.Error("task outcome not recorded",
						slog.String("task_id", task.ID.String()),
						slog.String("error", err.Error()))
				}
			}()
		}
		wait.Reset(w.pollInterval)
	}
}

// ProcessNext claims one due task and runs it to completion.
// Reports false when no task was due.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	w.mu.RLock()
	empty := len(w.handlers) == 0
	w.mu.RUnlock()
	if empty {
		return false, ErrNoHandlers
	}

	task, err := w.claim(ctx)
	if task == nil {
		return false, err
	}
	return true, w.execute(ctx, task)
}

// claim returns nil and no error when nothing is due.
func (w *Worker) claim(ctx context.Context) (*Task, error) {
	task, err := w.repo.ClaimTask(ctx, w.id, w.queues, w.lease)
	switch {
	case errors.Is(err, ErrNoTaskToClaim):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// execute runs task and records the outcome. The handler context is detached
// from ctx so shutdown lets running tasks finish.
func (w *Worker) execute(ctx context.Context, task *Task) error {
	ctx = context.WithoutCancel(ctx)
	log := w.logger.With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue))

	w.mu.RLock()
	h, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		log.Error("no handler for task")
		if err := w.repo.MoveToDLQ(ctx, task.ID, ErrHandlerNotFound.Error()+": "+task.TaskName); err != nil {
			return fmt.Errorf("dead letter %s: %w", task.ID, err)
		}
		return ErrHandlerNotFound
	}

	start := time.Now()
	runErr := w.invoke(ctx, h, task)
	elapsed := time.Since(start)

	if runErr == nil {
		if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
			return fmt.Errorf("complete %s: %w", task.ID, err)
		}
		log.Info("task completed", slog.Duration("duration", elapsed))
		return nil
	}

	permanent := errors.Is(runErr, ErrPermanent)
	log.Error("task failed",
		slog.Int("retry_count", int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		slog.Bool("permanent", permanent),
		slog.Duration("duration", elapsed),
		slog.String("error", runErr.Error()))

	if permanent || !task.RetriesLeft() {
		if err := w.repo.MoveToDLQ(ctx, task.ID, runErr.Error()); err != nil {
			return fmt.Errorf("dead letter %s: %w", task.ID, err)
		}
		log.Warn("task moved to dead letter queue")
		return panicked(runErr)
	}

	retryAt := time.Now().Add(w.backoff.NextInterval(int(task.RetryCount) + 1))
	if err := w.repo.FailTask(ctx, task.ID, runErr.Error(), retryAt); err != nil {
		return fmt.Errorf("reschedule %s: %w", task.ID, err)
	}
	return panicked(runErr)
}

// invoke runs the handler under the task timeout, renewing the lease until
// it returns. A panic becomes a task failure.
func (w *Worker) invoke(ctx context.Context, h Handler, task *Task) (err error) {
	ctx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	stop := w.renewLease(ctx, task.ID)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return h.Handle(ctx, task.Payload)
}

func (w *Worker) renewLease(ctx context.Context, taskID uuid.UUID) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(w.lease/2, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.repo.ExtendLock(ctx, taskID, w.lease); err != nil && ctx.Err() == nil {
					w.logger.Warn("lease not extended",
						slog.String("task_id", taskID.String()),
						slog.String("error", err.Error()))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("handler panic: %v", e.value) }

// panicked surfaces handler panics to the caller after the outcome is
// recorded; ordinary handler errors are the task's business.
func panicked(err error) error {
	var p *panicError
	if errors.As(err, &p) {
		return p
	}
	return nil
}
