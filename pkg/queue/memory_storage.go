package queue

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps tasks in process memory. It implements EnqueuerRepository
// and WorkerRepository with the same claim and deduplication rules as the
// Postgres storage, for tests and single-process runs.
type MemoryStorage struct {
	mu     sync.Mutex
	tasks  map[uuid.UUID]*Task
	dlq    []TasksDlq
	now    func() time.Time
	closed bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tasks: make(map[uuid.UUID]*Task), now: time.Now}
}

// Close makes every later call fail with ErrStorageClosed.
func (ms *MemoryStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closed = true
	return nil
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ErrPayloadNil)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return ErrStorageClosed
	}

	if _, ok := ms.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already stored", task.ID)
	}
	if task.UniqueKey != nil {
		now := ms.now()
		for _, held := range ms.tasks {
			if held.UniqueKey != nil && *held.UniqueKey == *task.UniqueKey && held.HoldsUniqueKey(now) {
				return &DuplicateTaskError{UniqueKey: *task.UniqueKey, ExistingID: held.ID}
			}
		}
	}

	stored := *task
	ms.tasks[task.ID] = &stored
	return nil
}

// ClaimTask leases the highest priority due task, oldest schedule first.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return nil, ErrStorageClosed
	}

	now := ms.now()
	var next *Task
	for _, t := range ms.tasks {
		if !t.Claimable(queues, now) {
			continue
		}
		if next == nil || claimOrder(t, next) < 0 {
			next = t
		}
	}
	if next == nil {
		return nil, ErrNoTaskToClaim
	}

	lease := now.Add(lockDuration)
	next.Status = TaskStatusProcessing
	next.LockedUntil = &lease
	next.LockedBy = &workerID

	claimed := *next
	return &claimed, nil
}

func claimOrder(a, b *Task) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	return a.ScheduledAt.Compare(b.ScheduledAt)
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	return ms.update(taskID, func(t *Task, now time.Time) {
		t.Status = TaskStatusCompleted
		t.ProcessedAt = &now
	})
}

func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error {
	return ms.update(taskID, func(t *Task, _ time.Time) {
		t.Status = TaskStatusPending
		t.RetryCount++
		t.Error = &errorMsg
		t.ScheduledAt = retryAt
	})
}

// MoveToDLQ records a dead letter and leaves the task in failed status so
// its unique key keeps its reservation window.
func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return ErrStorageClosed
	}

	t, ok := ms.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	now := ms.now()
	ms.dlq = append(ms.dlq, newDeadLetter(t, errorMsg, now))
	t.Status = TaskStatusFailed
	t.Error = &errorMsg
	t.ProcessedAt = &now
	t.LockedUntil, t.LockedBy = nil, nil
	return nil
}

func (ms *MemoryStorage) ExtendLock(_ context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return ErrStorageClosed
	}

	t, ok := ms.tasks[taskID]
	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	case t.Status != TaskStatusProcessing:
		return fmt.Errorf("%w: %s", ErrTaskNotClaimed, taskID)
	}
	lease := ms.now().Add(duration)
	t.LockedUntil = &lease
	return nil
}

// update applies fn to a task being processed and releases its lease.
func (ms *MemoryStorage) update(taskID uuid.UUID, fn func(t *Task, now time.Time)) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return ErrStorageClosed
	}

	t, ok := ms.tasks[taskID]
	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	case t.Status != TaskStatusProcessing:
		return fmt.Errorf("%w: %s", ErrTaskNotClaimed, taskID)
	}
	fn(t, ms.now())
	t.LockedUntil, t.LockedBy = nil, nil
	return nil
}

// Tasks returns copies of the tasks in status, oldest schedule first.
func (ms *MemoryStorage) Tasks(status TaskStatus) []Task {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var out []Task
	for _, t := range ms.tasks {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	slices.SortFunc(out, func(a, b Task) int { return a.ScheduledAt.Compare(b.ScheduledAt) })
	return out
}

// DeadLetters returns the dead letter entries in the order they were recorded.
func (ms *MemoryStorage) DeadLetters() []TasksDlq {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return slices.Clone(ms.dlq)
}
