package queue

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrRepositoryNil    = errors.New("queue: repository is nil")
	ErrPayloadNil       = errors.New("queue: payload is nil")
	ErrTaskNameRequired = errors.New("queue: task name is required")
	ErrInvalidPriority  = errors.New("queue: priority out of range 0..100")
	ErrInvalidSchedule  = errors.New("queue: invalid schedule")

	// ErrNoTaskToClaim is returned by storages when no task is due
	ErrNoTaskToClaim  = errors.New("queue: no task to claim")
	ErrTaskNotFound   = errors.New("queue: task not found")
	ErrTaskNotClaimed = errors.New("queue: task is not being processed")
	ErrStorageClosed  = errors.New("queue: storage closed")

	ErrHandlerNotFound  = errors.New("queue: no handler for task")
	ErrNoHandlers       = errors.New("queue: no handlers registered")
	ErrWorkerStarted    = errors.New("queue: worker already started")
	ErrWorkerNotStarted = errors.New("queue: worker not started")

	ErrTaskAlreadyRegistered  = errors.New("queue: periodic task already registered")
	ErrSchedulerNotConfigured = errors.New("queue: scheduler has no periodic tasks")

	// ErrDuplicateTask is matched by *DuplicateTaskError
	ErrDuplicateTask = errors.New("queue: unique key already held")

	ErrShutdownTimeout = errors.New("queue: tasks still running after shutdown timeout")

	// ErrPermanent marks handler errors that must not be retried
	ErrPermanent = errors.New("queue: permanent failure")
)

// DuplicateTaskError is returned by storages when a task's unique key is held by another task.
type DuplicateTaskError struct {
	UniqueKey  string
	ExistingID uuid.UUID
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task with unique key %q already exists: %s", e.UniqueKey, e.ExistingID)
}

func (e *DuplicateTaskError) Is(target error) bool {
	return target == ErrDuplicateTask
}

// Permanent wraps err so the worker moves the task to the dead letter queue without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
