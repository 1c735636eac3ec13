package queue

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when a task names no queue.
const DefaultQueueName = "default"

const defaultMaxRetries int8 = 3

type TaskType string

const (
	TaskTypeOneTime  TaskType = "one-time"
	TaskTypePeriodic TaskType = "periodic"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority orders due tasks; higher runs first. Valid range is 0..100.
type Priority int8

const PriorityDefault Priority = 50

func (p Priority) Valid() bool {
	return p >= 0 && p <= 100
}

// Task is one unit of queued work. Storages persist every field.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	TaskType    TaskType   `json:"task_type"`
	TaskName    string     `json:"task_name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	RetryCount  int8       `json:"retry_count"`
	MaxRetries  int8       `json:"max_retries"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	UniqueKey   *string    `json:"unique_key,omitempty"`
	UniqueUntil *time.Time `json:"unique_until,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// HoldsUniqueKey reports whether t still reserves its unique key at now.
// A pending task always holds its key. A finished task holds it until UniqueUntil.
// A task being processed does not, so a handler may schedule its own follow-up
// under the same key.
func (t *Task) HoldsUniqueKey(now time.Time) bool {
	if t.UniqueKey == nil {
		return false
	}
	switch t.Status {
	case TaskStatusPending:
		return true
	case TaskStatusCompleted, TaskStatusFailed:
		return t.UniqueUntil != nil && t.UniqueUntil.After(now)
	}
	return false
}

// Claimable reports whether a worker polling queues may take t at now.
// Processing tasks whose lease lapsed are claimable again.
func (t *Task) Claimable(queues []string, now time.Time) bool {
	if !slices.Contains(queues, t.Queue) || t.ScheduledAt.After(now) {
		return false
	}
	switch t.Status {
	case TaskStatusPending:
		return true
	case TaskStatusProcessing:
		return t.LockedUntil != nil && t.LockedUntil.Before(now)
	}
	return false
}

// RetriesLeft reports whether a failed attempt may be rescheduled.
func (t *Task) RetriesLeft() bool {
	return t.RetryCount < t.MaxRetries
}

// TasksDlq is a dead letter entry: a task that failed for good, kept for
// inspection and manual requeue.
type TasksDlq struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	Queue      string    `json:"queue"`
	TaskType   TaskType  `json:"task_type"`
	TaskName   string    `json:"task_name"`
	Payload    []byte    `json:"payload,omitempty"`
	Priority   Priority  `json:"priority"`
	Error      string    `json:"error"`
	RetryCount int8      `json:"retry_count"`
	FailedAt   time.Time `json:"failed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func newDeadLetter(t *Task, reason string, at time.Time) TasksDlq {
	return TasksDlq{
		ID:         uuid.New(),
		TaskID:     t.ID,
		Queue:      t.Queue,
		TaskType:   t.TaskType,
		TaskName:   t.TaskName,
		Payload:    t.Payload,
		Priority:   t.Priority,
		Error:      reason,
		RetryCount: t.RetryCount,
		FailedAt:   at,
		CreatedAt:  at,
	}
}
