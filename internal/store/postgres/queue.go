package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifier/pkg/pg"
	"github.com/dmitrymomot/notifier/pkg/queue"
)

const taskColumns = `id, queue, task_type, task_name, payload, status, priority,
	retry_count, max_retries, scheduled_at, unique_key, unique_until,
	locked_until, locked_by, processed_at, error, created_at`

// Tasks is the durable queue storage. It implements queue.EnqueuerRepository
// and queue.WorkerRepository.
type Tasks struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewTasks(pool *pgxpool.Pool) *Tasks {
	return &Tasks{pool: pool, now: time.Now}
}

// CreateTask inserts task. Tasks carrying a unique key are serialized per key
// with a transaction-scoped advisory lock, so the holder check and the insert
// are atomic across replicas.
func (s *Tasks) CreateTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", queue.ErrPayloadNil)
	}

	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if task.UniqueKey != nil {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, *task.UniqueKey); err != nil {
				return fmt.Errorf("lock unique key: %w", err)
			}

			var existing uuid.UUID
			err := tx.QueryRow(ctx, `
				SELECT id FROM queue_tasks
				WHERE unique_key = $1
				  AND (status = 'pending'
				       OR (status IN ('completed', 'failed') AND unique_until > $2))
				LIMIT 1`, *task.UniqueKey, s.now()).Scan(&existing)
			switch {
			case err == nil:
				return &queue.DuplicateTaskError{UniqueKey: *task.UniqueKey, ExistingID: existing}
			case !pg.IsNotFoundError(err):
				return fmt.Errorf("check unique key: %w", err)
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO queue_tasks (`+taskColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			task.ID, task.Queue, string(task.TaskType), task.TaskName, task.Payload, string(task.Status),
			int16(task.Priority), int16(task.RetryCount), int16(task.MaxRetries), task.ScheduledAt,
			task.UniqueKey, task.UniqueUntil, task.LockedUntil, task.LockedBy, task.ProcessedAt,
			task.Error, task.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	})
}

// ClaimTask locks the most urgent due task. Tasks whose worker lease lapsed
// are claimable again with their retry count untouched.
func (s *Tasks) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
	now := s.now()
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_tasks SET status = 'processing', locked_until = $3, locked_by = $2
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($1)
			  AND scheduled_at <= $4
			  AND (status = 'pending' OR (status = 'processing' AND locked_until < $4))
			ORDER BY priority DESC, scheduled_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+taskColumns,
		queues, workerID, now.Add(lockDuration), now,
	)

	task, err := scanTask(row)
	if pg.IsNotFoundError(err) {
		return nil, queue.ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

func (s *Tasks) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	return s.exec(ctx, taskID, `
		UPDATE queue_tasks SET status = 'completed', processed_at = $2, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, s.now())
}

func (s *Tasks) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error {
	return s.exec(ctx, taskID, `
		UPDATE queue_tasks SET
			status = 'pending', retry_count = retry_count + 1, error = $2,
			scheduled_at = $3, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, errorMsg, retryAt)
}

// MoveToDLQ copies the task to the dead letter table and leaves the row in
// failed status so its unique key keeps its reservation window.
func (s *Tasks) MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	now := s.now()
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO queue_tasks_dlq (id, task_id, queue, task_type, task_name, payload, priority, error, retry_count, failed_at, created_at)
			SELECT $2, id, queue, task_type, task_name, payload, priority, $3, retry_count, $4, $4
			FROM queue_tasks WHERE id = $1`,
			taskID, uuid.New(), errorMsg, now)
		if err != nil {
			return fmt.Errorf("insert dead letter: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
		}

		_, err = tx.Exec(ctx, `
			UPDATE queue_tasks SET
				status = 'failed', error = $2, processed_at = $3, locked_until = NULL, locked_by = NULL
			WHERE id = $1`, taskID, errorMsg, now)
		if err != nil {
			return fmt.Errorf("fail task: %w", err)
		}
		return nil
	})
}

func (s *Tasks) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	return s.exec(ctx, taskID, `
		UPDATE queue_tasks SET locked_until = $2
		WHERE id = $1 AND status = 'processing'`, s.now().Add(duration))
}

// DeadLetters returns the most recent dead letter entries, newest first.
func (s *Tasks) DeadLetters(ctx context.Context, limit int) ([]queue.TasksDlq, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, queue, task_type, task_name, payload, priority, error, retry_count, failed_at, created_at
		FROM queue_tasks_dlq ORDER BY failed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []queue.TasksDlq
	for rows.Next() {
		var (
			d                    queue.TasksDlq
			taskType             string
			priority, retryCount int16
		)
		if err := rows.Scan(&d.ID, &d.TaskID, &d.Queue, &taskType, &d.TaskName, &d.Payload,
			&priority, &d.Error, &retryCount, &d.FailedAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("list dead letters: %w", err)
		}
		d.TaskType = queue.TaskType(taskType)
		d.Priority = queue.Priority(priority)
		d.RetryCount = int8(retryCount)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return out, nil
}

func (s *Tasks) exec(ctx context.Context, taskID uuid.UUID, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, append([]any{taskID}, args...)...)
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	return nil
}

func scanTask(row pgx.Row) (*queue.Task, error) {
	var (
		t                                queue.Task
		taskType, status                 string
		priority, retryCount, maxRetries int16
	)
	err := row.Scan(
		&t.ID, &t.Queue, &taskType, &t.TaskName, &t.Payload, &status, &priority,
		&retryCount, &maxRetries, &t.ScheduledAt, &t.UniqueKey, &t.UniqueUntil,
		&t.LockedUntil, &t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.TaskType = queue.TaskType(taskType)
	t.Status = queue.TaskStatus(status)
	t.Priority = queue.Priority(priority)
	t.RetryCount = int8(retryCount)
	t.MaxRetries = int8(maxRetries)
	return &t, nil
}
