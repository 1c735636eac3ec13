// Package queue is a durable task queue with delayed, periodic and
// deduplicated execution, independent of the storage behind it.
//
// Enqueuer stores one-time tasks, Scheduler stores the next run of each
// periodic task ahead of time, and Worker claims due tasks and hands them to
// a Handler. They talk to storage through EnqueuerRepository and
// WorkerRepository. MemoryStorage implements both for tests and single
// process runs; the service keeps its Postgres storage with the rest of its
// persistence code.
//
// # Deduplication
//
// WithUniqueKey makes an enqueue idempotent. While another task holds the key,
// Enqueue returns the id of that task and inserts nothing. A pending task always
// holds its key; a finished task holds it for the requested period after it was
// created; a task being processed does not hold it, which lets a handler
// schedule its own follow-up under the same key. Periodic runs use their task
// name as key, which keeps replicas from storing the same run twice.
//
// # Leases
//
// A claimed task is leased to its worker for the lock timeout and the worker
// renews the lease while the handler runs. A task whose lease lapsed, because
// its worker died or was stopped past the shutdown timeout, is claimed again
// with its retry count unchanged.
//
// # Failures
//
// Handler errors are retried with backoff until the task's MaxRetries is used
// up, then the task moves to the dead letter queue. Errors wrapped with
// Permanent, undecodable payloads and tasks without a handler skip the
// retries. Handler panics count as failures.
//
// # Usage
//
//	e, _ := queue.NewEnqueuer(storage)
//	id, err := e.Enqueue(ctx, "redeliver", payload,
//		queue.WithScheduledAt(runAt),
//		queue.WithUniqueKey("redeliver:"+notificationID, 0),
//	)
//
//	w, _ := queue.NewWorker(storage, queue.WithMaxConcurrentTasks(10))
//	_ = w.RegisterHandler(queue.NewHandler("redeliver", handleRedeliver))
//	g.Go(w.Run(ctx))
//
//	s, _ := queue.NewScheduler(storage)
//	_ = s.AddTask("cleanup_expired", queue.EveryInterval(15*time.Minute))
//	g.Go(s.Run(ctx))
package queue
