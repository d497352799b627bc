package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/screening-api/internal/observability"
)

// LocalQueue runs tasks on an in-process worker pool backed by a bounded channel.
type LocalQueue struct {
	tasks   chan Task
	workers int
	logger  zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	started bool
}

// NewLocalQueue constructs a local queue with the given worker count and buffer size.
func NewLocalQueue(workers, buffer int, logger zerolog.Logger) *LocalQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &LocalQueue{
		tasks:   make(chan Task, buffer),
		workers: workers,
		logger:  logger.With().Str("component", "local_queue").Logger(),
	}
}

// Dispatch enqueues the task, blocking while the buffer is full.
func (q *LocalQueue) Dispatch(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the workers. Tasks run on a context that keeps ctx's values but not its
// cancellation, so tasks already buffered at shutdown still complete while Stop drains them.
func (q *LocalQueue) Start(ctx context.Context, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.started {
		return nil
	}
	q.started = true
	taskCtx := context.WithoutCancel(ctx)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			for task := range q.tasks {
				run(taskCtx, DriverLocal, handler, task, q.logger.With().Int("worker", worker).Logger())
			}
		}(i)
	}
	return nil
}

// Stop closes the queue and waits until the workers have drained every buffered task or ctx expires.
func (q *LocalQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func run(ctx context.Context, driver string, handler Handler, task Task, logger zerolog.Logger) error {
	log := logger.With().
		Str("task_kind", string(task.Kind)).
		Uint("application_id", task.ApplicationID).
		Uint("submission_id", task.SubmissionID).
		Str("correlation_id", task.CorrelationID).
		Logger()

	err := handler(ctx, task)
	if err != nil {
		observability.QueueTasks().WithLabelValues(driver, string(task.Kind), "error").Inc()
		log.Error().Err(err).Msg("pipeline task failed")
		return err
	}

	observability.QueueTasks().WithLabelValues(driver, string(task.Kind), "ok").Inc()
	log.Debug().Dur("queued_for", time.Since(task.EnqueuedAt)).Msg("pipeline task completed")
	return nil
}
