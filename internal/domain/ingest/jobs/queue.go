// Package jobs runs queued import commits on a bounded in-process
// worker pool and prunes finished job records on a schedule.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrQueueFull is returned when the backlog is at capacity. Callers
// should surface it as a retryable condition rather than blocking the
// request.
var ErrQueueFull = errors.New("jobs: queue full")

// Task is one queued unit of work. Run receives the queue's base
// context, which is cancelled on shutdown.
type Task struct {
	JobID uuid.UUID
	Run   func(ctx context.Context)
}

// Queue is a fixed-size worker pool over a buffered channel. Work is
// accepted until the buffer fills; workers drain it until Stop.
type Queue struct {
	tasks   chan Task
	workers int
	logger  *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewQueue(workers, buffer int, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Queue{
		tasks:   make(chan Task, buffer),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. Subsequent calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		ctx, q.cancel = context.WithCancel(ctx)
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work(ctx, i)
		}
	})
}

func (q *Queue) work(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.logger.Info("import job started",
				slog.String("job_id", task.JobID.String()),
				slog.Int("worker", id))
			task.Run(ctx)
		}
	}
}

// Enqueue hands a task to the pool without blocking.
func (q *Queue) Enqueue(task Task) error {
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Backlog reports the number of tasks waiting for a worker.
func (q *Queue) Backlog() int {
	return len(q.tasks)
}

// Stop cancels the workers' context and waits for in-flight tasks to
// return. Queued tasks that never started are dropped; their job
// records stay pending.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		if q.cancel != nil {
			q.cancel()
		}
		q.wg.Wait()
	})
}
