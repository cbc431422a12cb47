package enrichment

import (
	"context"
	"sync"
	"time"

	"github.com/copiloto/salesdash/pkg/observability"
)

type task struct {
	name  string
	delay time.Duration
	fn    func(ctx context.Context) error
}

// TaskQueue runs deferred work off the sign-in path on a single worker
// goroutine. Every task runs inside an error boundary: a panic or error in
// one task is logged and never reaches the caller or the next task.
type TaskQueue struct {
	tasks  chan task
	logger *observability.Logger

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewTaskQueue creates a task queue with the given buffer size
func NewTaskQueue(size int, logger *observability.Logger) *TaskQueue {
	return &TaskQueue{
		tasks:  make(chan task, size),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the worker. ctx cancellation stops it after the current
// task finishes.
func (q *TaskQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.worker(ctx)
}

// Submit enqueues a task to run after the given delay. A full queue drops
// the task with a warning rather than blocking the caller.
func (q *TaskQueue) Submit(name string, delay time.Duration, fn func(ctx context.Context) error) {
	select {
	case q.tasks <- task{name: name, delay: delay, fn: fn}:
	default:
		q.logger.WithField("task", name).Warn("task queue full, dropping task")
	}
}

// Stop shuts the queue down and waits for the worker to exit
func (q *TaskQueue) Stop() {
	q.stopOnce.Do(func() { close(q.done) })
	q.wg.Wait()
}

func (q *TaskQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case t := <-q.tasks:
			if t.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case <-time.After(t.delay):
				}
			}
			q.run(ctx, t)
		}
	}
}

func (q *TaskQueue) run(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithFields(map[string]interface{}{
				"task":  t.name,
				"panic": r,
			}).Error("task panicked")
		}
	}()

	if err := t.fn(ctx); err != nil {
		q.logger.WithError(err).WithField("task", t.name).Error("task failed")
	}
}
