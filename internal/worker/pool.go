package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a unit of background work. The context passed to it is the
// pool's run context, cancelled on shutdown.
type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed set of goroutines. It is an
// in-process dispatcher, not a durable queue: tasks accepted but not
// yet finished are lost if the process dies, which is why every job's
// truth lives in the job store and the staging janitor, not here.
type Pool struct {
	workers int
	tasks   chan Task
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// queueDepth bounds accepted-but-unstarted tasks. Submissions beyond
// it are rejected so overload surfaces as failed jobs instead of
// unbounded memory growth.
const queueDepth = 256

func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan Task, queueDepth),
		logger:  logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight task has returned.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("worker pool started", slog.Int("workers", p.workers))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(n int) {
			defer p.wg.Done()
			for task := range p.tasks {
				p.runTask(ctx, n, task)
			}
		}(i + 1)
	}

	<-ctx.Done()

	p.mu.Lock()
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) runTask(ctx context.Context, worker int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				slog.Int("worker", worker),
				slog.Any("panic", r),
			)
		}
	}()
	task(ctx)
}

// Submit queues a task for execution. It returns false when the pool
// has already shut down or the queue is saturated; the caller decides
// how to fail the associated job.
func (p *Pool) Submit(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}
