// Package janitor runs best-effort cleanup: a bounded queue for work that
// must not fail the request that scheduled it, and a periodic reaper for
// expired challenges and orphaned device/location rows.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultWorkers     = 2
	DefaultBacklog     = 256
	DefaultTaskTimeout = 10 * time.Second
)

// TaskFunc is a unit of best-effort work. Its error is logged, never
// returned to anyone.
type TaskFunc func(ctx context.Context) error

type task struct {
	name string
	fn   TaskFunc
}

// Queue runs TaskFuncs on a fixed set of workers. When the backlog is full,
// new tasks are dropped with a warning.
type Queue struct {
	tasks   chan task
	timeout time.Duration
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool

	pending sync.WaitGroup
	workers sync.WaitGroup
}

func NewQueue(workers, backlog int, log *slog.Logger) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if backlog < 0 {
		backlog = DefaultBacklog
	}

	q := &Queue{
		tasks:   make(chan task, backlog),
		timeout: DefaultTaskTimeout,
		log:     log.With(slog.String("component", "janitor_queue")),
	}
	q.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go q.work()
	}
	return q
}

// Go schedules fn. It reports whether the task was accepted.
func (q *Queue) Go(name string, fn TaskFunc) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.log.Warn("Cleanup queue closed, dropping task", slog.String("task", name))
		return false
	}

	q.pending.Add(1)
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return true
	default:
		q.pending.Done()
		q.log.Warn("Cleanup queue full, dropping task", slog.String("task", name))
		return false
	}
}

// Wait blocks until every accepted task has finished.
func (q *Queue) Wait() {
	q.pending.Wait()
}

// Close stops accepting tasks and waits for the backlog to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	q.workers.Wait()
}

func (q *Queue) work() {
	defer q.workers.Done()
	for t := range q.tasks {
		q.run(t)
		q.pending.Done()
	}
}

func (q *Queue) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.fn(ctx)
	}()
	if err != nil {
		q.log.Warn("Cleanup task failed",
			slog.String("task", t.name),
			slog.Duration("duration", time.Since(start)),
			"err", err)
		return
	}
	q.log.Debug("Cleanup task done",
		slog.String("task", t.name),
		slog.Duration("duration", time.Since(start)))
}
