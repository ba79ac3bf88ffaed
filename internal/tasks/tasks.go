package tasks

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a unit of background work
type Task func(ctx context.Context) error

// Runner executes tasks on a single background worker. It replaces
// fire-and-forget persistence: callers enqueue without waiting, and
// tests call Flush to observe the effects deterministically. A full
// queue drops the task rather than blocking the caller.
type Runner struct {
	queue chan Task
	log   zerolog.Logger

	wg      sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunner starts a runner with a bounded queue
func NewRunner(queueSize int, log zerolog.Logger) *Runner {
	if queueSize <= 0 {
		queueSize = 64
	}
	r := &Runner{
		queue: make(chan Task, queueSize),
		log:   log,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Runner) run() {
	defer r.wg.Done()
	ctx := context.Background()
	for task := range r.queue {
		if err := task(ctx); err != nil {
			r.log.Warn().Err(err).Msg("background task failed")
		}
		r.pending.Done()
	}
}

// Enqueue submits a task. Returns false when the queue is full or the
// runner is closed; the task is dropped, never blocked on.
func (r *Runner) Enqueue(task Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	r.pending.Add(1)
	select {
	case r.queue <- task:
		return true
	default:
		r.pending.Done()
		r.log.Warn().Msg("task queue full, dropping task")
		return false
	}
}

// Flush blocks until every task enqueued so far has run
func (r *Runner) Flush() {
	r.pending.Wait()
}

// Close drains outstanding tasks and stops the worker. Enqueue calls
// arriving after Close starts are rejected, so the drain cannot race
// new submissions.
func (r *Runner) Close() {
	r.mu.Lock()
	alreadyClosed := r.closed
	r.closed = true
	r.mu.Unlock()

	if !alreadyClosed {
		r.pending.Wait()
		close(r.queue)
	}
	r.wg.Wait()
}
