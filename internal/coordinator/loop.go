package coordinator

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by operations issued after Run has returned.
var ErrStopped = errors.New("coordinator: stopped")

// taskQueue is an unbounded FIFO of functions drained by the control
// goroutine. Posting never blocks, so engine listener goroutines can hand
// events over without stalling the protocol connection.
type taskQueue struct {
	mu    sync.Mutex
	items []func()
	wake  chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{wake: make(chan struct{}, 1)}
}

func (q *taskQueue) post(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *taskQueue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// do runs fn on the control goroutine and waits for its result. A task
// whose caller gave up before it was reached is skipped.
func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	c.queue.post(func() {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn()
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// Run performs startup and then processes tasks until ctx is cancelled.
// All tab state is owned by the goroutine calling Run.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	c.loopCtx = ctx

	c.start(ctx)
	for {
		select {
		case <-ctx.Done():
			c.registry.Reset()
			return ctx.Err()
		case <-c.queue.wake:
			for {
				items := c.queue.take()
				if len(items) == 0 {
					break
				}
				for _, fn := range items {
					fn()
				}
			}
		}
	}
}
