// Package mainloop provides the single owner goroutine that every
// message-list mutation runs on. Other goroutines hand work to it with
// Post; the owner drains the queue with Run, or step by step in tests.
package mainloop

import (
	"context"
	"sync"
)

// Loop is a FIFO queue of functions executed by one goroutine.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// New creates an empty loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn for execution on the owner goroutine. It never blocks
// and is safe from any goroutine. Posting to a closed loop is a no-op.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Step runs the oldest queued function, reporting whether there was one.
func (l *Loop) Step() bool {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.mu.Unlock()
		return false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	l.mu.Unlock()

	fn()
	return true
}

// RunPending runs queued functions until the queue is empty, including
// ones posted while it runs. It returns the number executed.
func (l *Loop) RunPending() int {
	n := 0
	for l.Step() {
		n++
	}
	return n
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run executes posted functions until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-l.wake:
			if !ok {
				l.RunPending()
				return nil
			}
		}
	}
}

// Wait blocks until something is posted or ctx is done. Tests use it with
// Step to follow a background worker without spinning.
func (l *Loop) Wait(ctx context.Context) error {
	if l.Pending() > 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.wake:
		return nil
	}
}

// Close stops Run after the queue drains. Later posts are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.wake)
}
