// Package regen schedules message-list regenerations: at most one runs at
// a time, requests made meanwhile are merged, and results of superseded
// runs are discarded.
package regen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// State is the coordinator's task-slot state.
type State int

const (
	Idle State = iota
	Scheduled
	Running
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	default:
		return "idle"
	}
}

// Poster runs functions on the owner goroutine. *mainloop.Loop implements it.
type Poster interface {
	Post(fn func())
}

// Work is the background half of a regeneration. It must not touch
// owner-goroutine state, including the Request it was started for.
type Work[T any] func(ctx context.Context) (T, error)

// Hooks connect the coordinator to the list. All of them run on the owner
// goroutine.
type Hooks[T any] struct {
	// Start snapshots view state for req and returns the work to run.
	Start func(req *Request) Work[T]
	// Complete merges a result. req carries directives amended while the
	// work was running.
	Complete func(req *Request, result T)
	// Error reports a failed run.
	Error func(req *Request, err error)
	// Cancelled reports a run that was superseded or cancelled.
	Cancelled func(req *Request)
}

type task struct {
	gen    uint64
	req    *Request
	cancel context.CancelFunc
	ctx    context.Context
}

// Coordinator owns the regeneration task slot.
type Coordinator[T any] struct {
	poster Poster
	hooks  Hooks[T]
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	pending *Request
	running *task
	gen     uint64
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates an idle coordinator.
func New[T any](poster Poster, hooks Hooks[T], opts ...Option) *Coordinator[T] {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Coordinator[T]{poster: poster, hooks: hooks, logger: o.logger}
}

// Request schedules a regeneration. It never blocks: when a request is
// already pending the two are merged, and a running regeneration is
// cancelled so the merged request starts as soon as it returns.
func (c *Coordinator[T]) Request(r Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		c.pending.Merge(r)
	} else {
		c.pending = r.Clone()
	}

	switch c.state {
	case Idle:
		c.state = Scheduled
		c.poster.Post(c.start)
	case Running:
		c.logger.Debug("regen superseded", "generation", c.running.gen)
		c.running.cancel()
	}
}

// Amend applies fn to the pending request, or to the running one when
// nothing is pending. It reports false when the coordinator is idle.
// Directives set this way are seen by the Complete hook.
func (c *Coordinator[T]) Amend(fn func(*Request)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.pending != nil:
		fn(c.pending)
	case c.running != nil:
		fn(c.running.req)
	default:
		return false
	}
	return true
}

// Cancel drops the pending request and cancels running work.
func (c *Coordinator[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	if c.running != nil {
		c.running.cancel()
		return
	}
	c.state = Idle
}

// State returns the current task-slot state.
func (c *Coordinator[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a request is scheduled or running.
func (c *Coordinator[T]) Busy() bool {
	return c.State() != Idle
}

// Generation returns the number of regenerations started so far.
func (c *Coordinator[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// start runs on the owner goroutine.
func (c *Coordinator[T]) start() {
	c.mu.Lock()
	if c.pending == nil || c.running != nil {
		if c.running == nil {
			c.state = Idle
		}
		c.mu.Unlock()
		return
	}
	req := c.pending
	c.pending = nil
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{gen: c.gen, req: req, ctx: ctx, cancel: cancel}
	c.running = t
	c.state = Running
	c.mu.Unlock()

	work := c.hooks.Start(req)
	if work == nil {
		c.finish(t, *new(T), context.Canceled)
		return
	}
	c.logger.Debug("regen started", "generation", t.gen, "folder_changed", req.FolderChanged)

	go func() {
		var (
			res T
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("regen panic", "panic", r, "stack", string(debug.Stack()))
					err = fmt.Errorf("regen panic: %v", r)
				}
			}()
			res, err = work(ctx)
		}()
		c.poster.Post(func() { c.finish(t, res, err) })
	}()
}

// finish runs on the owner goroutine once t's work has returned.
func (c *Coordinator[T]) finish(t *task, res T, err error) {
	c.mu.Lock()
	if c.running == t {
		c.running = nil
	}
	stale := t.gen != c.gen || t.ctx.Err() != nil
	t.cancel()
	next := c.pending != nil
	if next {
		c.state = Scheduled
	} else {
		c.state = Idle
	}
	c.mu.Unlock()

	switch {
	case stale || errors.Is(err, context.Canceled):
		c.logger.Debug("regen discarded", "generation", t.gen)
		if c.hooks.Cancelled != nil {
			c.hooks.Cancelled(t.req)
		}
	case err != nil:
		c.logger.Warn("regen failed", "generation", t.gen, "error", err)
		if c.hooks.Error != nil {
			c.hooks.Error(t.req, err)
		}
	default:
		c.logger.Debug("regen complete", "generation", t.gen)
		if c.hooks.Complete != nil {
			c.hooks.Complete(t.req, res)
		}
	}

	if next {
		c.start()
	}
}
