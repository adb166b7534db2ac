// Package scheduler contains the refresh coalescer that debounces cart
// change triggers into evaluation passes.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// DefaultWindow is the debounce window applied when none is configured.
// A burst of cart mutations (quantity steppers, multi-add) collapses into
// a single evaluation pass once the window goes quiet.
const DefaultWindow = 300 * time.Millisecond

// PassFunc runs one evaluation pass for a session.
type PassFunc func(ctx context.Context, session shared.SessionToken)

// Coalescer debounces refresh triggers per session. Each session holds at
// most one pending slot: triggering while a slot is armed re-arms its timer
// instead of queueing a second pass.
type Coalescer struct {
	window time.Duration
	run    PassFunc
	logger *slog.Logger

	mu      sync.Mutex
	pending map[shared.SessionToken]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// CoalescerOption configures the Coalescer.
type CoalescerOption func(*Coalescer)

// WithWindow sets the debounce window.
func WithWindow(d time.Duration) CoalescerOption {
	return func(c *Coalescer) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CoalescerOption {
	return func(c *Coalescer) {
		c.logger = logger
	}
}

// NewCoalescer creates a coalescer that invokes run after the window
// elapses without further triggers for the session.
func NewCoalescer(run PassFunc, opts ...CoalescerOption) *Coalescer {
	c := &Coalescer{
		window:  DefaultWindow,
		run:     run,
		logger:  slog.Default(),
		pending: make(map[shared.SessionToken]*time.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger records a refresh request for the session. The pass fires once
// the debounce window passes without another trigger.
func (c *Coalescer) Trigger(ctx context.Context, session shared.SessionToken) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if timer, ok := c.pending[session]; ok {
		timer.Reset(c.window)
		c.logger.Debug("refresh window re-armed", slog.String("session", session.String()))
		return
	}

	c.wg.Add(1)
	c.pending[session] = time.AfterFunc(c.window, func() {
		defer c.wg.Done()

		c.mu.Lock()
		delete(c.pending, session)
		closed := c.closed
		c.mu.Unlock()

		if closed || ctx.Err() != nil {
			return
		}
		c.run(ctx, session)
	})
}

// Flush fires any pending pass for the session immediately, bypassing the
// window. Used when a pass must complete before responding to the caller.
func (c *Coalescer) Flush(ctx context.Context, session shared.SessionToken) {
	c.mu.Lock()
	timer, ok := c.pending[session]
	// Stop can lose the race with the timer firing; in that case the armed
	// callback owns the pass and Flush backs off.
	stopped := ok && timer.Stop()
	if stopped {
		delete(c.pending, session)
	}
	closed := c.closed
	c.mu.Unlock()

	if !stopped {
		return
	}
	c.wg.Done()
	if closed || ctx.Err() != nil {
		return
	}
	c.run(ctx, session)
}

// Pending reports whether the session has an armed slot.
func (c *Coalescer) Pending(session shared.SessionToken) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[session]
	return ok
}

// Close stops all pending timers and waits for in-flight passes.
func (c *Coalescer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for session, timer := range c.pending {
		if timer.Stop() {
			c.wg.Done()
		}
		delete(c.pending, session)
	}
	c.mu.Unlock()

	c.wg.Wait()
}
