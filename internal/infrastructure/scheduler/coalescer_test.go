package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// passRecorder counts pass invocations per session.
type passRecorder struct {
	mu    sync.Mutex
	calls map[shared.SessionToken]int
	fired chan shared.SessionToken
}

func newPassRecorder() *passRecorder {
	return &passRecorder{
		calls: make(map[shared.SessionToken]int),
		fired: make(chan shared.SessionToken, 16),
	}
}

func (r *passRecorder) run(_ context.Context, session shared.SessionToken) {
	r.mu.Lock()
	r.calls[session]++
	r.mu.Unlock()
	r.fired <- session
}

func (r *passRecorder) count(session shared.SessionToken) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[session]
}

func (r *passRecorder) waitOne(t *testing.T) shared.SessionToken {
	t.Helper()
	select {
	case s := <-r.fired:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("pass never fired")
		return ""
	}
}

func TestCoalescer_BurstCollapsesToOnePass(t *testing.T) {
	rec := newPassRecorder()
	c := NewCoalescer(rec.run, WithWindow(30*time.Millisecond))
	defer c.Close()

	session := shared.SessionToken("sess-1")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Trigger(ctx, session)
	}
	assert.True(t, c.Pending(session))

	rec.waitOne(t)
	assert.Equal(t, 1, rec.count(session))
	assert.False(t, c.Pending(session))
}

func TestCoalescer_SessionsAreIndependent(t *testing.T) {
	rec := newPassRecorder()
	c := NewCoalescer(rec.run, WithWindow(20*time.Millisecond))
	defer c.Close()

	ctx := context.Background()
	c.Trigger(ctx, "sess-a")
	c.Trigger(ctx, "sess-b")

	got := map[shared.SessionToken]bool{}
	got[rec.waitOne(t)] = true
	got[rec.waitOne(t)] = true
	assert.True(t, got["sess-a"])
	assert.True(t, got["sess-b"])
}

func TestCoalescer_FlushFiresImmediately(t *testing.T) {
	rec := newPassRecorder()
	c := NewCoalescer(rec.run, WithWindow(time.Hour))
	defer c.Close()

	session := shared.SessionToken("sess-flush")
	ctx := context.Background()

	c.Trigger(ctx, session)
	c.Flush(ctx, session)

	assert.Equal(t, 1, rec.count(session))
	assert.False(t, c.Pending(session))

	// No pending slot: Flush is a no-op.
	c.Flush(ctx, session)
	assert.Equal(t, 1, rec.count(session))
}

func TestCoalescer_TriggerAfterFireRearms(t *testing.T) {
	rec := newPassRecorder()
	c := NewCoalescer(rec.run, WithWindow(20*time.Millisecond))
	defer c.Close()

	session := shared.SessionToken("sess-again")
	ctx := context.Background()

	c.Trigger(ctx, session)
	rec.waitOne(t)

	c.Trigger(ctx, session)
	rec.waitOne(t)
	assert.Equal(t, 2, rec.count(session))
}

func TestCoalescer_CloseDropsPendingPasses(t *testing.T) {
	rec := newPassRecorder()
	c := NewCoalescer(rec.run, WithWindow(time.Hour))

	ctx := context.Background()
	c.Trigger(ctx, "sess-closed")
	c.Close()

	assert.Equal(t, 0, rec.count("sess-closed"))

	// Triggers after Close are ignored.
	c.Trigger(ctx, "sess-closed")
	assert.False(t, c.Pending("sess-closed"))

	// Close is idempotent.
	c.Close()
}

func TestCoalescer_CancelledContextSkipsPass(t *testing.T) {
	rec := newPassRecorder()
	c := NewCoalescer(rec.run, WithWindow(time.Hour))
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	session := shared.SessionToken("sess-cancel")

	c.Trigger(ctx, session)
	cancel()
	c.Flush(ctx, session)

	assert.Equal(t, 0, rec.count(session))
	assert.False(t, c.Pending(session))
}
