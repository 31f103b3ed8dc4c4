package wwlock

import "context"

// AcquireCtx represents one multi-lock operation. It carries the operation's
// stamp and the set of Mutexes currently held through it.
//
// An AcquireCtx is not safe for concurrent use: all acquire, backoff and
// release calls for one context must come from a single goroutine. The same
// context may be reused across backoff retries; its stamp never changes, which
// is what makes the retry loop terminate.
type AcquireCtx struct {
	class     *Class
	stamp     uint64
	held      []*Mutex
	contended *Mutex
	tryOnly   bool
	finished  bool
}

// CtxOption configures an AcquireCtx.
type CtxOption func(*AcquireCtx)

// TryOnly makes every acquisition through the context non-blocking: Lock
// behaves like TryLock and returns ErrBusy instead of waiting.
func TryOnly() CtxOption {
	return func(a *AcquireCtx) {
		a.tryOnly = true
	}
}

// NewCtx returns a new acquisition context. The stamp is drawn once here and
// is immutable for the lifetime of the context; contexts created later are
// younger and yield to earlier ones under contention.
func (c *Class) NewCtx(opts ...CtxOption) *AcquireCtx {
	a := &AcquireCtx{class: c, stamp: c.nextStamp()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stamp returns the context's wound-wait priority stamp. Lower is older and
// wins contention.
func (a *AcquireCtx) Stamp() uint64 { return a.stamp }

// Class returns the class the context was created from.
func (a *AcquireCtx) Class() *Class { return a.class }

// HeldCount returns the number of Mutexes currently held through the context.
func (a *AcquireCtx) HeldCount() int { return len(a.held) }

// Contended reports whether the last acquisition failed with ErrDeadlock and
// Backoff has not yet been called.
func (a *AcquireCtx) Contended() bool { return a.contended != nil }

// DropAll releases every Mutex held through the context, in reverse
// acquisition order. It must not be called while the context is contended;
// use Backoff for that.
func (a *AcquireCtx) DropAll() {
	if a.contended != nil {
		panic("wwlock: DropAll on contended context, Backoff is required")
	}
	a.unlockAll()
}

func (a *AcquireCtx) unlockAll() {
	for len(a.held) > 0 {
		a.held[len(a.held)-1].Unlock()
	}
}

// Backoff recovers from ErrDeadlock: it releases every held Mutex, clears the
// contended state and then blocks until the Mutex that caused the abort is
// acquired. On return the context holds exactly that one Mutex and the caller
// restarts its acquisition sequence; re-acquiring it is a no-op.
func (a *AcquireCtx) Backoff() {
	_ = a.backoff(nil)
}

// BackoffCtx is Backoff with cancellation. If ctx is cancelled while waiting,
// the held set is left empty, the contended state is cleared and the context
// error is returned; the caller may retry from scratch or Finish the context.
func (a *AcquireCtx) BackoffCtx(ctx context.Context) error {
	return a.backoff(ctx)
}

func (a *AcquireCtx) backoff(ctx context.Context) error {
	if a.finished {
		panic("wwlock: Backoff on finished context")
	}
	if a.contended == nil {
		panic("wwlock: Backoff without a contended lock")
	}
	m := a.contended
	a.unlockAll()
	a.contended = nil
	a.class.backedOff()
	return m.lockSlow(ctx, a)
}

// Finish ends the context's lifecycle. All held Mutexes must have been
// released first. The context must not be used again.
func (a *AcquireCtx) Finish() {
	if len(a.held) != 0 {
		panic("wwlock: Finish on context that still holds locks")
	}
	if a.contended != nil {
		panic("wwlock: Finish on contended context")
	}
	a.finished = true
}

// link records m as held. Called with m's internal lock held, but the held
// slice itself is only ever touched by the context's own goroutine.
func (a *AcquireCtx) link(m *Mutex) {
	m.heldIdx = len(a.held)
	a.held = append(a.held, m)
}

// unlink removes m from the held set in O(1) by swapping the last entry into
// its slot.
func (a *AcquireCtx) unlink(m *Mutex) {
	last := len(a.held) - 1
	a.held[m.heldIdx] = a.held[last]
	a.held[m.heldIdx].heldIdx = m.heldIdx
	a.held[last] = nil
	a.held = a.held[:last]
}

// assertUsable checks the acquisition preconditions that indicate caller
// bugs rather than contention.
func (a *AcquireCtx) assertUsable(m *Mutex) {
	if a.finished {
		panic("wwlock: acquire on finished context")
	}
	if a.class != m.class {
		panic("wwlock: Mutex and AcquireCtx belong to different classes")
	}
	if a.contended != nil {
		panic("wwlock: acquire on contended context without Backoff")
	}
}
