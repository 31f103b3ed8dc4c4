package wwlock

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Mutex wraps one independently lockable resource and lets it take part in
// the class's wound-wait ordering. The guarded resource may only be mutated
// while the Mutex is held.
type Mutex struct {
	class *Class
	name  string

	mu     sync.Mutex
	held   bool
	owner  *AcquireCtx
	notify chan struct{}

	// heldIdx is this Mutex's position in the owner's held set, kept for
	// O(1) removal. Only meaningful while owned through a context.
	heldIdx int
}

// NewMutex returns a new Mutex bound to the class. The name identifies the
// lock in lifecycle events and traces; an empty name suppresses events.
func (c *Class) NewMutex(name string) *Mutex {
	return &Mutex{class: c, name: name, notify: make(chan struct{})}
}

// Name returns the lock's name.
func (m *Mutex) Name() string { return m.name }

// Lock acquires the Mutex through the acquisition context a.
//
// With a nil context this is plain blocking mutual exclusion with no
// tracking. With a context, possible outcomes are:
//
//   - nil: the Mutex is now held (immediately, after waiting, or because
//     the context already held it — reacquiring is a no-op and is not
//     reference-counted).
//   - ErrBusy: the context is try-only and the Mutex is held elsewhere.
//   - ErrDeadlock: waiting could deadlock; the caller must call Backoff
//     before any further acquisition.
func (m *Mutex) Lock(a *AcquireCtx) error {
	if a != nil {
		a.assertUsable(m)
	}
	return m.lock(nil, a, false)
}

// LockCtx is Lock with cancellation. If ctx is cancelled while waiting, the
// context error is returned and a is left exactly as it was: nothing is
// acquired and the contended state is untouched.
func (m *Mutex) LockCtx(ctx context.Context, a *AcquireCtx) error {
	if a != nil {
		a.assertUsable(m)
	}
	return m.lock(ctx, a, false)
}

// TryLock acquires the Mutex without blocking, returning ErrBusy when it is
// held by another owner. Reacquiring through the holding context succeeds as
// a no-op.
func (m *Mutex) TryLock(a *AcquireCtx) error {
	if a != nil {
		a.assertUsable(m)
	}
	m.mu.Lock()
	if m.held {
		reentrant := a != nil && m.owner == a
		m.mu.Unlock()
		if reentrant {
			return nil
		}
		m.class.busy()
		return ErrBusy
	}
	m.acquireLocked(a)
	m.mu.Unlock()
	m.class.acquired(m, 0)
	return nil
}

// lockSlow is the unconditional blocking acquire used during backoff. The
// wound-wait check is skipped: the context holds nothing, so waiting cannot
// create a cycle.
func (m *Mutex) lockSlow(ctx context.Context, a *AcquireCtx) error {
	if len(a.held) != 0 {
		panic("wwlock: slow acquire while holding locks")
	}
	return m.lock(ctx, a, true)
}

// acquireLocked takes ownership. m.mu must be held and m must be free.
func (m *Mutex) acquireLocked(a *AcquireCtx) {
	m.held = true
	m.owner = a
	if a != nil {
		a.link(m)
	}
}

func (m *Mutex) lock(ctx context.Context, a *AcquireCtx, slow bool) error {
	var waitStart time.Time
	var span trace.Span
	for {
		m.mu.Lock()
		if !m.held {
			m.acquireLocked(a)
			m.mu.Unlock()
			var waited time.Duration
			if !waitStart.IsZero() {
				waited = time.Since(waitStart)
			}
			if span != nil {
				span.End()
			}
			m.class.acquired(m, waited)
			return nil
		}
		if a != nil && m.owner == a {
			// Reentrant no-op success; the held set keeps a single entry.
			m.mu.Unlock()
			return nil
		}
		if a != nil && !slow {
			if a.tryOnly {
				m.mu.Unlock()
				m.class.busy()
				return ErrBusy
			}
			if owner := m.owner; owner != nil && a.stamp > owner.stamp && len(a.held) > 0 {
				// The holder is older and this context already holds
				// locks the holder may want: waiting could close a
				// cycle, so this context is the one that yields. With
				// an empty held set waiting is always safe.
				m.mu.Unlock()
				a.contended = m
				m.class.deadlocked()
				return ErrDeadlock
			}
		}
		ch := m.notify
		m.mu.Unlock()

		if waitStart.IsZero() {
			waitStart = time.Now()
			if m.class.traceEnabled {
				span = m.startWaitSpan(ctx, a, slow)
			}
		}
		if ctx == nil {
			<-ch
		} else {
			select {
			case <-ch:
			case <-ctx.Done():
				if span != nil {
					span.RecordError(ctx.Err())
					span.End()
				}
				return ctx.Err()
			}
		}
		// Woken up; the lock may have been taken again in the meantime,
		// so re-evaluate from the top.
	}
}

func (m *Mutex) startWaitSpan(ctx context.Context, a *AcquireCtx, slow bool) trace.Span {
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []attribute.KeyValue{
		attribute.String("wwlock.class", m.class.name),
		attribute.String("wwlock.lock", m.name),
		attribute.Bool("wwlock.slow", slow),
	}
	if a != nil {
		attrs = append(attrs, attribute.Int64("wwlock.stamp", int64(a.stamp)))
	}
	_, span := tracer.Start(ctx, "wwlock.wait", trace.WithAttributes(attrs...))
	return span
}

// Unlock releases the Mutex and wakes all waiters. Only the current holder
// may call it; unlocking a Mutex that is not held panics.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	if !m.held {
		m.mu.Unlock()
		panic("wwlock: Unlock of unheld Mutex")
	}
	a := m.owner
	m.owner = nil
	m.held = false
	if a != nil {
		a.unlink(m)
	}
	close(m.notify)
	m.notify = make(chan struct{})
	m.mu.Unlock()
	m.class.released(m)
}

// IsHeld reports whether the Mutex is currently held by anyone. Intended for
// assertions; the answer may be stale by the time it is observed.
func (m *Mutex) IsHeld() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// HeldBy reports whether the Mutex is currently held through a.
func (m *Mutex) HeldBy(a *AcquireCtx) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held && m.owner == a && a != nil
}
