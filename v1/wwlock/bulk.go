package wwlock

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Iterator enumerates the Mutexes a bulk acquisition needs. It is supplied
// by the resource owner so the locking core never has to know what the locks
// guard. The enumeration must be stable across retries and is compatible
// with Go's range-over-func iteration.
type Iterator func(yield func(*Mutex) bool)

// Locks returns an Iterator over a fixed slice of Mutexes.
func Locks(ms ...*Mutex) Iterator {
	return func(yield func(*Mutex) bool) {
		for _, m := range ms {
			if !yield(m) {
				return
			}
		}
	}
}

// AcquireAll acquires every Mutex produced by iter through the context a.
// Deadlock aborts are handled internally: the context backs off and the
// enumeration restarts from the beginning, which terminates because the
// context's stamp only ever gains priority over the holders that beat it.
//
// On a try-only context ErrBusy is returned as soon as any lock is
// unavailable, with the locks acquired so far still held; the caller decides
// between DropAll and retry. Release is the context's DropAll.
func AcquireAll(a *AcquireCtx, iter Iterator) error {
	return acquireAll(nil, a, iter)
}

// AcquireAllCtx is AcquireAll with cancellation. If ctx is cancelled during a
// wait the context error is returned; locks acquired before the cancellation
// remain held for the caller to drop.
func AcquireAllCtx(ctx context.Context, a *AcquireCtx, iter Iterator) error {
	return acquireAll(ctx, a, iter)
}

func acquireAll(ctx context.Context, a *AcquireCtx, iter Iterator) error {
	var span trace.Span
	if a.class.traceEnabled {
		spanCtx := ctx
		if spanCtx == nil {
			spanCtx = context.Background()
		}
		_, span = tracer.Start(spanCtx, "wwlock.acquire_all",
			trace.WithAttributes(attribute.Int64("wwlock.stamp", int64(a.stamp))))
		defer span.End()
	}

	attempts := 0
	for {
		attempts++
		var err error
		iter(func(m *Mutex) bool {
			if ctx == nil {
				err = m.Lock(a)
			} else {
				err = m.LockCtx(ctx, a)
			}
			return err == nil
		})
		if err == nil {
			if span != nil {
				span.SetAttributes(attribute.Int("wwlock.attempts", attempts))
			}
			return nil
		}
		if !errors.Is(err, ErrDeadlock) {
			if span != nil {
				span.RecordError(err)
			}
			return err
		}
		if ctx == nil {
			a.Backoff()
			continue
		}
		if berr := a.BackoffCtx(ctx); berr != nil {
			if span != nil {
				span.RecordError(berr)
			}
			return berr
		}
	}
}

// VerifyHeld checks that every Mutex produced by iter is held through a. It
// is a consistency assertion for callers that believe a bulk acquisition is
// complete, not part of the locking protocol.
func VerifyHeld(a *AcquireCtx, iter Iterator) error {
	var missing *Mutex
	iter(func(m *Mutex) bool {
		if !m.HeldBy(a) {
			missing = m
			return false
		}
		return true
	})
	if missing != nil {
		return fmt.Errorf("wwlock: lock %q is not held", missing.name)
	}
	return nil
}
