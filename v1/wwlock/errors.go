package wwlock

import "errors"

var (
	// ErrBusy is returned by TryLock, and by Lock on a try-only context,
	// when the Mutex is held by another owner. The caller may retry.
	ErrBusy = errors.New("wwlock: busy")

	// ErrDeadlock is returned when acquiring the Mutex could deadlock and
	// the requesting context is the one that must yield. The caller must
	// call Backoff on its AcquireCtx before acquiring anything else.
	ErrDeadlock = errors.New("wwlock: deadlock avoided")
)
