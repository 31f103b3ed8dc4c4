// Package wwlock implements deadlock-free acquisition of arbitrary sets of
// mutually-exclusive resources using wound-wait ordering.
//
// Callers create an AcquireCtx from a Class, then lock any number of the
// class's Mutexes in whatever order they discover them. Every context carries
// a unique, monotonically increasing stamp; when two contexts contend for the
// same Mutex, the older (lower-stamp) one waits while the younger one is told
// to back off with ErrDeadlock. Backing off releases everything the younger
// context holds and then blocks on the contended Mutex, so the next attempt
// wins that comparison. Because stamps never change, each context can lose at
// most once to every older live context and all operations eventually
// complete.
//
// A typical retry loop:
//
//	a := class.NewCtx()
//	defer a.Finish()
//	for {
//	    err := first.Lock(a)
//	    if err == nil {
//	        err = second.Lock(a)
//	    }
//	    if err == wwlock.ErrDeadlock {
//	        a.Backoff()
//	        continue
//	    }
//	    break
//	}
//	// ... use the guarded resources ...
//	a.DropAll()
//
// AcquireAll packages this loop for callers able to enumerate the locks they
// need up front.
package wwlock
