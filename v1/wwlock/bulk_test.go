package wwlock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireAllAndVerifyHeld(t *testing.T) {
	c := NewClass("bulk")
	ms := []*Mutex{c.NewMutex("a"), c.NewMutex("b"), c.NewMutex("c")}
	a := c.NewCtx()

	if err := AcquireAll(a, Locks(ms...)); err != nil {
		t.Fatalf("acquire all: %v", err)
	}
	if a.HeldCount() != len(ms) {
		t.Fatalf("expected %d held, got %d", len(ms), a.HeldCount())
	}
	if err := VerifyHeld(a, Locks(ms...)); err != nil {
		t.Fatalf("verify: %v", err)
	}

	a.DropAll()
	if err := VerifyHeld(a, Locks(ms...)); err == nil {
		t.Fatal("expected verify failure after DropAll")
	}
	a.Finish()
}

func TestAcquireAllRetriesThroughDeadlock(t *testing.T) {
	c := NewClass("bulk")
	x := c.NewMutex("x")
	y := c.NewMutex("y")

	older := c.NewCtx()
	if err := AcquireAll(older, Locks(x, y)); err != nil {
		t.Fatalf("older acquire: %v", err)
	}

	// The younger bulk acquisition hits the older holder and must keep
	// retrying internally until the older context releases.
	done := make(chan error, 1)
	younger := c.NewCtx()
	go func() { done <- AcquireAll(younger, Locks(y, x)) }()

	select {
	case err := <-done:
		t.Fatalf("younger acquired held locks: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	older.DropAll()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("younger acquire: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("bulk acquisition did not terminate")
	}
	if err := VerifyHeld(younger, Locks(x, y)); err != nil {
		t.Fatalf("verify: %v", err)
	}

	younger.DropAll()
	older.Finish()
	younger.Finish()
}

func TestAcquireAllTryOnly(t *testing.T) {
	c := NewClass("bulk")
	x := c.NewMutex("x")
	y := c.NewMutex("y")

	holder := c.NewCtx()
	if err := y.Lock(holder); err != nil {
		t.Fatalf("holder lock y: %v", err)
	}

	a := c.NewCtx(TryOnly())
	err := AcquireAll(a, Locks(x, y))
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	// x was acquired before the busy failure and stays held for the
	// caller to decide.
	if !x.HeldBy(a) {
		t.Fatal("expected partial acquisition to remain held")
	}
	a.DropAll()

	holder.DropAll()
	if err := AcquireAll(a, Locks(x, y)); err != nil {
		t.Fatalf("try-only acquire of free locks: %v", err)
	}
	a.DropAll()
	a.Finish()
	holder.Finish()
}

func TestAcquireAllCtxCancelled(t *testing.T) {
	c := NewClass("bulk")
	x := c.NewMutex("x")

	waiter := c.NewCtx() // older, so it waits rather than aborts
	holder := c.NewCtx()
	if err := x.Lock(holder); err != nil {
		t.Fatalf("holder lock x: %v", err)
	}

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := AcquireAllCtx(cctx, waiter, Locks(x))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if waiter.HeldCount() != 0 {
		t.Fatal("cancelled bulk acquisition linked a lock")
	}

	holder.DropAll()
	holder.Finish()
	waiter.Finish()
}

func TestLocksIteratorStopsEarly(t *testing.T) {
	c := NewClass("bulk")
	ms := []*Mutex{c.NewMutex("a"), c.NewMutex("b"), c.NewMutex("c")}
	var seen int
	Locks(ms...)(func(m *Mutex) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Fatalf("expected early stop after 2, got %d", seen)
	}
}
