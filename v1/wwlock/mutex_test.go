package wwlock

import (
	"testing"
	"time"
)

func TestPlainLockUnlock(t *testing.T) {
	c := NewClass("test")
	m := c.NewMutex("m")

	if err := m.Lock(nil); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !m.IsHeld() {
		t.Fatal("expected held")
	}
	m.Unlock()
	if m.IsHeld() {
		t.Fatal("expected released")
	}
}

func TestTryLockBusyDoesNotBlock(t *testing.T) {
	c := NewClass("test")
	m := c.NewMutex("m")
	holder := c.NewCtx()

	if err := m.Lock(holder); err != nil {
		t.Fatalf("lock: %v", err)
	}

	other := c.NewCtx()
	start := time.Now()
	if err := m.TryLock(other); err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Fatal("TryLock blocked")
	}
	if other.HeldCount() != 0 {
		t.Fatal("failed TryLock must not record a hold")
	}

	holder.DropAll()
	if err := m.TryLock(other); err != nil {
		t.Fatalf("trylock after release: %v", err)
	}
	other.DropAll()
	holder.Finish()
	other.Finish()
}

func TestTryOnlyContextNeverBlocks(t *testing.T) {
	c := NewClass("test")
	m := c.NewMutex("m")
	holder := c.NewCtx()
	if err := m.Lock(holder); err != nil {
		t.Fatalf("lock: %v", err)
	}

	a := c.NewCtx(TryOnly())
	start := time.Now()
	if err := m.Lock(a); err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Fatal("try-only Lock blocked")
	}
	holder.DropAll()
	holder.Finish()
	a.Finish()
}

func TestReentrantAcquireIsNoOp(t *testing.T) {
	c := NewClass("test")
	m := c.NewMutex("m")
	a := c.NewCtx()

	if err := m.Lock(a); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if err := m.Lock(a); err != nil {
		t.Fatalf("reentrant lock: %v", err)
	}
	if err := m.TryLock(a); err != nil {
		t.Fatalf("reentrant trylock: %v", err)
	}
	if a.HeldCount() != 1 {
		t.Fatalf("expected single held entry, got %d", a.HeldCount())
	}

	// Not reference-counted: one release fully unlocks.
	a.DropAll()
	if m.IsHeld() {
		t.Fatal("expected released after DropAll")
	}
	a.Finish()
}

func TestUnlockWakesOlderWaiter(t *testing.T) {
	c := NewClass("test")
	m := c.NewMutex("m")
	older := c.NewCtx()
	younger := c.NewCtx()

	if err := m.Lock(younger); err != nil {
		t.Fatalf("lock: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.Lock(older) }()

	select {
	case err := <-done:
		t.Fatalf("older context acquired a held lock: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	younger.DropAll()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("older lock: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("older waiter not woken")
	}
	if !m.HeldBy(older) {
		t.Fatal("expected older context to hold the lock")
	}
	older.DropAll()
	older.Finish()
	younger.Finish()
}

func TestUnlockOfUnheldPanics(t *testing.T) {
	c := NewClass("test")
	m := c.NewMutex("m")
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on Unlock of unheld Mutex")
		}
	}()
	m.Unlock()
}

func TestCrossClassAcquirePanics(t *testing.T) {
	c1 := NewClass("one")
	c2 := NewClass("two")
	m := c1.NewMutex("m")
	a := c2.NewCtx()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on cross-class acquire")
		}
	}()
	_ = m.Lock(a)
}

func TestHeldBy(t *testing.T) {
	c := NewClass("test")
	m := c.NewMutex("m")
	a := c.NewCtx()
	b := c.NewCtx()

	if m.HeldBy(a) {
		t.Fatal("unheld lock reported as held")
	}
	if err := m.Lock(a); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !m.HeldBy(a) || m.HeldBy(b) {
		t.Fatal("wrong ownership report")
	}
	a.DropAll()
	a.Finish()
	b.Finish()
}
