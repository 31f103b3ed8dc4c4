package registry

import (
	"testing"

	"github.com/mirkobrombin/go-wwlock/v1/wwlock"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(wwlock.NewClass("registry-test"))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return r
}

func TestGetIsStable(t *testing.T) {
	r := newRegistry(t)
	m1 := r.Get("a")
	m2 := r.Get("a")
	if m1 != m2 {
		t.Fatal("expected same Mutex for same key")
	}
	if m3 := r.Get("b"); m3 == m1 {
		t.Fatal("expected distinct Mutex for distinct key")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", r.Len())
	}
}

func TestLookupAndDelete(t *testing.T) {
	r := newRegistry(t)
	if _, ok := r.Lookup("a"); ok {
		t.Fatal("lookup of missing key succeeded")
	}
	m := r.Get("a")
	got, ok := r.Lookup("a")
	if !ok || got != m {
		t.Fatal("lookup mismatch")
	}
	r.Delete("a")
	if _, ok := r.Lookup("a"); ok {
		t.Fatal("key survived delete")
	}
	if fresh := r.Get("a"); fresh == m {
		t.Fatal("expected fresh Mutex after delete")
	}
}

func TestKeysSorted(t *testing.T) {
	r := newRegistry(t)
	for _, k := range []string{"c", "a", "b"} {
		r.Get(k)
	}
	keys := r.Keys()
	want := []string{"a", "b", "c"}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}

func TestForEachWithBulkAcquire(t *testing.T) {
	class := wwlock.NewClass("bulk")
	rb, err := New(class)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for _, k := range []string{"plane", "crtc", "connector"} {
		rb.Get(k)
	}

	a := class.NewCtx()
	if err := wwlock.AcquireAll(a, rb.ForEach()); err != nil {
		t.Fatalf("acquire all: %v", err)
	}
	if err := wwlock.VerifyHeld(a, rb.ForEach()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if a.HeldCount() != rb.Len() {
		t.Fatalf("expected %d held, got %d", rb.Len(), a.HeldCount())
	}
	a.DropAll()
	a.Finish()
}

func TestRegistryIDsDistinct(t *testing.T) {
	r1 := newRegistry(t)
	r2 := newRegistry(t)
	if r1.ID() == r2.ID() {
		t.Fatal("registry IDs should differ")
	}
	// Same key in different registries yields independently named locks.
	if r1.Get("k").Name() == r2.Get("k").Name() {
		t.Fatal("lock names should be namespaced by registry")
	}
}
