package registry

import (
	"sort"
	"sync"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/mirkobrombin/go-wwlock/v1/wwlock"
)

// Registry hands out one Mutex per string key, creating locks on first use.
// It is safe for concurrent use. Lock names are namespaced with the registry
// ID so that two registries over the same event bus do not mix streams.
type Registry struct {
	class *wwlock.Class
	id    string

	mu    sync.RWMutex
	locks map[string]*wwlock.Mutex
}

// New returns an empty Registry creating locks in the given class.
func New(class *wwlock.Class) (*Registry, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}
	return &Registry{
		class: class,
		id:    id,
		locks: make(map[string]*wwlock.Mutex),
	}, nil
}

// ID returns the registry's unique identifier.
func (r *Registry) ID() string { return r.id }

// Get returns the Mutex for key, creating it if necessary. Successive calls
// with the same key return the same Mutex.
func (r *Registry) Get(key string) *wwlock.Mutex {
	r.mu.RLock()
	m, ok := r.locks[key]
	r.mu.RUnlock()
	if ok {
		return m
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.locks[key]; ok {
		return m
	}
	m = r.class.NewMutex(r.id[:8] + ":" + key)
	r.locks[key] = m
	return m
}

// Lookup returns the Mutex for key without creating one.
func (r *Registry) Lookup(key string) (*wwlock.Mutex, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.locks[key]
	return m, ok
}

// Delete removes key from the registry. A holder of the removed Mutex is
// unaffected; the key simply maps to a fresh Mutex on the next Get.
func (r *Registry) Delete(key string) {
	r.mu.Lock()
	delete(r.locks, key)
	r.mu.Unlock()
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locks)
}

// Keys returns all registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.locks))
	for k := range r.locks {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// ForEach returns a stable, sorted enumeration of the registry's current
// locks, suitable as the Iterator of a bulk acquisition. The set of keys is
// snapshotted when the iterator runs; retries over an unchanged registry see
// the same sequence.
func (r *Registry) ForEach() wwlock.Iterator {
	return func(yield func(*wwlock.Mutex) bool) {
		for _, k := range r.Keys() {
			m, ok := r.Lookup(k)
			if !ok {
				continue
			}
			if !yield(m) {
				return
			}
		}
	}
}
