package resource

import (
	"context"
	"sync"

	"github.com/meadowlark-sync/willow/errors"
)

// KeyedMap is Map's counterpart for values that are not themselves
// comparable (e.g. a struct containing a path's []byte components), such as
// areas of interest. Idempotent binding is driven by a separately-supplied
// comparable key rather than the value itself.
type KeyedMap[K comparable, T any] struct {
	kind Kind

	mu      sync.Mutex
	next    uint64
	forward map[uint64]T
	reverse map[K]uint64
	waiters map[uint64][]chan struct{}
}

// NewKeyedMap creates an empty resource map for the given kind.
func NewKeyedMap[K comparable, T any](kind Kind) *KeyedMap[K, T] {
	return &KeyedMap[K, T]{
		kind:    kind,
		next:    1,
		forward: make(map[uint64]T),
		reverse: make(map[K]uint64),
		waiters: make(map[uint64][]chan struct{}),
	}
}

// Bind always assigns a fresh handle to value.
func (m *KeyedMap[K, T]) Bind(key K, value T) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindLocked(key, value)
}

func (m *KeyedMap[K, T]) bindLocked(key K, value T) Handle {
	v := m.next
	m.next++
	m.forward[v] = value
	m.reverse[key] = v
	m.wakeLocked(v)
	return Handle{Kind: m.kind, Value: v}
}

// BindIfNew binds value under key to a fresh handle unless key is already
// bound, in which case the existing handle is returned with isNew=false.
func (m *KeyedMap[K, T]) BindIfNew(key K, value T) (handle Handle, isNew bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.reverse[key]; ok {
		return Handle{Kind: m.kind, Value: v}, false
	}
	return m.bindLocked(key, value), true
}

// Get returns the value bound to handle, if any.
func (m *KeyedMap[K, T]) Get(handle Handle) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.forward[handle.Value]
	return v, ok
}

// TryGet returns the value bound to handle, or ErrMissingResource.
func (m *KeyedMap[K, T]) TryGet(handle Handle) (T, error) {
	v, ok := m.Get(handle)
	if !ok {
		var zero T
		return zero, errors.Wrapf(ErrMissingResource, "no %s bound to handle %d", m.kind, handle.Value)
	}
	return v, nil
}

// WaitFor blocks until handle is bound or ctx is done.
func (m *KeyedMap[K, T]) WaitFor(ctx context.Context, handle Handle) (T, error) {
	m.mu.Lock()
	if v, ok := m.forward[handle.Value]; ok {
		m.mu.Unlock()
		return v, nil
	}
	ch := make(chan struct{})
	m.waiters[handle.Value] = append(m.waiters[handle.Value], ch)
	m.mu.Unlock()

	select {
	case <-ch:
		v, ok := m.Get(handle)
		if !ok {
			var zero T
			return zero, errors.Wrapf(ErrMissingResource, "woke for handle %d but it is still unbound", handle.Value)
		}
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (m *KeyedMap[K, T]) wakeLocked(v uint64) {
	for _, ch := range m.waiters[v] {
		close(ch)
	}
	delete(m.waiters, v)
}

// Range calls fn for every bound handle/value pair in unspecified order,
// stopping early if fn returns false. fn must not call back into m.
func (m *KeyedMap[K, T]) Range(fn func(handle Handle, value T) bool) {
	m.mu.Lock()
	snapshot := make(map[uint64]T, len(m.forward))
	for v, value := range m.forward {
		snapshot[v] = value
	}
	m.mu.Unlock()

	for v, value := range snapshot {
		if !fn(Handle{Kind: m.kind, Value: v}, value) {
			return
		}
	}
}

// Len returns the number of bound handles.
func (m *KeyedMap[K, T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forward)
}
