// Package resource implements the bidirectional handle↔value tables each
// side of a session binds objects into (capabilities, areas of interest,
// static tokens) and the demand-driven wait a receiver needs when it has
// to refer to a handle the peer hasn't bound yet.
package resource

import (
	"context"
	"sync"

	"github.com/meadowlark-sync/willow/errors"
)

// Kind distinguishes numbering domains: capabilities, areas of interest,
// static tokens, and intersections each get their own monotonic handle
// sequence starting at 1. Handle 0 is reserved as a sentinel (used, e.g.,
// for the not-yet-implemented private area intersection handle).
type Kind int

const (
	KindCapability Kind = iota
	KindAreaOfInterest
	KindStaticToken
	KindIntersection
)

func (k Kind) String() string {
	switch k {
	case KindCapability:
		return "capability"
	case KindAreaOfInterest:
		return "area_of_interest"
	case KindStaticToken:
		return "static_token"
	case KindIntersection:
		return "intersection"
	default:
		return "unknown"
	}
}

// Handle is a kind-tagged, monotonic, nonzero reference to a value bound on
// one side of a session.
type Handle struct {
	Kind  Kind
	Value uint64
}

// IsZero reports whether h is the sentinel zero handle.
func (h Handle) IsZero() bool {
	return h.Value == 0
}

// ErrMissingResource is returned by TryGet when the handle is unknown. It
// indicates a programmer error in the peer (or in us) and is fatal to the
// session.
var ErrMissingResource = errors.New("resource handle is unknown")

// Map is a per-kind handle→value table. Handles are assigned monotonically
// from 1. A reverse index supports idempotent BindIfNew by value.
type Map[T comparable] struct {
	kind Kind

	mu      sync.Mutex
	next    uint64
	forward map[uint64]T
	reverse map[T]uint64
	waiters map[uint64][]chan struct{}
}

// NewMap creates an empty resource map for the given kind.
func NewMap[T comparable](kind Kind) *Map[T] {
	return &Map[T]{
		kind:    kind,
		next:    1,
		forward: make(map[uint64]T),
		reverse: make(map[T]uint64),
		waiters: make(map[uint64][]chan struct{}),
	}
}

// Bind always assigns a fresh handle to value, even if value is already bound.
func (m *Map[T]) Bind(value T) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindLocked(value)
}

func (m *Map[T]) bindLocked(value T) Handle {
	v := m.next
	m.next++
	m.forward[v] = value
	m.reverse[value] = v
	m.wakeLocked(v)
	return Handle{Kind: m.kind, Value: v}
}

// BindIfNew binds value to a fresh handle unless it is already bound, in
// which case the existing handle is returned with isNew=false.
func (m *Map[T]) BindIfNew(value T) (handle Handle, isNew bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.reverse[value]; ok {
		return Handle{Kind: m.kind, Value: v}, false
	}
	return m.bindLocked(value), true
}

// Get returns the value bound to handle, if any.
func (m *Map[T]) Get(handle Handle) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.forward[handle.Value]
	return v, ok
}

// TryGet returns the value bound to handle, or ErrMissingResource.
func (m *Map[T]) TryGet(handle Handle) (T, error) {
	v, ok := m.Get(handle)
	if !ok {
		var zero T
		return zero, errors.Wrapf(ErrMissingResource, "no %s bound to handle %d", m.kind, handle.Value)
	}
	return v, nil
}

// WaitFor blocks until handle is bound or ctx is done. A straightforward
// implementation of poll_get_eventually: a map from handle to a waiter
// list, flushed on every Bind.
func (m *Map[T]) WaitFor(ctx context.Context, handle Handle) (T, error) {
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

// wakeLocked closes every waiter channel registered for v. Caller must hold m.mu.
func (m *Map[T]) wakeLocked(v uint64) {
	for _, ch := range m.waiters[v] {
		close(ch)
	}
	delete(m.waiters, v)
}

// Len returns the number of bound handles.
func (m *Map[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forward)
}

// InternTable is a Map used purely for its BindIfNew idempotency: repeated
// interning of an equal value is guaranteed cheap and handle-stable. Named
// distinctly from Map for callers that care specifically about "have I
// already sent this value's binding", not about the general bind/get
// surface. The session's static-token emission (§4.H) does not use it; it
// binds through State.BindOurStaticToken instead.
type InternTable[T comparable] struct {
	*Map[T]
}

// NewInternTable creates an empty InternTable for the given kind.
func NewInternTable[T comparable](kind Kind) *InternTable[T] {
	return &InternTable[T]{Map: NewMap[T](kind)}
}

// Intern binds value to a handle if it has not been seen before, otherwise
// returns the handle already assigned to it.
func (t *InternTable[T]) Intern(value T) (handle Handle, isNew bool) {
	return t.BindIfNew(value)
}
