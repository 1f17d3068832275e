// Package buffer provides a bounded, thread-safe ring with bulk compaction.
//
// Unlike a classic circular buffer that drops one element per overflowing
// write, Ring compacts in bulk: when the capacity is reached it discards the
// oldest items down to a configured low-water mark in a single pass. This
// keeps steady-state appends O(1) and bounds memory for streaming series
// such as metric samples and error logs.
package buffer

import (
	"sync"
	"sync/atomic"
)

// Ring is a bounded, thread-safe append-only buffer of the most recent items.
type Ring[T any] struct {
	mu        sync.RWMutex
	items     []T
	capacity  int
	compactTo int

	// Always-on counters for observability
	appends     int64
	compactions int64
	discarded   int64
}

// NewRing creates a ring holding at most capacity items. When full, the
// oldest items are discarded until compactTo remain. compactTo must be less
// than capacity; values <= 0 default to capacity/2.
func NewRing[T any](capacity, compactTo int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	if compactTo <= 0 || compactTo >= capacity {
		compactTo = capacity / 2
	}
	if compactTo < 1 {
		compactTo = 1
	}
	return &Ring[T]{
		items:     make([]T, 0, capacity),
		capacity:  capacity,
		compactTo: compactTo,
	}
}

// Append adds an item, compacting first if the ring is full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	if len(r.items) >= r.capacity {
		drop := len(r.items) - r.compactTo
		r.items = append(r.items[:0], r.items[drop:]...)
		atomic.AddInt64(&r.compactions, 1)
		atomic.AddInt64(&r.discarded, int64(drop))
	}
	r.items = append(r.items, item)
	r.mu.Unlock()
	atomic.AddInt64(&r.appends, 1)
}

// Items returns a snapshot of the buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Last returns the most recent item, if any.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.items) == 0 {
		var zero T
		return zero, false
	}
	return r.items[len(r.items)-1], true
}

// Filter returns a snapshot of items satisfying keep, oldest first.
func (r *Ring[T]) Filter(keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []T
	for _, item := range r.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Len returns the current number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Capacity returns the maximum number of buffered items.
func (r *Ring[T]) Capacity() int {
	return r.capacity
}

// Clear discards all buffered items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	r.items = r.items[:0]
	r.mu.Unlock()
}

// Stats reports lifetime append/compaction counters.
func (r *Ring[T]) Stats() (appends, compactions, discarded int64) {
	return atomic.LoadInt64(&r.appends), atomic.LoadInt64(&r.compactions), atomic.LoadInt64(&r.discarded)
}
