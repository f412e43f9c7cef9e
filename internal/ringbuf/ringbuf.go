// Package ringbuf provides a fixed-size ring that keeps the most recent
// values and overwrites the oldest once full. It backs the per-instrument
// decision history.
package ringbuf

import "sync"

// Ring is safe for concurrent use by one writer and many readers.
// Capacity is a power of two so positions wrap with a mask.
type Ring[T any] struct {
	mu      sync.RWMutex
	buf     []T
	mask    uint64
	head    uint64 // total pushes
	dropped uint64
}

// New creates a ring. capacity is rounded up to the next power of two with a
// minimum of 2.
func New[T any](capacity int) *Ring[T] {
	n := nextPow2(capacity)
	if n < 2 {
		n = 2
	}
	return &Ring[T]{buf: make([]T, n), mask: uint64(n - 1)}
}

// Push stores v, evicting the oldest value when the ring is full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	if r.head >= uint64(len(r.buf)) {
		r.dropped++
	}
	r.buf[r.head&r.mask] = v
	r.head++
	r.mu.Unlock()
}

// Snapshot returns up to limit of the newest values, oldest first. A limit
// of 0 or less returns everything held.
func (r *Ring[T]) Snapshot(limit int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.lenLocked()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	start := r.head - uint64(n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+uint64(i))&r.mask]
	}
	return out
}

// Last returns the newest value.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var zero T
	if r.head == 0 {
		return zero, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// Len returns the number of values held.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *Ring[T]) lenLocked() int {
	if r.head < uint64(len(r.buf)) {
		return int(r.head)
	}
	return len(r.buf)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Dropped returns how many values were evicted.
func (r *Ring[T]) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
