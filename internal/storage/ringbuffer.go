package storage

import "sync"

// RingBuffer is a generic thread-safe ring buffer that stores a fixed number of items.
// When the buffer is full, adding a new item overwrites the oldest item.
// Positions handed out by CurrentPosition are absolute: they count every item
// ever added, so a reader can ask for "everything since position N".
type RingBuffer[T any] struct {
	sync.RWMutex
	items    []T
	capacity int
	head     int // next write slot
	size     int // current number of items
	total    int // items added since creation or the last Clear
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
// The capacity must be greater than zero.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be greater than zero")
	}

	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add inserts an item into the ring buffer.
// If the buffer is at capacity, this overwrites the oldest item.
func (rb *RingBuffer[T]) Add(item T) {
	rb.Lock()
	defer rb.Unlock()

	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % rb.capacity
	rb.total++

	if rb.size < rb.capacity {
		rb.size++
	}
}

// ReplaceFunc overwrites the newest item for which match returns true.
// It reports whether an item was replaced.
func (rb *RingBuffer[T]) ReplaceFunc(match func(T) bool, item T) bool {
	rb.Lock()
	defer rb.Unlock()

	for i := 0; i < rb.size; i++ {
		idx := (rb.head - 1 - i + rb.capacity) % rb.capacity
		if match(rb.items[idx]) {
			rb.items[idx] = item
			return true
		}
	}
	return false
}

// GetAll returns all items in chronological order (oldest to newest).
// The returned slice is a copy and safe to modify.
func (rb *RingBuffer[T]) GetAll() []T {
	rb.RLock()
	defer rb.RUnlock()
	return rb.snapshot()
}

func (rb *RingBuffer[T]) snapshot() []T {
	if rb.size == 0 {
		return nil
	}

	result := make([]T, rb.size)
	if rb.size < rb.capacity {
		copy(result, rb.items[:rb.size])
	} else {
		// wrapped: head points at the oldest item
		n := copy(result, rb.items[rb.head:])
		copy(result[n:], rb.items[:rb.head])
	}
	return result
}

// GetRecent returns the N most recent items in chronological order.
// If N is greater than the current size, all items are returned.
func (rb *RingBuffer[T]) GetRecent(n int) []T {
	all := rb.GetAll()
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// GetRange returns items between absolute positions start and end (inclusive).
// Positions that have already been overwritten are skipped.
// Returns nil if the range is invalid or empty.
func (rb *RingBuffer[T]) GetRange(start, end int) []T {
	rb.RLock()
	defer rb.RUnlock()

	if rb.size == 0 || start < 0 || end < start {
		return nil
	}

	oldest := rb.total - rb.size
	start = max(start, oldest)
	end = min(end, rb.total-1)
	if start > end {
		return nil
	}

	all := rb.snapshot()
	out := make([]T, end-start+1)
	copy(out, all[start-oldest:end-oldest+1])
	return out
}

// Size returns the current number of items in the buffer.
func (rb *RingBuffer[T]) Size() int {
	rb.RLock()
	defer rb.RUnlock()
	return rb.size
}

// Capacity returns the maximum capacity of the buffer.
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// Clear removes all items from the buffer.
func (rb *RingBuffer[T]) Clear() {
	rb.Lock()
	defer rb.Unlock()
	clear(rb.items)
	rb.size = 0
	rb.head = 0
	rb.total = 0
}

// CurrentPosition returns the absolute number of items added.
// The next item added will live at this position.
func (rb *RingBuffer[T]) CurrentPosition() int {
	rb.RLock()
	defer rb.RUnlock()
	return rb.total
}
