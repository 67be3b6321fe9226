// Package bridge carries decoded peer commands from the socket goroutine to
// the main loop.
package bridge

import "sync"

// Queue is an unbounded FIFO safe for one producer and one consumer (or
// more) without external locking. No operation blocks on the queue's state.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Enqueue appends v.
func (q *Queue[T]) Enqueue(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// DrainAll removes and returns every queued item in arrival order.
// It returns nil when the queue is empty.
func (q *Queue[T]) DrainAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
