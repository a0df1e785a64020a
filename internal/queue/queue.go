// Package queue holds the deferred mutation queues written by message
// handlers and drained by phase activations.
package queue

import "sync"

// Queue is safe for many concurrent producers and a single draining consumer.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New creates an empty Queue.
func New[T any]() *Queue[T] { return &Queue[T]{} }

// Push appends an item.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Drain removes and returns every queued item in arrival order. Items pushed
// during processing of the returned batch wait for the next Drain.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
