package queue

import (
	"context"
	"sync"

	"github.com/jack2012aa/farm-iot/errors"
)

// Policy controls what Push does when the queue is full.
type Policy int

const (
	// DropOldest evicts the oldest item to make room for the new one.
	DropOldest Policy = iota
	// DropNewest rejects the incoming item.
	DropNewest
	// Block waits until a consumer frees space.
	Block
)

// Queue is a thread-safe bounded FIFO. One queue, many producers, one
// consumer is the intended shape; more consumers are safe but order across
// them is undefined.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	policy   Policy
	dropped  uint64
	closed   bool

	notEmpty *sync.Cond
	notFull  *sync.Cond
}

// New creates a queue with the given capacity and overflow policy.
// Capacity is clamped to at least 1.
func New[T any](capacity int, policy Policy) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		policy:   policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push adds an item according to the overflow policy. It returns an error
// only when the queue is closed or the item was rejected by DropNewest.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "queue", "Push", "push to closed queue")
	}

	if q.size == q.capacity {
		switch q.policy {
		case DropOldest:
			var zero T
			q.items[q.tail] = zero
			q.tail = (q.tail + 1) % q.capacity
			q.size--
			q.dropped++

		case DropNewest:
			q.dropped++
			return errors.WrapInvalid(errors.ErrInvalidData, "queue", "Push", "queue full, item dropped")

		case Block:
			for q.size == q.capacity && !q.closed {
				q.notFull.Wait()
			}
			if q.closed {
				return errors.WrapInvalid(errors.ErrAlreadyStopped, "queue", "Push", "queue closed during wait")
			}
		}
	}

	q.items[q.head] = item
	q.head = (q.head + 1) % q.capacity
	q.size++

	q.notEmpty.Signal()
	return nil
}

// Pop blocks until an item is available, the context is cancelled, or the
// queue is closed and drained. A closed queue keeps yielding buffered items
// before reporting ErrAlreadyStopped.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T

	// Wake the Wait below when the context goes away. Broadcasting under the
	// lock cannot interleave between the predicate check and Wait.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 {
		if q.closed {
			return zero, errors.WrapInvalid(errors.ErrAlreadyStopped, "queue", "Pop", "pop from closed queue")
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		q.notEmpty.Wait()
	}

	item := q.items[q.tail]
	q.items[q.tail] = zero
	q.tail = (q.tail + 1) % q.capacity
	q.size--

	q.notFull.Signal()
	return item, nil
}

// TryPop returns the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, false
	}

	item := q.items[q.tail]
	q.items[q.tail] = zero
	q.tail = (q.tail + 1) % q.capacity
	q.size--

	q.notFull.Signal()
	return item, true
}

// Len returns the current number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the maximum number of buffered items.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Dropped returns how many items overflow has discarded.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close marks the queue closed and wakes all waiters. Buffered items remain
// poppable; further pushes fail.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
