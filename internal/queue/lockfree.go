package queue

import "sync/atomic"

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFree is an unbounded multi-producer multi-consumer FIFO based on the
// Michael-Scott queue. Push and TryPop never block; growth is one node per
// item.
type LockFree[T any] struct {
	head atomic.Pointer[node[T]]
	tail atomic.Pointer[node[T]]
	size atomic.Int64
}

// NewLockFree creates an empty LockFree queue.
func NewLockFree[T any]() *LockFree[T] {
	q := &LockFree[T]{}
	sentinel := &node[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Push appends value.
func (q *LockFree[T]) Push(value T) {
	n := &node[T]{value: value}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next != nil {
			// Tail is lagging; help it forward.
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.size.Add(1)
			return
		}
	}
}

// TryPop removes and returns the oldest value. ok is false if the queue was
// empty at the time of the attempt.
func (q *LockFree[T]) TryPop() (value T, ok bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if next == nil {
			return value, false
		}
		if head == tail {
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if q.head.CompareAndSwap(head, next) {
			value = next.value
			// next is the new sentinel; drop its reference to the value.
			var zero T
			next.value = zero
			q.size.Add(-1)
			return value, true
		}
	}
}

// Len returns the approximate number of queued values.
func (q *LockFree[T]) Len() int {
	return int(max(q.size.Load(), 0))
}
