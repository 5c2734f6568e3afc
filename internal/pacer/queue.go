package pacer

import (
	"github.com/zsiec/nalpace/internal/queue"
)

// DispatchQueue runs submitted functions one at a time, in submission
// order, on a single worker goroutine.
type DispatchQueue struct {
	tasks *queue.Mailbox[func()]
	done  chan struct{}
}

// NewDispatchQueue starts a DispatchQueue.
func NewDispatchQueue() *DispatchQueue {
	q := &DispatchQueue{
		tasks: queue.NewMailbox[func()](),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *DispatchQueue) run() {
	defer close(q.done)
	for {
		fn, state := q.tasks.Receive()
		if state == queue.Closed {
			return
		}
		fn()
	}
}

// Submit queues fn. It returns false once the queue is closed.
func (q *DispatchQueue) Submit(fn func()) bool {
	return q.tasks.Push(fn)
}

// RemovePending drops every queued function that has not started.
func (q *DispatchQueue) RemovePending() {
	q.tasks.Clear()
}

// Pending returns the number of queued functions.
func (q *DispatchQueue) Pending() int {
	return q.tasks.Len()
}

// Shutdown stops accepting work without waiting. Functions already queued
// still run.
func (q *DispatchQueue) Shutdown() {
	q.tasks.Close()
}

// Close stops accepting work and waits for the worker to finish what is
// already queued. It must not be called from a submitted function.
func (q *DispatchQueue) Close() {
	q.Shutdown()
	<-q.done
}
