package queue

import "sync"

// RecvState tells a Mailbox receiver why Receive returned.
type RecvState int

const (
	// Received means an item was dequeued.
	Received RecvState = iota
	// Closed means the mailbox was closed and holds no more items.
	Closed
)

func (s RecvState) String() string {
	if s == Received {
		return "received"
	}
	return "closed"
}

// Mailbox is an unbounded FIFO guarded by a mutex and condition variable.
// Receive blocks until an item is available or Close is called; items pushed
// before Close are still delivered.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool
}

// NewMailbox creates an open, empty Mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Push appends item and wakes one waiting receiver. Items pushed after
// Close are dropped and Push returns false.
func (m *Mailbox[T]) Push(item T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, item)
	m.mu.Unlock()
	m.cond.Signal()
	return true
}

// Receive removes and returns the oldest item, blocking while the mailbox is
// empty and open.
func (m *Mailbox[T]) Receive() (T, RecvState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.head == len(m.items) && !m.closed {
		m.cond.Wait()
	}
	return m.popLocked()
}

// TryReceive is the non-blocking form of Receive. ok is false when the
// mailbox is empty.
func (m *Mailbox[T]) TryReceive() (item T, state RecvState, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.head == len(m.items) && !m.closed {
		return item, Received, false
	}
	item, state = m.popLocked()
	return item, state, state == Received
}

func (m *Mailbox[T]) popLocked() (T, RecvState) {
	var zero T
	if m.head == len(m.items) {
		return zero, Closed
	}
	item := m.items[m.head]
	m.items[m.head] = zero
	m.head++
	if m.head == len(m.items) {
		m.items = m.items[:0]
		m.head = 0
	} else if m.head > 1024 && m.head > len(m.items)/2 {
		n := copy(m.items, m.items[m.head:])
		clear(m.items[n:])
		m.items = m.items[:n]
		m.head = 0
	}
	return item, Received
}

// Close wakes every receiver. Receivers drain remaining items and then get
// Closed. Close is idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Reopen clears the mailbox and makes it accept items again.
func (m *Mailbox[T]) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	m.closed = false
}

// Clear drops all queued items.
func (m *Mailbox[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Mailbox[T]) clearLocked() {
	clear(m.items)
	m.items = m.items[:0]
	m.head = 0
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items) - m.head
}
