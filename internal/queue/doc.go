// Package queue provides the FIFO hand-offs between a stream's ingest
// goroutine and its consumer: [Mailbox], which blocks the receiver until an
// item arrives or the mailbox is closed, and [LockFree], a non-blocking
// queue for best-effort consumers that poll.
package queue
