// Package ingesttest provides an in-memory ingest transport for tests.
package ingesttest

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/zsiec/nalpace/internal/ingest"
)

// Pipe is an in-memory ingest.PacketConn. Chunks passed to Send are returned
// by ReadPacket in order.
type Pipe struct {
	packets chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewPipe creates a Pipe that buffers up to capacity unread chunks.
func NewPipe(capacity int) *Pipe {
	return &Pipe{
		packets: make(chan []byte, capacity),
		done:    make(chan struct{}),
	}
}

// Listen returns a ListenFunc that hands out p.
func (p *Pipe) Listen() ingest.ListenFunc {
	return func(context.Context) (ingest.PacketConn, error) {
		return p, nil
	}
}

// FailingListen returns a ListenFunc that always fails with err.
func FailingListen(err error) ingest.ListenFunc {
	return func(context.Context) (ingest.PacketConn, error) {
		return nil, err
	}
}

// Send queues a copy of chunk. It returns false once the pipe is closed.
func (p *Pipe) Send(chunk []byte) bool {
	c := make([]byte, len(chunk))
	copy(c, chunk)
	select {
	case p.packets <- c:
		return true
	case <-p.done:
		return false
	}
}

// ReadPacket implements ingest.PacketConn.
func (p *Pipe) ReadPacket(ctx context.Context) ([]byte, error) {
	select {
	case pkt := <-p.packets:
		return pkt, nil
	case <-p.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements ingest.PacketConn.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// Closed reports whether Close has been called.
func (p *Pipe) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// LocalAddr implements ingest.PacketConn.
func (p *Pipe) LocalAddr() string { return "pipe" }

// RemoteAddr implements ingest.PacketConn.
func (p *Pipe) RemoteAddr() string { return "pipe" }

// ErrBind is a convenience error for FailingListen.
var ErrBind = errors.New("bind: address already in use")
