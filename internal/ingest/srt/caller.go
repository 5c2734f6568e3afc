package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/nalpace/internal/ingest"
)

const (
	dialTimeout   = 10 * time.Second
	redialBackoff = time.Second
)

// Dial returns a ListenFunc that pulls from a remote SRT listener at addr
// instead of waiting for a publisher. The first dial must succeed; after
// that a lost connection is redialled until the PacketConn is closed. If
// streamID is empty, no stream ID is sent. If log is nil, slog.Default()
// is used.
func Dial(addr, streamID string, log *slog.Logger) ingest.ListenFunc {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-caller", "remote", addr)

	return func(ctx context.Context) (ingest.PacketConn, error) {
		c := &caller{
			log:      log,
			addr:     addr,
			streamID: streamID,
			buf:      make([]byte, srtReadBufferSize),
			done:     make(chan struct{}),
		}
		conn, err := c.dial(ctx)
		if err != nil {
			return nil, err
		}
		c.conn = conn
		return c, nil
	}
}

type caller struct {
	log      *slog.Logger
	addr     string
	streamID string
	buf      []byte
	done     chan struct{}

	mu     sync.Mutex
	conn   *srtgo.Conn
	closed bool
}

// dial connects with a timeout. srtgo.Dial does not take a context, so a
// dial that outlives the timeout is closed in the background.
func (c *caller) dial(ctx context.Context) (*srtgo.Conn, error) {
	c.log.Info("dialing", "stream_id", c.streamID)

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = c.streamID

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(c.addr, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	abandon := func() {
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SRT dial %s: %w", c.addr, res.err)
		}
		c.log.Info("connected")
		return res.conn, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("SRT dial %s timed out after %s", c.addr, dialTimeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	case <-c.done:
		abandon()
		return nil, net.ErrClosed
	}
}

// ReadPacket returns the next message, redialling after a lost connection.
func (c *caller) ReadPacket(ctx context.Context) ([]byte, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, net.ErrClosed
		}
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			var err error
			if conn, err = c.redial(ctx); err != nil {
				return nil, err
			}
		}

		n, err := conn.Read(c.buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("read error", "error", err)
			}
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()
			continue
		}
		if n == 0 {
			continue
		}

		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, nil
	}
}

func (c *caller) redial(ctx context.Context) (*srtgo.Conn, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, net.ErrClosed
		case <-time.After(redialBackoff):
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil, err
			}
			c.log.Warn("redial failed", "error", err)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil, net.ErrClosed
		}
		c.conn = conn
		c.mu.Unlock()
		return conn, nil
	}
}

func (c *caller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *caller) LocalAddr() string {
	return ""
}

func (c *caller) RemoteAddr() string {
	return c.addr
}
