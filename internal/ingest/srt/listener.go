package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/nalpace/internal/ingest"
)

// srtReadBufferSize is the read buffer for SRT socket reads, large enough
// for any live-mode message.
const srtReadBufferSize = 1316 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// Listen returns a ListenFunc that accepts SRT publishers on addr. If
// streamKey is non-empty, publishers announcing a different stream ID are
// rejected. If log is nil, slog.Default() is used.
func Listen(addr, streamKey string, log *slog.Logger) ingest.ListenFunc {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-listener", "addr", addr)

	return func(_ context.Context) (ingest.PacketConn, error) {
		cfg := srtgo.DefaultConfig()
		cfg.Latency = srtLatencyNs

		l, err := srtgo.Listen(addr, cfg)
		if err != nil {
			return nil, fmt.Errorf("SRT listen on %s: %w", addr, err)
		}
		log.Info("listening")

		l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
			if !acceptStreamID(req.StreamID, streamKey) {
				log.Warn("rejecting publisher", "stream_id", req.StreamID)
				return srtgo.RejPeer
			}
			return 0
		})

		return &conn{
			log:  log,
			addr: addr,
			l:    l,
			buf:  make([]byte, srtReadBufferSize),
		}, nil
	}
}

type conn struct {
	log  *slog.Logger
	addr string
	l    *srtgo.Listener
	buf  []byte

	mu     sync.Mutex
	pub    *srtgo.Conn
	remote string
	closed bool
}

// ReadPacket returns the next message from the current publisher, accepting
// a new one first if needed.
func (c *conn) ReadPacket(ctx context.Context) ([]byte, error) {
	for {
		pub, err := c.publisher()
		if err != nil {
			return nil, err
		}

		n, err := pub.Read(c.buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("read error", "error", err)
			}
			c.dropPublisher(pub)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
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

func (c *conn) publisher() (*srtgo.Conn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, net.ErrClosed
	}
	if c.pub != nil {
		pub := c.pub
		c.mu.Unlock()
		return pub, nil
	}
	c.mu.Unlock()

	pub, err := c.l.Accept()
	if err != nil {
		return nil, fmt.Errorf("SRT accept: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		pub.Close()
		return nil, net.ErrClosed
	}
	c.pub = pub
	c.remote = pub.RemoteAddr().String()
	c.log.Info("publish", "stream_key", extractStreamKey(pub.StreamID()), "remote", c.remote)
	return pub, nil
}

func (c *conn) dropPublisher(pub *srtgo.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pub == pub {
		c.pub = nil
		c.log.Info("publisher disconnected", "remote", c.remote)
	}
	pub.Close()
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pub := c.pub
	c.pub = nil
	c.mu.Unlock()

	if pub != nil {
		pub.Close()
	}
	return c.l.Close()
}

func (c *conn) LocalAddr() string {
	return c.addr
}

func (c *conn) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// acceptStreamID reports whether a publisher announcing streamID may
// publish when the listener expects want. An empty want accepts anyone.
func acceptStreamID(streamID, want string) bool {
	if want == "" {
		return true
	}
	return extractStreamKey(streamID) == want
}

func extractStreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
