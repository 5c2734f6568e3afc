package quic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/zsiec/nalpace/internal/certs"
	"github.com/zsiec/nalpace/internal/ingest"
)

// ALPN is the application protocol publishers must negotiate.
const ALPN = "nalpace"

const (
	maxIdleTimeout = 30 * time.Second
	keepAlive      = 5 * time.Second
)

// errPublisherGone is the application error code sent when a publisher is
// replaced or the listener shuts down.
const errPublisherGone quicgo.ApplicationErrorCode = 0

// Listen returns a ListenFunc that accepts QUIC publishers on addr using
// cert. If log is nil, slog.Default() is used.
func Listen(addr string, cert *certs.CertInfo, log *slog.Logger) ingest.ListenFunc {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "quic-listener", "addr", addr)

	return func(_ context.Context) (ingest.PacketConn, error) {
		if cert == nil {
			return nil, errors.New("QUIC listen: no certificate")
		}
		ln, err := quicgo.ListenAddr(addr, cert.ServerTLS(ALPN), &quicgo.Config{
			EnableDatagrams: true,
			MaxIdleTimeout:  maxIdleTimeout,
			KeepAlivePeriod: keepAlive,
		})
		if err != nil {
			return nil, fmt.Errorf("QUIC listen on %s: %w", addr, err)
		}
		log.Info("listening", "fingerprint", cert.FingerprintHex())

		ctx, cancel := context.WithCancel(context.Background())
		return &conn{
			log:    log,
			ln:     ln,
			ctx:    ctx,
			cancel: cancel,
		}, nil
	}
}

type conn struct {
	log    *slog.Logger
	ln     *quicgo.Listener
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	pub    quicgo.Connection
	remote string
	closed bool
}

// ReadPacket returns the next datagram from the current publisher,
// accepting a new one first if needed. ctx and Close both unblock it.
func (c *conn) ReadPacket(ctx context.Context) ([]byte, error) {
	ctx, stop := c.joinCtx(ctx)
	defer stop()

	for {
		pub, err := c.publisher(ctx)
		if err != nil {
			return nil, err
		}

		data, err := pub.ReceiveDatagram(ctx)
		if err != nil {
			if c.isClosed() {
				return nil, net.ErrClosed
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Debug("receive error", "error", err)
			c.dropPublisher(pub)
			continue
		}
		if len(data) == 0 {
			continue
		}
		return data, nil
	}
}

// joinCtx returns a context cancelled by either ctx or Close.
func (c *conn) joinCtx(ctx context.Context) (context.Context, func()) {
	joined, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return joined, func() {
		stop()
		cancel()
	}
}

func (c *conn) publisher(ctx context.Context) (quicgo.Connection, error) {
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

	pub, err := c.ln.Accept(ctx)
	if err != nil {
		if c.isClosed() {
			return nil, net.ErrClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("QUIC accept: %w", err)
	}
	if !pub.ConnectionState().SupportsDatagrams {
		c.log.Warn("rejecting publisher without datagram support", "remote", pub.RemoteAddr())
		pub.CloseWithError(errPublisherGone, "datagrams required")
		return c.publisher(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		pub.CloseWithError(errPublisherGone, "shutting down")
		return nil, net.ErrClosed
	}
	c.pub = pub
	c.remote = pub.RemoteAddr().String()
	c.log.Info("publish", "remote", c.remote)
	return pub, nil
}

func (c *conn) dropPublisher(pub quicgo.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pub == pub {
		c.pub = nil
		c.log.Info("publisher disconnected", "remote", c.remote)
	}
	pub.CloseWithError(errPublisherGone, "")
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
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

	c.cancel()
	if pub != nil {
		pub.CloseWithError(errPublisherGone, "shutting down")
	}
	return c.ln.Close()
}

func (c *conn) LocalAddr() string {
	return c.ln.Addr().String()
}

func (c *conn) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}
