package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/zsiec/nalpace/internal/ingest"
)

// receiver owns the transport and the ingestion goroutine of a source.
type receiver struct {
	log    *slog.Logger
	listen ingest.ListenFunc
	stats  ingest.Stats

	mu     sync.Mutex
	conn   ingest.PacketConn
	cancel context.CancelFunc
	done   chan struct{}
}

// hooks are the per-variant callbacks of a receiver.
type hooks struct {
	// prepare runs once the receiver is known to be idle, before binding.
	prepare func()
	// handle runs on the ingestion goroutine for every packet read.
	handle func([]byte)
	// finish runs on the ingestion goroutine after the last packet.
	finish func()
}

// start binds the transport and runs the ingestion goroutine until the
// transport closes.
func (r *receiver) start(ctx context.Context, h hooks) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return ErrAlreadyStarted
	}
	if r.listen == nil {
		return errNoTransport
	}
	if h.prepare != nil {
		h.prepare()
	}

	conn, err := r.listen(ctx)
	if err != nil {
		r.log.Error("transport setup failed", "error", err)
		return fmt.Errorf("start ingest: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.conn, r.cancel, r.done = conn, cancel, done
	r.stats.Start()
	r.log.Info("ingest started", "local", conn.LocalAddr())

	go func() {
		defer close(done)
		if h.finish != nil {
			defer h.finish()
		}
		r.loop(ctx, conn, h.handle)
	}()
	return nil
}

func (r *receiver) loop(ctx context.Context, conn ingest.PacketConn, handle func([]byte)) {
	for {
		pkt, err := conn.ReadPacket(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				r.log.Warn("read error", "error", err)
			}
			return
		}
		r.stats.RecordRead(len(pkt))
		r.stats.SetRemoteAddr(conn.RemoteAddr())
		handle(pkt)
	}
}

// stop closes the transport and waits for the ingestion goroutine. Safe to
// call repeatedly and before start.
func (r *receiver) stop() {
	r.mu.Lock()
	conn, cancel, done := r.conn, r.cancel, r.done
	r.conn, r.cancel = nil, nil
	r.mu.Unlock()

	if conn != nil {
		cancel()
		if err := conn.Close(); err != nil {
			r.log.Debug("transport close", "error", err)
		}
	}
	if done == nil {
		return
	}
	<-done

	if conn != nil {
		s := r.stats.Snapshot()
		r.log.Info("ingest stopped",
			"bytes", s.BytesReceived, "reads", s.ReadCount,
			"uptime_ms", s.UptimeMs)
	}
}

func (r *receiver) snapshot() ingest.IngestStats {
	return r.stats.Snapshot()
}
