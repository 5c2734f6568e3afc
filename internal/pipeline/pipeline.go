// Package pipeline wires one stream together: a source, the dispatcher that
// paces it, and the sink that consumes the paced samples.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/nalpace/internal/pacer"
	"github.com/zsiec/nalpace/internal/source"
)

// Sink consumes paced samples. WriteSample runs on the dispatcher's tick
// path and must not block for long.
type Sink interface {
	WriteSample(kind pacer.TrackKind, timestampUs uint64, sample []byte) error
}

// Stats is a point-in-time view of a pipeline's delivery counters.
type Stats struct {
	Delivered       int64  `json:"delivered"`
	Empty           int64  `json:"empty"`
	Bytes           int64  `json:"bytes"`
	WriteErrors     int64  `json:"writeErrors"`
	LastTimestampUs uint64 `json:"lastTimestampUs"`
	UptimeMs        int64  `json:"uptimeMs"`
}

// Pipeline paces a single stream's source into its sink.
type Pipeline struct {
	log        *slog.Logger
	key        string
	src        source.StreamSource
	sink       Sink
	dispatcher *pacer.Dispatcher

	startTime   atomic.Int64
	delivered   atomic.Int64
	empty       atomic.Int64
	bytes       atomic.Int64
	writeErrors atomic.Int64
	lastTs      atomic.Uint64
}

// New creates a Pipeline for the stream named key. log is used as given,
// so callers attach the stream's attributes once for the source, the sink
// and the pipeline alike. If log is nil, slog.Default() is used. opts are
// passed to the dispatcher.
func New(key string, src source.StreamSource, sink Sink, log *slog.Logger, opts ...pacer.Option) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		log:        log,
		key:        key,
		src:        src,
		sink:       sink,
		dispatcher: pacer.New(src, log, opts...),
	}
	p.dispatcher.OnSample(p.deliver)
	return p
}

// Key returns the stream name.
func (p *Pipeline) Key() string {
	return p.key
}

// Run starts the stream and blocks until ctx is cancelled, then stops it.
// A transport setup failure is returned immediately.
func (p *Pipeline) Run(ctx context.Context) error {
	p.startTime.Store(time.Now().UnixMilli())
	if err := p.dispatcher.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	p.dispatcher.Stop()

	s := p.Stats()
	p.log.Info("pipeline finished",
		"delivered", s.Delivered, "empty", s.Empty,
		"bytes", s.Bytes, "write_errors", s.WriteErrors)
	return nil
}

func (p *Pipeline) deliver(kind pacer.TrackKind, ts uint64, sample []byte) {
	p.lastTs.Store(ts)
	if len(sample) == 0 {
		p.empty.Add(1)
		return
	}
	p.delivered.Add(1)
	p.bytes.Add(int64(len(sample)))

	if p.sink == nil {
		return
	}
	if err := p.sink.WriteSample(kind, ts, sample); err != nil {
		if p.writeErrors.Add(1) == 1 {
			p.log.Warn("sink write failed", "error", err)
		}
	}
}

// InitialUnits returns the source's bootstrap buffer for a consumer joining
// mid-stream.
func (p *Pipeline) InitialUnits() []byte {
	return p.src.InitialUnits()
}

// State returns the dispatcher state.
func (p *Pipeline) State() pacer.State {
	return p.dispatcher.State()
}

// Stats returns the delivery counters.
func (p *Pipeline) Stats() Stats {
	var uptime int64
	if started := p.startTime.Load(); started > 0 {
		uptime = time.Now().UnixMilli() - started
	}
	return Stats{
		Delivered:       p.delivered.Load(),
		Empty:           p.empty.Load(),
		Bytes:           p.bytes.Load(),
		WriteErrors:     p.writeErrors.Load(),
		LastTimestampUs: p.lastTs.Load(),
		UptimeMs:        uptime,
	}
}
