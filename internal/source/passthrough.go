package source

import (
	"context"
	"log/slog"

	"github.com/zsiec/nalpace/internal/ingest"
	"github.com/zsiec/nalpace/internal/queue"
)

// PassthroughSource queues each transport read as one opaque sample, with
// no reparsing. LoadNextSample never blocks: when nothing is queued the
// clock still advances and the current sample is empty.
type PassthroughSource struct {
	log    *slog.Logger
	recv   receiver
	queue  *queue.LockFree[[]byte]
	cursor cursor
}

var _ StreamSource = (*PassthroughSource)(nil)

// NewPassthrough creates a PassthroughSource. Zero FPS selects
// DefaultPassthroughFPS.
func NewPassthrough(opts Options) *PassthroughSource {
	log := opts.logger().With("component", "passthrough-source")
	s := &PassthroughSource{
		log:   log,
		recv:  receiver{log: log, listen: opts.Listen},
		queue: queue.NewLockFree[[]byte](),
	}
	s.cursor.durationUs = durationUs(opts.FPS, DefaultPassthroughFPS)
	return s
}

// Start binds the transport and begins ingestion.
func (s *PassthroughSource) Start(ctx context.Context) error {
	return s.recv.start(ctx, hooks{
		prepare: s.reset,
		handle:  s.queue.Push,
	})
}

func (s *PassthroughSource) reset() {
	for {
		if _, ok := s.queue.TryPop(); !ok {
			break
		}
	}
	s.cursor.reset()
}

// Stop closes the transport and waits for ingestion to finish.
func (s *PassthroughSource) Stop() {
	s.recv.stop()
}

// LoadNextSample makes one non-blocking dequeue attempt. A miss leaves the
// sample empty but still counts as one duration, so the timestamp moves on
// every tick.
func (s *PassthroughSource) LoadNextSample() {
	sample, _ := s.queue.TryPop()
	s.cursor.advance(sample)
}

func (s *PassthroughSource) Sample() []byte           { return s.cursor.current() }
func (s *PassthroughSource) SampleTimeUs() uint64     { return s.cursor.time() }
func (s *PassthroughSource) SampleDurationUs() uint64 { return s.cursor.durationUs }

// InitialUnits returns nil: raw samples are never parsed.
func (s *PassthroughSource) InitialUnits() []byte { return nil }

// Pending returns the approximate number of queued samples.
func (s *PassthroughSource) Pending() int {
	return s.queue.Len()
}

// IngestStats returns transport counters.
func (s *PassthroughSource) IngestStats() ingest.IngestStats {
	return s.recv.snapshot()
}
