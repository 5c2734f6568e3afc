package source

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/zsiec/nalpace/internal/accessunit"
	"github.com/zsiec/nalpace/internal/demux"
	"github.com/zsiec/nalpace/internal/ingest"
	"github.com/zsiec/nalpace/internal/queue"
)

// AnnexBSource reparses the incoming byte stream into NAL units, keeps the
// latest SPS, PPS and IDR, and queues one length-prefixed access unit per
// unit. LoadNextSample blocks until a sample is queued or the source stops.
type AnnexBSource struct {
	log      *slog.Logger
	recv     receiver
	demux    *demux.Demuxer
	retained *accessunit.Retained
	captions *demux.CaptionInspector
	mailbox  *queue.Mailbox[[]byte]
	cursor   cursor
	queued   atomic.Uint64
}

var _ StreamSource = (*AnnexBSource)(nil)

// NewAnnexB creates an AnnexBSource. Zero FPS selects DefaultAnnexBFPS.
func NewAnnexB(opts Options) *AnnexBSource {
	log := opts.logger().With("component", "annexb-source")
	s := &AnnexBSource{
		log:      log,
		recv:     receiver{log: log, listen: opts.Listen},
		demux:    demux.NewDemuxer(log),
		retained: accessunit.NewRetained(log),
		captions: demux.NewCaptionInspector(log),
		mailbox:  queue.NewMailbox[[]byte](),
	}
	s.cursor.durationUs = durationUs(opts.FPS, DefaultAnnexBFPS)
	return s
}

// Start binds the transport and begins ingestion.
func (s *AnnexBSource) Start(ctx context.Context) error {
	return s.recv.start(ctx, hooks{
		prepare: s.reset,
		handle:  s.handlePacket,
		finish:  s.flush,
	})
}

func (s *AnnexBSource) reset() {
	s.mailbox.Reopen()
	s.cursor.reset()
	s.demux.Reset()
	s.retained.Reset()
	s.queued.Store(0)
}

// Stop closes the transport, flushes a final complete unit and wakes a
// blocked LoadNextSample.
func (s *AnnexBSource) Stop() {
	s.recv.stop()
	s.mailbox.Close()
}

func (s *AnnexBSource) handlePacket(pkt []byte) {
	for _, u := range s.demux.Write(pkt) {
		s.enqueue(u)
	}
}

func (s *AnnexBSource) flush() {
	for _, u := range s.demux.Flush() {
		s.enqueue(u)
	}
}

func (s *AnnexBSource) enqueue(u demux.NALUnit) {
	n := s.queued.Add(1)
	if u.Type == demux.NALTypeSEI {
		s.captions.Inspect(u.Data, int64(n*s.cursor.durationUs))
	}
	s.mailbox.Push(s.retained.Process(u))
}

// LoadNextSample blocks until a sample is queued. If the source stops with
// nothing queued, the current sample is cleared and the clock is unchanged.
func (s *AnnexBSource) LoadNextSample() {
	sample, state := s.mailbox.Receive()
	if state == queue.Closed {
		s.cursor.clear()
		return
	}
	s.cursor.advance(sample)
}

func (s *AnnexBSource) Sample() []byte           { return s.cursor.current() }
func (s *AnnexBSource) SampleTimeUs() uint64     { return s.cursor.time() }
func (s *AnnexBSource) SampleDurationUs() uint64 { return s.cursor.durationUs }

// InitialUnits returns the latest SPS, PPS and IDR, length-prefixed.
func (s *AnnexBSource) InitialUnits() []byte {
	return s.retained.InitialUnits()
}

// Pending returns the number of queued samples.
func (s *AnnexBSource) Pending() int {
	return s.mailbox.Len()
}

// IngestStats returns transport counters.
func (s *AnnexBSource) IngestStats() ingest.IngestStats {
	return s.recv.snapshot()
}

// DemuxStats returns demuxer counters.
func (s *AnnexBSource) DemuxStats() demux.DemuxStats {
	return s.demux.Stats()
}

// StreamInfo summarizes the latest SPS.
func (s *AnnexBSource) StreamInfo() demux.SPSInfo {
	return s.retained.SPSInfo()
}

// CaptionFrames returns the number of caption updates seen in SEI units.
func (s *AnnexBSource) CaptionFrames() int64 {
	return s.captions.Frames()
}
