package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zsiec/nalpace/internal/accessunit"
	"github.com/zsiec/nalpace/internal/demux"
	"github.com/zsiec/nalpace/internal/pacer"
	"github.com/zsiec/nalpace/internal/pipeline"
)

// LogSink logs a one-line summary of every sample at debug level.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a LogSink. If log is nil, slog.Default() is used.
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log.With("component", "log-sink")}
}

// WriteSample implements pipeline.Sink.
func (s *LogSink) WriteSample(kind pacer.TrackKind, timestampUs uint64, sample []byte) error {
	if !s.log.Enabled(context.Background(), slog.LevelDebug) {
		return nil
	}
	s.log.Debug("sample",
		"track", kind.String(),
		"ts_us", timestampUs,
		"bytes", len(sample),
		"units", Describe(sample))
	return nil
}

// Describe lists the NAL unit types and sizes in a sample. Length-prefixed
// samples are walked directly; anything else is parsed as Annex B.
func Describe(sample []byte) string {
	if len(sample) == 0 {
		return ""
	}

	units, err := accessunit.Split(sample)
	if err != nil {
		units = annexBUnits(sample)
	}
	if len(units) == 0 {
		return "opaque"
	}

	parts := make([]string, 0, len(units))
	for _, u := range units {
		if len(u) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s(%d)", demux.TypeName(demux.NALType(u[0])), len(u)))
	}
	return strings.Join(parts, " ")
}

func annexBUnits(b []byte) [][]byte {
	var units [][]byte
	for _, u := range demux.ParseAnnexB(b) {
		units = append(units, u.Data)
	}
	return units
}

// Multi fans each sample out to every sink in order. All sinks see the
// sample even when an earlier one fails.
type Multi []pipeline.Sink

// WriteSample implements pipeline.Sink.
func (m Multi) WriteSample(kind pacer.TrackKind, timestampUs uint64, sample []byte) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteSample(kind, timestampUs, sample); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
