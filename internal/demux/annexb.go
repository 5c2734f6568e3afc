package demux

import (
	"log/slog"
	"sync/atomic"
)

const (
	// MaxBufferSize caps the bytes held while waiting for a unit boundary.
	// Exceeding it drops everything pending.
	MaxBufferSize = 1 << 20

	// MinUnitSize is the smallest slice/non-parameter-set unit accepted.
	// Shorter matches are almost always start-code emulation in garbage.
	MinUnitSize = 16

	// compactThreshold is how much consumed prefix may accumulate in the
	// arena before the live tail is moved back to offset zero.
	compactThreshold = 64 * 1024
)

// DemuxStats counts demuxer outcomes since creation.
type DemuxStats struct {
	UnitsEmitted   int64
	UnitsDiscarded int64
	Overflows      int64
	BytesDropped   int64
}

// Demuxer incrementally splits an Annex B byte stream that arrives in
// arbitrary chunks into NAL units. A unit is only emitted once the start
// code that follows it has arrived, so a unit's end is never guessed.
//
// The pending bytes live in an arena addressed by offsets: buf[head:] is
// unconsumed input and scan is the absolute offset where the search for
// the closing start code resumes. Emitted units are copies, so callers may
// retain them.
//
// A Demuxer is not safe for concurrent use.
type Demuxer struct {
	log  *slog.Logger
	buf  []byte
	head int
	scan int

	emitted   atomic.Int64
	discarded atomic.Int64
	overflows atomic.Int64
	dropped   atomic.Int64
}

// NewDemuxer creates a Demuxer. If log is nil, slog.Default() is used.
func NewDemuxer(log *slog.Logger) *Demuxer {
	if log == nil {
		log = slog.Default()
	}
	return &Demuxer{
		log: log.With("component", "annexb-demuxer"),
	}
}

// Write appends chunk to the pending input and returns every unit whose
// boundaries are now fully known, in stream order.
func (d *Demuxer) Write(chunk []byte) []NALUnit {
	d.compact()
	d.buf = append(d.buf, chunk...)

	units := d.drain(nil)

	if pending := len(d.buf) - d.head; pending > MaxBufferSize {
		d.overflows.Add(1)
		d.dropped.Add(int64(pending))
		d.log.Warn("accumulation buffer overflow, dropping pending data",
			"pending_bytes", pending, "limit", MaxBufferSize)
		d.Reset()
	}

	return units
}

// Flush is called at end of stream. It drains any delimited units and then
// emits the trailing unterminated unit, subject to the same size and type
// checks as every other unit. The demuxer is empty afterwards.
func (d *Demuxer) Flush() []NALUnit {
	units := d.drain(nil)

	start, scLen := findStartCode(d.buf, d.head)
	if start >= 0 && start+scLen < len(d.buf) {
		units = d.accept(units, d.buf[start+scLen:])
	}

	if rest := len(d.buf) - d.head; rest > 0 {
		d.log.Debug("flushed demuxer", "pending_bytes", rest, "units", len(units))
	}
	d.Reset()
	return units
}

// Reset discards all pending input.
func (d *Demuxer) Reset() {
	d.buf = d.buf[:0]
	d.head = 0
	d.scan = 0
}

// Buffered returns the number of pending, not yet emitted bytes.
func (d *Demuxer) Buffered() int {
	return len(d.buf) - d.head
}

// Stats returns a snapshot of the demuxer counters. It is safe to call
// concurrently with Write.
func (d *Demuxer) Stats() DemuxStats {
	return DemuxStats{
		UnitsEmitted:   d.emitted.Load(),
		UnitsDiscarded: d.discarded.Load(),
		Overflows:      d.overflows.Load(),
		BytesDropped:   d.dropped.Load(),
	}
}

func (d *Demuxer) drain(units []NALUnit) []NALUnit {
	for {
		start, scLen := findStartCode(d.buf, d.head)
		if start < 0 {
			// No start code yet. Keep the last bytes, which may be the
			// beginning of one split across chunks.
			if keep := len(d.buf) - 3; keep > d.head {
				d.dropped.Add(int64(keep - d.head))
				d.head = keep
			}
			d.scan = d.head
			return units
		}
		if start > d.head {
			d.dropped.Add(int64(start - d.head))
			d.head = start
		}

		dataStart := start + scLen
		from := max(dataStart, d.scan)
		next, _ := findStartCode(d.buf, from)
		if next < 0 {
			// Unit still arriving. A start code completed by the next
			// chunk begins at most three bytes before the current end.
			d.scan = max(dataStart, len(d.buf)-3)
			return units
		}

		units = d.accept(units, d.buf[dataStart:next])
		d.head = next
		d.scan = next
	}
}

// accept copies payload out of the arena and appends it to units unless it
// fails the size gate.
func (d *Demuxer) accept(units []NALUnit, payload []byte) []NALUnit {
	if len(payload) == 0 {
		return units
	}
	typ := NALType(payload[0])
	if len(payload) < MinUnitSize && !IsParameterSet(typ) {
		d.discarded.Add(1)
		return units
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	d.emitted.Add(1)
	return append(units, NALUnit{Type: typ, Data: data})
}

func (d *Demuxer) compact() {
	if d.head == 0 {
		return
	}
	if d.head < compactThreshold && d.head < len(d.buf)/2 {
		return
	}
	n := copy(d.buf, d.buf[d.head:])
	d.buf = d.buf[:n]
	d.scan -= d.head
	d.head = 0
}
