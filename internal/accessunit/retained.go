package accessunit

import (
	"log/slog"
	"sync"

	"github.com/zsiec/nalpace/internal/demux"
)

// Class is the retention class of a NAL unit.
type Class int

// Retention classes.
const (
	ClassOther Class = iota
	ClassSPS
	ClassPPS
	ClassKeyframe
)

func (c Class) String() string {
	switch c {
	case ClassSPS:
		return "sps"
	case ClassPPS:
		return "pps"
	case ClassKeyframe:
		return "keyframe"
	default:
		return "other"
	}
}

// Classify maps an H.264 NAL type to its retention class.
func Classify(nalType byte) Class {
	switch {
	case demux.IsSPS(nalType):
		return ClassSPS
	case demux.IsPPS(nalType):
		return ClassPPS
	case demux.IsKeyframe(nalType):
		return ClassKeyframe
	default:
		return ClassOther
	}
}

// Retained holds the most recent SPS, PPS and IDR unit of one stream. Each
// is replaced wholesale when a newer unit of its class arrives. Retained has
// its own lock so bootstrap queries never wait behind the sample queue.
type Retained struct {
	log *slog.Logger

	mu      sync.RWMutex
	sps     []byte
	pps     []byte
	idr     []byte
	spsInfo demux.SPSInfo
}

// NewRetained creates an empty Retained. If log is nil, slog.Default() is used.
func NewRetained(log *slog.Logger) *Retained {
	if log == nil {
		log = slog.Default()
	}
	return &Retained{log: log.With("component", "retained")}
}

// Update classifies unit and, for SPS, PPS and IDR units, replaces the
// retained copy of that class.
func (r *Retained) Update(unit demux.NALUnit) Class {
	class := Classify(unit.Type)
	if class == ClassOther {
		return class
	}

	data := make([]byte, len(unit.Data))
	copy(data, unit.Data)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch class {
	case ClassSPS:
		r.sps = data
		r.describeSPS(data)
	case ClassPPS:
		r.pps = data
	case ClassKeyframe:
		r.idr = data
	}
	return class
}

// describeSPS logs the stream parameters whenever they change. Must be
// called with r.mu held.
func (r *Retained) describeSPS(sps []byte) {
	info, err := demux.ParseSPS(sps)
	if err != nil {
		r.log.Debug("unparseable SPS", "bytes", len(sps), "error", err)
		return
	}
	if info == r.spsInfo {
		return
	}
	r.spsInfo = info
	r.log.Info("stream parameters",
		"codec", info.CodecString(),
		"width", info.Width,
		"height", info.Height)
}

// Format packages unit as a length-prefixed access unit. An IDR unit is
// preceded by the retained SPS and PPS, when known, so that every keyframe
// sample is independently decodable.
func (r *Retained) Format(unit demux.NALUnit) []byte {
	if !demux.IsKeyframe(unit.Type) {
		return LengthPrefixed(unit.Data)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return Join(r.sps, r.pps, unit.Data)
}

// Process retains unit if needed and returns its formatted access unit.
func (r *Retained) Process(unit demux.NALUnit) []byte {
	r.Update(unit)
	return r.Format(unit)
}

// InitialUnits returns the retained SPS, PPS and IDR, in that order and
// each length-prefixed, skipping any not seen yet. It returns nil before
// the first of them arrives.
func (r *Retained) InitialUnits() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := Join(r.sps, r.pps, r.idr)
	if len(out) == 0 {
		return nil
	}
	return out
}

// SPS returns a copy of the retained SPS, or nil.
func (r *Retained) SPS() []byte { return r.get(&r.sps) }

// PPS returns a copy of the retained PPS, or nil.
func (r *Retained) PPS() []byte { return r.get(&r.pps) }

// Keyframe returns a copy of the retained IDR unit, or nil.
func (r *Retained) Keyframe() []byte { return r.get(&r.idr) }

// SPSInfo returns the summary of the latest parseable SPS.
func (r *Retained) SPSInfo() demux.SPSInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.spsInfo
}

// Reset forgets all retained units.
func (r *Retained) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sps, r.pps, r.idr = nil, nil, nil
	r.spsInfo = demux.SPSInfo{}
}

func (r *Retained) get(field *[]byte) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if *field == nil {
		return nil
	}
	out := make([]byte, len(*field))
	copy(out, *field)
	return out
}
