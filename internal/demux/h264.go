package demux

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// H.264 NAL unit type constants as defined in ITU-T H.264 Table 7-1.
const (
	NALTypeSlice = 1
	NALTypeIDR   = 5
	NALTypeSEI   = 6
	NALTypeSPS   = 7
	NALTypePPS   = 8
	NALTypeAUD   = 9
)

// NALUnit is one demuxed H.264 NAL unit. Data holds the unit's bytes
// including the header byte but without the start code, and is owned by
// the receiver.
type NALUnit struct {
	Type byte
	Data []byte
}

// NALType returns the 5-bit type code carried in a NAL header byte.
func NALType(header byte) byte {
	return header & 0x1F
}

// IsKeyframe returns true if the NAL type is an IDR slice (type 5).
func IsKeyframe(nalType byte) bool {
	return nalType == NALTypeIDR
}

// IsSPS returns true if the NAL type is SPS (type 7).
func IsSPS(nalType byte) bool {
	return nalType == NALTypeSPS
}

// IsPPS returns true if the NAL type is PPS (type 8).
func IsPPS(nalType byte) bool {
	return nalType == NALTypePPS
}

// IsParameterSet reports whether units of this type are exempt from the
// minimum size check: SEI, SPS and PPS are legitimately short.
func IsParameterSet(nalType byte) bool {
	return nalType == NALTypeSEI || nalType == NALTypeSPS || nalType == NALTypePPS
}

// TypeName returns a human readable name for an H.264 NAL type.
func TypeName(nalType byte) string {
	return h264.NALUType(nalType).String()
}

// SPSInfo summarizes an H.264 Sequence Parameter Set.
type SPSInfo struct {
	Width           int
	Height          int
	ProfileIDC      byte
	ConstraintFlags byte
	LevelIDC        byte
}

// CodecString returns the RFC 6381 codec parameter string (e.g. "avc1.42E01E").
func (s SPSInfo) CodecString() string {
	return fmt.Sprintf("avc1.%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}

var errSPSTooShort = errors.New("SPS data too short")

// ParseSPS extracts resolution and profile/level from an SPS NAL unit. The
// input is the raw NAL data including the header byte, without start code.
func ParseSPS(nalu []byte) (SPSInfo, error) {
	if len(nalu) < 4 {
		return SPSInfo{}, errSPSTooShort
	}

	var sps h264.SPS
	if err := sps.Unmarshal(nalu); err != nil {
		return SPSInfo{}, fmt.Errorf("parse SPS: %w", err)
	}

	return SPSInfo{
		Width:           sps.Width(),
		Height:          sps.Height(),
		ProfileIDC:      nalu[1],
		ConstraintFlags: nalu[2],
		LevelIDC:        nalu[3],
	}, nil
}

// ParseAnnexB splits a complete Annex B buffer into NAL units. Unlike
// [Demuxer] it treats the end of data as the end of the last unit, which
// suits self-contained buffers such as a single datagram. Both 3-byte
// (0x000001) and 4-byte (0x00000001) start codes are recognized.
func ParseAnnexB(data []byte) []NALUnit {
	var units []NALUnit

	start, scLen := findStartCode(data, 0)
	for start >= 0 {
		dataStart := start + scLen
		next, nextLen := findStartCode(data, dataStart)
		end := next
		if next < 0 {
			end = len(data)
		}
		if end > dataStart {
			units = append(units, NALUnit{
				Type: NALType(data[dataStart]),
				Data: data[dataStart:end],
			})
		}
		start, scLen = next, nextLen
	}

	return units
}

// findStartCode returns the position and length of the leftmost start code
// at or after from, or -1 if there is none. A 4-byte code wins over the
// 3-byte code that is its suffix because it begins one byte earlier.
func findStartCode(data []byte, from int) (int, int) {
	n := len(data)
	for i := from; i+2 < n; i++ {
		if data[i] != 0 || data[i+1] != 0 {
			continue
		}
		if data[i+2] == 1 {
			return i, 3
		}
		if i+3 < n && data[i+2] == 0 && data[i+3] == 1 {
			return i, 4
		}
	}
	return -1, 0
}
