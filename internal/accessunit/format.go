package accessunit

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// lengthSize is the width of the big-endian length before every unit.
const lengthSize = 4

// ErrTruncated is returned by Split when a length prefix points past the end
// of the sample.
var ErrTruncated = errors.New("truncated length-prefixed unit")

// AppendLengthPrefixed appends nalu to dst preceded by its 4-byte
// big-endian length.
func AppendLengthPrefixed(dst, nalu []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(nalu)))
	return append(dst, nalu...)
}

// LengthPrefixed returns nalu framed with its 4-byte big-endian length.
func LengthPrefixed(nalu []byte) []byte {
	return AppendLengthPrefixed(make([]byte, 0, lengthSize+len(nalu)), nalu)
}

// Normalize converts a unit that may still carry its Annex B start code
// (3 or 4 bytes) into length-prefixed form.
func Normalize(nalu []byte) []byte {
	return LengthPrefixed(StripStartCode(nalu))
}

// StripStartCode removes a 3-byte or 4-byte Annex B start code prefix.
func StripStartCode(nalu []byte) []byte {
	if len(nalu) >= 4 && nalu[0] == 0 && nalu[1] == 0 && nalu[2] == 0 && nalu[3] == 1 {
		return nalu[4:]
	}
	if len(nalu) >= 3 && nalu[0] == 0 && nalu[1] == 0 && nalu[2] == 1 {
		return nalu[3:]
	}
	return nalu
}

// Join frames each non-empty unit and concatenates them into one access
// unit, preserving order.
func Join(nalus ...[]byte) []byte {
	var total int
	for _, nalu := range nalus {
		if len(nalu) > 0 {
			total += lengthSize + len(nalu)
		}
	}

	out := make([]byte, 0, total)
	for _, nalu := range nalus {
		if len(nalu) > 0 {
			out = AppendLengthPrefixed(out, nalu)
		}
	}
	return out
}

// Split walks a length-prefixed sample and returns its units. The returned
// slices alias sample.
func Split(sample []byte) ([][]byte, error) {
	var units [][]byte
	for len(sample) > 0 {
		if len(sample) < lengthSize {
			return units, fmt.Errorf("%w: %d trailing bytes", ErrTruncated, len(sample))
		}
		n := binary.BigEndian.Uint32(sample)
		sample = sample[lengthSize:]
		if uint64(n) > uint64(len(sample)) {
			return units, fmt.Errorf("%w: length %d, %d bytes left", ErrTruncated, n, len(sample))
		}
		units = append(units, sample[:n])
		sample = sample[n:]
	}
	return units, nil
}
