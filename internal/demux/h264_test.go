package demux

import (
	"testing"
)

func TestParseAnnexB(t *testing.T) {
	t.Parallel()
	data := []byte{
		// 4-byte start code + SPS (NAL type 7)
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
		// 3-byte start code + PPS (NAL type 8)
		0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
		// 4-byte start code + IDR (NAL type 5)
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0xFF, 0xFE,
	}

	nalus := ParseAnnexB(data)
	if len(nalus) != 3 {
		t.Fatalf("expected 3 NAL units, got %d", len(nalus))
	}

	wantTypes := []byte{NALTypeSPS, NALTypePPS, NALTypeIDR}
	wantLens := []int{4, 4, 6}
	for i := range wantTypes {
		if nalus[i].Type != wantTypes[i] {
			t.Errorf("NALU[%d]: got type %d, want %d", i, nalus[i].Type, wantTypes[i])
		}
		if len(nalus[i].Data) != wantLens[i] {
			t.Errorf("NALU[%d]: got %d bytes, want %d", i, len(nalus[i].Data), wantLens[i])
		}
	}
}

func TestParseAnnexBTrailingZeroAbsorbedByStartCode(t *testing.T) {
	t.Parallel()
	// [... 06 AA BB] [00 00 00 01 41 ...]: the zero after BB opens a
	// 4-byte start code, so the SEI is three bytes long.
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x06, 0xAA, 0xBB, 0x00,
		0x00, 0x00, 0x01, 0x41, 0x9A,
	}

	nalus := ParseAnnexB(data)
	if len(nalus) != 2 {
		t.Fatalf("expected 2 NAL units, got %d", len(nalus))
	}
	if len(nalus[0].Data) != 3 {
		t.Errorf("SEI data length: got %d, want 3", len(nalus[0].Data))
	}
	if nalus[1].Type != NALTypeSlice {
		t.Errorf("expected Slice (1), got %d", nalus[1].Type)
	}
}

func TestParseAnnexBEmpty(t *testing.T) {
	t.Parallel()
	if nalus := ParseAnnexB(nil); nalus != nil {
		t.Errorf("expected nil for empty input, got %d units", len(nalus))
	}
	if nalus := ParseAnnexB([]byte{0x00, 0x01}); nalus != nil {
		t.Errorf("expected nil for too-short input, got %d units", len(nalus))
	}
	if nalus := ParseAnnexB([]byte{0x00, 0x00, 0x00, 0x01}); nalus != nil {
		t.Errorf("expected nil for bare start code, got %d units", len(nalus))
	}
}

func TestFindStartCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		from    int
		wantPos int
		wantLen int
	}{
		{name: "none", data: []byte{1, 2, 3, 4}, wantPos: -1},
		{name: "three byte", data: []byte{9, 0, 0, 1, 9}, wantPos: 1, wantLen: 3},
		{name: "four byte", data: []byte{9, 0, 0, 0, 1, 9}, wantPos: 1, wantLen: 4},
		{name: "leftmost wins", data: []byte{0, 0, 1, 0, 0, 0, 1}, wantPos: 0, wantLen: 3},
		{name: "search from offset", data: []byte{0, 0, 1, 0, 0, 0, 1}, from: 1, wantPos: 3, wantLen: 4},
		{name: "incomplete tail", data: []byte{7, 0, 0, 0}, wantPos: -1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			pos, n := findStartCode(tc.data, tc.from)
			if pos != tc.wantPos || (pos >= 0 && n != tc.wantLen) {
				t.Errorf("findStartCode = (%d, %d), want (%d, %d)", pos, n, tc.wantPos, tc.wantLen)
			}
		})
	}
}

func TestIsParameterSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		nalType byte
		want    bool
	}{
		{NALTypeSlice, false},
		{NALTypeIDR, false},
		{NALTypeSEI, true},
		{NALTypeSPS, true},
		{NALTypePPS, true},
		{NALTypeAUD, false},
	}

	for _, tc := range tests {
		if got := IsParameterSet(tc.nalType); got != tc.want {
			t.Errorf("IsParameterSet(%d) = %v, want %v", tc.nalType, got, tc.want)
		}
	}
}

func TestNALType(t *testing.T) {
	t.Parallel()
	for header, want := range map[byte]byte{0x67: 7, 0x68: 8, 0x65: 5, 0x41: 1, 0x06: 6, 0x09: 9} {
		if got := NALType(header); got != want {
			t.Errorf("NALType(0x%02X) = %d, want %d", header, got, want)
		}
	}
	if TypeName(NALTypeIDR) == "" {
		t.Error("TypeName returned empty string for IDR")
	}
}

func TestParseSPS256x192(t *testing.T) {
	t.Parallel()
	sps := []byte{
		0x67, 0x4d, 0x40, 0x1f, 0xb9, 0x08, 0x08, 0x0c,
		0xd8, 0x0b, 0x50, 0x10, 0x10, 0x14, 0x00, 0x00,
		0x0f, 0xa4, 0x00, 0x02, 0xee, 0x03, 0x81, 0x80,
		0x04, 0x93, 0xc0, 0x02, 0x49, 0xe8, 0xa0, 0xc0,
		0x3a, 0x8e, 0x18, 0xc9,
	}

	info, err := ParseSPS(sps)
	if err != nil {
		t.Fatalf("ParseSPS error: %v", err)
	}
	if info.Width != 256 {
		t.Errorf("width: got %d, want 256", info.Width)
	}
	if info.Height != 192 {
		t.Errorf("height: got %d, want 192", info.Height)
	}
	if got := info.CodecString(); got != "avc1.4D401F" {
		t.Errorf("codec: got %q, want %q", got, "avc1.4D401F")
	}
}

func TestParseSPSTooShort(t *testing.T) {
	t.Parallel()
	for _, in := range [][]byte{nil, {}, {0x67, 0x64, 0x00}} {
		if _, err := ParseSPS(in); err == nil {
			t.Errorf("ParseSPS(% X): expected error", in)
		}
	}
}
