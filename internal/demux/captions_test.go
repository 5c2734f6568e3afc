package demux

import "testing"

func TestCaptionInspectorIgnoresNonSEI(t *testing.T) {
	t.Parallel()

	c := NewCaptionInspector(nil)
	if frames := c.Inspect([]byte{0x65, 0x88, 0x84, 0x00}, 0); frames != nil {
		t.Fatalf("got %d frames for IDR unit, want none", len(frames))
	}
	if frames := c.Inspect([]byte{0x06}, 0); frames != nil {
		t.Fatalf("got %d frames for truncated SEI, want none", len(frames))
	}
}

func TestCaptionInspectorSEIWithoutCaptions(t *testing.T) {
	t.Parallel()

	// user_data_unregistered SEI (payload type 5) carries no A/53 captions.
	sei := []byte{0x06, 0x05, 0x02, 0xAA, 0xBB, 0x80}

	c := NewCaptionInspector(nil)
	if frames := c.Inspect(sei, 1000); len(frames) != 0 {
		t.Fatalf("got %d frames, want 0", len(frames))
	}
	if c.Frames() != 0 {
		t.Errorf("Frames = %d, want 0", c.Frames())
	}
}

// oddParity sets the high bit so b has odd parity, as CEA-608 requires.
func oddParity(b byte) byte {
	b &= 0x7F
	ones := 0
	for v := b; v != 0; v >>= 1 {
		ones += int(v & 1)
	}
	if ones%2 == 0 {
		return b | 0x80
	}
	return b
}

// captionSEI builds an SEI unit carrying ATSC A/53 cc_data with the given
// field 1 byte pairs.
func captionSEI(pairs ...[2]byte) []byte {
	a53 := []byte{
		0xB5, 0x00, 0x31, // United States, ATSC
		'G', 'A', '9', '4',
		0x03,                    // cc_data
		0x40 | byte(len(pairs)), // process_cc_data_flag, cc_count
		0xFF,
	}
	for _, p := range pairs {
		a53 = append(a53, 0xFC, oddParity(p[0]), oddParity(p[1]))
	}
	a53 = append(a53, 0xFF)

	sei := []byte{NALTypeSEI, 0x04, byte(len(a53))}
	sei = append(sei, a53...)
	return append(sei, 0x80)
}

func TestCaptionInspectorDecodesRollUp(t *testing.T) {
	t.Parallel()

	sei := captionSEI(
		[2]byte{0x14, 0x25}, // RU2 on CC1
		[2]byte{'H', 'I'},
		[2]byte{'!', 0x00},
	)

	c := NewCaptionInspector(nil)
	frames := c.Inspect(sei, 40000)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	for i, want := range []string{"HI", "HI!"} {
		if frames[i].Text != want {
			t.Errorf("frame %d: got %q, want %q", i, frames[i].Text, want)
		}
		if frames[i].Channel != 1 {
			t.Errorf("frame %d: channel %d, want 1", i, frames[i].Channel)
		}
		if frames[i].PTS != 40000 {
			t.Errorf("frame %d: PTS %d, want 40000", i, frames[i].PTS)
		}
	}
	if c.Frames() != 2 {
		t.Errorf("Frames = %d, want 2", c.Frames())
	}

	// Unchanged text yields nothing new.
	if frames := c.Inspect(captionSEI([2]byte{0x14, 0x2A}), 80000); len(frames) != 0 {
		t.Errorf("got %d frames for a no-op control code, want 0", len(frames))
	}
}
