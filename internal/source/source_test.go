package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/zsiec/nalpace/internal/ingest/ingesttest"
)

var (
	startCode4 = []byte{0x00, 0x00, 0x00, 0x01}
	startCode3 = []byte{0x00, 0x00, 0x01}
)

func makeUnit(header byte, size int, fill byte) []byte {
	u := bytes.Repeat([]byte{fill}, size)
	u[0] = header
	return u
}

func prefixed(units ...[]byte) []byte {
	var out []byte
	for _, u := range units {
		out = binary.BigEndian.AppendUint32(out, uint32(len(u)))
		out = append(out, u...)
	}
	return out
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestParseVariant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Variant
		wantErr bool
	}{
		{in: "", want: VariantAnnexB},
		{in: "annexb", want: VariantAnnexB},
		{in: "passthrough", want: VariantPassthrough},
		{in: "raw", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseVariant(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseVariant(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseVariant(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewSelectsVariant(t *testing.T) {
	t.Parallel()

	src, err := New(VariantAnnexB, Options{})
	if err != nil {
		t.Fatalf("New(annexb): %v", err)
	}
	if _, ok := src.(*AnnexBSource); !ok {
		t.Errorf("New(annexb) returned %T", src)
	}

	src, err = New(VariantPassthrough, Options{})
	if err != nil {
		t.Fatalf("New(passthrough): %v", err)
	}
	if _, ok := src.(*PassthroughSource); !ok {
		t.Errorf("New(passthrough) returned %T", src)
	}

	if _, err := New("bogus", Options{}); err == nil {
		t.Error("New(bogus): expected error")
	}
}

func TestSampleDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  StreamSource
		want uint64
	}{
		{name: "annexb default", src: NewAnnexB(Options{}), want: 33_333},
		{name: "passthrough default", src: NewPassthrough(Options{}), want: 66_666},
		{name: "annexb 25fps", src: NewAnnexB(Options{FPS: 25}), want: 40_000},
		{name: "passthrough 60fps", src: NewPassthrough(Options{FPS: 60}), want: 16_666},
	}

	for _, tc := range tests {
		if got := tc.src.SampleDurationUs(); got != tc.want {
			t.Errorf("%s: SampleDurationUs = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestStartReportsTransportFailure(t *testing.T) {
	t.Parallel()

	for _, src := range []StreamSource{
		NewAnnexB(Options{Listen: ingesttest.FailingListen(ingesttest.ErrBind)}),
		NewPassthrough(Options{Listen: ingesttest.FailingListen(ingesttest.ErrBind)}),
	} {
		err := src.Start(context.Background())
		if !errors.Is(err, ingesttest.ErrBind) {
			t.Errorf("%T.Start = %v, want %v", src, err, ingesttest.ErrBind)
		}
		src.Stop()
	}
}

func TestStartWithoutTransport(t *testing.T) {
	t.Parallel()
	if err := NewAnnexB(Options{}).Start(context.Background()); err == nil {
		t.Fatal("expected error without a transport")
	}
}

func TestStartTwice(t *testing.T) {
	t.Parallel()

	pipe := ingesttest.NewPipe(4)
	src := NewPassthrough(Options{Listen: pipe.Listen()})
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	if err := src.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	t.Parallel()

	pipe := ingesttest.NewPipe(4)
	src := NewAnnexB(Options{Listen: pipe.Listen()})

	src.Stop() // before Start
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.Stop()
	src.Stop()

	if !pipe.Closed() {
		t.Error("transport not closed by Stop")
	}
}
