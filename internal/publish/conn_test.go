package publish

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/zsiec/nalpace/internal/certs"
	"github.com/zsiec/nalpace/internal/ingest"
	"github.com/zsiec/nalpace/internal/ingest/quic"
)

func loopback(t *testing.T, addr string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", addr, err)
	}
	return net.JoinHostPort("127.0.0.1", port)
}

func TestDialUDPDelivers(t *testing.T) {
	t.Parallel()

	pc, err := ingest.ListenUDP(0)(context.Background())
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer pc.Close()

	conn, err := DialUDP(loopback(t, pc.LocalAddr()))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	want := annexB(unit(0x65, 64))
	if err := conn.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, err := pc.ReadPacket(context.Background())
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestDialQUICPinsFingerprint(t *testing.T) {
	t.Parallel()

	cert, err := certs.Generate(time.Hour)
	if err != nil {
		t.Fatalf("certs.Generate: %v", err)
	}
	pc, err := quic.Listen("127.0.0.1:0", cert, nil)(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer pc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wrong := []byte(cert.FingerprintHex())
	if wrong[0] == '0' {
		wrong[0] = '1'
	} else {
		wrong[0] = '0'
	}
	if _, err := DialQUIC(ctx, pc.LocalAddr(), string(wrong)); err == nil {
		t.Fatal("expected fingerprint mismatch")
	}

	conn, err := DialQUIC(ctx, pc.LocalAddr(), cert.FingerprintHex())
	if err != nil {
		t.Fatalf("DialQUIC: %v", err)
	}
	defer conn.Close()

	want := annexB(unit(0x41, 32))
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if conn.Send(want) != nil {
					return
				}
			}
		}
	}()

	got, err := pc.ReadPacket(ctx)
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestPinFingerprintNormalizes(t *testing.T) {
	t.Parallel()

	cert, err := certs.Generate(time.Hour)
	if err != nil {
		t.Fatalf("certs.Generate: %v", err)
	}
	raw := [][]byte{cert.TLSCert.Certificate[0]}

	hex := cert.FingerprintHex()
	var colons bytes.Buffer
	for i := 0; i < len(hex); i += 2 {
		if i > 0 {
			colons.WriteByte(':')
		}
		colons.WriteString(hex[i : i+2])
	}
	if err := pinFingerprint(string(bytes.ToUpper(colons.Bytes())))(raw, nil); err != nil {
		t.Errorf("colon separated upper case fingerprint rejected: %v", err)
	}
	if err := pinFingerprint(hex)(nil, nil); err == nil {
		t.Error("expected error without a certificate")
	}
}
