package ingest

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestParseTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Transport
		wantErr bool
	}{
		{in: "udp", want: TransportUDP},
		{in: "srt", want: TransportSRT},
		{in: "quic", want: TransportQUIC},
		{in: "", want: TransportUDP},
		{in: "tcp", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseTransport(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseTransport(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseTransport(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStatsRecordRead(t *testing.T) {
	t.Parallel()

	var s Stats
	s.Start()
	s.RecordRead(100)
	s.RecordRead(200)
	s.SetRemoteAddr("192.168.1.1:5000")

	stats := s.Snapshot()
	if stats.BytesReceived != 300 {
		t.Fatalf("BytesReceived = %d, want 300", stats.BytesReceived)
	}
	if stats.ReadCount != 2 {
		t.Fatalf("ReadCount = %d, want 2", stats.ReadCount)
	}
	if stats.RemoteAddr != "192.168.1.1:5000" {
		t.Fatalf("RemoteAddr = %q, want %q", stats.RemoteAddr, "192.168.1.1:5000")
	}
	if stats.ConnectedAt == 0 {
		t.Fatal("ConnectedAt is zero")
	}

	s.Start()
	if got := s.Snapshot(); got.BytesReceived != 0 || got.ReadCount != 0 {
		t.Fatalf("counters not reset by Start: %+v", got)
	}
}

func TestStatsUptime(t *testing.T) {
	t.Parallel()

	var s Stats
	if s.Snapshot().UptimeMs != 0 {
		t.Fatal("uptime before Start should be zero")
	}
	s.Start()
	time.Sleep(10 * time.Millisecond)
	if got := s.Snapshot().UptimeMs; got < 10 {
		t.Fatalf("UptimeMs = %d, expected at least 10", got)
	}
}

func TestUDPReadPacket(t *testing.T) {
	t.Parallel()

	conn, err := ListenUDP(0)(context.Background())
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer conn.Close()

	client, err := net.Dial("udp", loopback(t, conn.LocalAddr()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte{0x00, 0x00, 0x00, 0x01, 0x67}); err != nil {
		t.Fatalf("write: %v", err)
	}

	pkt, err := conn.ReadPacket(context.Background())
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if len(pkt) != 5 || pkt[4] != 0x67 {
		t.Fatalf("got % X", pkt)
	}
	if conn.RemoteAddr() == "" {
		t.Error("RemoteAddr not recorded")
	}
}

func TestUDPCloseUnblocksRead(t *testing.T) {
	t.Parallel()

	conn, err := ListenUDP(0)(context.Background())
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.ReadPacket(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	conn.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("ReadPacket error = %v, want net.ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadPacket not unblocked by Close")
	}
}

func TestUDPBindConflict(t *testing.T) {
	t.Parallel()

	first, err := ListenUDP(0)(context.Background())
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer first.Close()

	_, port, _ := net.SplitHostPort(first.LocalAddr())
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	if _, err := ListenUDP(uint16(p))(context.Background()); err == nil {
		t.Fatal("expected bind error on port already in use")
	}
}

// loopback rewrites a wildcard listen address to 127.0.0.1.
func loopback(t *testing.T, addr string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	return net.JoinHostPort("127.0.0.1", port)
}
