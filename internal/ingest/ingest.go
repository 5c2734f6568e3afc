// Package ingest abstracts the datagram transports a stream's raw bytes
// arrive on and keeps connection-level statistics for them.
package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Transport identifies the network protocol an ingest listener speaks.
type Transport string

// Supported ingest transports.
const (
	TransportUDP  Transport = "udp"
	TransportSRT  Transport = "srt"
	TransportQUIC Transport = "quic"
)

// ParseTransport validates a transport name.
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(s); t {
	case TransportUDP, TransportSRT, TransportQUIC:
		return t, nil
	case "":
		return TransportUDP, nil
	default:
		return "", fmt.Errorf("unknown ingest transport %q", s)
	}
}

// PacketConn delivers the payloads of an unreliable datagram transport in
// arrival order. Each ReadPacket returns one transport read, owned by the
// caller. Close unblocks a pending ReadPacket, which then returns an error.
type PacketConn interface {
	ReadPacket(ctx context.Context) ([]byte, error)
	Close() error
	LocalAddr() string
	RemoteAddr() string
}

// ListenFunc binds a transport and returns its PacketConn. Bind failures are
// returned rather than logged so that callers can surface them.
type ListenFunc func(ctx context.Context) (PacketConn, error)

// IngestStats captures connection-level metrics for an ingest stream.
type IngestStats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Stats accumulates ingest counters. All methods are safe for concurrent use.
type Stats struct {
	startedAt     atomic.Int64
	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

// Start resets the counters and marks the start of a connection.
func (s *Stats) Start() {
	s.startedAt.Store(time.Now().UnixMilli())
	s.bytesReceived.Store(0)
	s.readCount.Store(0)
	s.remoteAddr.Store("")
}

// RecordRead increments the byte and read counters, called by the ingest
// loop after each successful transport read.
func (s *Stats) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the remote address of the sender for diagnostics.
func (s *Stats) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() IngestStats {
	addr, _ := s.remoteAddr.Load().(string)
	started := s.startedAt.Load()
	var uptime int64
	if started > 0 {
		uptime = time.Now().UnixMilli() - started
	}
	return IngestStats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   started,
		UptimeMs:      uptime,
		RemoteAddr:    addr,
	}
}
