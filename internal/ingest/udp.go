package ingest

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
)

// udpReadBufferSize fits the largest possible UDP payload.
const udpReadBufferSize = 65536

// ListenUDP returns a ListenFunc binding a UDP socket on all interfaces at
// port. Port 0 picks an ephemeral port.
func ListenUDP(port uint16) ListenFunc {
	return func(_ context.Context) (PacketConn, error) {
		pc, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(port)})
		if err != nil {
			return nil, fmt.Errorf("UDP listen on :%d: %w", port, err)
		}
		return &udpConn{pc: pc, buf: make([]byte, udpReadBufferSize)}, nil
	}
}

type udpConn struct {
	pc     *net.UDPConn
	buf    []byte
	remote atomic.Value
}

func (c *udpConn) ReadPacket(ctx context.Context) ([]byte, error) {
	for {
		n, addr, err := c.pc.ReadFromUDP(c.buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if n == 0 {
			continue
		}
		c.remote.Store(addr.String())

		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, nil
	}
}

func (c *udpConn) Close() error {
	return c.pc.Close()
}

func (c *udpConn) LocalAddr() string {
	return c.pc.LocalAddr().String()
}

func (c *udpConn) RemoteAddr() string {
	addr, _ := c.remote.Load().(string)
	return addr
}
