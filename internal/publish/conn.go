package publish

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"

	quicgo "github.com/quic-go/quic-go"
	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/nalpace/internal/ingest/quic"
)

// Default chunk sizes per transport. SRT live mode carries at most 1316
// bytes per message and QUIC datagrams must fit in one packet.
const (
	DefaultUDPChunk  = 1400
	DefaultSRTChunk  = 1316
	DefaultQUICChunk = 1100
)

// Conn sends chunks of the stream to a server.
type Conn interface {
	Send(chunk []byte) error
	Close() error
}

type udpConn struct {
	conn net.Conn
}

// DialUDP connects to a UDP ingest at addr.
func DialUDP(addr string) (Conn, error) {
	c, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("UDP dial %s: %w", addr, err)
	}
	return &udpConn{conn: c}, nil
}

func (c *udpConn) Send(chunk []byte) error {
	_, err := c.conn.Write(chunk)
	return err
}

func (c *udpConn) Close() error { return c.conn.Close() }

type srtConn struct {
	conn *srtgo.Conn
}

// DialSRT connects to an SRT ingest at addr announcing streamID.
func DialSRT(addr, streamID string) (Conn, error) {
	cfg := srtgo.DefaultConfig()
	cfg.StreamID = streamID
	c, err := srtgo.Dial(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("SRT dial %s: %w", addr, err)
	}
	return &srtConn{conn: c}, nil
}

func (c *srtConn) Send(chunk []byte) error {
	_, err := c.conn.Write(chunk)
	return err
}

func (c *srtConn) Close() error { return c.conn.Close() }

type quicConn struct {
	conn quicgo.Connection
}

// DialQUIC connects to a QUIC ingest at addr. The server certificate is
// accepted only if its SHA-256 fingerprint matches fingerprint (hex); an
// empty fingerprint accepts any certificate.
func DialQUIC(ctx context.Context, addr, fingerprint string) (Conn, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{quic.ALPN},
	}
	if fingerprint != "" {
		tlsConf.VerifyPeerCertificate = pinFingerprint(fingerprint)
	}

	c, err := quicgo.DialAddr(ctx, addr, tlsConf, &quicgo.Config{EnableDatagrams: true})
	if err != nil {
		return nil, fmt.Errorf("QUIC dial %s: %w", addr, err)
	}
	if !c.ConnectionState().SupportsDatagrams {
		c.CloseWithError(0, "datagrams required")
		return nil, errors.New("QUIC server does not support datagrams")
	}
	return &quicConn{conn: c}, nil
}

func pinFingerprint(want string) func([][]byte, [][]*x509.Certificate) error {
	want = strings.ToLower(strings.ReplaceAll(want, ":", ""))
	return func(raw [][]byte, _ [][]*x509.Certificate) error {
		if len(raw) == 0 {
			return errors.New("no server certificate")
		}
		sum := sha256.Sum256(raw[0])
		if got := hex.EncodeToString(sum[:]); got != want {
			return fmt.Errorf("certificate fingerprint %s does not match %s", got, want)
		}
		return nil
	}
}

func (c *quicConn) Send(chunk []byte) error {
	return c.conn.SendDatagram(chunk)
}

func (c *quicConn) Close() error {
	return c.conn.CloseWithError(0, "")
}
