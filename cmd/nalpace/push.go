package main

import (
	"fmt"
	"os"
	"time"

	"github.com/zsiec/nalpace/internal/ingest"
	"github.com/zsiec/nalpace/internal/publish"
)

type pushCmd struct {
	File        string `arg:"" type:"existingfile" help:"H.264 Annex B elementary stream to send."`
	Addr        string `default:"127.0.0.1:5000" help:"Ingest address (host:port)."`
	Transport   string `default:"udp" enum:"udp,srt,quic" help:"Transport (udp, srt, quic)."`
	FPS         int    `default:"30" help:"Frames sent per second."`
	Chunk       int    `help:"Maximum bytes per packet (default depends on transport)."`
	StreamID    string `name:"stream-id" help:"SRT stream ID announced to the server."`
	Fingerprint string `help:"Pinned SHA-256 fingerprint (hex) of the QUIC server certificate."`
	Loop        bool   `help:"Restart from the beginning at end of file."`
}

func (c *pushCmd) Run(rt *runtime) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	frames := publish.SplitFrames(data)
	if len(frames) == 0 {
		return fmt.Errorf("%s: no NAL units found", c.File)
	}

	conn, chunk, err := c.dial(rt)
	if err != nil {
		return err
	}
	defer conn.Close()
	if c.Chunk > 0 {
		chunk = c.Chunk
	}

	rt.log.Info("pushing", "file", c.File, "frames", len(frames), "transport", c.Transport,
		"addr", c.Addr, "fps", c.FPS, "loop", c.Loop)

	p := publish.New(conn, publish.Options{FPS: c.FPS, ChunkSize: chunk, Loop: c.Loop, Logger: rt.log})
	start := time.Now()
	err = p.Run(rt.ctx, frames)
	s := p.Stats()
	rt.log.Info("push finished", "frames", s.Frames, "chunks", s.Chunks, "bytes", s.Bytes,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return err
}

func (c *pushCmd) dial(rt *runtime) (publish.Conn, int, error) {
	t, err := ingest.ParseTransport(c.Transport)
	if err != nil {
		return nil, 0, err
	}
	switch t {
	case ingest.TransportSRT:
		conn, err := publish.DialSRT(c.Addr, c.StreamID)
		return conn, publish.DefaultSRTChunk, err
	case ingest.TransportQUIC:
		conn, err := publish.DialQUIC(rt.ctx, c.Addr, c.Fingerprint)
		return conn, publish.DefaultQUICChunk, err
	default:
		conn, err := publish.DialUDP(c.Addr)
		return conn, publish.DefaultUDPChunk, err
	}
}
