package publish

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/nalpace/internal/demux"
)

const logInterval = 10 * time.Second

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// Frame is the Annex B bytes of one picture together with the parameter
// set and SEI units that precede it.
type Frame struct {
	Data     []byte
	Keyframe bool
}

// isPicture reports whether a NAL unit type carries slice data.
func isPicture(t byte) bool {
	return t >= demux.NALTypeSlice && t <= demux.NALTypeIDR
}

// SplitFrames groups an Annex B stream into frames. Units that do not
// carry a picture are attached to the next picture; trailing ones form a
// final frame.
func SplitFrames(stream []byte) []Frame {
	var frames []Frame
	var cur Frame
	for _, u := range demux.ParseAnnexB(stream) {
		cur.Data = append(cur.Data, startCode...)
		cur.Data = append(cur.Data, u.Data...)
		if demux.IsKeyframe(u.Type) {
			cur.Keyframe = true
		}
		if isPicture(u.Type) {
			frames = append(frames, cur)
			cur = Frame{}
		}
	}
	if len(cur.Data) > 0 {
		frames = append(frames, cur)
	}
	return frames
}

// Stats counts what a Publisher has sent.
type Stats struct {
	Frames int64
	Chunks int64
	Bytes  int64
	Loops  int64
}

// Options configures a Publisher.
type Options struct {
	// FPS is the frame rate frames are sent at.
	FPS int
	// ChunkSize bounds each Send.
	ChunkSize int
	// Loop restarts from the first frame after the last one.
	Loop bool
	// Logger receives progress. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Publisher paces frames onto a Conn.
type Publisher struct {
	log   *slog.Logger
	conn  Conn
	opts  Options
	sleep func(context.Context, time.Duration) error

	frames atomic.Int64
	chunks atomic.Int64
	bytes  atomic.Int64
	loops  atomic.Int64
}

// New creates a Publisher. Zero FPS means 30 and zero ChunkSize means
// DefaultUDPChunk.
func New(conn Conn, opts Options) *Publisher {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultUDPChunk
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		log:   log.With("component", "publisher"),
		conn:  conn,
		opts:  opts,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run sends frames until they are exhausted (or forever with Loop) or ctx
// is cancelled. Pacing follows a global clock so looping does not burst.
func (p *Publisher) Run(ctx context.Context, frames []Frame) error {
	if len(frames) == 0 {
		return errors.New("no frames to publish")
	}

	interval := time.Second / time.Duration(p.opts.FPS)
	start := time.Now()
	lastLog := start
	var sent int64

	for {
		for _, f := range frames {
			if err := p.sendFrame(f.Data); err != nil {
				return err
			}
			sent++
			p.frames.Add(1)

			if wait := time.Duration(sent)*interval - time.Since(start); wait > 0 {
				if err := p.sleep(ctx, wait); err != nil {
					return nil
				}
			} else if ctx.Err() != nil {
				return nil
			}

			if time.Since(lastLog) >= logInterval {
				s := p.Stats()
				p.log.Info("publishing", "frames", s.Frames, "bytes", s.Bytes, "loops", s.Loops)
				lastLog = time.Now()
			}
		}
		p.loops.Add(1)
		if !p.opts.Loop {
			return nil
		}
	}
}

func (p *Publisher) sendFrame(data []byte) error {
	for len(data) > 0 {
		n := min(p.opts.ChunkSize, len(data))
		if err := p.conn.Send(data[:n]); err != nil {
			return err
		}
		p.chunks.Add(1)
		p.bytes.Add(int64(n))
		data = data[n:]
	}
	return nil
}

// Stats returns the send counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Frames: p.frames.Load(),
		Chunks: p.chunks.Load(),
		Bytes:  p.bytes.Load(),
		Loops:  p.loops.Load(),
	}
}
