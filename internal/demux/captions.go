package demux

import (
	"log/slog"
	"sync/atomic"

	"github.com/zsiec/ccx"
)

// CaptionInspector decodes CEA-608 closed captions carried in H.264 SEI
// units (ATSC A/53 user data). It keeps one decoder per caption channel so
// that control codes spanning several units decode correctly.
type CaptionInspector struct {
	log    *slog.Logger
	decs   map[int]*ccx.CEA608Decoder
	frames atomic.Int64
}

// NewCaptionInspector creates a CaptionInspector for channels CC1-CC4. If
// log is nil, slog.Default() is used.
func NewCaptionInspector(log *slog.Logger) *CaptionInspector {
	if log == nil {
		log = slog.Default()
	}
	return &CaptionInspector{
		log: log.With("component", "caption-inspector"),
		decs: map[int]*ccx.CEA608Decoder{
			1: ccx.NewCEA608Decoder(),
			2: ccx.NewCEA608Decoder(),
			3: ccx.NewCEA608Decoder(),
			4: ccx.NewCEA608Decoder(),
		},
	}
}

// Inspect decodes the caption payload of one SEI unit (header byte
// included) and returns the caption text updates it produced. ptsUs stamps
// the returned frames. Units without caption data yield nil.
func (c *CaptionInspector) Inspect(sei []byte, ptsUs int64) []*ccx.CaptionFrame {
	if len(sei) < 2 || NALType(sei[0]) != NALTypeSEI {
		return nil
	}

	cd := ccx.ExtractCaptions(sei)
	if cd == nil {
		return nil
	}

	var frames []*ccx.CaptionFrame
	for _, pair := range cd.CC608Pairs {
		dec := c.decs[pair.Channel]
		if dec == nil {
			continue
		}
		text := dec.Decode(pair.Data[0], pair.Data[1])
		if text == "" {
			continue
		}
		frame := &ccx.CaptionFrame{PTS: ptsUs, Text: text, Channel: pair.Channel}
		frames = append(frames, frame)
		c.frames.Add(1)
		c.log.Debug("caption", "channel", pair.Channel, "text", text)
	}
	return frames
}

// Frames returns the number of caption updates decoded so far.
func (c *CaptionInspector) Frames() int64 {
	return c.frames.Load()
}
