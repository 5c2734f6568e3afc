// Package source turns an ingest transport into a paced sample source.
//
// A [StreamSource] owns an ingestion goroutine that reads the transport and
// fills a sample queue, and a cursor the pacing dispatcher advances one
// sample at a time. Two strategies are provided: [AnnexBSource] reparses the
// byte stream into length-prefixed access units, and [PassthroughSource]
// forwards each transport read untouched.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/nalpace/internal/ingest"
)

// Default frame rates per variant.
const (
	DefaultAnnexBFPS      = 30
	DefaultPassthroughFPS = 15
)

// ErrAlreadyStarted is returned by Start on a running source.
var ErrAlreadyStarted = errors.New("source already started")

var errNoTransport = errors.New("source has no transport")

// StreamSource is what the pacing dispatcher consumes.
type StreamSource interface {
	// Start binds the transport and starts ingestion. A bind failure is
	// returned and leaves the source inert.
	Start(ctx context.Context) error
	// Stop closes the transport and waits for ingestion to finish. It is
	// idempotent and unblocks a pending LoadNextSample.
	Stop()
	// LoadNextSample advances the cursor to the next queued sample.
	LoadNextSample()
	// Sample returns the current sample, possibly empty.
	Sample() []byte
	// SampleTimeUs returns the synthetic timestamp of the current sample.
	SampleTimeUs() uint64
	// SampleDurationUs returns the fixed duration of one sample.
	SampleDurationUs() uint64
	// InitialUnits returns the bootstrap buffer for a new consumer, or nil.
	InitialUnits() []byte
}

// Options configures a source.
type Options struct {
	// Listen binds the ingest transport.
	Listen ingest.ListenFunc
	// FPS is the target frame rate. Zero selects the variant default.
	FPS int
	// Logger receives diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// durationUs derives the sample duration from a frame rate.
func durationUs(fps, def int) uint64 {
	if fps <= 0 {
		fps = def
	}
	return max(1, uint64(1_000_000/fps))
}

// Variant selects a source strategy.
type Variant string

// Source variants.
const (
	VariantAnnexB      Variant = "annexb"
	VariantPassthrough Variant = "passthrough"
)

// ParseVariant validates a variant name. The empty string selects
// VariantAnnexB.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantAnnexB, VariantPassthrough:
		return v, nil
	case "":
		return VariantAnnexB, nil
	default:
		return "", fmt.Errorf("unknown source variant %q", s)
	}
}

// New constructs the source for variant v.
func New(v Variant, opts Options) (StreamSource, error) {
	switch v {
	case VariantAnnexB, "":
		return NewAnnexB(opts), nil
	case VariantPassthrough:
		return NewPassthrough(opts), nil
	default:
		return nil, fmt.Errorf("unknown source variant %q", v)
	}
}

// cursor is the pacing state a source exposes: the current sample and its
// synthetic timestamp.
type cursor struct {
	mu         sync.Mutex
	sample     []byte
	timeUs     uint64
	durationUs uint64
}

func (c *cursor) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sample = nil
	c.timeUs = 0
}

// advance makes sample current and moves the clock forward one duration.
// A nil sample advances the clock with nothing to deliver.
func (c *cursor) advance(sample []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sample = sample
	c.timeUs += c.durationUs
}

// clear drops the current sample without moving the clock.
func (c *cursor) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sample = nil
}

func (c *cursor) current() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sample
}

func (c *cursor) time() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeUs
}
