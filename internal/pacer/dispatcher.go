package pacer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/nalpace/internal/source"
)

// TrackKind identifies the track a sample belongs to.
type TrackKind int

// Track kinds.
const (
	TrackVideo TrackKind = iota
)

func (k TrackKind) String() string {
	if k == TrackVideo {
		return "video"
	}
	return fmt.Sprintf("track(%d)", int(k))
}

// SampleHandler consumes paced samples. sample may be empty when nothing
// was available for a tick. The handler runs on the tick path, so a slow
// handler delays later ticks. It may call Stop.
type SampleHandler func(kind TrackKind, timestampUs uint64, sample []byte)

// State is the lifecycle state of a Dispatcher.
type State int

// Dispatcher states.
const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNotIdle is returned by Start when the dispatcher is already running.
var ErrNotIdle = errors.New("dispatcher is not idle")

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// Dispatcher paces a StreamSource.
type Dispatcher struct {
	log   *slog.Logger
	src   source.StreamSource
	clock Clock

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	// loading is held while a tick advances the source, so a restart
	// cannot overlap a load left over from the previous run.
	loading sync.Mutex

	mu        sync.Mutex
	state     State
	startTime time.Time
	handler   SampleHandler
	stopCh    chan struct{}

	// queue identifies the current run; ticks of an earlier run compare
	// unequal and exit.
	queue *DispatchQueue

	// inHandler is the queue of the tick whose handler is running.
	inHandler *DispatchQueue

	ticks atomic.Int64
}

// New creates an idle Dispatcher for src. If log is nil, slog.Default() is
// used.
func New(src source.StreamSource, log *slog.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		log:   log.With("component", "dispatcher"),
		src:   src,
		clock: systemClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnSample registers the consumer. It may be called at any time; the
// change takes effect on the next tick.
func (d *Dispatcher) OnSample(h SampleHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Start records the start time, starts the source and schedules the first
// tick. A source start failure is returned and leaves the dispatcher idle.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return ErrNotIdle
	}
	d.state = StateRunning
	d.startTime = d.clock.Now()
	d.stopCh = make(chan struct{})
	d.queue = NewDispatchQueue()
	q := d.queue
	d.mu.Unlock()

	d.loading.Lock()
	d.loading.Unlock()

	if err := d.src.Start(ctx); err != nil {
		d.mu.Lock()
		d.state = StateIdle
		close(d.stopCh)
		d.mu.Unlock()
		q.Close()
		return fmt.Errorf("start source: %w", err)
	}

	d.log.Info("started", "sample_duration_us", d.src.SampleDurationUs())
	d.schedule(q)
	return nil
}

func (d *Dispatcher) schedule(q *DispatchQueue) {
	q.Submit(func() { d.tick(q) })
}

// current reports whether q belongs to a running dispatcher. d.mu must be
// held.
func (d *Dispatcher) current(q *DispatchQueue) bool {
	return d.state == StateRunning && d.queue == q
}

func (d *Dispatcher) tick(q *DispatchQueue) {
	d.mu.Lock()
	if !d.current(q) {
		d.mu.Unlock()
		return
	}

	due := time.Duration(d.src.SampleTimeUs()) * time.Microsecond
	if wait := due - d.clock.Now().Sub(d.startTime); wait > 0 {
		stopCh := d.stopCh
		d.mu.Unlock()
		select {
		case <-d.clock.After(wait):
		case <-stopCh:
			return
		}
		d.mu.Lock()
		if !d.current(q) {
			d.mu.Unlock()
			return
		}
	}

	h := d.handler
	ts, sample := d.src.SampleTimeUs(), d.src.Sample()
	if h != nil {
		d.inHandler = q
	}
	d.mu.Unlock()

	if h != nil {
		h(TrackVideo, ts, sample)
		d.mu.Lock()
		if d.inHandler == q {
			d.inHandler = nil
		}
		d.mu.Unlock()
	}
	d.ticks.Add(1)

	d.loading.Lock()
	d.mu.Lock()
	ok := d.current(q)
	d.mu.Unlock()
	if ok {
		d.src.LoadNextSample()
	}
	d.loading.Unlock()

	d.mu.Lock()
	ok = d.current(q)
	d.mu.Unlock()
	if ok {
		d.schedule(q)
	}
}

// Stop cancels pending ticks, stops the source and waits for an in-flight
// tick to finish, so no handler call starts after Stop returns. When a
// handler is running at the time of the call, which is always the case when
// the handler itself calls Stop, Stop does not wait for it; the tick exits
// as soon as the handler returns. Stop is idempotent.
func (d *Dispatcher) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		return
	}
	d.state = StateStopping
	close(d.stopCh)
	q := d.queue
	join := d.inHandler != q
	d.mu.Unlock()

	q.RemovePending()
	d.src.Stop()
	if join {
		q.Close()
	} else {
		q.Shutdown()
	}

	d.mu.Lock()
	d.state = StateIdle
	d.mu.Unlock()
	d.log.Info("stopped", "ticks", d.ticks.Load())
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Ticks returns the number of samples delivered, empty ones included.
func (d *Dispatcher) Ticks() int64 {
	return d.ticks.Load()
}
