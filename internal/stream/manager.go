// Package stream tracks the named streams a server is running and their
// pipelines.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zsiec/nalpace/internal/pipeline"
)

// ErrDuplicate is returned by Run when a stream with the same key exists.
var ErrDuplicate = errors.New("stream already exists")

// Stream is a running stream.
type Stream struct {
	Key       string
	StartedAt time.Time
	Pipeline  *pipeline.Pipeline
	done      chan struct{}
}

// Done is closed when the stream is removed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Info is a point-in-time summary of a stream.
type Info struct {
	Key       string         `json:"key"`
	StartedAt time.Time      `json:"startedAt"`
	State     string         `json:"state"`
	Stats     pipeline.Stats `json:"stats"`
}

// Manager manages the lifecycle of active streams.
type Manager struct {
	log     *slog.Logger
	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewManager creates a new stream manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log.With("component", "stream-manager"),
		streams: make(map[string]*Stream),
	}
}

// Create registers p under key. Returns the stream and true if created,
// or nil and false if a stream with this key already exists.
func (m *Manager) Create(key string, p *pipeline.Pipeline) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[key]; ok {
		m.log.Warn("stream already exists, rejecting duplicate", "key", key)
		return nil, false
	}

	s := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		Pipeline:  p,
		done:      make(chan struct{}),
	}
	m.streams[key] = s
	m.log.Info("stream created", "key", key)
	return s, true
}

// Get returns the stream registered under key.
func (m *Manager) Get(key string) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[key]
	return s, ok
}

// Remove removes a stream from the manager.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.streams[key]
	if ok {
		delete(m.streams, key)
	}
	m.mu.Unlock()

	if ok {
		close(s.done)
		m.log.Info("stream removed", "key", key, "uptime", time.Since(s.StartedAt).Round(time.Millisecond))
	}
}

// List returns all active streams sorted by key.
func (m *Manager) List() []*Stream {
	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.RUnlock()

	sort.Slice(streams, func(i, j int) bool { return streams[i].Key < streams[j].Key })
	return streams
}

// Snapshot summarizes every active stream.
func (m *Manager) Snapshot() []Info {
	streams := m.List()
	out := make([]Info, 0, len(streams))
	for _, s := range streams {
		info := Info{Key: s.Key, StartedAt: s.StartedAt}
		if s.Pipeline != nil {
			info.State = s.Pipeline.State().String()
			info.Stats = s.Pipeline.Stats()
		}
		out = append(out, info)
	}
	return out
}

// Run registers p under its key, runs it until ctx is cancelled and removes
// it again.
func (m *Manager) Run(ctx context.Context, p *pipeline.Pipeline) error {
	if _, ok := m.Create(p.Key(), p); !ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, p.Key())
	}
	defer m.Remove(p.Key())
	return p.Run(ctx)
}
