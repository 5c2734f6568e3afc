// Package config loads and validates the server configuration.
//
// The configuration is a YAML document:
//
//	logLevel: info
//	statsInterval: 10s
//	streams:
//	  - name: cam1
//	    transport: udp
//	    port: 5000
//	    variant: annexb
//	    fps: 30
//	    output: cam1.dump
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/zsiec/nalpace/internal/ingest"
	"github.com/zsiec/nalpace/internal/source"
)

// MaxFPS is the highest accepted frame rate.
const MaxFPS = 1000

// Config is the server configuration.
type Config struct {
	LogLevel      string         `yaml:"logLevel"`
	StatsInterval time.Duration  `yaml:"statsInterval"`
	CertFile      string         `yaml:"certFile"`
	KeyFile       string         `yaml:"keyFile"`
	Streams       []StreamConfig `yaml:"streams"`
}

// StreamConfig describes one ingest stream.
type StreamConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"`
	Port      uint16 `yaml:"port"`
	FPS       int    `yaml:"fps"`
	Variant   string `yaml:"variant"`
	Output    string `yaml:"output"`
	// StreamKey restricts SRT publishers to this stream ID. When Remote is
	// set it is the stream ID sent to the remote listener instead.
	StreamKey string `yaml:"streamKey"`
	// Remote pulls from an SRT listener at this host:port instead of
	// listening for publishers.
	Remote string `yaml:"remote"`
}

// Addr returns the listen address for the stream's port on all interfaces.
func (s StreamConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML configuration. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and fills in defaults for empty
// transport and variant fields.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("statsInterval must not be negative"))
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		errs = append(errs, errors.New("certFile and keyFile must be set together"))
	}
	if len(c.Streams) == 0 {
		errs = append(errs, errors.New("no streams configured"))
	}

	names := make(map[string]bool)
	ports := make(map[uint16]string)
	for i := range c.Streams {
		s := &c.Streams[i]
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("stream %d: name is required", i))
		} else if names[s.Name] {
			errs = append(errs, fmt.Errorf("stream %q: duplicate name", s.Name))
		}
		names[s.Name] = true

		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("stream %q: %w", s.Name, err))
			continue
		}

		if s.Remote != "" {
			continue
		}
		// Every transport listens on UDP, so ports must be unique.
		if other, ok := ports[s.Port]; ok {
			errs = append(errs, fmt.Errorf("stream %q: port %d already used by %q", s.Name, s.Port, other))
		}
		ports[s.Port] = s.Name
	}

	return errors.Join(errs...)
}

func (s *StreamConfig) validate() error {
	if s.Port == 0 && s.Remote == "" {
		return errors.New("port is required")
	}
	if s.FPS < 0 || s.FPS > MaxFPS {
		return fmt.Errorf("fps %d out of range [0, %d]", s.FPS, MaxFPS)
	}

	t, err := ingest.ParseTransport(s.Transport)
	if err != nil {
		return err
	}
	s.Transport = string(t)

	v, err := source.ParseVariant(s.Variant)
	if err != nil {
		return err
	}
	s.Variant = string(v)

	if s.StreamKey != "" && t != ingest.TransportSRT {
		return errors.New("streamKey is only supported for srt")
	}
	if s.Remote != "" {
		if t != ingest.TransportSRT {
			return errors.New("remote is only supported for srt")
		}
		if _, _, err := net.SplitHostPort(s.Remote); err != nil {
			return fmt.Errorf("remote: %w", err)
		}
	}
	return nil
}

// NeedsCertificate reports whether any stream uses QUIC.
func (c *Config) NeedsCertificate() bool {
	for _, s := range c.Streams {
		if s.Transport == string(ingest.TransportQUIC) {
			return true
		}
	}
	return false
}

// ParseLevel maps a log level name to a slog.Level. The empty string is
// info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
