package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/nalpace/internal/certs"
	"github.com/zsiec/nalpace/internal/config"
	"github.com/zsiec/nalpace/internal/ingest"
	"github.com/zsiec/nalpace/internal/ingest/quic"
	"github.com/zsiec/nalpace/internal/ingest/srt"
	"github.com/zsiec/nalpace/internal/pipeline"
	"github.com/zsiec/nalpace/internal/sink"
	"github.com/zsiec/nalpace/internal/source"
	"github.com/zsiec/nalpace/internal/stream"
)

type serveCmd struct {
	Config string `short:"c" help:"YAML configuration file. When set, the single-stream flags are ignored." env:"NALPACE_CONFIG" type:"existingfile"`

	Name          string        `help:"Stream name." default:"default" env:"NALPACE_STREAM"`
	Transport     string        `help:"Ingest transport." default:"udp" enum:"udp,srt,quic" env:"NALPACE_TRANSPORT"`
	Port          uint16        `help:"Listen port." default:"5000" env:"NALPACE_PORT"`
	Variant       string        `help:"Source strategy." default:"annexb" enum:"annexb,passthrough" env:"NALPACE_VARIANT"`
	FPS           int           `help:"Frame rate; 0 selects the variant default." env:"NALPACE_FPS"`
	Output        string        `help:"Write paced samples to this dump file." env:"NALPACE_OUTPUT" type:"path"`
	StreamKey     string        `help:"SRT stream ID to accept, or to send with --remote." env:"NALPACE_STREAM_KEY"`
	Remote        string        `help:"Pull from an SRT listener at host:port instead of listening." env:"NALPACE_REMOTE"`
	StatsInterval time.Duration `help:"Interval between stream statistics log lines; 0 disables them." default:"10s" env:"NALPACE_STATS_INTERVAL"`
}

func (c *serveCmd) config() (*config.Config, error) {
	if c.Config != "" {
		return config.Load(c.Config)
	}
	cfg := &config.Config{
		StatsInterval: c.StatsInterval,
		Streams: []config.StreamConfig{{
			Name:      c.Name,
			Transport: c.Transport,
			Port:      c.Port,
			FPS:       c.FPS,
			Variant:   c.Variant,
			Output:    c.Output,
			StreamKey: c.StreamKey,
			Remote:    c.Remote,
		}},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *serveCmd) Run(rt *runtime) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	if !rt.levelSet && cfg.LogLevel != "" {
		lvl, _ := config.ParseLevel(cfg.LogLevel)
		rt.level.Set(lvl)
	}

	var cert *certs.CertInfo
	if cfg.NeedsCertificate() {
		if cert, err = loadCertificate(cfg, rt.log); err != nil {
			return err
		}
	}

	rt.log.Info("nalpace starting", "version", version, "streams", len(cfg.Streams))

	pipelines := make([]*pipeline.Pipeline, 0, len(cfg.Streams))
	closers := make([]func(), 0, len(cfg.Streams))
	defer func() {
		for _, closeSink := range closers {
			closeSink()
		}
	}()
	for _, sc := range cfg.Streams {
		p, closeSink, err := newPipeline(sc, cert, rt.log)
		if err != nil {
			return err
		}
		pipelines = append(pipelines, p)
		closers = append(closers, closeSink)
	}

	mgr := stream.NewManager(rt.log)
	g, ctx := errgroup.WithContext(rt.ctx)

	for _, p := range pipelines {
		g.Go(func() error {
			if err := mgr.Run(ctx, p); err != nil {
				return fmt.Errorf("stream %q: %w", p.Key(), err)
			}
			return nil
		})
	}

	if cfg.StatsInterval > 0 {
		g.Go(func() error {
			reportStats(ctx, mgr, cfg.StatsInterval, rt.log)
			return nil
		})
	}

	return g.Wait()
}

func loadCertificate(cfg *config.Config, log *slog.Logger) (*certs.CertInfo, error) {
	if cfg.CertFile != "" {
		return certs.Load(cfg.CertFile, cfg.KeyFile)
	}
	log.Info("generating self-signed certificate")
	cert, err := certs.Generate(certs.DefaultValidity)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}
	log.Info("certificate generated",
		"fingerprint", cert.FingerprintHex(),
		"expires", cert.NotAfter.Format(time.RFC3339))
	return cert, nil
}

// newPipeline builds the source, sink and pipeline of one configured stream.
// The returned function closes the sink.
func newPipeline(sc config.StreamConfig, cert *certs.CertInfo, log *slog.Logger) (*pipeline.Pipeline, func(), error) {
	log = log.With("stream", sc.Name)

	src, err := source.New(source.Variant(sc.Variant), source.Options{
		Listen: listenFunc(sc, cert, log),
		FPS:    sc.FPS,
		Logger: log,
	})
	if err != nil {
		return nil, nil, err
	}

	sinks := sink.Multi{sink.NewLogSink(log)}
	closeSink := func() {}
	if sc.Output != "" {
		fs, err := sink.CreateFileSink(sc.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("stream %q: %w", sc.Name, err)
		}
		sinks = append(sinks, fs)
		closeSink = func() {
			if err := fs.Close(); err != nil {
				log.Warn("closing dump", "path", sc.Output, "error", err)
			}
			log.Info("dump closed", "path", sc.Output, "records", fs.Records())
		}
	}

	return pipeline.New(sc.Name, src, sinks, log), closeSink, nil
}

func listenFunc(sc config.StreamConfig, cert *certs.CertInfo, log *slog.Logger) ingest.ListenFunc {
	switch ingest.Transport(sc.Transport) {
	case ingest.TransportSRT:
		if sc.Remote != "" {
			return srt.Dial(sc.Remote, sc.StreamKey, log)
		}
		return srt.Listen(sc.Addr(), sc.StreamKey, log)
	case ingest.TransportQUIC:
		return quic.Listen(sc.Addr(), cert, log)
	default:
		return ingest.ListenUDP(sc.Port)
	}
}

func reportStats(ctx context.Context, mgr *stream.Manager, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range mgr.Snapshot() {
				log.Info("stream stats",
					"stream", s.Key,
					"state", s.State,
					"delivered", s.Stats.Delivered,
					"empty", s.Stats.Empty,
					"bytes", s.Stats.Bytes,
					"ts_us", s.Stats.LastTimestampUs)
			}
		}
	}
}
