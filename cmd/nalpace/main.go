// Command nalpace receives live H.264 elementary streams and delivers them,
// paced at a fixed frame rate, as length-prefixed access units.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/zsiec/nalpace/internal/config"
)

var version = "dev"

var cli struct {
	LogLevel string           `help:"Log level (debug, info, warn, error)." env:"NALPACE_LOG_LEVEL" placeholder:"LEVEL"`
	Version  kong.VersionFlag `help:"Print version and exit."`

	Serve    serveCmd    `cmd:"" default:"withargs" help:"Receive and pace streams."`
	NALTypes nalTypesCmd `cmd:"" name:"naltypes" help:"Print the NAL unit types of a stream or a dump."`
	Push     pushCmd     `cmd:"" help:"Send an Annex B file to an ingest in real time."`
}

// runtime is bound into every command's Run method.
type runtime struct {
	ctx   context.Context
	log   *slog.Logger
	level *slog.LevelVar
	// levelSet reports that the level came from the command line or
	// environment and must not be overridden by a config file.
	levelSet bool
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("nalpace"),
		kong.Description("Live H.264 ingest and pacing server "+version),
		kong.UsageOnError(),
		kong.Vars{"version": version})

	level := new(slog.LevelVar)
	rt := &runtime{level: level}
	if os.Getenv("DEBUG") != "" {
		level.Set(slog.LevelDebug)
		rt.levelSet = true
	}
	if cli.LogLevel != "" {
		lvl, err := config.ParseLevel(cli.LogLevel)
		if err != nil {
			kctx.Fatalf("%v", err)
		}
		level.Set(lvl)
		rt.levelSet = true
	}
	rt.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(rt.log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	rt.ctx = ctx

	if err := kctx.Run(rt); err != nil {
		slog.Error("exiting", "error", err)
		cancel()
		os.Exit(1)
	}
}
