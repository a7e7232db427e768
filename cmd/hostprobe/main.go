// Command hostprobe reports live process, system and disk telemetry for the local host.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/Dicklesworthstone/hostprobe/internal/config"
	"github.com/Dicklesworthstone/hostprobe/internal/handles"
	"github.com/Dicklesworthstone/hostprobe/internal/growbuf"
	"github.com/Dicklesworthstone/hostprobe/internal/logging"
	"github.com/Dicklesworthstone/hostprobe/internal/native"
	"github.com/Dicklesworthstone/hostprobe/internal/privilege"
	"github.com/Dicklesworthstone/hostprobe/internal/snapshot"
)

const name = "hostprobe"

var (
	// overridden during build with ldflags
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "Host process, system and disk telemetry",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML config file",
				Sources: cli.EnvVars("HOSTPROBE_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.DurationFlag{
				Name:  "sample-wait",
				Usage: "CPU sampling window",
			},
			&cli.BoolFlag{
				Name:  "no-elevation",
				Usage: "do not require an elevated process",
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			snapshotCmd(),
			watchCmd(),
		},
	}
}

// loadConfig applies command-line overrides on top of the file and environment.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return cfg, err
	}
	if cmd.IsSet("log-level") {
		cfg.Logging.Level = cmd.String("log-level")
	}
	if cmd.IsSet("sample-wait") {
		cfg.Sampler.Wait = cmd.Duration("sample-wait")
	}
	if cmd.Bool("no-elevation") {
		cfg.RequireElevation = false
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	logging.SetDefaultStructuredLoggerWithLevel(name, version, cfg.Logging.Level)
	slog.Debug("configuration loaded",
		"addr", cfg.Server.Addr,
		"sampleWait", cfg.Sampler.Wait.String(),
		"workers", cfg.Collect.Workers,
		"requireElevation", cfg.RequireElevation)
	return cfg, nil
}

func engineOptions(cfg config.Config) snapshot.Options {
	return snapshot.Options{
		SampleWait:     cfg.Sampler.Wait,
		Workers:        cfg.Collect.Workers,
		ProcessWorkers: cfg.Collect.ProcessWorkers,
		IncludeThreads: cfg.Collect.IncludeThreads,
		IncludeHandles: cfg.Collect.IncludeHandles,
		HandlePolicy: growbuf.Policy{
			Initial:    cfg.Collect.HandleCapacity,
			Max:        handles.DefaultPolicy.Max,
			MaxRetries: cfg.Collect.HandleMaxRetries,
		},
	}
}

func newEngine(cfg config.Config) (*snapshot.Engine, error) {
	src, err := native.New()
	if err != nil {
		return nil, fmt.Errorf("open native source: %w", err)
	}
	return snapshot.New(src, privilege.New(cfg.RequireElevation), slog.Default(), engineOptions(cfg)), nil
}
