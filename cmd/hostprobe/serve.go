package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/Dicklesworthstone/hostprobe/internal/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve telemetry over HTTP",
		Description: `Starts the HTTP API:

  /api/snapshot                  processes, system summary and disks from one sample
  /api/processes                 process list
  /api/processes/{pid}/handles   open handles of one process
  /api/system                    system summary
  /api/disks                     logical volumes

/health, /ready and /metrics are served without rate limiting.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (host:port)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.IsSet("addr") {
				cfg.Server.Addr = cmd.String("addr")
			}
			eng, err := newEngine(cfg)
			if err != nil {
				return err
			}

			slog.Info("starting",
				"name", name,
				"version", version,
				"commit", commit,
				"date", date,
			)
			s := server.New(cfg.Server, eng, slog.Default())
			if err := s.Start(ctx); err != nil {
				slog.Error("server exited with error", "error", err)
				return err
			}
			return nil
		},
	}
}
