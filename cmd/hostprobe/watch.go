package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/Dicklesworthstone/hostprobe/internal/ui"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Show a live terminal view",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "refresh interval",
			},
			&cli.IntFlag{
				Name:  "top",
				Usage: "number of processes to list",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.IsSet("interval") {
				cfg.Watch.Interval = cmd.Duration("interval")
			}
			if cmd.IsSet("top") {
				cfg.Watch.Top = int(cmd.Int("top"))
			}
			eng, err := newEngine(cfg)
			if err != nil {
				return err
			}
			return ui.RunTUI(eng, cfg.Watch.Interval, cfg.Watch.Top)
		},
	}
}
