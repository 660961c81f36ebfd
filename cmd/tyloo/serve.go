package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robbyt/go-supervisor/supervisor"
	"github.com/urfave/cli/v3"

	"github.com/tylooio/tyloo/recovery"
	"github.com/tylooio/tyloo/transaction"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Run the recovery sweeper as a long-lived process",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to TOML configuration file",
			Aliases: []string{"c"},
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logger := slog.Default()
		handler := logger.Handler()

		repo, closer, err := buildRepository(ctx, cfg, handler)
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()

		rec, err := recovery.New(repo, transaction.NewInvoker(),
			recovery.WithLogHandler(handler),
			recovery.WithRecoverDuration(cfg.Recovery.RecoverDuration.Std()),
			recovery.WithMaxRetryCount(cfg.Recovery.MaxRetryCount))
		if err != nil {
			return err
		}

		runner, err := recovery.NewRunner(rec,
			recovery.WithInterval(cfg.Recovery.Interval.Std()),
			recovery.WithRunnerLogHandler(handler))
		if err != nil {
			return fmt.Errorf("failed to create recovery runner: %w", err)
		}

		super, err := supervisor.New(
			supervisor.WithRunnables(runner),
			supervisor.WithLogHandler(handler),
			supervisor.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("failed to create supervisor: %w", err)
		}
		if err := super.Run(); err != nil {
			return fmt.Errorf("failed to run sweeper: %w", err)
		}

		logger.Info("Sweeper shutdown complete")
		return nil
	},
}
