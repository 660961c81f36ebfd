package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/tylooio/tyloo/recovery"
	"github.com/tylooio/tyloo/transaction"
)

var recoverCmd = &cli.Command{
	Name:  "recover",
	Usage: "Run one recovery sweep over the transaction record store",
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

		handler := slog.Default().Handler()
		repo, closer, err := buildRepository(ctx, cfg, handler)
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()

		// The standalone sweep has no registered phase handlers, so records
		// with enlisted participants are claimed and retried but only
		// participant-free records complete. Embedded applications run the
		// sweep with their own registry; see the recovery package.
		rec, err := recovery.New(repo, transaction.NewInvoker(),
			recovery.WithLogHandler(handler),
			recovery.WithRecoverDuration(cfg.Recovery.RecoverDuration.Std()),
			recovery.WithMaxRetryCount(cfg.Recovery.MaxRetryCount))
		if err != nil {
			return err
		}

		result, err := rec.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Sweep finished: recovered=%d skipped=%d quarantined=%d failed=%d\n",
			result.Recovered, result.Skipped, result.Quarantined, result.Failed)
		return nil
	},
}
