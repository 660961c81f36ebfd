package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tylooio/tyloo/internal/fancy"
)

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "Print the stored transaction records",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to TOML configuration file",
			Aliases: []string{"c"},
		},
		&cli.DurationFlag{
			Name:  "older-than",
			Usage: "Only show records untouched for at least this long",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		repo, closer, err := buildRepository(ctx, cfg, slog.Default().Handler())
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()

		cutoff := time.Now().Add(-cmd.Duration("older-than"))
		records, err := repo.FindStalledSince(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("load transaction records: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No transaction records")
			return nil
		}

		t := fancy.Tree()
		t.Root(fancy.RootStyle.Render(fmt.Sprintf("%d transaction records", len(records))))
		for _, tx := range records {
			node := fancy.Tree().Root(fmt.Sprintf("%s %s",
				fancy.RootStyle.Render(tx.XID().String()),
				fancy.StatusBadge(tx.Status())))
			node.Child(fancy.InfoStyle.Render(fmt.Sprintf("type: %s, participants: %d",
				tx.Type(), len(tx.Participants()))))
			node.Child(fancy.InfoStyle.Render(fmt.Sprintf("version: %d, retried: %d",
				tx.Version(), tx.RetriedCount())))
			node.Child(fancy.InfoStyle.Render(fmt.Sprintf("updated: %s",
				tx.LastUpdateTime().Format(time.RFC3339))))
			t.Child(node)
		}
		fmt.Println(t)
		return nil
	},
}
