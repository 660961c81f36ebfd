package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/tylooio/tyloo/internal/config"
	"github.com/tylooio/tyloo/internal/logging"
)

// setupLogger installs the default logger from the global flags before any
// command runs.
func setupLogger(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	format := config.LogFormat(cmd.String("log-format"))
	if !format.IsValid() {
		return ctx, fmt.Errorf("unknown log format: %s", cmd.String("log-format"))
	}
	level := config.LogLevel(cmd.String("log-level"))
	if !level.IsValid() {
		return ctx, fmt.Errorf("unknown log level: %s", cmd.String("log-level"))
	}

	writer, err := logging.NewWriter(cmd.String("log-output"))
	if err != nil {
		return ctx, err
	}
	logging.Setup(config.LoggingConfig{Format: format, Level: level}, writer)
	return ctx, nil
}
