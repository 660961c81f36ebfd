package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// Version is set during build using ldflags
var Version = "dev"

func main() {
	app := &cli.Command{
		Name:    "tyloo",
		Version: Version,
		Usage:   "TCC transaction coordinator utilities",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (trace, debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("TYLOO_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("TYLOO_LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "log-output",
				Usage:   "Log destination (stdout, stderr, or a file path)",
				Sources: cli.EnvVars("TYLOO_LOG_OUTPUT"),
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			versionCmd,
			validateCmd,
			listCmd,
			recoverCmd,
			serveCmd,
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
