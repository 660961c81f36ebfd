// Package logging builds the slog handlers used across the coordinator.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/tylooio/tyloo/internal/config"
)

// NewHandler builds a slog handler for the given format and level. Text
// output goes through the charm logger, JSON through the stdlib handler. A
// nil writer defaults to stderr.
func NewHandler(format config.LogFormat, level config.LogLevel, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stderr
	}
	if format == config.LogFormatJSON {
		return newJSONHandler(level, writer)
	}
	return newTextHandler(level, writer)
}

func newTextHandler(level config.LogLevel, writer io.Writer) slog.Handler {
	reportCaller := false
	reportTimestamp := true
	lvl := log.InfoLevel

	switch level {
	case config.LogLevelTrace:
		reportCaller = true
		lvl = log.DebugLevel
	case config.LogLevelDebug:
		lvl = log.DebugLevel
	case config.LogLevelWarn:
		lvl = log.WarnLevel
	case config.LogLevelError:
		lvl = log.ErrorLevel
	}

	return log.NewWithOptions(writer, log.Options{
		ReportTimestamp: reportTimestamp,
		ReportCaller:    reportCaller,
		Level:           lvl,
	})
}

func newJSONHandler(level config.LogLevel, writer io.Writer) slog.Handler {
	addSource := false
	lvl := slog.LevelInfo

	switch level {
	case config.LogLevelTrace:
		addSource = true
		lvl = slog.LevelDebug
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	}

	return slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
	})
}

// NewWriter resolves a log destination: "stdout", "stderr" (or empty), or a
// file path, optionally with a file:// prefix. Parent directories are
// created for file destinations.
func NewWriter(output string) (io.Writer, error) {
	switch {
	case output == "" || output == "stderr":
		return os.Stderr, nil
	case output == "stdout":
		return os.Stdout, nil
	default:
		path := strings.TrimPrefix(output, "file://")
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log directory %s: %w", dir, err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return f, nil
	}
}

// Setup installs the process-wide default logger.
func Setup(cfg config.LoggingConfig, writer io.Writer) {
	slog.SetDefault(slog.New(NewHandler(cfg.Format, cfg.Level, writer)))
}
