package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dhcgn/trapmail/config"
)

// setupLogger builds the text logger for cfg writing to out, plus a copy in the log directory
// when one is configured. The returned cleanup closes the log file.
func setupLogger(cfg config.Config, out io.Writer) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.Logging.Level {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.Logging.Dir != "" {
		if err := os.MkdirAll(cfg.Logging.Dir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.Logging.Dir, fmt.Sprintf("trapmail-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(out, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(out, opts)
	return slog.New(handler), cleanup, nil
}
