package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/drive-migrate/internal/config"
)

const (
	logDirPerms  = 0o700
	logFilePerms = 0o600

	consoleTimeFormat = time.TimeOnly
)

// levelFor picks the log level. The config file provides the baseline;
// --verbose and --quiet override it because CLI flags always win.
func levelFor(cfgLevel string, flags CLIFlags) slog.Level {
	level := slog.LevelInfo

	switch cfgLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return level
}

// bootstrapLogger is used before configuration is loaded.
func bootstrapLogger(flags CLIFlags) *slog.Logger {
	return slog.New(consoleHandler(os.Stderr, "text", levelFor("", flags)))
}

// consoleHandler writes colored text to terminals, plain text elsewhere,
// or JSON when format is "json".
func consoleHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: consoleTimeFormat,
		NoColor:    !isTerminal(w),
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// buildLogger creates the process logger: console output at the resolved
// level plus a debug-level text log appended to the configured log file.
// The returned Closer closes the log file.
func buildLogger(cfg *config.Resolved, flags CLIFlags, console io.Writer) (*slog.Logger, io.Closer, error) {
	level := levelFor(cfg.Logging.LogLevel, flags)
	ch := consoleHandler(console, cfg.Logging.LogFormat, level)

	if cfg.LogFile == "" {
		return slog.New(ch), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), logDirPerms); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerms)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	fh := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(newMultiHandler(ch, fh)), f, nil
}

// multiHandler fans records out to every handler that accepts them.
type multiHandler struct {
	handlers []slog.Handler
}

func newMultiHandler(handlers ...slog.Handler) *multiHandler {
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}

		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}

	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}

	return &multiHandler{handlers: hs}
}
