package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLogFile is the file name written inside Options.Dir.
const DefaultLogFile = "training.log"

// Options controls Setup.
type Options struct {
	// Level is the minimum level for both sinks.
	Level slog.Level
	// Format selects the console handler: "pretty", "json" or "text".
	Format string
	// Console receives console output. Defaults to os.Stderr.
	Console io.Writer
	// Dir enables the rotating log file when non-empty.
	Dir string
	// MaxSizeMB, MaxBackups and MaxAgeDays tune log rotation.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup builds the console logger and, when Dir is set, mirrors every record
// into Dir/training.log. The returned closer releases the file.
func Setup(opts Options) (Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}

	var consoleHandler slog.Handler
	switch opts.Format {
	case "", "pretty":
		consoleHandler = NewPrettyHandler(console, hopts)
	case "json":
		consoleHandler = slog.NewJSONHandler(console, hopts)
	case "text":
		consoleHandler = NewLineHandler(console, hopts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.Dir == "" {
		return New(consoleHandler), nopCloser{}, nil
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, DefaultLogFile),
		MaxSize:    orDefault(opts.MaxSizeMB, 50),
		MaxBackups: orDefault(opts.MaxBackups, 5),
		MaxAge:     orDefault(opts.MaxAgeDays, 30),
	}
	return New(Fanout(consoleHandler, NewLineHandler(file, hopts))), file, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Fanout returns a handler that forwards every record to each of handlers.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return fanout(handlers)
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
