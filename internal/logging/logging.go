// Package logging builds the slog loggers used by billr commands and the
// sampler daemon. Records go to a size-rotated file and, optionally, to
// stderr.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type Options struct {
	File      string
	Level     string
	MaxSizeMB int
	// Stderr mirrors records at or above StderrLevel to os.Stderr.
	Stderr      bool
	StderrLevel slog.Level
}

// New returns a logger and a closer that must be called to release the
// log file. An empty File disables file output.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var handlers []slog.Handler
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: 3,
			MaxAge:     28,
		}
		closer = lj
		handlers = append(handlers, slog.NewTextHandler(lj, &slog.HandlerOptions{Level: ParseLevel(opts.Level)}))
	}
	if opts.Stderr {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: opts.StderrLevel}))
	}

	switch len(handlers) {
	case 0:
		return Discard(), closer, nil
	case 1:
		return slog.New(handlers[0]), closer, nil
	}
	return slog.New(fanout(handlers)), closer, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
