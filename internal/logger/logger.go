// Package logger builds the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, destination and a fixed component attribute.
type Options struct {
	Level     string
	File      string
	Component string
}

// Setup builds a JSON slog logger and installs it as the slog default.
// When File is set, output is tee'd to stdout and a size-rotated file.
func Setup(opts Options) *slog.Logger {
	return SetupWithWriter(opts, Writer(opts.File))
}

// SetupWithWriter is Setup with an explicit sink.
func SetupWithWriter(opts Options, w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	logger := slog.New(handler)
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a case-insensitive name to a slog level. Unknown names mean info.
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

// Writer returns stdout, or stdout plus a rotating file when path is set.
func Writer(path string) io.Writer {
	if path == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	})
}
