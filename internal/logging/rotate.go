package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotateOptions configures the size-rotated log file sink.
type RotateOptions struct {
	// File is the log file path. Parent directories are created on
	// first write.
	File string

	// MaxSizeMB rotates the file once it reaches this size.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept.
	MaxBackups int

	// Console mirrors every record to stderr as well. Disabled while
	// the dashboard owns the terminal.
	Console bool

	// Format is "json" or "text".
	Format string

	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string

	// Verbose forces debug level regardless of Level.
	Verbose bool
}

// NewRotatingLogger creates a logger backed by a size-rotated file,
// optionally mirrored to stderr. The returned closer closes the
// underlying file; call it on shutdown.
func NewRotatingLogger(opts RotateOptions) (*slog.Logger, io.Closer) {
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}

	var w io.Writer = rotator
	if opts.Console {
		w = io.MultiWriter(rotator, os.Stderr)
	}

	level := opts.Level
	if opts.Verbose {
		level = "debug"
	}

	return NewLoggerWithWriter(w, opts.Format, level), rotator
}
