// Package logger configures the structured logger used by the entitybug tool.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables read by New.
const (
	EnvLevel  = "ENTITYBUG_LOG_LEVEL"
	EnvFormat = "ENTITYBUG_LOG_FORMAT"
	EnvOutput = "ENTITYBUG_LOG_OUTPUT"
)

// Logger is a slog.Logger that may own the file it writes to. Call Close when
// done with it.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// Options override what New reads from the environment. Empty fields are
// taken from the environment.
type Options struct {
	Level  string
	Format string
	Output string
}

// New creates a logger configured by opts and the environment:
//   - ENTITYBUG_LOG_LEVEL: DEBUG, INFO, WARN, ERROR (default: INFO)
//   - ENTITYBUG_LOG_FORMAT: json or text (default: text)
//   - ENTITYBUG_LOG_OUTPUT: stdout, stderr, or a file path (default: stderr)
func New(opts Options) *Logger {
	if opts.Level == "" {
		opts.Level = os.Getenv(EnvLevel)
	}
	if opts.Format == "" {
		opts.Format = os.Getenv(EnvFormat)
	}
	if opts.Output == "" {
		opts.Output = os.Getenv(EnvOutput)
	}
	if opts.Output == "" {
		opts.Output = "stderr"
	}

	var writer io.Writer
	var closer io.Closer
	switch opts.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			// fall back to stderr if the file can't be opened
			writer = os.Stderr
		} else {
			writer, closer = file, file
		}
	}

	l := NewWithWriter(writer, opts.Level, opts.Format)
	l.closer = closer
	return l
}

// NewWithWriter creates a logger that writes to w.
func NewWithWriter(w io.Writer, level, format string) *Logger {
	handlerOpts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// ParseLevel parses a log level. Unknown levels yield INFO.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close closes the log file, if the logger writes to one.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
