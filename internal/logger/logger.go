// Package logger provides structured logging on top of zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, encoding and destination of log output.
type Config struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Output string `koanf:"output"` // stderr, stdout or a file path
}

// Logger is the logging surface handed to every component.
type Logger interface {
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) Logger
}

type zlog struct {
	l zerolog.Logger
}

// New builds a Logger from cfg. The returned closer releases the output
// file when Output names one; it is a no-op otherwise.
func New(cfg Config) (Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)

	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			closer.Close()
			return nil, nil, err
		}
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	zerolog.TimeFieldFormat = time.RFC3339

	return &zlog{l: zerolog.New(out).Level(level).With().Timestamp().Logger()}, closer, nil
}

// FromZerolog wraps an existing zerolog logger.
func FromZerolog(l zerolog.Logger) Logger {
	return &zlog{l: l}
}

// NewTestLogger returns a logger that discards everything.
func NewTestLogger() Logger {
	return &zlog{l: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}

func (z *zlog) Debug() *zerolog.Event { return z.l.Debug() }
func (z *zlog) Info() *zerolog.Event  { return z.l.Info() }
func (z *zlog) Warn() *zerolog.Event  { return z.l.Warn() }
func (z *zlog) Error() *zerolog.Event { return z.l.Error() }
func (z *zlog) With() zerolog.Context { return z.l.With() }

func (z *zlog) WithComponent(component string) Logger {
	return &zlog{l: z.l.With().Str("component", component).Logger()}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
