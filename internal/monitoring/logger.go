// Package monitoring owns the agent's structured logger.
package monitoring

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
)

// Options selects the handler and level for NewLogger.
type Options struct {
	// Level is the minimum level emitted.
	Level slog.Level
	// Dev selects a colourised tint handler with source locations; otherwise
	// records are emitted as JSON.
	Dev     bool
	Version string
	Env     string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// NewLogger builds the agent logger. Dev loggers are meant for a terminal,
// production loggers for journald or a log shipper.
func NewLogger(appName string, opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	if opts.Dev {
		h := tint.NewHandler(out, &tint.Options{
			Level:      opts.Level,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level})
	return slog.New(h).With(
		"app", appName,
		"version", opts.Version,
		"env", opts.Env,
	)
}

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.Default())
}

// Logger returns the package-level logger. It defaults to slog.Default but
// may be replaced by SetLogger.
func Logger() *slog.Logger {
	return current.Load()
}

// SetLogger replaces the package logger. Passing nil installs a logger that
// discards everything.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	current.Store(l)
}
