// Package logging builds the slog loggers used by the command and the
// engine pool.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Options selects the level and handler of a logger.
type Options struct {
	Level string // debug, info, warn, error (default info)
	JSON  bool   // JSON lines instead of logfmt-style text
}

var def atomic.Value

func init() {
	def.Store(New(os.Stderr, Options{}))
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	cfg := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	return slog.New(h)
}

// Configure replaces the default logger and returns it.
func Configure(w io.Writer, opts Options) *slog.Logger {
	l := New(w, opts)
	def.Store(l)
	return l
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
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

// IsJSON reports whether a format name selects the JSON handler.
func IsJSON(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), "json")
}

// L returns the default logger.
func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}
