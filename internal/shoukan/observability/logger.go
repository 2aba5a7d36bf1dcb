// Package observability configures structured logging for Shoukan.
//
// Every log line emitted while a turn is handled should carry the turn's
// trace ID; WithTrace returns a logger that does.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bdobrica/Shoukan/common/trace"
)

// Log file rotation limits.
const (
	maxFileSizeMB = 50
	maxBackups    = 5
	maxAgeDays    = 28
)

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level. The
// empty string means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// NewHandler builds a text or JSON handler writing to w.
func NewHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Setup configures the global slog logger. When file is non-empty logs go
// to a size-rotated file instead of stderr; the returned Closer closes it.
func Setup(level, format, file string) (io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if file != "" {
		lj := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxFileSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
		w, closer = lj, lj
	}

	slog.SetDefault(slog.New(NewHandler(w, lvl, format)))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// WithTrace returns a logger that always includes the trace_id from ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return slog.Default()
	}
	return slog.With("trace_id", traceID)
}
