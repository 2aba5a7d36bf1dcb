// Package trace carries a per-turn correlation ID through context.Context so
// log lines, audit rows and provisioning records of one chat turn can be
// joined.
package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type traceKey struct{}

// Prefix marks trace IDs in logs and audit rows.
const Prefix = "t_"

// GenerateID returns a new trace ID: Prefix followed by 32 hex characters.
func GenerateID() string {
	return Prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithTraceID returns a child context carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// Ensure returns ctx unchanged if it already carries a trace ID, otherwise a
// child context with a fresh one.
func Ensure(ctx context.Context) context.Context {
	if FromContext(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, GenerateID())
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
