// Package audit records provisioning activity.
//
// Events go to the SQLite audit log (StoreNotifier) and, when
// MATRIX_AUDIT_ROOM is set, to a Matrix room as short notices
// (MatrixNotifier). Multi fans one event out to several notifiers.
//
// Every event carries the trace ID of the chat turn that caused it, so a
// room notice can be matched with its audit row and its request record.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bdobrica/Shoukan/common/trace"
	"github.com/bdobrica/Shoukan/internal/shoukan/store"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindProvisioningRequested Kind = "provisioning.requested"
	KindProvisioningCompleted Kind = "provisioning.completed"
	KindProvisioningFailed    Kind = "provisioning.failed"
	KindAccessDenied          Kind = "access.denied"
	KindError                 Kind = "error"
)

// Event is one audited occurrence.
type Event struct {
	Kind Kind
	// Actor is the chat user that triggered the event.
	Actor string
	// Target is the request ID or resource name affected.
	Target string
	// Message is a human-friendly description.
	Message string
	// Details are stored as the audit payload and listed in room notices.
	Details map[string]string
	// TraceID defaults to the trace ID carried by the context.
	TraceID string
	// Timestamp defaults to time.Now().
	Timestamp time.Time
}

// Notifier records audit events. Implementations log failures instead of
// returning them and must not block the caller for long.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

func (evt *Event) fill(ctx context.Context) {
	if evt.TraceID == "" {
		evt.TraceID = trace.FromContext(ctx)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
}

// result maps an event kind to the audit log's result column.
func (k Kind) result() string {
	switch k {
	case KindProvisioningFailed, KindError:
		return store.ResultError
	case KindAccessDenied:
		return store.ResultDenied
	default:
		return store.ResultSuccess
	}
}

// Sender is the subset of the Matrix client needed by MatrixNotifier.
type Sender interface {
	SendNotice(roomID, message string) error
}

// MatrixNotifier posts formatted notices to a Matrix audit room.
type MatrixNotifier struct {
	sender Sender
	roomID string
}

// NewMatrixNotifier creates a MatrixNotifier that posts to roomID via sender.
func NewMatrixNotifier(sender Sender, roomID string) *MatrixNotifier {
	return &MatrixNotifier{sender: sender, roomID: roomID}
}

// Notify formats evt and posts it to the audit room.
func (n *MatrixNotifier) Notify(ctx context.Context, evt Event) {
	if n.roomID == "" {
		return
	}
	evt.fill(ctx)

	if err := n.sender.SendNotice(n.roomID, formatNotice(evt)); err != nil {
		slog.Warn("audit notifier: failed to send room notice",
			"room", n.roomID, "kind", evt.Kind, "err", err)
		return
	}
	slog.Debug("audit notifier: sent notice", "room", n.roomID, "kind", evt.Kind)
}

func formatNotice(evt Event) string {
	var sb strings.Builder
	icon := kindIcon(evt.Kind)
	if evt.Target != "" {
		fmt.Fprintf(&sb, "%s %s → %s", icon, evt.Target, evt.Message)
	} else {
		fmt.Fprintf(&sb, "%s [%s] %s", icon, evt.Kind, evt.Message)
	}

	keys := make([]string, 0, len(evt.Details))
	for k := range evt.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n  %s: %s", k, evt.Details[k])
	}

	if evt.TraceID != "" {
		fmt.Fprintf(&sb, "\n  trace: %s", evt.TraceID)
	}
	if evt.Actor != "" {
		fmt.Fprintf(&sb, "\n  actor: %s", evt.Actor)
	}
	return sb.String()
}

// Writer is the subset of the store used by StoreNotifier.
type Writer interface {
	WriteAudit(ctx context.Context, traceID, actor, action, target, result string, payload store.AuditPayload, errorMsg string) error
}

// StoreNotifier appends events to the SQLite audit log.
type StoreNotifier struct {
	w Writer
}

// NewStoreNotifier creates a StoreNotifier writing through w.
func NewStoreNotifier(w Writer) *StoreNotifier {
	return &StoreNotifier{w: w}
}

// Notify writes evt as one audit row.
func (n *StoreNotifier) Notify(ctx context.Context, evt Event) {
	evt.fill(ctx)

	var payload store.AuditPayload
	if len(evt.Details) > 0 {
		payload = make(store.AuditPayload, len(evt.Details))
		for k, v := range evt.Details {
			payload[k] = v
		}
	}
	result := evt.Kind.result()
	var errMsg string
	if result == store.ResultError {
		errMsg = evt.Message
	}

	if err := n.w.WriteAudit(ctx, evt.TraceID, evt.Actor, string(evt.Kind), evt.Target, result, payload, errMsg); err != nil {
		slog.Warn("audit: failed to write audit log", "kind", evt.Kind, "trace_id", evt.TraceID, "err", err)
	}
}

// Multi forwards each event to every notifier in order.
type Multi []Notifier

// Notify forwards evt.
func (m Multi) Notify(ctx context.Context, evt Event) {
	for _, n := range m {
		n.Notify(ctx, evt)
	}
}

// Noop discards events.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, Event) {}

func kindIcon(k Kind) string {
	switch k {
	case KindProvisioningRequested:
		return "🔔"
	case KindProvisioningCompleted:
		return "✅"
	case KindProvisioningFailed:
		return "❌"
	case KindAccessDenied:
		return "🚫"
	case KindError:
		return "🚨"
	default:
		return "ℹ️"
	}
}
