package audit_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/Shoukan/common/trace"
	"github.com/bdobrica/Shoukan/internal/shoukan/audit"
	"github.com/bdobrica/Shoukan/internal/shoukan/store"
)

type fakeSender struct {
	notices []string
	err     error
}

func (f *fakeSender) SendNotice(_, msg string) error {
	f.notices = append(f.notices, msg)
	return f.err
}

type auditRow struct {
	traceID string
	actor   string
	action  string
	target  string
	result  string
	errMsg  string
	payload store.AuditPayload
}

type fakeWriter struct {
	rows []auditRow
}

func (f *fakeWriter) WriteAudit(_ context.Context, traceID, actor, action, target, result string, payload store.AuditPayload, errMsg string) error {
	f.rows = append(f.rows, auditRow{traceID, actor, action, target, result, errMsg, payload})
	return nil
}

func TestMatrixNotifier_SendsNotice(t *testing.T) {
	sender := &fakeSender{}
	n := audit.NewMatrixNotifier(sender, "!audit:example.com")

	n.Notify(context.Background(), audit.Event{
		Kind:    audit.KindProvisioningCompleted,
		Actor:   "@alice:example.com",
		Target:  "web01",
		Message: "virtual machine created",
		Details: map[string]string{"location": "East Us", "request_id": "r1"},
		TraceID: "t_abc123",
	})

	if len(sender.notices) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(sender.notices))
	}
	msg := sender.notices[0]
	for _, want := range []string{"✅ web01 → virtual machine created", "location: East Us", "request_id: r1", "trace: t_abc123", "actor: @alice:example.com"} {
		if !strings.Contains(msg, want) {
			t.Errorf("notice missing %q: %q", want, msg)
		}
	}
	if strings.Index(msg, "location") > strings.Index(msg, "request_id") {
		t.Errorf("details not sorted: %q", msg)
	}
}

func TestMatrixNotifier_TraceFromContext(t *testing.T) {
	sender := &fakeSender{}
	n := audit.NewMatrixNotifier(sender, "!audit:example.com")

	ctx := trace.WithTraceID(context.Background(), "t_ctx")
	n.Notify(ctx, audit.Event{Kind: audit.KindAccessDenied, Message: "denied"})

	if len(sender.notices) != 1 || !strings.Contains(sender.notices[0], "trace: t_ctx") {
		t.Fatalf("notices = %q", sender.notices)
	}
	if !strings.HasPrefix(sender.notices[0], "🚫 [access.denied] denied") {
		t.Errorf("untargeted notice = %q", sender.notices[0])
	}
}

func TestMatrixNotifier_NoopWhenEmptyRoom(t *testing.T) {
	sender := &fakeSender{}
	audit.NewMatrixNotifier(sender, "").Notify(context.Background(), audit.Event{Kind: audit.KindError})
	if len(sender.notices) != 0 {
		t.Fatalf("expected no notices for empty room, got %d", len(sender.notices))
	}
}

func TestMatrixNotifier_SendErrorIsSwallowed(t *testing.T) {
	sender := &fakeSender{err: errors.New("m_forbidden")}
	// Must not panic or propagate.
	audit.NewMatrixNotifier(sender, "!audit:example.com").Notify(context.Background(), audit.Event{Kind: audit.KindError})
}

func TestStoreNotifier_Results(t *testing.T) {
	w := &fakeWriter{}
	n := audit.NewStoreNotifier(w)
	ctx := trace.WithTraceID(context.Background(), "t_1")

	n.Notify(ctx, audit.Event{Kind: audit.KindProvisioningRequested, Actor: "@a:x", Target: "r1", Details: map[string]string{"type": "web_app"}})
	n.Notify(ctx, audit.Event{Kind: audit.KindProvisioningFailed, Actor: "@a:x", Target: "r1", Message: "quota exceeded"})
	n.Notify(ctx, audit.Event{Kind: audit.KindAccessDenied, Actor: "@b:x"})

	if len(w.rows) != 3 {
		t.Fatalf("rows = %d", len(w.rows))
	}
	if r := w.rows[0]; r.result != store.ResultSuccess || r.traceID != "t_1" || r.payload["type"] != "web_app" {
		t.Errorf("requested row = %+v", r)
	}
	if r := w.rows[1]; r.result != store.ResultError || r.errMsg != "quota exceeded" || r.payload != nil {
		t.Errorf("failed row = %+v", r)
	}
	if r := w.rows[2]; r.result != store.ResultDenied || r.action != "access.denied" {
		t.Errorf("denied row = %+v", r)
	}
}

func TestStoreNotifier_WithSQLite(t *testing.T) {
	s, err := store.New(t.TempDir() + "/audit.db")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := trace.WithTraceID(context.Background(), "t_sql")
	audit.NewStoreNotifier(s).Notify(ctx, audit.Event{Kind: audit.KindProvisioningCompleted, Actor: "@a:x", Target: "r9"})

	entries, err := s.GetAuditByTrace(ctx, "t_sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Action != "provisioning.completed" || entries[0].Target.String != "r9" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestMulti(t *testing.T) {
	sender := &fakeSender{}
	w := &fakeWriter{}
	m := audit.Multi{audit.NewStoreNotifier(w), audit.NewMatrixNotifier(sender, "!audit:example.com"), audit.Noop{}}

	m.Notify(context.Background(), audit.Event{Kind: audit.KindError, Message: "boom"})
	if len(w.rows) != 1 || len(sender.notices) != 1 {
		t.Errorf("rows=%d notices=%d", len(w.rows), len(sender.notices))
	}
}
