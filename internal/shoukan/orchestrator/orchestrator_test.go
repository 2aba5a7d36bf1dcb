package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Shoukan/internal/shoukan/conversation"
	"github.com/bdobrica/Shoukan/internal/shoukan/message"
	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

type fakeProvisioner struct {
	calls []*resource.Request
	resp  resource.Response
}

func (f *fakeProvisioner) Provision(_ context.Context, req *resource.Request) resource.Response {
	f.calls = append(f.calls, req)
	return f.resp
}

func vmRequest() *resource.Request {
	req := resource.NewRequest(resource.TypeVirtualMachine, "@alice:example.com", time.Now())
	req.Name = "web01"
	req.Location = "East Us"
	req.Parameters[resource.ParamVMType] = string(resource.OSWindows)
	req.Parameters[resource.ParamAdminUsername] = "admin"
	return req
}

// heldContext returns a context from a fresh store with the given request
// pending. The release func is registered as cleanup.
func heldContext(t *testing.T, req *resource.Request) *conversation.Context {
	t.Helper()
	s := conversation.NewStore(conversation.StoreConfig{})
	c, release := s.Acquire("@alice:example.com", "!room:example.com")
	t.Cleanup(release)
	c.CurrentRequest = req
	c.CollectedParameters["q"] = "a"
	return c
}

func newTestOrchestrator(p Provisioner) *Orchestrator {
	return New(Config{Provisioner: p, NewRequestID: func() string { return "req-1" }})
}

func TestConfirm_DeclineClearsWithoutProvisioning(t *testing.T) {
	p := &fakeProvisioner{}
	c := heldContext(t, vmRequest())
	c.PendingQuestions = []string{"left over"}

	msg, err := newTestOrchestrator(p).Confirm(context.Background(), c, false, nil)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if msg.Text != "Request cancelled. How can I help you?" {
		t.Errorf("Text = %q", msg.Text)
	}
	if len(p.calls) != 0 {
		t.Errorf("provisioner called %d times", len(p.calls))
	}
	if c.CurrentRequest != nil || len(c.PendingQuestions) != 0 || len(c.CollectedParameters) != 0 {
		t.Errorf("context not cleared: %+v", c)
	}
}

func TestConfirm_NothingToConfirmLeavesContext(t *testing.T) {
	p := &fakeProvisioner{}
	c := heldContext(t, nil)

	msg, err := newTestOrchestrator(p).Confirm(context.Background(), c, true, nil)
	if !errors.Is(err, ErrNothingToConfirm) {
		t.Fatalf("err = %v, want ErrNothingToConfirm", err)
	}
	if !strings.Contains(msg.Text, "No pending request to confirm") {
		t.Errorf("Text = %q", msg.Text)
	}
	if c.CollectedParameters["q"] != "a" {
		t.Error("context mutated")
	}
	if len(p.calls) != 0 {
		t.Error("provisioner called")
	}
}

func TestConfirm_Completed(t *testing.T) {
	p := &fakeProvisioner{resp: resource.Response{Status: resource.StatusCompleted, ResourceID: "/x"}}
	c := heldContext(t, vmRequest())

	var progress []message.Message
	msg, err := newTestOrchestrator(p).Confirm(context.Background(), c, true, func(m message.Message) {
		progress = append(progress, m)
		if c.State() != conversation.StateProvisioning {
			t.Errorf("state during progress = %s", c.State())
		}
	})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if msg.Text != "✅ Virtual Machine 'web01' created in East Us." {
		t.Errorf("Text = %q", msg.Text)
	}
	if len(p.calls) != 1 || p.calls[0].RequestID != "req-1" {
		t.Fatalf("calls = %+v", p.calls)
	}
	if len(progress) != 1 || !progress[0].IsTyping ||
		progress[0].Text != "Creating your Virtual Machine 'web01' in East Us. This may take a few minutes." {
		t.Errorf("progress = %+v", progress)
	}
	if c.State() != conversation.StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
}

func TestConfirm_FailureStillResets(t *testing.T) {
	p := &fakeProvisioner{resp: resource.Response{Status: resource.StatusFailed, Message: "quota exceeded"}}
	c := heldContext(t, vmRequest())

	msg, err := newTestOrchestrator(p).Confirm(context.Background(), c, true, nil)
	if !errors.Is(err, ErrProvisioningFailed) {
		t.Fatalf("err = %v, want ErrProvisioningFailed", err)
	}
	if msg.Text != "❌ Failed to create resource: quota exceeded" {
		t.Errorf("Text = %q", msg.Text)
	}
	if c.State() != conversation.StateIdle || c.CurrentRequest != nil {
		t.Errorf("context not reset after failure: %+v", c)
	}
}

func TestConfirm_DoesNotMutatePendingRequest(t *testing.T) {
	p := &fakeProvisioner{resp: resource.Response{Status: resource.StatusCompleted}}
	req := vmRequest()
	c := heldContext(t, req)

	if _, err := newTestOrchestrator(p).Confirm(context.Background(), c, true, nil); err != nil {
		t.Fatal(err)
	}
	if req.RequestID != "" {
		t.Errorf("original request got RequestID %q", req.RequestID)
	}
}

func TestGenerateResponse(t *testing.T) {
	req := resource.NewRequest(resource.TypeStorageAccount, "u", time.Now())
	req.Name = "data01"
	req.Location = "West Europe"

	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseConfirm, "I'll create a Storage Account named 'data01' in West Europe. Is this correct?"},
		{PhaseInProgress, "Creating your Storage Account 'data01' in West Europe. This may take a few minutes."},
		{PhaseCompleted, "✅ Your Storage Account 'data01' has been successfully created in West Europe!"},
		{PhaseFailed, "❌ Sorry, I couldn't create the Storage Account. Please try again or contact support."},
		{Phase("bogus"), ""},
	}
	for _, tt := range tests {
		if got := GenerateResponse(req, tt.phase); got != tt.want {
			t.Errorf("GenerateResponse(%s) = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestPrompt(t *testing.T) {
	req := vmRequest()
	req.Tags[resource.TagEnvironment] = "production"

	msg := Prompt(req)
	if msg.Text != "I'll create a Virtual Machine named 'web01' in East Us. Is this correct?" {
		t.Errorf("Text = %q", msg.Text)
	}
	if len(msg.SuggestedActions) != 2 || msg.SuggestedActions[0].Value != "yes" || msg.SuggestedActions[1].Value != "no" {
		t.Errorf("actions = %+v", msg.SuggestedActions)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %+v", msg.Attachments)
	}

	got := map[string]string{}
	for _, f := range msg.Attachments[0].Fields {
		got[f.Name] = f.Value
	}
	want := map[string]string{
		"Type":            "Virtual Machine",
		"Name":            "web01",
		"Location":        "East Us",
		"Admin Username":  "admin",
		"Vm Type":         "windows",
		"Tag environment": "production",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %q = %q, want %q", k, got[k], v)
		}
	}
}
