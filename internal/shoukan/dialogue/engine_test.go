package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/Shoukan/internal/shoukan/conversation"
	"github.com/bdobrica/Shoukan/internal/shoukan/extract"
	"github.com/bdobrica/Shoukan/internal/shoukan/message"
	"github.com/bdobrica/Shoukan/internal/shoukan/orchestrator"
	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

const (
	alice = "@alice:example.com"
	bob   = "@bob:example.com"
	room  = "!room:example.com"
)

type fakeProvisioner struct {
	mu    sync.Mutex
	calls []*resource.Request
	resp  resource.Response
	panic bool
}

func (f *fakeProvisioner) Provision(_ context.Context, req *resource.Request) resource.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.panic {
		panic("backend exploded")
	}
	return f.resp
}

func (f *fakeProvisioner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLister struct {
	resources []resource.Resource
	group     string
}

func (f *fakeLister) ListResources(_ context.Context, group string) []resource.Resource {
	f.group = group
	return f.resources
}

type allowList map[string]bool

func (a allowList) IsAuthorized(user string) bool { return a[user] }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine *Engine
	store  *conversation.Store
	prov   *fakeProvisioner
	lister *fakeLister
	clock  *clock
}

func newHarness(t *testing.T, gate Authorizer) *harness {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := conversation.NewStore(conversation.StoreConfig{Now: clk.Now})
	prov := &fakeProvisioner{resp: resource.Response{Status: resource.StatusCompleted, ResourceID: "/sub/x"}}
	lister := &fakeLister{}
	engine := New(Config{
		Store:         store,
		Orchestrator:  orchestrator.New(orchestrator.Config{Provisioner: prov}),
		Lister:        lister,
		Gate:          gate,
		ResourceGroup: "azure-provisioning-rg",
		Now:           clk.Now,
	})
	return &harness{engine: engine, store: store, prov: prov, lister: lister, clock: clk}
}

func (h *harness) say(t *testing.T, user, text string) Reply {
	t.Helper()
	return h.engine.Handle(context.Background(), Turn{UserID: user, ConversationID: room, Text: text}, nil)
}

func expectState(t *testing.T, r Reply, want conversation.State) {
	t.Helper()
	if r.State != want {
		t.Fatalf("state = %s, want %s (reply %q)", r.State, want, r.Message.Text)
	}
}

func TestScenarioA_CompleteRequestThenYes(t *testing.T) {
	h := newHarness(t, nil)

	r := h.say(t, alice, "Create a Windows VM named web01 in East US, username admin")
	expectState(t, r, conversation.StateAwaitingConfirmation)
	if r.Kind != KindOK {
		t.Errorf("kind = %s", r.Kind)
	}
	if r.Message.Text != "I'll create a Virtual Machine named 'web01' in East Us. Is this correct?" {
		t.Errorf("prompt = %q", r.Message.Text)
	}
	if len(r.Message.SuggestedActions) != 2 {
		t.Errorf("missing yes/no actions")
	}

	r = h.say(t, alice, "yes")
	expectState(t, r, conversation.StateIdle)
	if r.Message.Text != "✅ Virtual Machine 'web01' created in East Us." {
		t.Errorf("result = %q", r.Message.Text)
	}
	if h.prov.count() != 1 {
		t.Fatalf("provision calls = %d, want 1", h.prov.count())
	}
	req := h.prov.calls[0]
	if req.Param(resource.ParamVMType) != "windows" || req.Param(resource.ParamAdminUsername) != "admin" || req.RequestID == "" {
		t.Errorf("provisioned request = %+v", req)
	}
}

func TestScenarioB_SlotFilling(t *testing.T) {
	h := newHarness(t, nil)

	r := h.say(t, alice, "I need a storage account")
	expectState(t, r, conversation.StateCollectingParameters)
	if r.Kind != KindIncompleteRequest {
		t.Errorf("kind = %s", r.Kind)
	}
	if !strings.HasSuffix(r.Message.Text, extract.QuestionName) {
		t.Errorf("first question = %q", r.Message.Text)
	}

	snap, _ := h.store.Snapshot(alice, room)
	want := []string{extract.QuestionName, extract.QuestionLocation}
	if fmt.Sprint(snap.PendingQuestions) != fmt.Sprint(want) {
		t.Errorf("pending = %v, want %v", snap.PendingQuestions, want)
	}
	if snap.Request.Param(resource.ParamSKU) != "Standard_LRS" || snap.Request.Param(resource.ParamAccessTier) != "Hot" {
		t.Errorf("storage defaults = %v", snap.Request.Parameters)
	}

	r = h.say(t, alice, "data01")
	expectState(t, r, conversation.StateCollectingParameters)
	if r.Message.Text != extract.QuestionLocation {
		t.Errorf("second question = %q", r.Message.Text)
	}

	r = h.say(t, alice, "West Europe")
	expectState(t, r, conversation.StateAwaitingConfirmation)
	if r.Message.Text != "I'll create a Storage Account named 'data01' in West Europe. Is this correct?" {
		t.Errorf("prompt = %q", r.Message.Text)
	}

	snap, _ = h.store.Snapshot(alice, room)
	if snap.Collected[extract.QuestionName] != "data01" || snap.Collected[extract.QuestionLocation] != "West Europe" {
		t.Errorf("collected = %v", snap.Collected)
	}
}

func TestScenarioC_CancelWhileAwaitingConfirmation(t *testing.T) {
	h := newHarness(t, nil)

	h.say(t, alice, "Create a Linux VM named api in West US, username ops")
	r := h.say(t, alice, "cancel")
	expectState(t, r, conversation.StateIdle)
	if r.Message.Text != "Operation cancelled. How can I help you?" {
		t.Errorf("text = %q", r.Message.Text)
	}
	if h.prov.count() != 0 {
		t.Errorf("provisioner called")
	}

	r = h.say(t, alice, "yes")
	expectState(t, r, conversation.StateIdle)
	if r.Kind != KindOK || !strings.HasPrefix(r.Message.Text, "No pending request to confirm") {
		t.Errorf("late yes = %s %q", r.Kind, r.Message.Text)
	}
	if h.prov.count() != 0 {
		t.Errorf("provisioner called by a late yes")
	}
}

func TestBareYesOrNoWhileIdle(t *testing.T) {
	for _, text := range []string{"yes", "Yes!", "ok", "no", "nope"} {
		t.Run(text, func(t *testing.T) {
			h := newHarness(t, nil)
			r := h.say(t, alice, text)
			expectState(t, r, conversation.StateIdle)
			if r.Kind != KindOK || r.Message.Text != "No pending request to confirm. Please start a new request." {
				t.Errorf("reply = %s %q", r.Kind, r.Message.Text)
			}
		})
	}

	// A confirmation word inside a request is still a request.
	h := newHarness(t, nil)
	r := h.say(t, alice, "yes, create a storage account named logs01 in UK South")
	expectState(t, r, conversation.StateAwaitingConfirmation)
}

func TestScenarioD_StaleContextEvictedOnNextMessage(t *testing.T) {
	h := newHarness(t, nil)

	h.say(t, alice, "I need a storage account")
	h.clock.Advance(25 * time.Hour)
	h.say(t, bob, "help")

	if _, ok := h.store.Snapshot(alice, room); ok {
		t.Fatal("25h-old context survived")
	}

	r := h.say(t, alice, "data01")
	if r.Kind != KindAmbiguousInput {
		t.Errorf("answer after eviction kind = %s, want ambiguous_input", r.Kind)
	}
}

func TestContextKeptWithinTTL(t *testing.T) {
	h := newHarness(t, nil)

	h.say(t, alice, "I need a storage account")
	h.clock.Advance(23 * time.Hour)
	r := h.say(t, alice, "data01")
	if r.Message.Text != extract.QuestionLocation {
		t.Errorf("context lost within TTL: %q", r.Message.Text)
	}
}

func TestAmbiguousInputStaysIdle(t *testing.T) {
	h := newHarness(t, nil)

	r := h.say(t, alice, "hello there")
	expectState(t, r, conversation.StateIdle)
	if r.Kind != KindAmbiguousInput || r.Message.Text != extract.QuestionResourceType {
		t.Errorf("reply = %+v", r)
	}
}

func TestPermissionDeniedDoesNotTouchContext(t *testing.T) {
	h := newHarness(t, allowList{alice: true})

	r := h.say(t, bob, "Create a storage account named x1 in East US")
	if r.Kind != KindPermissionDenied {
		t.Fatalf("kind = %s", r.Kind)
	}
	if !strings.Contains(r.Message.Text, "don't have permission") {
		t.Errorf("text = %q", r.Message.Text)
	}
	if h.store.Len() != 0 {
		t.Errorf("denied turn created a context")
	}

	r = h.say(t, alice, "help")
	if r.Kind != KindOK {
		t.Errorf("allowed user kind = %s", r.Kind)
	}
}

func TestControlWords(t *testing.T) {
	h := newHarness(t, nil)

	for _, text := range []string{"help", "HELP", "What can you do?"} {
		r := h.say(t, alice, text)
		if !strings.HasPrefix(r.Message.Text, "🤖 **Azure Resource Provisioning Agent**") {
			t.Errorf("%q: not help: %q", text, r.Message.Text)
		}
	}

	// "helpful" is not the help command and contains no resource type.
	if r := h.say(t, alice, "helpful"); r.Kind != KindAmbiguousInput {
		t.Errorf("helpful: kind = %s", r.Kind)
	}

	// Cancel must be the whole message.
	r := h.say(t, alice, "stop the storage account named x1 in East US")
	if r.Message.Text == textCancelled {
		t.Error("cancel matched inside a longer message")
	}
}

func TestListResources(t *testing.T) {
	h := newHarness(t, nil)

	r := h.say(t, alice, "list resources")
	if r.Message.Text != "No resources found in the default resource group." {
		t.Errorf("empty = %q", r.Message.Text)
	}
	if h.lister.group != "azure-provisioning-rg" {
		t.Errorf("group = %q", h.lister.group)
	}

	for i := 0; i < 12; i++ {
		h.lister.resources = append(h.lister.resources, resource.Resource{
			Name: fmt.Sprintf("r%02d", i), Type: "Microsoft.Web/sites", Location: "East Us",
		})
	}
	r = h.say(t, alice, "show me everything")
	lines := strings.Split(r.Message.Text, "\n")
	if lines[0] != "Here are your resources:" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != "• r00 (Microsoft.Web/sites) - East Us" {
		t.Errorf("first line = %q", lines[2])
	}
	if strings.Count(r.Message.Text, "• ") != 10 {
		t.Errorf("listed %d resources, want 10", strings.Count(r.Message.Text, "• "))
	}
	if !strings.HasSuffix(r.Message.Text, "\n\n... and 2 more resources.") {
		t.Errorf("missing overflow line: %q", r.Message.Text)
	}
}

func TestListWithoutLister(t *testing.T) {
	e := New(Config{Store: conversation.NewStore(conversation.StoreConfig{})})
	r := e.Handle(context.Background(), Turn{UserID: alice, ConversationID: room, Text: "list"}, nil)
	if r.Message.Text != textListUnavailable {
		t.Errorf("text = %q", r.Message.Text)
	}
}

func TestUnusableAnswerIsAskedAgain(t *testing.T) {
	h := newHarness(t, nil)

	h.say(t, alice, "Create a VM named build01 in North Europe")
	r := h.say(t, alice, "I'm not sure honestly")
	expectState(t, r, conversation.StateCollectingParameters)
	if !strings.HasPrefix(r.Message.Text, extract.QuestionVMType) || !strings.Contains(r.Message.Text, "Windows or Linux") {
		t.Errorf("re-ask = %q", r.Message.Text)
	}

	r = h.say(t, alice, "linux")
	if r.Message.Text != extract.QuestionUsername {
		t.Errorf("next question = %q", r.Message.Text)
	}
	r = h.say(t, alice, "azureuser")
	expectState(t, r, conversation.StateAwaitingConfirmation)
}

func TestOverlongAnswerIsAskedAgain(t *testing.T) {
	h := newHarness(t, nil)

	h.say(t, alice, "Create a Linux VM named web01 in East US")
	r := h.say(t, alice, "averyveryverylongusername123")
	expectState(t, r, conversation.StateCollectingParameters)
	if r.Kind != KindIncompleteRequest || !strings.HasPrefix(r.Message.Text, extract.QuestionUsername) {
		t.Fatalf("reply = %s %q", r.Kind, r.Message.Text)
	}

	r = h.say(t, alice, "admin")
	expectState(t, r, conversation.StateAwaitingConfirmation)
	if want := "I'll create a Virtual Machine named 'web01' in East Us. Is this correct?"; r.Message.Text != want {
		t.Errorf("prompt = %q, want %q", r.Message.Text, want)
	}
}

func TestSchemaViolationInFirstMessageAsksForThatSlot(t *testing.T) {
	h := newHarness(t, nil)

	long := strings.Repeat("n", 65)
	r := h.say(t, alice, "Create a Linux VM named "+long+" in East US, username admin")
	expectState(t, r, conversation.StateCollectingParameters)
	if r.Kind != KindIncompleteRequest || !strings.HasPrefix(r.Message.Text, extract.QuestionName) {
		t.Fatalf("reply = %s %q", r.Kind, r.Message.Text)
	}

	r = h.say(t, alice, "web01")
	expectState(t, r, conversation.StateAwaitingConfirmation)
	if want := "I'll create a Virtual Machine named 'web01' in East Us. Is this correct?"; r.Message.Text != want {
		t.Errorf("prompt = %q, want %q", r.Message.Text, want)
	}
	if h.prov.count() != 0 {
		t.Error("nothing should be provisioned before confirmation")
	}
}

func TestAwaitingConfirmationRemindsOnOtherText(t *testing.T) {
	h := newHarness(t, nil)

	h.say(t, alice, "Create a storage account named logs01 in UK South")
	r := h.say(t, alice, "hmm let me think")
	expectState(t, r, conversation.StateAwaitingConfirmation)
	if r.Message.Text != textConfirmReminder {
		t.Errorf("text = %q", r.Message.Text)
	}

	r = h.say(t, alice, "no thanks")
	expectState(t, r, conversation.StateIdle)
	if r.Message.Text != "Request cancelled. How can I help you?" {
		t.Errorf("decline = %q", r.Message.Text)
	}
	if h.prov.count() != 0 {
		t.Error("provisioner called on decline")
	}
}

func TestProvisioningFailureResetsConversation(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.resp = resource.Response{Status: resource.StatusFailed, Message: "name already taken"}

	h.say(t, alice, "Create a storage account named logs01 in UK South")
	r := h.say(t, alice, "go ahead")
	expectState(t, r, conversation.StateIdle)
	if r.Kind != KindProvisioningFailure {
		t.Errorf("kind = %s", r.Kind)
	}
	if r.Message.Text != "❌ Failed to create resource: name already taken" {
		t.Errorf("text = %q", r.Message.Text)
	}
}

func TestProgressMessageDuringProvisioning(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, alice, "Create a storage account named logs01 in UK South")

	var progress []message.Message
	h.engine.Handle(context.Background(), Turn{UserID: alice, ConversationID: room, Text: "yes"}, func(m message.Message) {
		progress = append(progress, m)
	})
	if len(progress) != 1 || !progress[0].IsTyping {
		t.Fatalf("progress = %+v", progress)
	}
	if progress[0].Text != "Creating your Storage Account 'logs01' in Uk South. This may take a few minutes." {
		t.Errorf("progress text = %q", progress[0].Text)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.panic = true

	h.say(t, alice, "Create a storage account named logs01 in UK South")
	r := h.say(t, alice, "yes")
	if r.Kind != KindInternalError || r.Message.Text != textInternalError {
		t.Fatalf("reply = %+v", r)
	}

	// The conversation is usable afterwards.
	r = h.say(t, alice, "help")
	if r.Kind != KindOK {
		t.Errorf("after panic kind = %s", r.Kind)
	}
	snap, ok := h.store.Snapshot(alice, room)
	if !ok || snap.State != conversation.StateIdle {
		t.Errorf("after panic state = %+v", snap)
	}
}

func TestConcurrentConversations(t *testing.T) {
	h := newHarness(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("@u%d:example.com", i)
			turn := Turn{UserID: user, ConversationID: room}
			turn.Text = fmt.Sprintf("Create a storage account named acct%d in East US", i)
			h.engine.Handle(context.Background(), turn, nil)
			turn.Text = "yes"
			h.engine.Handle(context.Background(), turn, nil)
		}(i)
	}
	wg.Wait()

	if h.prov.count() != 20 {
		t.Errorf("provision calls = %d, want 20", h.prov.count())
	}
}

func TestWelcome(t *testing.T) {
	msg := Welcome()
	if !strings.HasPrefix(msg.Text, "👋 Welcome!") || !strings.HasSuffix(msg.Text, "type 'help' for more information.") {
		t.Errorf("welcome = %q", msg.Text)
	}
}

func TestConfirmationWords(t *testing.T) {
	tests := []struct {
		in            string
		confirmed, ok bool
	}{
		{"yes", true, true},
		{"y", true, true},
		{"yes please", true, true},
		{"go ahead", true, true},
		{"sure, do it", true, true},
		{"no", false, true},
		{"nope", false, true},
		{"never mind", false, true},
		{"yesterday", false, false},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		confirmed, ok := confirmation(normalise(tt.in))
		if confirmed != tt.confirmed || ok != tt.ok {
			t.Errorf("confirmation(%q) = %v, %v; want %v, %v", tt.in, confirmed, ok, tt.confirmed, tt.ok)
		}
	}
}
