// Package orchestrator turns a confirmed request into a provisioning call and
// a human-readable outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Shoukan/common/trace"
	"github.com/bdobrica/Shoukan/internal/shoukan/conversation"
	"github.com/bdobrica/Shoukan/internal/shoukan/message"
	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

var (
	// ErrNothingToConfirm is returned when the user confirms but no request
	// is waiting. The context is left untouched.
	ErrNothingToConfirm = errors.New("no pending request to confirm")

	// ErrProvisioningFailed is returned (wrapped) when the provisioner
	// reports any status other than completed.
	ErrProvisioningFailed = errors.New("provisioning failed")
)

// Fixed replies.
const (
	textCancelled        = "Request cancelled. How can I help you?"
	textNothingToConfirm = "No pending request to confirm. Please start a new request."
)

// Provisioner executes a request. Implementations report failures through
// the response status and never return an error to the caller.
type Provisioner interface {
	Provision(ctx context.Context, req *resource.Request) resource.Response
}

// ProgressFunc receives interim messages while a request is being provisioned.
type ProgressFunc func(message.Message)

// Config holds configuration for the Orchestrator.
type Config struct {
	Provisioner Provisioner

	// NewRequestID generates request IDs. Default: random UUIDs.
	NewRequestID func() string
}

// Orchestrator runs the confirm step of a conversation.
type Orchestrator struct {
	prov  Provisioner
	newID func() string
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.NewRequestID == nil {
		cfg.NewRequestID = uuid.NewString
	}
	return &Orchestrator{prov: cfg.Provisioner, newID: cfg.NewRequestID}
}

// Confirm acts on the user's answer to a confirmation prompt.
//
// When confirmed is false the pending request is dropped and nothing is
// provisioned. When confirmed is true and a request is pending, a request ID
// is assigned, progress receives an in-progress message and the provisioner
// is called synchronously. The context is reset whatever the outcome.
//
// The returned message is always suitable for the user. The error is
// ErrNothingToConfirm or wraps ErrProvisioningFailed.
func (o *Orchestrator) Confirm(ctx context.Context, c *conversation.Context, confirmed bool, progress ProgressFunc) (message.Message, error) {
	if !confirmed {
		c.Reset()
		return message.Text(textCancelled), nil
	}

	req := c.CurrentRequest
	if req == nil {
		return NothingToConfirm(), ErrNothingToConfirm
	}

	req = req.Clone()
	req.RequestID = o.newID()

	c.SetProvisioning(true)
	defer c.Reset()

	if progress != nil {
		progress(message.Message{
			Text:     GenerateResponse(req, PhaseInProgress),
			IsTyping: true,
		})
	}

	slog.Info("provisioning started",
		"trace_id", trace.FromContext(ctx),
		"request_id", req.RequestID,
		"type", req.Type,
		"name", req.Name,
		"user", req.UserID,
	)
	started := time.Now()
	resp := o.prov.Provision(ctx, req)

	if resp.Status != resource.StatusCompleted {
		slog.Warn("provisioning failed",
			"trace_id", trace.FromContext(ctx),
			"request_id", req.RequestID,
			"status", resp.Status,
			"message", resp.Message,
			"duration", time.Since(started),
		)
		return message.Text("❌ Failed to create resource: " + resp.Message),
			fmt.Errorf("%w: %s", ErrProvisioningFailed, resp.Message)
	}

	slog.Info("provisioning completed",
		"trace_id", trace.FromContext(ctx),
		"request_id", req.RequestID,
		"resource_id", resp.ResourceID,
		"duration", time.Since(started),
	)
	return message.Text(fmt.Sprintf("✅ %s '%s' created in %s.", req.Type.Display(), req.Name, req.Location)), nil
}

// NothingToConfirm is the reply to a yes or no sent with no request pending.
func NothingToConfirm() message.Message {
	return message.Text(textNothingToConfirm)
}

// Prompt builds the confirmation question for req: the confirm sentence,
// Yes/No actions and a summary card.
func Prompt(req *resource.Request) message.Message {
	return message.Message{
		Text:             GenerateResponse(req, PhaseConfirm),
		SuggestedActions: message.YesNo(),
		Attachments:      []message.Attachment{Summary(req)},
	}
}

// Summary renders req as an attachment with one field per slot, followed by
// parameters and tags in key order.
func Summary(req *resource.Request) message.Attachment {
	fields := []message.Field{
		{Name: "Type", Value: req.Type.Display()},
		{Name: "Name", Value: req.Name},
		{Name: "Location", Value: req.Location},
	}
	if req.ResourceGroup != "" {
		fields = append(fields, message.Field{Name: "Resource group", Value: req.ResourceGroup})
	}
	for _, k := range sortedKeys(req.Parameters) {
		fields = append(fields, message.Field{Name: resource.TitleCase(underscoresToSpaces(k)), Value: req.Param(k)})
	}
	tagKeys := make([]string, 0, len(req.Tags))
	for k := range req.Tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		fields = append(fields, message.Field{Name: "Tag " + k, Value: req.Tags[k]})
	}
	return message.Attachment{Title: "Resource summary", Fields: fields}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
