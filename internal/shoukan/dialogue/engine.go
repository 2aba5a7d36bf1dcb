// Package dialogue implements the per-conversation state machine that turns
// chat messages into confirmed provisioning requests.
//
// Every inbound message is handled by Engine.Handle, which checks in order:
//
//  1. permission gate (denied users never touch a context)
//  2. cancel words, help phrases, listing words
//  3. the conversation state: collecting answers, idle or awaiting
//     confirmation. A bare yes or no while idle is told there is nothing
//     to confirm.
//
// Handle always returns a Reply. Unexpected faults, including panics, are
// logged with the turn's trace ID and turned into a generic retry message.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/Shoukan/common/trace"
	"github.com/bdobrica/Shoukan/internal/shoukan/conversation"
	"github.com/bdobrica/Shoukan/internal/shoukan/extract"
	"github.com/bdobrica/Shoukan/internal/shoukan/message"
	"github.com/bdobrica/Shoukan/internal/shoukan/orchestrator"
	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

// Kind classifies a reply.
type Kind string

const (
	KindOK                  Kind = "ok"
	KindAmbiguousInput      Kind = "ambiguous_input"
	KindIncompleteRequest   Kind = "incomplete_request"
	KindPermissionDenied    Kind = "permission_denied"
	KindProvisioningFailure Kind = "provisioning_failure"
	KindInternalError       Kind = "internal_error"
)

// Turn is one inbound chat message.
type Turn struct {
	UserID         string
	ConversationID string
	Text           string
}

// Reply is the engine's answer to a Turn.
type Reply struct {
	Message message.Message
	Kind    Kind
	// State is the conversation state after the turn.
	State conversation.State
}

// Authorizer decides whether a user may use the engine.
type Authorizer interface {
	IsAuthorized(userID string) bool
}

// Lister returns existing resources. Failures are reported as an empty slice.
type Lister interface {
	ListResources(ctx context.Context, resourceGroup string) []resource.Resource
}

// Config holds the engine's collaborators.
type Config struct {
	Store        *conversation.Store
	Orchestrator *orchestrator.Orchestrator

	// Lister serves listing requests. When nil, listing replies with an
	// apology.
	Lister Lister
	// Gate is consulted before every turn. When nil, everyone is allowed.
	Gate Authorizer
	// ResourceGroup is the group listed for "list resources".
	ResourceGroup string

	// Now is the clock for new requests. Default: time.Now.
	Now func() time.Time
}

// Engine is the dialogue state machine. It is safe for concurrent use;
// turns for the same conversation are serialized by the store.
type Engine struct {
	store  *conversation.Store
	orch   *orchestrator.Orchestrator
	lister Lister
	gate   Authorizer
	group  string
	now    func() time.Time
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:  cfg.Store,
		orch:   cfg.Orchestrator,
		lister: cfg.Lister,
		gate:   cfg.Gate,
		group:  cfg.ResourceGroup,
		now:    cfg.Now,
	}
}

// Welcome is sent when a user joins a conversation. It does not touch any
// conversation state.
func Welcome() message.Message {
	return message.Text(textWelcome)
}

// Help returns the capability summary.
func Help() message.Message {
	return message.Text(textHelp)
}

// Handle processes one turn. progress, when non-nil, receives interim
// messages (the in-progress notice while provisioning runs).
func (e *Engine) Handle(ctx context.Context, turn Turn, progress orchestrator.ProgressFunc) (reply Reply) {
	ctx = trace.Ensure(ctx)
	traceID := trace.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("dialogue: panic while handling message",
				"trace_id", traceID,
				"user", turn.UserID,
				"conversation", turn.ConversationID,
				"panic", fmt.Sprint(r),
			)
			reply = Reply{Message: message.Text(textInternalError), Kind: KindInternalError}
		}
	}()

	if e.gate != nil && !e.gate.IsAuthorized(turn.UserID) {
		slog.Warn("dialogue: unauthorized user", "trace_id", traceID, "user", turn.UserID)
		return Reply{Message: message.Text(textPermissionDenied), Kind: KindPermissionDenied}
	}

	if evicted := e.store.EvictExpired(e.store.TTL()); len(evicted) > 0 {
		slog.Debug("dialogue: evicted idle conversations", "trace_id", traceID, "count", len(evicted))
	}

	c, release := e.store.Acquire(turn.UserID, turn.ConversationID)
	defer release()

	msg, kind := e.step(ctx, c, turn.Text, progress)

	slog.Debug("dialogue: turn handled",
		"trace_id", traceID,
		"user", turn.UserID,
		"conversation", turn.ConversationID,
		"kind", kind,
		"state", c.State(),
	)
	return Reply{Message: msg, Kind: kind, State: c.State()}
}

// step runs the state machine for one message on a held context.
func (e *Engine) step(ctx context.Context, c *conversation.Context, text string, progress orchestrator.ProgressFunc) (message.Message, Kind) {
	lower := normalise(text)

	switch {
	case isOneOf(lower, cancelWords):
		c.Reset()
		return message.Text(textCancelled), KindOK
	case isOneOf(lower, helpPhrases):
		return Help(), KindOK
	case mentionsAny(lower, listWords):
		return e.list(ctx), KindOK
	}

	switch c.State() {
	case conversation.StateCollectingParameters:
		return e.collect(ctx, c, text)
	case conversation.StateAwaitingConfirmation:
		return e.confirm(ctx, c, lower, progress)
	case conversation.StateIdle:
		if isOneOf(lower, confirmationPositiveWords) {
			return e.confirm(ctx, c, lower, progress)
		}
		if isOneOf(lower, confirmationNegativeWords) {
			return orchestrator.NothingToConfirm(), KindOK
		}
		return e.start(ctx, c, text)
	default:
		// Provisioning never outlives the turn that started it.
		return message.Text(textInternalError), KindInternalError
	}
}

// start runs the extractor on a message received while idle.
func (e *Engine) start(ctx context.Context, c *conversation.Context, text string) (message.Message, Kind) {
	draft := extract.Parse(text, c.UserID, e.now())

	switch {
	case draft.Ambiguous():
		return message.Text(extract.QuestionResourceType), KindAmbiguousInput
	case draft.Complete():
		return e.ready(ctx, c, draft.Request)
	}

	c.CurrentRequest = draft.Request
	c.PendingQuestions = draft.Missing
	return message.Text(textNeedMoreInfo + "\n\n" + draft.Missing[0]), KindIncompleteRequest
}

// collect applies a message as the answer to the front pending question.
func (e *Engine) collect(ctx context.Context, c *conversation.Context, text string) (message.Message, Kind) {
	question, _ := c.NextQuestion()

	err := extract.ApplyAnswer(c.CurrentRequest, question, text)
	if errors.Is(err, extract.ErrUnusableAnswer) {
		return message.Text(question + "\n\n" + extract.Hint(question)), KindIncompleteRequest
	}
	if err != nil {
		slog.Warn("dialogue: cannot apply answer",
			"trace_id", trace.FromContext(ctx), "question", question, "err", err)
		c.Reset()
		return message.Text(textInvalidRequest), KindInternalError
	}

	c.Answer(text)
	if next, ok := c.NextQuestion(); ok {
		return message.Text(next), KindIncompleteRequest
	}
	return e.ready(ctx, c, c.CurrentRequest)
}

// ready stores a complete request and asks for confirmation. When a slot
// value breaks the schema, that slot is asked for again; any other
// validation failure drops the request.
func (e *Engine) ready(ctx context.Context, c *conversation.Context, req *resource.Request) (message.Message, Kind) {
	err := resource.Validate(req)
	if err == nil {
		c.CurrentRequest = req
		c.PendingQuestions = nil
		return orchestrator.Prompt(req), KindOK
	}

	slog.Warn("dialogue: request failed validation",
		"trace_id", trace.FromContext(ctx), "type", req.Type, "err", err)
	var verr *resource.ValidationError
	if errors.As(err, &verr) {
		if questions, ok := extract.Reopen(req, verr.Fields); ok {
			c.CurrentRequest = req
			c.PendingQuestions = questions
			return message.Text(questions[0] + "\n\n" + extract.Hint(questions[0])), KindIncompleteRequest
		}
	}
	c.Reset()
	return message.Text(textInvalidRequest), KindIncompleteRequest
}

// confirm handles a message received while a request awaits confirmation.
func (e *Engine) confirm(ctx context.Context, c *conversation.Context, lower string, progress orchestrator.ProgressFunc) (message.Message, Kind) {
	confirmed, ok := confirmation(lower)
	if !ok {
		return message.Message{
			Text:             textConfirmReminder,
			SuggestedActions: message.YesNo(),
		}, KindOK
	}

	msg, err := e.orch.Confirm(ctx, c, confirmed, progress)
	switch {
	case err == nil, errors.Is(err, orchestrator.ErrNothingToConfirm):
		return msg, KindOK
	case errors.Is(err, orchestrator.ErrProvisioningFailed):
		return msg, KindProvisioningFailure
	default:
		slog.Error("dialogue: confirm failed", "trace_id", trace.FromContext(ctx), "err", err)
		return message.Text(textInternalError), KindInternalError
	}
}

func (e *Engine) list(ctx context.Context) message.Message {
	if e.lister == nil {
		return message.Text(textListUnavailable)
	}
	return message.Text(formatResources(e.lister.ListResources(ctx, e.group)))
}
