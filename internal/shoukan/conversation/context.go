// Package conversation holds per-conversation dialogue state.
//
// A Context is created lazily on the first message of a (user, conversation)
// pair and evicted once it has been idle for longer than the store's TTL.
// Eviction happens when a message arrives, never on a timer.
package conversation

import (
	"time"

	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

// State is the dialogue phase derived from a Context's fields.
type State string

const (
	StateIdle                 State = "idle"
	StateCollectingParameters State = "collecting_parameters"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateProvisioning         State = "provisioning"
)

// Key identifies a conversation. The same conversation ID used by two
// users yields two distinct keys.
type Key struct {
	UserID         string
	ConversationID string
}

func (k Key) String() string {
	return k.ConversationID + ":" + k.UserID
}

// Context is the mutable dialogue state of one conversation. It must only
// be read or written while held through Store.Acquire.
type Context struct {
	UserID         string
	ConversationID string

	// CurrentRequest is the request under construction while questions are
	// pending, and the complete request while awaiting confirmation.
	CurrentRequest *resource.Request
	// PendingQuestions are asked front first.
	PendingQuestions []string
	// CollectedParameters maps each answered question to the raw answer.
	CollectedParameters map[string]string

	CreatedAt    time.Time
	LastActivity time.Time

	provisioning bool
}

func newContext(k Key, now time.Time) *Context {
	return &Context{
		UserID:              k.UserID,
		ConversationID:      k.ConversationID,
		CollectedParameters: make(map[string]string),
		CreatedAt:           now,
		LastActivity:        now,
	}
}

// Key returns the context's store key.
func (c *Context) Key() Key {
	return Key{UserID: c.UserID, ConversationID: c.ConversationID}
}

// State derives the dialogue phase from the context's fields.
func (c *Context) State() State {
	switch {
	case c.provisioning:
		return StateProvisioning
	case len(c.PendingQuestions) > 0:
		return StateCollectingParameters
	case c.CurrentRequest != nil:
		return StateAwaitingConfirmation
	default:
		return StateIdle
	}
}

// SetProvisioning marks the context as having a provisioning call in flight.
func (c *Context) SetProvisioning(v bool) {
	c.provisioning = v
}

// Reset clears the request, the pending questions and the collected answers,
// returning the context to Idle.
func (c *Context) Reset() {
	c.CurrentRequest = nil
	c.PendingQuestions = nil
	c.CollectedParameters = make(map[string]string)
	c.provisioning = false
}

// NextQuestion returns the question at the front of the queue.
func (c *Context) NextQuestion() (string, bool) {
	if len(c.PendingQuestions) == 0 {
		return "", false
	}
	return c.PendingQuestions[0], true
}

// Answer records answer under the front question and pops it.
func (c *Context) Answer(answer string) {
	q, ok := c.NextQuestion()
	if !ok {
		return
	}
	c.CollectedParameters[q] = answer
	c.PendingQuestions = c.PendingQuestions[1:]
}

// Snapshot is a read-only copy of a Context.
type Snapshot struct {
	Key              Key
	State            State
	Request          *resource.Request
	PendingQuestions []string
	Collected        map[string]string
	CreatedAt        time.Time
	LastActivity     time.Time
}

func (c *Context) snapshot() Snapshot {
	collected := make(map[string]string, len(c.CollectedParameters))
	for k, v := range c.CollectedParameters {
		collected[k] = v
	}
	return Snapshot{
		Key:              c.Key(),
		State:            c.State(),
		Request:          c.CurrentRequest.Clone(),
		PendingQuestions: append([]string(nil), c.PendingQuestions...),
		Collected:        collected,
		CreatedAt:        c.CreatedAt,
		LastActivity:     c.LastActivity,
	}
}
