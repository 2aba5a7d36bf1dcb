// Package matrix connects the dialogue engine to Matrix rooms.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Shoukan/common/retry"
	"github.com/bdobrica/Shoukan/internal/shoukan/message"
)

// Config holds Matrix client configuration
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms the bot joins and listens in. A room ID is also the
	// conversation ID of everything said in it.
	Rooms []string
	// DB persists the sync token across restarts. When nil, an in-memory
	// store is used and room history replays on every restart.
	DB *sql.DB
}

// MessageHandler processes an incoming text message.
type MessageHandler func(ctx context.Context, evt *event.Event)

// JoinHandler is called when a user other than the bot joins a room.
type JoinHandler func(ctx context.Context, roomID, userID string)

// Client wraps the mautrix client
type Client struct {
	client *mautrix.Client
	config *Config
	stopCh chan struct{}

	onMessage MessageHandler
	onJoin    JoinHandler
}

// sendRetry covers rate limiting and homeserver hiccups.
var sendRetry = retry.Config{
	MaxAttempts:  4,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     8 * time.Second,
	Jitter:       0.2,
	ShouldRetry:  isTransient,
	OnRetry: func(attempt int, err error, wait time.Duration) {
		slog.Warn("matrix: send failed, retrying", "attempt", attempt, "wait", wait, "err", err)
	},
}

// isTransient reports whether a failed request is worth repeating. Errors
// the homeserver gives a permanent error code for are not.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, permanent := range []error{
		mautrix.MForbidden,
		mautrix.MUnknownToken,
		mautrix.MMissingToken,
		mautrix.MNotFound,
		mautrix.MBadJSON,
		mautrix.MNotJSON,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

// New creates a new Matrix client
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	if config.DB != nil {
		client.Store = NewSyncStore(config.DB)
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: no DB configured, using in-memory store (history will replay on restart)")
	}

	return &Client{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
	}, nil
}

// Start joins the configured rooms and begins syncing in the background.
func (c *Client) Start(ctx context.Context, onMessage MessageHandler, onJoin JoinHandler) error {
	c.onMessage = onMessage
	c.onJoin = onJoin

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateMember, c.handleMember)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
	}

	go c.syncLoop()
	return nil
}

// syncLoop keeps the sync running, reconnecting with exponential back-off
// until Stop is called.
func (c *Client) syncLoop() {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		started := time.Now()
		err := c.client.Sync()
		if err == nil {
			// Only a StopSync call ends Sync cleanly.
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}
		// A sync that ran for a while was healthy; start over from the minimum.
		if time.Since(started) > backoffMax {
			backoff = backoffMin
		}
		slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// Stop stops syncing.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// Send renders msg and posts it to roomID. A typing message with no text
// only toggles the typing indicator.
func (c *Client) Send(ctx context.Context, roomID string, msg message.Message) error {
	if msg.IsTyping {
		if err := c.SetTyping(ctx, roomID, true, 30*time.Second); err != nil {
			slog.Debug("matrix: typing indicator failed", "room", roomID, "err", err)
		}
		if msg.Text == "" {
			return nil
		}
	} else {
		defer func() {
			if err := c.SetTyping(ctx, roomID, false, 0); err != nil {
				slog.Debug("matrix: clearing typing indicator failed", "room", roomID, "err", err)
			}
		}()
	}

	plain, formatted := Render(msg)
	content := event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          plain,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
	}
	return c.send(ctx, roomID, &content, "message")
}

// SendNotice sends a notice message (less intrusive than normal messages).
func (c *Client) SendNotice(roomID, text string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    text,
	}
	return c.send(context.Background(), roomID, &content, "notice")
}

// SendText sends Markdown text, rendered to HTML, as a reply to eventID.
// eventID may be empty.
func (c *Client) SendText(ctx context.Context, roomID, eventID, text string) error {
	content := event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          text,
		Format:        event.FormatHTML,
		FormattedBody: markdownToHTML(text),
	}
	if eventID != "" {
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(eventID)},
		}
	}
	return c.send(ctx, roomID, &content, "reply")
}

func (c *Client) send(ctx context.Context, roomID string, content *event.MessageEventContent, what string) error {
	err := retry.Do(ctx, sendRetry, func() error {
		_, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", what, err)
	}
	return nil
}

// SetTyping sets the typing indicator
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	_, err := c.client.UserTyping(ctx, id.RoomID(roomID), typing, timeout)
	if err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}
	return nil
}

// IsServedRoom reports whether roomID is one of the configured rooms.
func (c *Client) IsServedRoom(roomID string) bool {
	for _, r := range c.config.Rooms {
		if r == roomID {
			return true
		}
	}
	return false
}

// UserID returns the bot's user ID.
func (c *Client) UserID() string {
	return c.config.UserID
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return
	}
	if !c.IsServedRoom(evt.RoomID.String()) {
		return
	}
	if c.onMessage != nil {
		c.onMessage(ctx, evt)
	}
}

func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipJoin {
		return
	}
	if evt.StateKey == nil || *evt.StateKey == c.config.UserID {
		return
	}
	// Profile changes are re-sent as join events.
	if evt.Unsigned.PrevContent != nil {
		_ = evt.Unsigned.PrevContent.ParseRaw(event.StateMember)
		if prev := evt.Unsigned.PrevContent.AsMember(); prev != nil && prev.Membership == event.MembershipJoin {
			return
		}
	}
	if !c.IsServedRoom(evt.RoomID.String()) {
		return
	}
	if c.onJoin != nil {
		c.onJoin(ctx, evt.RoomID.String(), *evt.StateKey)
	}
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// Homeservers answer M_FORBIDDEN when the bot is already a member.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
