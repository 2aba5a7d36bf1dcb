// Package console is a line-oriented terminal channel for local use. Every
// line typed is one turn of a single fixed conversation.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bdobrica/Shoukan/internal/shoukan/message"
)

const (
	// UserID and ConversationID identify the console conversation.
	UserID         = "console"
	ConversationID = "console"

	prompt = "> "
)

// Handler processes one line. reply may be called any number of times,
// from any goroutine, until Handler returns.
type Handler func(ctx context.Context, text string, reply func(message.Message))

// Console reads lines from in and writes replies to out.
type Console struct {
	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

// New creates a Console.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

// Print writes msg followed by a blank line.
func (c *Console) Print(msg message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, Format(msg))
	fmt.Fprintln(c.out)
}

// Run processes lines until in is exhausted or ctx is cancelled. Lines are
// handled one at a time, in order. "exit" and "quit" end the session.
func (c *Console) Run(ctx context.Context, handle Handler) error {
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- sc.Err()
	}()

	c.writePrompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errCh:
					return err
				default:
					return nil
				}
			}
			text := strings.TrimSpace(line)
			switch strings.ToLower(text) {
			case "":
				c.writePrompt()
				continue
			case "exit", "quit":
				return nil
			}
			handle(ctx, text, c.Print)
			c.writePrompt()
		}
	}
}

func (c *Console) writePrompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, prompt)
}

// Format renders msg as plain text. Bold markers are stripped, attachment
// fields are indented and suggested actions are shown in brackets.
func Format(msg message.Message) string {
	var b strings.Builder
	text := strings.ReplaceAll(msg.Text, "**", "")
	if msg.IsTyping {
		text = "… " + text
	}
	b.WriteString(text)

	for _, att := range msg.Attachments {
		b.WriteString("\n")
		if att.Title != "" {
			b.WriteString("\n" + att.Title + ":")
		}
		for _, f := range att.Fields {
			fmt.Fprintf(&b, "\n  %-16s %s", f.Name+":", f.Value)
		}
	}

	if len(msg.SuggestedActions) > 0 {
		b.WriteString("\n\n")
		for i, a := range msg.SuggestedActions {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString("[" + a.Value + "]")
		}
	}
	return b.String()
}
