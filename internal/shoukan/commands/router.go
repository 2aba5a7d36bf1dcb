// Package commands parses and routes operator commands ("/shoukan ...").
// Commands never reach the dialogue engine.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Prefix starts every operator command.
const Prefix = "/shoukan"

// ErrNotACommand means the text does not start with the router's prefix.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// Command is one parsed operator command. Flags are written --key value,
// --key=value, or bare --key (which reads as "true").
type Command struct {
	Name    string
	Args    []string
	Flags   map[string]string
	RawText string
	Sender  string
}

// GetFlag returns the flag value, or def when the flag was not given.
func (c *Command) GetFlag(name, def string) string {
	if v, ok := c.Flags[name]; ok {
		return v
	}
	return def
}

// GetArg returns the positional argument at i.
func (c *Command) GetArg(i int) (string, bool) {
	if i < 0 || i >= len(c.Args) {
		return "", false
	}
	return c.Args[i], true
}

// Handler runs one command and returns Markdown for the reply.
type Handler func(ctx context.Context, cmd *Command) (string, error)

// Router maps command names to handlers.
type Router struct {
	prefix   string
	handlers map[string]Handler
}

func NewRouter(prefix string) *Router {
	return &Router{prefix: prefix, handlers: map[string]Handler{}}
}

// Register binds name to h, replacing any earlier binding.
func (r *Router) Register(name string, h Handler) {
	r.handlers[name] = h
}

// body returns the text after the prefix. ok is false when text is not a
// command; "/shoukanify" is not.
func (r *Router) body(text string) (rest string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(text), r.prefix)
	if !found {
		return "", false
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// IsCommand reports whether text is addressed to the router.
func (r *Router) IsCommand(text string) bool {
	_, ok := r.body(text)
	return ok
}

// Parse splits text into name, positional arguments and flags.
func (r *Router) Parse(text string) (*Command, error) {
	rest, ok := r.body(text)
	if !ok {
		return nil, ErrNotACommand
	}
	words := strings.Fields(rest)
	if len(words) == 0 {
		return nil, fmt.Errorf("empty command; try %s help", r.prefix)
	}

	cmd := &Command{
		Name:    strings.ToLower(words[0]),
		Args:    []string{},
		Flags:   map[string]string{},
		RawText: rest,
	}
	for words = words[1:]; len(words) > 0; words = words[1:] {
		key, isFlag := strings.CutPrefix(words[0], "--")
		switch {
		case !isFlag:
			cmd.Args = append(cmd.Args, words[0])
		case strings.Contains(key, "="):
			k, v, _ := strings.Cut(key, "=")
			cmd.Flags[k] = v
		case len(words) > 1 && !strings.HasPrefix(words[1], "--"):
			cmd.Flags[key] = words[1]
			words = words[1:]
		default:
			cmd.Flags[key] = "true"
		}
	}
	return cmd, nil
}

// Route parses text and runs its handler on behalf of sender.
func (r *Router) Route(ctx context.Context, text, sender string) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}
	cmd.Sender = sender

	h := r.handlers[cmd.Name]
	if h == nil {
		return "", fmt.Errorf("unknown command: %s (try %s help)", cmd.Name, r.prefix)
	}
	return h(ctx, cmd)
}
