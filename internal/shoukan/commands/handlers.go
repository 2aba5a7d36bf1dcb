package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/Shoukan/common/trace"
	"github.com/bdobrica/Shoukan/common/version"
	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
	"github.com/bdobrica/Shoukan/internal/shoukan/store"
)

// StatusSource looks up the outcome of a provisioning request.
type StatusSource interface {
	Status(ctx context.Context, requestID string) (*resource.Response, error)
}

// AdminChecker decides who may read history and audit entries.
type AdminChecker interface {
	IsAdmin(userID string) bool
}

// Handlers implements the operator commands.
type Handlers struct {
	store  *store.Store
	status StatusSource
	admins AdminChecker
}

// NewHandlers creates Handlers. admins may be nil, in which case every
// caller counts as an admin.
func NewHandlers(s *store.Store, status StatusSource, admins AdminChecker) *Handlers {
	return &Handlers{store: s, status: status, admins: admins}
}

// Register adds every command to r.
func (h *Handlers) Register(r *Router) {
	r.Register("help", h.HandleHelp)
	r.Register("version", h.HandleVersion)
	r.Register("ping", h.HandlePing)
	r.Register("status", h.HandleStatus)
	r.Register("history", h.HandleHistory)
	r.Register("audit", h.HandleAudit)
}

const maxListLimit = 100

// limitArg reads an optional count from the first argument.
func limitArg(cmd *Command, def int) int {
	s, ok := cmd.GetArg(0)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func (h *Handlers) audit(ctx context.Context, cmd *Command, action, target, result string, payload store.AuditPayload, errMsg string) {
	if h.store == nil {
		return
	}
	if err := h.store.WriteAudit(ctx, trace.FromContext(ctx), cmd.Sender, action, target, result, payload, errMsg); err != nil {
		slog.Warn("commands: failed to write audit", "trace_id", trace.FromContext(ctx), "action", action, "err", err)
	}
}

// requireAdmin returns a refusal when cmd.Sender is not an admin.
func (h *Handlers) requireAdmin(ctx context.Context, cmd *Command) (string, bool) {
	if h.admins == nil || h.admins.IsAdmin(cmd.Sender) {
		return "", true
	}
	h.audit(ctx, cmd, cmd.Name, "", store.ResultDenied, nil, "admin only")
	return fmt.Sprintf("🚫 `%s %s` is restricted to administrators.", Prefix, cmd.Name), false
}

// HandleHelp lists the operator commands.
func (h *Handlers) HandleHelp(ctx context.Context, cmd *Command) (string, error) {
	return `**Shoukan operator commands**

• /shoukan help - Show this help message
• /shoukan version - Show version information
• /shoukan ping - Health check
• /shoukan status <request-id> - Show the outcome of a provisioning request
• /shoukan history [n] [--status <status>] - Recent provisioning requests (admin)
• /shoukan audit [n] [--actor <user>] [--action <prefix>] [--result <result>] - Recent audit entries (admin)

Anything else you write is read as a provisioning request, e.g. "create a VM called web01 in East US".`, nil
}

// HandleVersion shows version information
func (h *Handlers) HandleVersion(ctx context.Context, cmd *Command) (string, error) {
	return fmt.Sprintf("**Shoukan**\nVersion: %s\nCommit: %s\nBuild Time: %s",
		version.Version, version.GitCommit, version.BuildTime), nil
}

// HandlePing responds with a health check and records it.
func (h *Handlers) HandlePing(ctx context.Context, cmd *Command) (string, error) {
	ctx = trace.Ensure(ctx)
	if h.store != nil {
		if err := h.store.Ping(); err != nil {
			h.audit(ctx, cmd, "ping", "", store.ResultError, nil, err.Error())
			return "", fmt.Errorf("database unavailable: %w", err)
		}
	}
	h.audit(ctx, cmd, "ping", "", store.ResultSuccess, nil, "")
	return fmt.Sprintf("🏓 Pong! (trace: %s)", trace.FromContext(ctx)), nil
}

// HandleStatus shows one provisioning request.
func (h *Handlers) HandleStatus(ctx context.Context, cmd *Command) (string, error) {
	requestID, ok := cmd.GetArg(0)
	if !ok {
		return "", fmt.Errorf("usage: %s status <request-id>", Prefix)
	}
	if h.status == nil {
		return "", errors.New("request history is not available")
	}

	resp, err := h.status.Status(ctx, requestID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s **%s** `%s`\n", statusEmoji(resp.Status), resp.Status, resp.RequestID)
	fmt.Fprintf(&sb, "  %s: %s\n", resp.Type.Display(), resp.ResourceName)
	fmt.Fprintf(&sb, "  Location: %s\n", resp.Location)
	fmt.Fprintf(&sb, "  Resource group: %s\n", resp.ResourceGroup)
	if resp.ResourceID != "" {
		fmt.Fprintf(&sb, "  Resource ID: `%s`\n", resp.ResourceID)
	}
	if resp.Message != "" {
		fmt.Fprintf(&sb, "  Message: %s\n", resp.Message)
	}
	if !resp.CompletedAt.IsZero() {
		fmt.Fprintf(&sb, "  Completed: %s\n", resp.CompletedAt.UTC().Format(time.RFC3339))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HandleHistory lists recent provisioning requests, newest first.
func (h *Handlers) HandleHistory(ctx context.Context, cmd *Command) (string, error) {
	ctx = trace.Ensure(ctx)
	if refusal, ok := h.requireAdmin(ctx, cmd); !ok {
		return refusal, nil
	}
	if h.store == nil {
		return "", errors.New("request history is not available")
	}

	limit := limitArg(cmd, 10)
	status := resource.Status(strings.ToLower(cmd.GetFlag("status", "")))

	records, err := h.store.ListRequests(ctx, limit)
	if err != nil {
		h.audit(ctx, cmd, "history", "", store.ResultError, nil, err.Error())
		return "", fmt.Errorf("failed to list requests: %w", err)
	}
	h.audit(ctx, cmd, "history", "", store.ResultSuccess, store.AuditPayload{"limit": limit}, "")

	var sb strings.Builder
	shown := 0
	for _, rec := range records {
		if status != "" && rec.Status != status {
			continue
		}
		shown++
		fmt.Fprintf(&sb, "%s `%s` **%s** %s '%s' in %s by %s\n",
			statusEmoji(rec.Status),
			rec.CreatedAt.UTC().Format("2006-01-02 15:04"),
			rec.Status,
			rec.Type.Display(),
			rec.Name,
			rec.Location,
			rec.UserID,
		)
		fmt.Fprintf(&sb, "   Request: %s\n", rec.RequestID)
	}
	if shown == 0 {
		return fmt.Sprintf("No provisioning requests found. (trace: %s)", trace.FromContext(ctx)), nil
	}
	return fmt.Sprintf("**Provisioning requests (%d)**\n\n%s\n(trace: %s)", shown, sb.String(), trace.FromContext(ctx)), nil
}

// HandleAudit shows recent audit entries.
func (h *Handlers) HandleAudit(ctx context.Context, cmd *Command) (string, error) {
	ctx = trace.Ensure(ctx)
	if refusal, ok := h.requireAdmin(ctx, cmd); !ok {
		return refusal, nil
	}
	if h.store == nil {
		return "", errors.New("audit log is not available")
	}

	limit := limitArg(cmd, 10)
	entries, err := h.store.ListAudit(ctx, store.AuditFilter{
		Actor:  cmd.GetFlag("actor", ""),
		Action: cmd.GetFlag("action", ""),
		Result: cmd.GetFlag("result", ""),
		Limit:  limit,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get audit log: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Recent audit entries (last %d)**\n\n", limit)
	for _, entry := range entries {
		icon := "✅"
		switch entry.Result {
		case store.ResultError:
			icon = "❌"
		case store.ResultDenied:
			icon = "🚫"
		}
		fmt.Fprintf(&sb, "%s `%s` **%s** by %s\n", icon, entry.Timestamp.Format("15:04:05"), entry.Action, entry.Actor)
		if entry.Target.Valid {
			fmt.Fprintf(&sb, "   Target: %s\n", entry.Target.String)
		}
		if entry.ErrorMessage.Valid {
			fmt.Fprintf(&sb, "   Error: %s\n", entry.ErrorMessage.String)
		}
		fmt.Fprintf(&sb, "   Trace: %s\n", entry.TraceID)
	}

	h.audit(ctx, cmd, "audit", "", store.ResultSuccess, store.AuditPayload{"limit": limit}, "")
	return strings.TrimRight(sb.String(), "\n"), nil
}

func statusEmoji(s resource.Status) string {
	switch s {
	case resource.StatusCompleted:
		return "✅"
	case resource.StatusFailed:
		return "❌"
	case resource.StatusInProgress:
		return "🔄"
	default:
		return "⏳"
	}
}
