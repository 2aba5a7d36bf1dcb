// Package access decides which chat users may provision resources.
package access

import "strings"

// Gate is a static allowlist. A user is authorized when no allowlist is
// configured, when the user is on it, or when the user is an admin.
type Gate struct {
	allowed map[string]bool
	admins  map[string]bool
}

// NewGate builds a Gate. Entries are trimmed; empty entries are ignored.
func NewGate(allowed, admins []string) *Gate {
	return &Gate{allowed: toSet(allowed), admins: toSet(admins)}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = true
		}
	}
	return set
}

// IsAuthorized reports whether userID may use the assistant.
func (g *Gate) IsAuthorized(userID string) bool {
	if g == nil {
		return true
	}
	return len(g.allowed) == 0 || g.allowed[userID] || g.admins[userID]
}

// IsAdmin reports whether userID may run admin-only operator commands. With
// no admins configured, every authorized user counts as one.
func (g *Gate) IsAdmin(userID string) bool {
	if g == nil {
		return true
	}
	if len(g.admins) == 0 {
		return g.IsAuthorized(userID)
	}
	return g.admins[userID]
}

// Restricted reports whether an allowlist is in effect.
func (g *Gate) Restricted() bool {
	return g != nil && len(g.allowed) > 0
}
