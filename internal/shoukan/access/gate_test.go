package access

import "testing"

func TestGate(t *testing.T) {
	tests := []struct {
		name            string
		allowed, admins []string
		user            string
		authorized      bool
		admin           bool
	}{
		{"open gate", nil, nil, "@anyone:x", true, true},
		{"on allowlist", []string{"@a:x"}, nil, "@a:x", true, true},
		{"not on allowlist", []string{"@a:x"}, nil, "@b:x", false, false},
		{"admin bypasses allowlist", []string{"@a:x"}, []string{"@root:x"}, "@root:x", true, true},
		{"allowed but not admin", []string{"@a:x"}, []string{"@root:x"}, "@a:x", true, false},
		{"admins only, open allowlist", nil, []string{"@root:x"}, "@b:x", true, false},
		{"blank entries ignored", []string{" ", ""}, nil, "@b:x", true, true},
		{"entries trimmed", []string{" @a:x "}, nil, "@a:x", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.allowed, tt.admins)
			if got := g.IsAuthorized(tt.user); got != tt.authorized {
				t.Errorf("IsAuthorized(%q) = %v, want %v", tt.user, got, tt.authorized)
			}
			if got := g.IsAdmin(tt.user); got != tt.admin {
				t.Errorf("IsAdmin(%q) = %v, want %v", tt.user, got, tt.admin)
			}
		})
	}
}

func TestNilGateAllowsEveryone(t *testing.T) {
	var g *Gate
	if !g.IsAuthorized("@x:y") || !g.IsAdmin("@x:y") || g.Restricted() {
		t.Error("nil gate should be open")
	}
}
