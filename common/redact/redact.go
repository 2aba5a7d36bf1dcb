// Package redact strips secrets (Matrix access tokens, cloud credentials)
// from values before they are logged or posted to a room.
package redact

import (
	"strings"
)

// Placeholder replaces redacted values.
const Placeholder = "[REDACTED]"

// minSecretLen guards against redacting common short substrings.
const minSecretLen = 4

var sensitiveWords = []string{"password", "passwd", "token", "secret", "credential", "apikey", "api_key", "access_key", "private_key"}

// String replaces every occurrence of each secret in s with Placeholder.
// Secrets shorter than four characters are ignored.
func String(s string, secrets ...string) string {
	for _, v := range secrets {
		if len(v) < minSecretLen {
			continue
		}
		s = strings.ReplaceAll(s, v, Placeholder)
	}
	return s
}

// Mask returns Placeholder for any non-empty value. It keeps "is it set?"
// visible in logs without showing the value.
func Mask(v string) string {
	if v == "" {
		return ""
	}
	return Placeholder
}

// Map returns a copy of m in which string values under secret-looking keys
// are masked. Nested maps are processed recursively.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = Map(val)
		case string:
			if IsSensitiveKey(k) {
				out[k] = Mask(val)
			} else {
				out[k] = val
			}
		default:
			out[k] = v
		}
	}
	return out
}

// IsSensitiveKey reports whether a key name suggests a secret value.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range sensitiveWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
