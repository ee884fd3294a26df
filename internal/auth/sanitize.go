// internal/auth/sanitize.go
package auth

import "strings"

// SanitizeName strips angle brackets, trims, and caps the length of a
// client-supplied display name.
func SanitizeName(s string) string {
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	s = strings.TrimSpace(s)
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// SanitizeUsername normalizes a handle: leading @ removed, only word
// characters kept, at most 32 runes.
func SanitizeUsername(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "@")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 32 {
		out = out[:32]
	}
	return out
}

// SanitizeAvatar caps an avatar URL to a sane length.
func SanitizeAvatar(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}
