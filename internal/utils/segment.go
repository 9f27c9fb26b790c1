package utils

import (
	"strings"
)

// SanitizeSegment makes a configured name safe to embed in a file name.
func SanitizeSegment(raw string) string {
	normalized := strings.TrimSpace(raw)
	normalized = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.':
			return r
		default:
			return '-'
		}
	}, normalized)
	normalized = strings.Trim(normalized, "-.")
	for strings.Contains(normalized, "--") {
		normalized = strings.ReplaceAll(normalized, "--", "-")
	}
	return normalized
}

// MaskSecret keeps the first character of a secret and masks the rest.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return secret[:1] + "****"
}
