package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// SanitizeIdentifier replaces every non-alphanumeric rune with "_" and trims
// leading and trailing underscores. An empty result becomes "source".
func SanitizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "source"
	}
	return out
}

// TableName builds "<sanitized source>_v<version>_<signature[:8]>".
func TableName(sourceID string, version int, signature string) string {
	prefix := signature
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s_v%d_%s", SanitizeIdentifier(sourceID), version, prefix)
}
