package validators

import "strings"

// SanitizeString trims whitespace and truncates free text to maxLen runes.
// Truncation counts runes, not bytes, so Devanagari reasons are not cut
// mid-character.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return trimmed
}
