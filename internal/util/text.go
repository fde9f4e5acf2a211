package util

import "strings"

// SanitizeText strips NUL bytes and non-printing controls that some PDF
// extractors emit, keeping newlines and tabs.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 || ch == 0x7f || ch == 0xfffd {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}

func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Snippet collapses whitespace and cuts s to maxRunes, marking the cut with "...".
func Snippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 240
	}
	s = NormalizeWhitespace(SanitizeText(s))
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "..."
}
