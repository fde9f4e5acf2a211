package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"docqa/internal/models"
	"docqa/internal/util"
)

// NarrowRects finds phrase in the chunk text, ignoring case and whitespace
// runs, and returns the rects of the words it spans. found is false when the
// phrase is not in the chunk. When the chunk's rects do not line up 1:1 with
// its words the original rects come back unchanged.
func NarrowRects(c models.Chunk, phrase string) (rects []models.Rect, found bool) {
	text := util.NormalizeWhitespace(strings.ToLower(c.Text))
	q := util.NormalizeWhitespace(strings.ToLower(phrase))
	if q == "" {
		return nil, false
	}
	idx := strings.Index(text, q)
	if idx < 0 {
		return nil, false
	}
	words := strings.Fields(text)
	if len(c.Rects) == 0 || len(c.Rects) != len(words) {
		return c.Rects, true
	}
	start := len(strings.Fields(text[:idx]))
	if idx > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:idx]); !unicode.IsSpace(r) {
			start--
		}
	}
	end := len(strings.Fields(text[:idx+len(q)]))
	if start < 0 || end > len(c.Rects) || start >= end {
		return c.Rects, true
	}
	return append([]models.Rect(nil), c.Rects[start:end]...), true
}
