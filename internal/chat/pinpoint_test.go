package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docqa/internal/models"
)

func rectsN(n int) []models.Rect {
	out := make([]models.Rect, n)
	for i := range out {
		out[i] = models.Rect{Left: float64(i)}
	}
	return out
}

func TestNarrowRects(t *testing.T) {
	c := models.Chunk{Text: "Rent is due on the   first\nday of each month.", Rects: rectsN(10)}

	got, ok := NarrowRects(c, "the FIRST day")
	assert.True(t, ok)
	assert.Equal(t, []models.Rect{{Left: 4}, {Left: 5}, {Left: 6}}, got)

	got, ok = NarrowRects(c, "irst day")
	assert.True(t, ok)
	assert.Equal(t, []models.Rect{{Left: 5}, {Left: 6}}, got, "a quote starting mid-word keeps that word")

	got, ok = NarrowRects(c, "month.")
	assert.True(t, ok)
	assert.Equal(t, []models.Rect{{Left: 9}}, got)

	_, ok = NarrowRects(c, "late fee")
	assert.False(t, ok)
	_, ok = NarrowRects(c, "  ")
	assert.False(t, ok)
}

func TestNarrowRectsMismatchedLayout(t *testing.T) {
	c := models.Chunk{Text: "one two three", Rects: rectsN(2)}
	got, ok := NarrowRects(c, "two")
	assert.True(t, ok)
	assert.Equal(t, c.Rects, got)

	plain := models.Chunk{Text: "one two three"}
	got, ok = NarrowRects(plain, "two three")
	assert.True(t, ok)
	assert.Nil(t, got)
}

func TestTranscriptRecentSkipsNotices(t *testing.T) {
	tr := NewTranscript(
		models.Message{ID: "1", Kind: models.KindQuestion},
		models.Message{ID: "2", Kind: models.KindAnswer},
		models.Message{ID: "3", Kind: models.KindQuestion},
		models.Message{ID: "4", Kind: models.KindInfo},
		models.Message{ID: "5", Kind: models.KindAnswer},
		models.Message{ID: "6", Kind: models.KindQuestion},
		models.Message{ID: "7", Kind: models.KindError},
	)
	recent := tr.Recent(4)
	ids := make([]string, 0, len(recent))
	for _, m := range recent {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"2", "3", "5", "6"}, ids)
	assert.Nil(t, tr.Recent(0))
	assert.Equal(t, 7, tr.Len())
}
