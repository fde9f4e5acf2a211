package segment

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"docqa/internal/models"
	"docqa/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestNewRejectsNonAdvancingWindow(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{20, 20}, {10, 30}, {0, 0}, {10, -1}} {
		_, err := New(tc.size, tc.overlap)
		if !errors.Is(err, util.ErrInvalidChunking) {
			t.Fatalf("size=%d overlap=%d: expected ErrInvalidChunking, got %v", tc.size, tc.overlap, err)
		}
	}
	s, err := New(100, 20)
	require.NoError(t, err)
	assert.Equal(t, 100, s.ChunkSize())
	assert.Equal(t, 20, s.Overlap())
}

func TestWindowChunksOverlap(t *testing.T) {
	chunks := WindowChunks(numberedWords(350), 100, 20)
	require.Len(t, chunks, 5)
	for i := 0; i+1 < len(chunks); i++ {
		cur := strings.Fields(chunks[i])
		next := strings.Fields(chunks[i+1])
		if i+1 < len(chunks)-1 {
			require.Len(t, next, 100)
		}
		assert.Equal(t, cur[len(cur)-20:], next[:20], "chunks %d and %d must share 20 words", i, i+1)
	}
	last := strings.Fields(chunks[len(chunks)-1])
	assert.Equal(t, "w349", last[len(last)-1])
}

func TestWindowChunksCoverEveryWord(t *testing.T) {
	for _, n := range []int{1, 19, 80, 100, 101, 181, 999} {
		text := numberedWords(n)
		seen := map[string]bool{}
		for _, c := range WindowChunks(text, 100, 20) {
			for _, w := range strings.Fields(c) {
				seen[w] = true
			}
		}
		for _, w := range strings.Fields(text) {
			if !seen[w] {
				t.Fatalf("n=%d: word %s lost", n, w)
			}
		}
	}
}

func TestSegmentSlidingWindowPages(t *testing.T) {
	s, err := New(100, 20)
	require.NoError(t, err)
	pages := []models.PageText{
		{PageNumber: 1, Text: numberedWords(150)},
		{PageNumber: 2, Text: "   "},
		{PageNumber: 3, Text: "short closing page"},
	}
	chunks := s.Segment("doc-1", "report.pdf", pages)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.Equal(t, "report.pdf", c.DocumentName)
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
		assert.Nil(t, c.Rects)
		assert.NotEmpty(t, c.ChunkID)
	}
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 1, chunks[1].PageNumber)
	assert.Equal(t, 3, chunks[2].PageNumber)
}

func item(text string, left, top float64) models.TextItem {
	return models.TextItem{Text: text, Left: left, Top: top, Width: float64(len(text)) * 5, Height: 10}
}

func TestParagraphsGroupLinesAndGaps(t *testing.T) {
	items := []models.TextItem{
		// second line of the first paragraph, listed out of order
		item("continues", 10, 22), item("here", 70, 23),
		item("The", 10, 10), item("first", 40, 11), item("paragraph", 80, 10),
		// large gap: new paragraph
		item("Second", 10, 60), item("paragraph", 60, 60), item("starts", 120, 61), item("now", 160, 60),
		// page number artifact
		item("7", 300, 120),
	}
	paras := Paragraphs(items)
	require.Len(t, paras, 2)
	assert.Equal(t, "The first paragraph continues here", paras[0].Text)
	assert.Equal(t, "Second paragraph starts now", paras[1].Text)
	for _, p := range paras {
		assert.Len(t, p.Rects, len(strings.Fields(p.Text)))
	}
	assert.Equal(t, 10.0, paras[0].Rects[0].Left)
	assert.Equal(t, 70.0, paras[0].Rects[4].Left)
}

func TestParagraphsKeepShortContentWhenAlone(t *testing.T) {
	paras := Paragraphs([]models.TextItem{item("Title", 10, 10)})
	require.Len(t, paras, 1)
	assert.Equal(t, "Title", paras[0].Text)
}

func TestSplitItemKeepsRectsPerWord(t *testing.T) {
	words, rects := splitItem(models.TextItem{Text: "ab cd", Left: 100, Top: 5, Width: 50, Height: 8})
	require.Equal(t, []string{"ab", "cd"}, words)
	require.Len(t, rects, 2)
	assert.InDelta(t, 100.0, rects[0].Left, 1e-9)
	assert.InDelta(t, 20.0, rects[0].Width, 1e-9)
	assert.InDelta(t, 130.0, rects[1].Left, 1e-9)
}

func TestSegmentLayoutPagesCarryRects(t *testing.T) {
	s, err := New(100, 20)
	require.NoError(t, err)
	pages := []models.PageText{{
		PageNumber: 4,
		Text:       "The first paragraph continues here",
		Items: []models.TextItem{
			item("The", 10, 10), item("first", 40, 10), item("paragraph", 80, 10),
			item("continues", 10, 22), item("here", 70, 22),
		},
	}}
	chunks := s.Segment("d", "n", pages)
	require.Len(t, chunks, 1)
	assert.Equal(t, 4, chunks[0].PageNumber)
	assert.Len(t, chunks[0].Rects, 5)
}

func TestDetectScannedPDF(t *testing.T) {
	assert.True(t, DetectScannedPDF(nil))
	assert.True(t, DetectScannedPDF([]models.PageText{{PageNumber: 1, Text: "tiny"}}))
	assert.True(t, DetectScannedPDF([]models.PageText{
		{PageNumber: 1, Text: strings.Repeat("text ", 50)},
		{PageNumber: 2, Text: ""},
	}))
	assert.False(t, DetectScannedPDF([]models.PageText{
		{PageNumber: 1, Text: strings.Repeat("a", 60)},
		{PageNumber: 2, Text: strings.Repeat("b", 60)},
	}))
}
