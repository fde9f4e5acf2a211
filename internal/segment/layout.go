package segment

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"docqa/internal/models"
)

// Paragraph is one layout-grouped block with one rect per word of Text.
type Paragraph struct {
	Text  string
	Rects []models.Rect
}

type line struct {
	top    float64
	height float64
	items  []models.TextItem
}

// Paragraphs groups positioned fragments into lines and lines into paragraphs.
// Paragraphs shorter than MinParagraphChars are dropped unless nothing else
// on the page survives.
func Paragraphs(items []models.TextItem) []Paragraph {
	lines := groupLines(items)
	if len(lines) == 0 {
		return nil
	}

	var all []Paragraph
	var words []string
	var rects []models.Rect
	flush := func() {
		if len(words) == 0 {
			return
		}
		all = append(all, Paragraph{Text: strings.Join(words, " "), Rects: rects})
		words, rects = nil, nil
	}
	for i, ln := range lines {
		if i > 0 && ln.top-lines[i-1].top > ParagraphGapFactor*ln.height {
			flush()
		}
		for _, it := range ln.items {
			w, r := splitItem(it)
			words = append(words, w...)
			rects = append(rects, r...)
		}
	}
	flush()

	kept := make([]Paragraph, 0, len(all))
	for _, p := range all {
		if utf8.RuneCountInString(p.Text) >= MinParagraphChars {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return all
	}
	return kept
}

func groupLines(items []models.TextItem) []line {
	sorted := make([]models.TextItem, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Text) == "" {
			continue
		}
		sorted = append(sorted, it)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Top == sorted[j].Top {
			return sorted[i].Left < sorted[j].Left
		}
		return sorted[i].Top < sorted[j].Top
	})

	var lines []line
	for _, it := range sorted {
		if n := len(lines); n > 0 && math.Abs(it.Top-lines[n-1].top) < LineTolerance {
			cur := &lines[n-1]
			cur.items = append(cur.items, it)
			if it.Height > cur.height {
				cur.height = it.Height
			}
			continue
		}
		lines = append(lines, line{top: it.Top, height: it.Height, items: []models.TextItem{it}})
	}
	for i := range lines {
		ln := lines[i].items
		sort.SliceStable(ln, func(a, b int) bool { return ln[a].Left < ln[b].Left })
	}
	return lines
}

// splitItem yields the words of a fragment, dividing its width by rune offset
// when a fragment holds more than one word so rects stay 1:1 with words.
func splitItem(it models.TextItem) ([]string, []models.Rect) {
	words := strings.Fields(it.Text)
	if len(words) == 0 {
		return nil, nil
	}
	box := models.Rect{Left: it.Left, Top: it.Top, Width: it.Width, Height: it.Height}
	if len(words) == 1 {
		return words, []models.Rect{box}
	}
	total := utf8.RuneCountInString(it.Text)
	if total == 0 {
		total = 1
	}
	perRune := it.Width / float64(total)
	rects := make([]models.Rect, 0, len(words))
	offset := 0
	rest := it.Text
	for _, w := range words {
		at := strings.Index(rest, w)
		offset += utf8.RuneCountInString(rest[:at])
		n := utf8.RuneCountInString(w)
		rects = append(rects, models.Rect{
			Left:   it.Left + float64(offset)*perRune,
			Top:    it.Top,
			Width:  float64(n) * perRune,
			Height: it.Height,
		})
		offset += n
		rest = rest[at+len(w):]
	}
	return words, rects
}
