// Package extract turns PDF bytes into per-page text with word positions.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode"

	"docqa/internal/models"
	"docqa/internal/util"

	"github.com/ledongthuc/pdf"
)

// US Letter, used when a page carries no readable MediaBox.
const defaultPageHeight = 792.0

func PagesFromBytes(data []byte) ([]models.PageText, error) {
	return Pages(bytes.NewReader(data), int64(len(data)))
}

func PagesFromFile(path string) ([]models.PageText, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return readPages(r), nil
}

// Pages extracts every page in order. A page whose content cannot be decoded
// comes back with empty text instead of failing the document.
func Pages(ra io.ReaderAt, size int64) ([]models.PageText, error) {
	r, err := pdf.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return readPages(r), nil
}

func readPages(r *pdf.Reader) []models.PageText {
	n := r.NumPage()
	out := make([]models.PageText, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, readPage(r, i))
	}
	return out
}

func readPage(r *pdf.Reader, num int) (pt models.PageText) {
	pt.PageNumber = num
	defer func() {
		if rec := recover(); rec != nil {
			pt = models.PageText{PageNumber: num}
		}
	}()
	p := r.Page(num)
	if p.V.IsNull() {
		return pt
	}
	pt.Items = mergeGlyphs(p.Content().Text, pageHeight(p))
	text, err := p.GetPlainText(nil)
	if err != nil || strings.TrimSpace(text) == "" {
		words := make([]string, 0, len(pt.Items))
		for _, it := range pt.Items {
			words = append(words, it.Text)
		}
		text = strings.Join(words, " ")
	}
	pt.Text = util.SanitizeText(text)
	return pt
}

func pageHeight(p pdf.Page) float64 {
	box := p.V.Key("MediaBox")
	if box.IsNull() {
		box = p.V.Key("Parent").Key("MediaBox")
	}
	if box.Len() == 4 {
		if h := box.Index(3).Float64() - box.Index(1).Float64(); h > 0 {
			return h
		}
	}
	return defaultPageHeight
}

// mergeGlyphs joins consecutive glyphs on one baseline into single-word
// fragments and flips Y to a top-left origin.
func mergeGlyphs(glyphs []pdf.Text, height float64) []models.TextItem {
	var (
		out    []models.TextItem
		word   strings.Builder
		cur    models.TextItem
		lastX  float64
		lastY  float64
		active bool
	)
	flush := func() {
		if !active {
			return
		}
		if t := util.SanitizeText(word.String()); t != "" {
			cur.Text = t
			cur.Width = lastX - cur.Left
			out = append(out, cur)
		}
		word.Reset()
		active = false
	}
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}
		if unicode.IsSpace(rune(g.S[0])) {
			flush()
		}
		size := g.FontSize
		if size <= 0 {
			size = 10
		}
		if active {
			sameLine := math.Abs(g.Y-lastY) < size*0.5
			gap := g.X - lastX
			if !sameLine || gap > size*0.25 || gap < -size {
				flush()
			}
		}
		if !active {
			cur = models.TextItem{Left: g.X, Top: height - g.Y - size, Height: size}
			active = true
		}
		word.WriteString(strings.TrimSpace(g.S))
		lastX = g.X + g.W
		lastY = g.Y
		if unicode.IsSpace(rune(g.S[len(g.S)-1])) {
			flush()
		}
	}
	flush()
	return out
}
