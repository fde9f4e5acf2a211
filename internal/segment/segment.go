// Package segment turns extracted pages into retrievable chunks.
package segment

import (
	"fmt"
	"strings"

	"docqa/internal/models"
	"docqa/internal/util"
)

const (
	DefaultChunkSize    = 100
	DefaultChunkOverlap = 20

	// LineTolerance is the vertical distance under which fragments share a line.
	LineTolerance = 5.0
	// ParagraphGapFactor times the line height separates two paragraphs.
	ParagraphGapFactor = 1.5
	// MinParagraphChars drops stray page numbers and headers.
	MinParagraphChars = 20
)

type Segmenter struct {
	chunkSize int
	overlap   int
}

// New rejects chunkSize <= overlap, which would never advance the window.
func New(chunkSize, overlap int) (*Segmenter, error) {
	if chunkSize <= 0 || overlap < 0 || chunkSize <= overlap {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", util.ErrInvalidChunking, chunkSize, overlap)
	}
	return &Segmenter{chunkSize: chunkSize, overlap: overlap}, nil
}

func (s *Segmenter) ChunkSize() int { return s.chunkSize }
func (s *Segmenter) Overlap() int   { return s.overlap }

// Segment chunks every page of one document. Pages carrying positioned items
// are grouped into paragraphs; the rest fall back to the word window.
func (s *Segmenter) Segment(documentID, documentName string, pages []models.PageText) []models.Chunk {
	out := make([]models.Chunk, 0, len(pages)*4)
	idx := 0
	emit := func(page int, text string, rects []models.Rect) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		out = append(out, models.Chunk{
			ChunkID:      util.ChunkID(documentID, idx, text),
			DocumentID:   documentID,
			DocumentName: documentName,
			Text:         text,
			PageNumber:   page,
			ChunkIndex:   idx,
			Rects:        rects,
		})
		idx++
	}
	for _, p := range pages {
		if hasPositions(p.Items) {
			for _, para := range Paragraphs(p.Items) {
				emit(p.PageNumber, para.Text, para.Rects)
			}
			continue
		}
		for _, part := range WindowChunks(p.Text, s.chunkSize, s.overlap) {
			emit(p.PageNumber, part, nil)
		}
	}
	return out
}

// WindowChunks emits a chunk every size-overlap words, each spanning size
// words. The final chunk is truncated at the end of the text.
func WindowChunks(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || size <= 0 || overlap < 0 || size <= overlap {
		return nil
	}
	step := size - overlap
	out := make([]string, 0, len(words)/step+1)
	for i := 0; i < len(words); i += step {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

func hasPositions(items []models.TextItem) bool {
	for _, it := range items {
		if strings.TrimSpace(it.Text) != "" {
			return true
		}
	}
	return false
}
