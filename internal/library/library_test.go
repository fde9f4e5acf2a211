package library

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/models"
	"docqa/internal/segment"
	"docqa/internal/util"
)

func newLib(t *testing.T) *Library {
	t.Helper()
	seg, err := segment.New(segment.DefaultChunkSize, segment.DefaultChunkOverlap)
	require.NoError(t, err)
	return New(seg)
}

func pages(texts ...string) []models.PageText {
	out := make([]models.PageText, 0, len(texts))
	for i, t := range texts {
		out = append(out, models.PageText{PageNumber: i + 1, Text: t})
	}
	return out
}

func TestBuildAndAdd(t *testing.T) {
	lib := newLib(t)
	doc, err := lib.Build("", "lease.pdf", []byte("%PDF"), pages("The deadline is March 1st.", "Rent is due monthly."))
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Len(t, doc.Chunks, 2)
	assert.Equal(t, 1, doc.CurrentPage)
	for _, c := range doc.Chunks {
		assert.Equal(t, doc.ID, c.DocumentID)
		assert.Equal(t, "lease.pdf", c.DocumentName)
	}

	lib.Add(doc)
	active, ok := lib.Active()
	require.True(t, ok)
	assert.Equal(t, doc.ID, active.ID)

	listed := lib.List()
	require.Len(t, listed, 1)
	assert.Nil(t, listed[0].File)
	got, _ := lib.Get(doc.ID)
	assert.Equal(t, []byte("%PDF"), got.File)
}

func TestBuildEmpty(t *testing.T) {
	_, err := newLib(t).Build("x", "scan.pdf", nil, pages("", "  "))
	assert.True(t, errors.Is(err, util.ErrNoExtractableText))
}

func TestChunksAcrossDocuments(t *testing.T) {
	lib := newLib(t)
	a, _ := lib.Build("a", "a.pdf", nil, pages("alpha text"))
	b, _ := lib.Build("b", "b.pdf", nil, pages("beta text", "gamma text"))
	lib.Add(a)
	lib.Add(b)
	chunks := lib.Chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, "a", chunks[0].DocumentID)
	assert.Equal(t, "b", chunks[2].DocumentID)

	require.True(t, lib.Remove("a"))
	assert.False(t, lib.Remove("a"))
	assert.Equal(t, "b", lib.ActiveID())
	assert.Len(t, lib.Chunks(), 2)
}

func TestReplaceExtraction(t *testing.T) {
	lib := newLib(t)
	doc, _ := lib.Build("d", "scan.pdf", nil, pages("x"))
	lib.Add(doc)
	updated, err := lib.ReplaceExtraction("d", pages("ocr page one", "ocr page two"))
	require.NoError(t, err)
	assert.Len(t, updated.Chunks, 2)
	assert.True(t, strings.HasPrefix(updated.Chunks[0].Text, "ocr"))

	_, err = lib.ReplaceExtraction("missing", pages("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutators(t *testing.T) {
	lib := newLib(t)
	doc, _ := lib.Build("d", "d.pdf", []byte("bin"), pages("one", "two", "three"))
	lib.Add(doc)

	require.NoError(t, lib.SetSummary("d", "short"))
	require.NoError(t, lib.SetCurrentPage("d", 3))
	assert.Error(t, lib.SetCurrentPage("d", 4))
	require.NoError(t, lib.Evict("d"))
	got, _ := lib.Get("d")
	assert.Equal(t, "short", got.Summary)
	assert.Equal(t, 3, got.CurrentPage)
	assert.Nil(t, got.File)

	assert.ErrorIs(t, lib.SetActive("nope"), ErrNotFound)
	assert.ErrorIs(t, lib.SetSummary("nope", ""), ErrNotFound)
}
