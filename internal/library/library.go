// Package library holds the managed document collection. It owns every
// chunk; callers get copies.
package library

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"docqa/internal/models"
	"docqa/internal/segment"
	"docqa/internal/util"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document not found")

type Library struct {
	mu     sync.RWMutex
	seg    *segment.Segmenter
	docs   map[string]*models.ManagedDocument
	order  []string
	active string
}

func New(seg *segment.Segmenter) *Library {
	return &Library{seg: seg, docs: map[string]*models.ManagedDocument{}}
}

// Build segments extracted pages into a new document. It does not add it.
// An empty id gets a fresh uuid.
func (l *Library) Build(id, name string, file []byte, pages []models.PageText) (models.ManagedDocument, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "document.pdf"
	}
	chunks := l.seg.Segment(id, name, pages)
	if len(chunks) == 0 {
		return models.ManagedDocument{}, fmt.Errorf("build %s: %w", name, util.ErrNoExtractableText)
	}
	return models.ManagedDocument{
		ID:             id,
		Name:           name,
		File:           file,
		Chunks:         chunks,
		ExtractedPages: pages,
		CurrentPage:    1,
	}, nil
}

// Add inserts or replaces a document. The first document added becomes active.
func (l *Library) Add(doc models.ManagedDocument) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.docs[doc.ID]; !ok {
		l.order = append(l.order, doc.ID)
	}
	d := doc
	l.docs[doc.ID] = &d
	if l.active == "" {
		l.active = doc.ID
	}
}

func (l *Library) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.docs[id]; !ok {
		return false
	}
	delete(l.docs, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	if l.active == id {
		l.active = ""
		if len(l.order) > 0 {
			l.active = l.order[0]
		}
	}
	return true
}

func (l *Library) Get(id string) (models.ManagedDocument, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.docs[id]
	if !ok {
		return models.ManagedDocument{}, false
	}
	return *d, true
}

// List returns documents in insertion order without their binaries.
func (l *Library) List() []models.ManagedDocument {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.ManagedDocument, 0, len(l.order))
	for _, id := range l.order {
		d := *l.docs[id]
		d.File = nil
		out = append(out, d)
	}
	return out
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Chunks concatenates every document's chunks in insertion order.
func (l *Library) Chunks() []models.Chunk {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.Chunk
	for _, id := range l.order {
		out = append(out, l.docs[id].Chunks...)
	}
	return out
}

// ReplaceExtraction re-segments a document from improved pages, e.g. OCR output.
func (l *Library) ReplaceExtraction(id string, pages []models.PageText) (models.ManagedDocument, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.docs[id]
	if !ok {
		return models.ManagedDocument{}, ErrNotFound
	}
	chunks := l.seg.Segment(d.ID, d.Name, pages)
	if len(chunks) == 0 {
		return models.ManagedDocument{}, fmt.Errorf("replace %s: %w", d.Name, util.ErrNoExtractableText)
	}
	d.ExtractedPages = pages
	d.Chunks = chunks
	return *d, nil
}

func (l *Library) SetSummary(id, summary string) error {
	return l.update(id, func(d *models.ManagedDocument) { d.Summary = summary })
}

func (l *Library) SetCurrentPage(id string, page int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.docs[id]
	if !ok {
		return ErrNotFound
	}
	if page < 1 || (len(d.ExtractedPages) > 0 && page > len(d.ExtractedPages)) {
		return fmt.Errorf("page %d out of range for %s", page, d.Name)
	}
	d.CurrentPage = page
	return nil
}

// Evict drops the in-memory binary; the rest of the document stays.
func (l *Library) Evict(id string) error {
	return l.update(id, func(d *models.ManagedDocument) { d.File = nil })
}

func (l *Library) AttachFile(id string, data []byte) error {
	return l.update(id, func(d *models.ManagedDocument) { d.File = data })
}

func (l *Library) SetActive(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.docs[id]; !ok {
		return ErrNotFound
	}
	l.active = id
	return nil
}

func (l *Library) Active() (models.ManagedDocument, bool) {
	l.mu.RLock()
	id := l.active
	l.mu.RUnlock()
	if id == "" {
		return models.ManagedDocument{}, false
	}
	return l.Get(id)
}

func (l *Library) ActiveID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

func (l *Library) update(id string, fn func(d *models.ManagedDocument)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.docs[id]
	if !ok {
		return ErrNotFound
	}
	fn(d)
	return nil
}
