package activities

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docqa/internal/config"
	"docqa/internal/extract"
	"docqa/internal/models"
	"docqa/internal/segment"
	"docqa/internal/storage"
	"docqa/internal/util"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// Error types the ingest workflow treats as terminal.
const (
	ErrTypeInvalidPDF     = "InvalidPDF"
	ErrTypeNoText         = "NoExtractableText"
	ErrTypeOCRUnavailable = "OCRUnavailable"
)

type documentStore interface {
	UpsertDocument(ctx context.Context, d models.ManagedDocument, status string) error
	UpdateStatus(ctx context.Context, id, status string) error
}

type chunkStore interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk) error
}

type Activities struct {
	cfg       config.Config
	segmenter *segment.Segmenter
	ocr       *extract.OCRClient
	docs      documentStore
	chunks    chunkStore
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	seg, err := segment.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:       cfg,
		segmenter: seg,
		ocr:       extract.NewOCRClient(cfg.OCRURL, time.Duration(cfg.ProviderTimeout)*time.Second),
		docs:      storage.NewDocumentRepo(db),
		chunks:    storage.NewChunkRepo(db),
	}, nil
}

func (a *Activities) ComputeDocumentIDActivity(ctx context.Context, in ComputeDocumentIDInput) (ComputeDocumentIDOutput, error) {
	_ = ctx
	b, err := os.ReadFile(in.Path)
	if err != nil {
		return ComputeDocumentIDOutput{}, fmt.Errorf("read file for hash: %w", err)
	}
	return ComputeDocumentIDOutput{DocumentID: util.SHA256Hex(b)[:32]}, nil
}

const (
	pagesFile    = "pages.json"
	ocrPagesFile = "ocr_pages.json"
	chunksFile   = "chunks.jsonl"
)

func (a *Activities) artifactPath(documentID, name string) string {
	return filepath.Join(util.ArtifactDir(a.cfg.DataDir, documentID), name)
}

func (a *Activities) ExtractPagesActivity(ctx context.Context, in ExtractPagesInput) (ExtractPagesOutput, error) {
	pages, err := extract.PagesFromFile(in.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ExtractPagesOutput{}, err
		}
		return ExtractPagesOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidPDF, err)
	}
	out := a.artifactPath(in.DocumentID, pagesFile)
	if err := util.WriteJSONAtomic(out, pages); err != nil {
		return ExtractPagesOutput{}, err
	}
	scanned := segment.DetectScannedPDF(pages)
	activity.GetLogger(ctx).Info("extracted pages", "path", filepath.Base(in.Path), "pages", len(pages), "scanned", scanned)
	return ExtractPagesOutput{PagesPath: out, Pages: len(pages), Scanned: scanned}, nil
}

func (a *Activities) OCRPagesActivity(ctx context.Context, in OCRPagesInput) (OCRPagesOutput, error) {
	if a.ocr == nil || !a.ocr.Configured() {
		return OCRPagesOutput{}, temporal.NewNonRetryableApplicationError(extract.ErrOCRNotConfigured.Error(), ErrTypeOCRUnavailable, nil)
	}
	b, err := os.ReadFile(in.Path)
	if err != nil {
		return OCRPagesOutput{}, fmt.Errorf("read file for ocr: %w", err)
	}
	pages, err := a.ocr.Recognize(ctx, in.Name, b)
	if err != nil {
		if errors.Is(err, util.ErrNoExtractableText) {
			return OCRPagesOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNoText, err)
		}
		return OCRPagesOutput{}, err
	}
	out := a.artifactPath(in.DocumentID, ocrPagesFile)
	if err := util.WriteJSONAtomic(out, pages); err != nil {
		return OCRPagesOutput{}, err
	}
	return OCRPagesOutput{PagesPath: out, Pages: len(pages)}, nil
}

func (a *Activities) SegmentPagesActivity(ctx context.Context, in SegmentPagesInput) (SegmentPagesOutput, error) {
	_ = ctx
	pages, err := readPages(in.PagesPath)
	if err != nil {
		return SegmentPagesOutput{}, err
	}
	chunks := a.segmenter.Segment(in.DocumentID, in.Name, pages)
	if len(chunks) == 0 {
		return SegmentPagesOutput{}, temporal.NewNonRetryableApplicationError(util.ErrNoExtractableText.Error(), ErrTypeNoText, nil)
	}
	rows := make([]any, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, c)
	}
	out := a.artifactPath(in.DocumentID, chunksFile)
	if err := util.WriteJSONLinesAtomic(out, rows); err != nil {
		return SegmentPagesOutput{}, err
	}
	return SegmentPagesOutput{ChunksPath: out, Chunks: len(chunks)}, nil
}

func (a *Activities) SaveDocumentActivity(ctx context.Context, in SaveDocumentInput) error {
	var file []byte
	if in.Path != "" {
		b, err := os.ReadFile(in.Path)
		if err != nil {
			return fmt.Errorf("read document file: %w", err)
		}
		file = b
	}
	pages, err := readPages(in.PagesPath)
	if err != nil {
		return err
	}
	var chunks []models.Chunk
	if in.ChunksPath != "" {
		chunks, err = util.ReadJSONLines[models.Chunk](in.ChunksPath)
		if err != nil {
			return err
		}
	}
	doc := models.ManagedDocument{
		ID:             in.DocumentID,
		Name:           in.Name,
		File:           file,
		Chunks:         chunks,
		ExtractedPages: pages,
		CurrentPage:    1,
	}
	if err := a.docs.UpsertDocument(ctx, doc, in.Status); err != nil {
		return err
	}
	if in.Status != storage.StatusReady {
		return nil
	}
	return a.chunks.ReplaceChunks(ctx, in.DocumentID, chunks)
}

// UpdateDocumentStatusActivity sets the stored status, creating a bare row
// for a document that failed before it was ever saved.
func (a *Activities) UpdateDocumentStatusActivity(ctx context.Context, in UpdateDocumentStatusInput) error {
	err := a.docs.UpdateStatus(ctx, in.DocumentID, in.Status)
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return a.docs.UpsertDocument(ctx, models.ManagedDocument{ID: in.DocumentID, Name: in.Name, CurrentPage: 1}, in.Status)
}

func readPages(path string) ([]models.PageText, error) {
	if path == "" {
		return nil, nil
	}
	var pages []models.PageText
	ok, err := util.ReadJSON(path, &pages)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("pages artifact %s: %w", path, os.ErrNotExist)
	}
	return pages, nil
}
