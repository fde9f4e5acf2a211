package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"docqa/internal/chat"
	"docqa/internal/extract"
	"docqa/internal/library"
	"docqa/internal/models"
	"docqa/internal/segment"
	"docqa/internal/storage"
	"docqa/internal/util"
	"docqa/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

var (
	errNotPDF           = errors.New("file is not a pdf")
	errNoFile           = errors.New("no file provided")
	errTooLarge         = errors.New("file exceeds upload limit")
	errBadPage          = errors.New("page must be a positive number")
	errNotFound         = errors.New("not found")
	errMethodNotAllowed = errors.New("method not allowed")
)

type documentView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Pages       int    `json:"pages"`
	Chunks      int    `json:"chunks"`
	Summary     string `json:"summary,omitempty"`
	CurrentPage int    `json:"current_page"`
	Active      bool   `json:"active"`
	Status      string `json:"status"`
}

func (s *Server) view(d models.ManagedDocument, status string) documentView {
	return documentView{
		ID:          d.ID,
		Name:        d.Name,
		Pages:       len(d.ExtractedPages),
		Chunks:      len(d.Chunks),
		Summary:     d.Summary,
		CurrentPage: d.CurrentPage,
		Active:      d.ID == s.lib.ActiveID(),
		Status:      status,
	}
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs := s.lib.List()
		out := make([]documentView, 0, len(docs))
		for _, d := range docs {
			out = append(out, s.view(d, storage.StatusReady))
		}
		s.mu.Lock()
		for _, d := range s.pending {
			out = append(out, s.view(d, storage.StatusNeedsOCR))
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"documents": out, "active_document_id": s.lib.ActiveID()})
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	}
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetDocument(w, r, id)
		case http.MethodDelete:
			s.handleDeleteDocument(w, r, id)
		default:
			writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
		return
	}
	if len(parts) != 2 {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	route := map[string]struct {
		method string
		fn     func(http.ResponseWriter, *http.Request, string)
	}{
		"file":    {http.MethodGet, s.handleDocumentFile},
		"chunks":  {http.MethodGet, s.handleDocumentChunks},
		"status":  {http.MethodGet, s.handleDocumentStatus},
		"ocr":     {http.MethodPost, s.handleDocumentOCR},
		"page":    {http.MethodPut, s.handleDocumentPage},
		"summary": {http.MethodPost, s.handleDocumentSummary},
	}
	h, ok := route[parts[1]]
	if !ok {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	if r.Method != h.method {
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	h.fn(w, r, id)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.cfg.MaxUploadMB) << 20
	if limit <= 0 {
		limit = 50 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeErr(w, http.StatusRequestEntityTooLarge, errTooLarge)
			return
		}
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	fh, ok := firstFile(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, errNoFile)
		return
	}
	if fh.Size > limit {
		writeErr(w, http.StatusRequestEntityTooLarge, errTooLarge)
		return
	}
	src, err := fh.Open()
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("open upload: %w", err))
		return
	}
	data, err := io.ReadAll(src)
	_ = src.Close()
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	name := filepath.Base(fh.Filename)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") && !bytes.HasPrefix(data, []byte("%PDF")) {
		writeErr(w, http.StatusBadRequest, errNotPDF)
		return
	}
	runOCR := queryBool(r, "ocr")
	id := uuid.NewString()

	if queryBool(r, "async") && s.temporal != nil {
		s.startIngest(w, r, id, name, data, runOCR)
		return
	}

	pages, err := extract.PagesFromBytes(data)
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errNotPDF, err))
		return
	}
	if segment.DetectScannedPDF(pages) {
		if !runOCR {
			s.holdForOCR(r, models.ManagedDocument{ID: id, Name: name, File: data, ExtractedPages: pages, CurrentPage: 1})
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": map[string]any{
					"code":    "DQ-API-4220",
					"message": "This PDF looks scanned. Run OCR to extract its text.",
				},
				"document_id": id,
				"status":      storage.StatusNeedsOCR,
			})
			return
		}
		ocrPages, err := s.recognize(r, name, data)
		if err != nil {
			s.writeOCRErr(w, err)
			return
		}
		pages = ocrPages
	}
	doc, err := s.lib.Build(id, name, data, pages)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.lib.Add(doc)
	s.persist(r, doc)
	s.saveSession(r.Context())
	s.log.Info("document added", "document_id", doc.ID, "name", doc.Name, "pages", len(doc.ExtractedPages), "chunks", len(doc.Chunks))
	writeJSON(w, http.StatusCreated, s.view(doc, storage.StatusReady))
}

func (s *Server) startIngest(w http.ResponseWriter, r *http.Request, id, name string, data []byte, runOCR bool) {
	dir := filepath.Join(s.cfg.DataDir, "uploads")
	if err := util.EnsureDir(dir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	path := util.SafeJoin(dir, id+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("write upload: %w", err))
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       workflows.WorkflowID(id),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.DocumentIngestWorkflow, workflows.DocumentIngestInput{
		DocumentID: id,
		Name:       name,
		Path:       path,
		RunOCR:     runOCR,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"document_id": id, "workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request, id string) {
	if d, ok := s.lib.Get(id); ok {
		writeJSON(w, http.StatusOK, s.view(d, storage.StatusReady))
		return
	}
	if s.temporal != nil {
		resp, err := s.temporal.QueryWorkflow(r.Context(), workflows.WorkflowID(id), "", workflows.QueryGetIngestStatus)
		if err == nil {
			var st workflows.IngestStatus
			if err := resp.Get(&st); err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			if st.Status == workflows.StatusReady {
				s.adoptIngested(r, id)
			}
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	if s.docs != nil {
		d, status, err := s.docs.GetDocument(r.Context(), id, false)
		if err == nil {
			if status == storage.StatusReady {
				s.adoptIngested(r, id)
			}
			writeJSON(w, http.StatusOK, s.view(d, status))
			return
		}
	}
	s.mu.Lock()
	d, ok := s.pending[id]
	s.mu.Unlock()
	if ok {
		writeJSON(w, http.StatusOK, s.view(d, storage.StatusNeedsOCR))
		return
	}
	writeErr(w, http.StatusNotFound, errNotFound)
}

// adoptIngested loads a document the worker finished into the library.
func (s *Server) adoptIngested(r *http.Request, id string) {
	if s.docs == nil {
		return
	}
	if _, ok := s.lib.Get(id); ok {
		return
	}
	d, status, err := s.docs.GetDocument(r.Context(), id, false)
	if err != nil || status != storage.StatusReady {
		return
	}
	if err := s.loadDocument(r.Context(), d); err != nil {
		s.log.Warn("adopt ingested document failed", "document_id", id, "error", err)
	}
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := s.lib.Get(id)
	if !ok {
		s.mu.Lock()
		p, pending := s.pending[id]
		s.mu.Unlock()
		if pending {
			writeJSON(w, http.StatusOK, map[string]any{"document": s.view(p, storage.StatusNeedsOCR)})
			return
		}
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": s.view(d, storage.StatusReady), "pages": d.ExtractedPages})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, id string) {
	removed := s.lib.Remove(id)
	s.mu.Lock()
	if _, ok := s.pending[id]; ok {
		delete(s.pending, id)
		removed = true
	}
	s.mu.Unlock()
	if s.docs != nil {
		err := s.docs.DeleteDocument(r.Context(), id)
		if err == nil {
			removed = true
		} else if !errors.Is(err, storage.ErrNotFound) {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
	}
	if !removed {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	s.saveSession(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id, "active_document_id": s.lib.ActiveID()})
}

// handleDocumentFile serves the original PDF, loading it back from the
// store when the in-memory copy was evicted.
func (s *Server) handleDocumentFile(w http.ResponseWriter, r *http.Request, id string) {
	data, name, err := s.fileFor(r, id)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) fileFor(r *http.Request, id string) ([]byte, string, error) {
	if d, ok := s.lib.Get(id); ok && len(d.File) > 0 {
		return d.File, d.Name, nil
	}
	s.mu.Lock()
	p, ok := s.pending[id]
	s.mu.Unlock()
	if ok && len(p.File) > 0 {
		return p.File, p.Name, nil
	}
	if s.docs != nil {
		d, _, err := s.docs.GetDocument(r.Context(), id, true)
		if err == nil && len(d.File) > 0 {
			if _, inLib := s.lib.Get(id); inLib {
				_ = s.lib.AttachFile(id, d.File)
			}
			return d.File, d.Name, nil
		}
	}
	return nil, "", fmt.Errorf("document %s: %w", id, errNotFound)
}

func (s *Server) handleDocumentChunks(w http.ResponseWriter, _ *http.Request, id string) {
	d, ok := s.lib.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": d.Chunks})
}

// handleDocumentOCR replaces a document's text with OCR output. It serves
// both scanned uploads held back for OCR and documents already in the library.
func (s *Server) handleDocumentOCR(w http.ResponseWriter, r *http.Request, id string) {
	data, name, err := s.fileFor(r, id)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	pages, err := s.recognize(r, name, data)
	if err != nil {
		s.writeOCRErr(w, err)
		return
	}
	var doc models.ManagedDocument
	if _, ok := s.lib.Get(id); ok {
		doc, err = s.lib.ReplaceExtraction(id, pages)
	} else {
		doc, err = s.lib.Build(id, name, data, pages)
		if err == nil {
			s.lib.Add(doc)
		}
	}
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
	if len(doc.File) == 0 {
		doc.File = data
	}
	s.persist(r, doc)
	s.saveSession(r.Context())
	writeJSON(w, http.StatusOK, s.view(doc, storage.StatusReady))
}

func (s *Server) handleDocumentPage(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Page int `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if req.Page < 1 {
		writeErr(w, http.StatusBadRequest, errBadPage)
		return
	}
	if err := s.lib.SetCurrentPage(id, req.Page); err != nil {
		if errors.Is(err, library.ErrNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errBadPage, err))
		return
	}
	if s.docs != nil {
		if err := s.docs.UpdateCurrentPage(r.Context(), id, req.Page); err != nil {
			s.log.Warn("persist current page failed", "document_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "current_page": req.Page})
}

func (s *Server) handleDocumentSummary(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := s.lib.Get(id); !ok {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	res, err := s.orch.Summarize(r.Context(), id, nil)
	if err != nil {
		if errors.Is(err, chat.ErrBusy) {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if res.State == chat.StateCommitted && s.docs != nil {
		if err := s.docs.UpdateSummary(r.Context(), id, res.Message.Content); err != nil {
			s.log.Warn("persist summary failed", "document_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) holdForOCR(r *http.Request, d models.ManagedDocument) {
	s.mu.Lock()
	s.pending[d.ID] = d
	s.mu.Unlock()
	if s.docs == nil {
		return
	}
	if err := s.docs.UpsertDocument(r.Context(), d, storage.StatusNeedsOCR); err != nil {
		s.log.Warn("persist scanned upload failed", "document_id", d.ID, "error", err)
	}
}

func (s *Server) persist(r *http.Request, d models.ManagedDocument) {
	if s.docs == nil {
		return
	}
	if err := s.docs.UpsertDocument(r.Context(), d, storage.StatusReady); err != nil {
		s.log.Warn("persist document failed", "document_id", d.ID, "error", err)
		return
	}
	if err := s.docs.ReplaceChunks(r.Context(), d.ID, d.Chunks); err != nil {
		s.log.Warn("persist chunks failed", "document_id", d.ID, "error", err)
		return
	}
	// The store now owns the binary; fileFor reloads it on demand.
	_ = s.lib.Evict(d.ID)
}

func (s *Server) recognize(r *http.Request, name string, data []byte) ([]models.PageText, error) {
	if s.ocr == nil || !s.ocr.Configured() {
		return nil, extract.ErrOCRNotConfigured
	}
	return s.ocr.Recognize(r.Context(), name, data)
}

func (s *Server) writeOCRErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extract.ErrOCRNotConfigured):
		writeErr(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, util.ErrNoExtractableText):
		writeErr(w, http.StatusUnprocessableEntity, err)
	default:
		writeErr(w, http.StatusBadGateway, err)
	}
}

func firstFile(r *http.Request) (*multipart.FileHeader, bool) {
	if r.MultipartForm == nil {
		return nil, false
	}
	if v := r.MultipartForm.File["file"]; len(v) > 0 {
		return v[0], true
	}
	for _, v := range r.MultipartForm.File {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}
