package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"docqa/internal/chat"
	"docqa/internal/config"
	"docqa/internal/extract"
	"docqa/internal/library"
	"docqa/internal/models"
	"docqa/internal/providers"
	"docqa/internal/segment"
	"docqa/internal/storage"

	tclient "go.temporal.io/sdk/client"
)

type DocumentStore interface {
	UpsertDocument(ctx context.Context, d models.ManagedDocument, status string) error
	GetDocument(ctx context.Context, id string, withFile bool) (models.ManagedDocument, string, error)
	ListDocuments(ctx context.Context) ([]models.ManagedDocument, error)
	UpdateSummary(ctx context.Context, id, summary string) error
	UpdateCurrentPage(ctx context.Context, id string, page int) error
	DeleteDocument(ctx context.Context, id string) error
	ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk) error
	ListChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error)
}

type SessionStore interface {
	SaveSession(ctx context.Context, st models.SessionState) error
	LoadSession(ctx context.Context) (models.SessionState, bool, error)
}

type Recognizer interface {
	Configured() bool
	Recognize(ctx context.Context, filename string, data []byte) ([]models.PageText, error)
}

// Deps wires a Server. Only Library and Orchestrator are required; nil stores
// keep the server purely in memory and a nil Temporal client ingests inline.
type Deps struct {
	Config       config.Config
	Library      *library.Library
	Orchestrator *chat.Orchestrator
	OCR          Recognizer
	Documents    DocumentStore
	Session      SessionStore
	Temporal     tclient.Client
	Logger       *slog.Logger
}

type Server struct {
	cfg      config.Config
	lib      *library.Library
	orch     *chat.Orchestrator
	ocr      Recognizer
	docs     DocumentStore
	session  SessionStore
	temporal tclient.Client
	log      *slog.Logger

	// pending holds scanned uploads waiting for OCR.
	mu      sync.Mutex
	pending map[string]models.ManagedDocument
}

func New(d Deps) (*Server, error) {
	if d.Library == nil || d.Orchestrator == nil {
		return nil, errors.New("api: library and orchestrator are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Server{
		cfg:      d.Config,
		lib:      d.Library,
		orch:     d.Orchestrator,
		ocr:      d.OCR,
		docs:     d.Documents,
		session:  d.Session,
		temporal: d.Temporal,
		log:      d.Logger,
		pending:  map[string]models.ManagedDocument{},
	}, nil
}

type repoStore struct {
	*storage.DocumentRepo
	*storage.ChunkRepo
}

// NewServer builds the Postgres-backed server and restores the previous
// session. Temporal is optional; when it cannot be reached uploads are
// ingested inline.
func NewServer(ctx context.Context, cfg config.Config, db *storage.DB, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seg, err := segment.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	lib := library.New(seg)
	msgRepo := storage.NewMessageRepo(db)
	restored, err := msgRepo.ListMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore transcript: %w", err)
	}
	orch, err := chat.New(chat.Options{
		Providers:     pm,
		Documents:     lib,
		Quota:         storage.NewUsageRepo(db),
		Transcript:    chat.NewTranscript(restored...),
		LocalProvider: "ollama",
		CloudProvider: "groq",
		FallbackModel: cfg.FallbackModel,
		CloudLimit:    cfg.CloudLimit,
		Selection:     models.Selection{Provider: cfg.DefaultProvider},
		TopK:          cfg.RetrievalTopK,
		HistoryWindow: cfg.HistoryWindow,
		Store:         msgRepo,
		Auditor:       storage.NewLLMAuditRepo(db),
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	var tc tclient.Client
	if cfg.TemporalAddress != "" {
		c, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			logger.Warn("temporal unavailable, ingesting inline", "address", cfg.TemporalAddress, "error", err)
		} else {
			tc = c
		}
	}
	s, err := New(Deps{
		Config:       cfg,
		Library:      lib,
		Orchestrator: orch,
		OCR:          extract.NewOCRClient(cfg.OCRURL, time.Duration(cfg.ProviderTimeout)*time.Second),
		Documents:    repoStore{storage.NewDocumentRepo(db), storage.NewChunkRepo(db)},
		Session:      storage.NewSessionRepo(db),
		Temporal:     tc,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Restore(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Restore reloads ready documents and the saved session from the stores.
// Binaries stay in the store until a client asks for them.
func (s *Server) Restore(ctx context.Context) error {
	if s.docs != nil {
		docs, err := s.docs.ListDocuments(ctx)
		if err != nil {
			return fmt.Errorf("restore documents: %w", err)
		}
		for _, d := range docs {
			if err := s.loadDocument(ctx, d); err != nil {
				s.log.Warn("skip unrestorable document", "document_id", d.ID, "error", err)
			}
		}
	}
	if s.session == nil {
		return nil
	}
	st, ok, err := s.session.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return nil
	}
	if st.ActiveDocumentID != "" {
		if err := s.lib.SetActive(st.ActiveDocumentID); err != nil {
			s.log.Warn("saved active document missing", "document_id", st.ActiveDocumentID)
		}
	}
	if st.Selected.Provider != "" {
		s.orch.SetSelection(st.Selected)
	}
	s.log.Info("session restored", "documents", s.lib.Len(), "messages", s.orch.Transcript().Len())
	return nil
}

func (s *Server) loadDocument(ctx context.Context, d models.ManagedDocument) error {
	chunks, err := s.docs.ListChunksByDocument(ctx, d.ID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		rebuilt, err := s.lib.Build(d.ID, d.Name, nil, d.ExtractedPages)
		if err != nil {
			return err
		}
		chunks = rebuilt.Chunks
	}
	d.Chunks = chunks
	if d.CurrentPage < 1 {
		d.CurrentPage = 1
	}
	s.lib.Add(d)
	return nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/ask/selection", s.handleAskSelection)
	mux.HandleFunc("/messages", s.handleMessages)
	mux.HandleFunc("/session", s.handleSession)
	mux.HandleFunc("/quota", s.handleQuota)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "documents": s.lib.Len(), "busy": s.orch.Busy()})
}

func (s *Server) saveSession(ctx context.Context) {
	if s.session == nil {
		return
	}
	st := models.SessionState{ActiveDocumentID: s.lib.ActiveID(), Selected: s.orch.Selection()}
	if err := s.session.SaveSession(ctx, st); err != nil {
		s.log.Warn("save session failed", "error", err)
	}
}

// Close releases the Temporal client, if any.
func (s *Server) Close() {
	if s.temporal != nil {
		s.temporal.Close()
	}
}
