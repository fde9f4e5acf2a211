package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"docqa/internal/library"
	"docqa/internal/models"
	"docqa/internal/quota"
)

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.orch.Transcript().Messages()})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, models.SessionState{ActiveDocumentID: s.lib.ActiveID(), Selected: s.orch.Selection()})
	case http.MethodPut:
		var req struct {
			ActiveDocumentID *string           `json:"active_document_id"`
			Selected         *models.Selection `json:"selected_model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if req.ActiveDocumentID != nil && *req.ActiveDocumentID != "" {
			if err := s.lib.SetActive(*req.ActiveDocumentID); err != nil {
				if errors.Is(err, library.ErrNotFound) {
					writeErr(w, http.StatusNotFound, err)
					return
				}
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
		}
		if req.Selected != nil {
			if strings.TrimSpace(req.Selected.Provider) == "" {
				writeErr(w, http.StatusBadRequest, errors.New("provider is required"))
				return
			}
			s.orch.SetSelection(*req.Selected)
		}
		s.saveSession(r.Context())
		writeJSON(w, http.StatusOK, models.SessionState{ActiveDocumentID: s.lib.ActiveID(), Selected: s.orch.Selection()})
	default:
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	}
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	used, remaining, err := s.orch.QuotaRemaining(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	limit := s.cfg.CloudLimit
	if limit <= 0 {
		limit = quota.CloudLimit
	}
	writeJSON(w, http.StatusOK, map[string]any{"used": used, "remaining": remaining, "limit": limit})
}
