package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "DQ-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status == http.StatusBadGateway:
		return apiError{Code: "DQ-API-5020", Message: "Upstream service unavailable. Retry shortly."}
	case status == http.StatusServiceUnavailable:
		msg = "Service unavailable."
		if strings.Contains(raw, "ocr service not configured") {
			msg = "OCR is not configured on this server."
		}
		return apiError{Code: "DQ-API-5030", Message: msg}
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "DQ-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "DQ-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "DQ-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "DQ-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "DQ-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusMethodNotAllowed:
		code = "DQ-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusConflict:
		code = "DQ-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusRequestEntityTooLarge:
		code = "DQ-API-4013"
		msg = "The uploaded file is too large."
	case status == http.StatusUnprocessableEntity:
		code = "DQ-API-4220"
		msg = "The document could not be processed."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "question is required"):
			msg = "A question is required."
		case strings.Contains(raw, "selection is required"):
			msg = "Select a passage first."
		case strings.Contains(raw, "provider is required"):
			msg = "A provider name is required."
		case strings.Contains(raw, "no file provided"):
			msg = "No PDF file was provided."
		case strings.Contains(raw, "file is not a pdf"):
			msg = "The uploaded file is not a readable PDF."
		case strings.Contains(raw, "page must be a positive number"):
			msg = "Page is out of range for this document."
		case strings.Contains(raw, "no extractable text"):
			msg = "No text could be extracted from this document."
		case strings.Contains(raw, "already being answered"):
			msg = "A question is already being answered."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
