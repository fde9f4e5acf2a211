package providers

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
	ErrorResource  ErrorType = "resource"
)

const ResourceHint = "Try a smaller model."

// BackendError is a non-success reply from a backend. Message holds the
// backend's own description when it sent one.
type BackendError struct {
	Provider string
	Status   int
	Message  string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s error %d: %s", e.Provider, e.Status, e.Message)
}

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "out of memory"), strings.Contains(e, "insufficient memory"),
		strings.Contains(e, "more system memory"), strings.Contains(e, "cuda"),
		strings.Contains(e, "resource exhausted"), strings.Contains(e, "resource_exhausted"):
		return ErrorResource
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate limit"), strings.Contains(e, "rate_limit"), strings.Contains(e, "429"), strings.Contains(e, "too many requests"):
		return ErrorRate
	case strings.Contains(e, "context length"), strings.Contains(e, "context window"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// Describe turns a generation failure into text for the transcript.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var be *BackendError
	if errors.As(err, &be) && be.Message != "" {
		msg = be.Message
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "The model request failed."
	}
	if ClassifyError(err) == ErrorResource {
		msg += " " + ResourceHint
	}
	return msg
}
