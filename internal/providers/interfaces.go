package providers

import (
	"context"

	"docqa/internal/models"
)

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type GenerateRequest struct {
	Operation string `json:"operation"`
	Prompt    string `json:"prompt"`
	// Model overrides the provider's configured model when set.
	Model string `json:"model,omitempty"`
	// OnToken receives each streamed increment in order.
	OnToken func(string) `json:"-"`
}

type GenerateResponse struct {
	Text  string                  `json:"text"`
	Stats *models.GenerationStats `json:"stats,omitempty"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

// Prober is implemented by backends with a liveness endpoint. Ping never
// returns an error; no answer means unreachable.
type Prober interface {
	Ping(ctx context.Context) bool
}

func emit(req GenerateRequest, tok string) {
	if req.OnToken != nil && tok != "" {
		req.OnToken(tok)
	}
}
