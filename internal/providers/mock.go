package providers

import (
	"context"
	"strings"

	"docqa/internal/models"
)

// MockProvider streams deterministic text so the pipeline runs without a
// model server.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	op := strings.ToLower(req.Operation)
	var text string
	switch {
	case strings.Contains(op, "pinpoint"):
		text = `{"quote": "` + strings.ReplaceAll(firstPassageLine(req.Prompt), `"`, `'`) + `"}`
	case strings.Contains(op, "summary"):
		text = "Mock summary of the document."
	default:
		text = "Mock answer grounded in the supplied document context."
		if line := firstPassageLine(req.Prompt); line != "" {
			text += " " + line
		}
	}
	for _, w := range strings.SplitAfter(text, " ") {
		emit(req, w)
	}
	model := req.Model
	if model == "" {
		model = "mock-llm-v1"
	}
	info := ProviderInfo{Name: "mock", Model: model, Key: "mock"}
	return GenerateResponse{Text: text, Stats: &models.GenerationStats{Provider: info.Name, Model: model, EvalCount: len(strings.Fields(text))}}, info, nil
}

func (m *MockProvider) Ping(ctx context.Context) bool {
	return ctx.Err() == nil
}

// firstPassageLine returns the first text line after the first
// "[Document: ...]" label in a prompt.
func firstPassageLine(prompt string) string {
	i := strings.Index(prompt, "[Document: ")
	if i < 0 {
		return ""
	}
	rest := prompt[i:]
	nl := strings.Index(rest, "\n")
	if nl < 0 {
		return ""
	}
	rest = rest[nl+1:]
	if end := strings.Index(rest, "\n"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
