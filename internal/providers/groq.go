package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"docqa/internal/models"
)

type GroqOptions struct {
	// ProxyURL, when set, receives {prompt, model} and injects the credential
	// server side. Otherwise the chat completions API is called directly.
	ProxyURL string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// GroqProvider streams completions from Groq, directly or through a proxy.
type GroqProvider struct {
	keyName  string
	apiKey   string
	proxyURL string
	baseURL  string
	model    string
	client   *http.Client
}

func NewGroqProvider(keyName string, opts GroqOptions) *GroqProvider {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "llama-3.1-8b-instant"
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = resolveGroqKey(keyName)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GroqProvider{
		keyName:  keyName,
		apiKey:   apiKey,
		proxyURL: strings.TrimSpace(opts.ProxyURL),
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

func (g *GroqProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	model := g.model
	if req.Model != "" {
		model = req.Model
	}
	info := ProviderInfo{Name: "groq", Key: g.keyName, Model: model}
	var (
		text string
		err  error
	)
	switch {
	case g.proxyURL != "":
		text, err = postStream(ctx, g.client, "groq", g.proxyURL, "", map[string]any{"prompt": req.Prompt, "model": model}, req)
	case g.apiKey != "":
		text, err = postStream(ctx, g.client, "groq", g.baseURL+"/chat/completions", g.apiKey, chatBody(model, req.Prompt), req)
	default:
		return GenerateResponse{}, info, fmt.Errorf("groq key missing for alias %q", g.keyName)
	}
	if err != nil {
		return GenerateResponse{}, info, err
	}
	return GenerateResponse{Text: text, Stats: &models.GenerationStats{Provider: info.Name, Model: model}}, info, nil
}

func resolveGroqKey(alias string) string {
	if alias != "" {
		if v := os.Getenv("DOCQA_GROQ_KEY_" + strings.ToUpper(alias)); v != "" {
			return v
		}
	}
	return os.Getenv("GROQ_API_KEY")
}
