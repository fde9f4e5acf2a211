package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docqa/internal/models"
)

const pingTimeout = 3 * time.Second

// OllamaProvider streams completions from a local Ollama server.
type OllamaProvider struct {
	alias   string
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaProvider(alias, baseURL, model string, timeout time.Duration) *OllamaProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:11434"
	}
	if strings.TrimSpace(model) == "" {
		model = "llama3.2"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaProvider{
		alias:   alias,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type ollamaChunk struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	Error           string `json:"error"`
	EvalCount       int    `json:"eval_count"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	TotalDuration   int64  `json:"total_duration"`
	LoadDuration    int64  `json:"load_duration"`
}

func (o *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	model := o.model
	if req.Model != "" {
		model = req.Model
	}
	info := ProviderInfo{Name: "ollama", Model: model, Key: o.alias}
	payload, err := json.Marshal(map[string]any{
		"model":  model,
		"prompt": req.Prompt,
		"stream": true,
	})
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("encode ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("ollama generate request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return GenerateResponse{}, info, backendError("ollama", resp)
	}

	var text strings.Builder
	stats := &models.GenerationStats{Provider: info.Name, Model: model}
	done := false
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var c ollamaChunk
		if err := json.Unmarshal(line, &c); err != nil {
			return GenerateResponse{}, info, fmt.Errorf("decode ollama stream: %w", err)
		}
		if c.Error != "" {
			return GenerateResponse{}, info, &BackendError{Provider: "ollama", Status: resp.StatusCode, Message: c.Error}
		}
		if c.Response != "" {
			text.WriteString(c.Response)
			emit(req, c.Response)
		}
		if c.Done {
			stats.EvalCount = c.EvalCount
			stats.PromptEvalCount = c.PromptEvalCount
			stats.TotalDuration = time.Duration(c.TotalDuration)
			stats.LoadDuration = time.Duration(c.LoadDuration)
			done = true
			break
		}
	}
	if err := sc.Err(); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("read ollama stream: %w", err)
	}
	if !done {
		return GenerateResponse{}, info, errStreamIncomplete("ollama", resp.StatusCode)
	}
	return GenerateResponse{Text: text.String(), Stats: stats}, info, nil
}

// Ping reports whether the server answers its tags endpoint.
func (o *OllamaProvider) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode < 400
}

// backendError reads an error body, preferring the backend's message field.
func backendError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := strings.TrimSpace(string(body))
	var parsed struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && len(parsed.Error) > 0 {
		var s string
		var obj struct {
			Message string `json:"message"`
		}
		switch {
		case json.Unmarshal(parsed.Error, &s) == nil && s != "":
			msg = s
		case json.Unmarshal(parsed.Error, &obj) == nil && obj.Message != "":
			msg = obj.Message
		}
	}
	return &BackendError{Provider: provider, Status: resp.StatusCode, Message: msg}
}
