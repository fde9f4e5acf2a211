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
)

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// readSSE accumulates choices[0].delta.content from data: lines until the
// [DONE] marker. A body that ends before the marker is an error.
func readSSE(provider string, r io.Reader, req GenerateRequest) (string, error) {
	var text strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return text.String(), nil
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return text.String(), fmt.Errorf("decode %s stream: %w", provider, err)
		}
		if ev.Error != nil {
			return text.String(), &BackendError{Provider: provider, Status: http.StatusOK, Message: ev.Error.Message}
		}
		if len(ev.Choices) == 0 {
			continue
		}
		tok := ev.Choices[0].Delta.Content
		if tok == "" {
			continue
		}
		text.WriteString(tok)
		emit(req, tok)
	}
	if err := sc.Err(); err != nil {
		return text.String(), fmt.Errorf("read %s stream: %w", provider, err)
	}
	return text.String(), errStreamIncomplete(provider, http.StatusOK)
}

func errStreamIncomplete(provider string, status int) error {
	return &BackendError{Provider: provider, Status: status, Message: "stream ended before completion"}
}

// postStream sends a JSON body and decodes the SSE reply.
func postStream(ctx context.Context, client *http.Client, provider, url, apiKey string, body any, req GenerateRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode %s request: %w", provider, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s generate request failed: %w", provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", backendError(provider, resp)
	}
	return readSSE(provider, resp.Body, req)
}

func chatBody(model, prompt string) map[string]any {
	return map[string]any{
		"model":    model,
		"stream":   true,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
}
