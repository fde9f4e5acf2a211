package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"docqa/internal/models"
	"docqa/internal/util"
)

var ErrOCRNotConfigured = errors.New("ocr service not configured")

// OCRClient posts a PDF to an OCR service and reads back plain page text.
type OCRClient struct {
	baseURL string
	client  *http.Client
}

func NewOCRClient(baseURL string, timeout time.Duration) *OCRClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OCRClient{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), client: &http.Client{Timeout: timeout}}
}

func (c *OCRClient) Configured() bool {
	return c != nil && c.baseURL != ""
}

func (c *OCRClient) Recognize(ctx context.Context, filename string, data []byte) ([]models.PageText, error) {
	if !c.Configured() {
		return nil, ErrOCRNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("X-Filename", filename)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("ocr error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed struct {
		Pages []struct {
			PageNumber int    `json:"page_number"`
			Text       string `json:"text"`
		} `json:"pages"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}
	sort.SliceStable(parsed.Pages, func(i, j int) bool { return parsed.Pages[i].PageNumber < parsed.Pages[j].PageNumber })
	out := make([]models.PageText, 0, len(parsed.Pages))
	for i, p := range parsed.Pages {
		out = append(out, models.PageText{PageNumber: i + 1, Text: util.SanitizeText(p.Text)})
	}
	if len(out) == 0 {
		return nil, util.ErrNoExtractableText
	}
	return out, nil
}
