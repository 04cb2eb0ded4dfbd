package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// DocAIEngine is the pro conversion path: an external document-AI
// service that OCRs scans and images and returns markdown with a page
// count. The page count settles the monthly pro budget.
type DocAIEngine struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewDocAIEngine creates the pro-tier engine. Request deadlines come
// from the caller's context, not a client timeout.
func NewDocAIEngine(baseURL, apiKey string) *DocAIEngine {
	return &DocAIEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 0},
	}
}

func (e *DocAIEngine) Name() string { return "docai" }

func (e *DocAIEngine) SupportedExtensions() []string {
	return []string{".pdf", ".gif", ".tiff", ".tif", ".jpg", ".jpeg", ".png", ".bmp", ".webp", ".html", ".htm"}
}

type docaiResponse struct {
	Markdown string `json:"markdown"`
	Pages    int    `json:"pages"`
	Error    string `json:"error,omitempty"`
}

func (e *DocAIEngine) Convert(ctx context.Context, filename string, content []byte) (*Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("copy file content: %w", err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := writer.WriteField("mime_type", contentType); err != nil {
		return nil, fmt.Errorf("write mime_type field: %w", err)
	}
	if err := writer.WriteField("output", "markdown"); err != nil {
		return nil, fmt.Errorf("write output field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	url := e.baseURL + "/v1/documents/process"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document-ai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("document-ai returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed docaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode document-ai response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("document-ai error: %s", parsed.Error)
	}

	return &Result{Markdown: parsed.Markdown, Pages: parsed.Pages}, nil
}
