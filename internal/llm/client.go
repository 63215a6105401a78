// Package llm is the HTTP client for an Ollama-compatible inference server.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the wire shape of POST /api/chat.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
	System      string    `json:"system,omitempty"`
}

// StreamChunk is one newline-delimited JSON line of a streamed chat response.
type StreamChunk struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// No global timeout: generation can run for minutes and streaming
		// lifetime is bounded by the request context instead.
		HTTP: &http.Client{},
	}
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.HTTP.Do(req)
}

// Chat performs a non-streaming chat call and returns the decoded upstream
// body as-is, so callers can merge their own fields before forwarding it.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (map[string]any, error) {
	req.Stream = false
	resp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("ollama: decoding response: %w", err)
	}
	if msg, ok := decoded["error"].(string); ok && msg != "" {
		return nil, errors.New(msg)
	}
	return decoded, nil
}

// Stream performs a streaming chat call and returns the raw response body.
// The caller owns the body and must close it; cancellation of ctx tears the
// upstream connection down.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	req.Stream = true
	resp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of locally available models with any
// ":latest" suffix stripped.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}

	var decoded tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("ollama: decoding tags: %w", err)
	}

	names := make([]string, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		names = append(names, strings.TrimSuffix(m.Name, ":latest"))
	}
	return names, nil
}

type createModelReq struct {
	Name      string `json:"name"`
	Modelfile string `json:"modelfile"`
}

// CreateModel registers a modelfile-based persona with the inference server.
// The endpoint streams NDJSON status lines; they are drained and only a
// terminal error line fails the call.
func (c *Client) CreateModel(ctx context.Context, name, modelfileText string) error {
	resp, err := c.post(ctx, "/api/create", createModelReq{Name: name, Modelfile: modelfileText})
	if err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ollama: status %d", resp.StatusCode)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var status struct {
			Error string `json:"error,omitempty"`
		}
		if err := json.Unmarshal(line, &status); err != nil {
			continue
		}
		if status.Error != "" {
			return errors.New(status.Error)
		}
	}
	return sc.Err()
}

// DeleteModel removes a model from the inference server.
func (c *Client) DeleteModel(ctx context.Context, name string) error {
	b, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/api/delete", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	resp, err := c.HTTP.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	return nil
}
