// Package clients provides implementations of external service clients.
//
// This package contains clients for LLM services (Ollama), the upstream
// content extraction service, DOI resolution (CrossRef), and the ChromaDB
// vector store used by the MAPS system.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/example/maps/internal/interfaces"
)

// OllamaClient implements the LLMClient interface for Ollama
type OllamaClient struct {
	baseURL        string
	chatModel      string
	embeddingModel string
	httpClient     *http.Client
	maxRetries     int
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(baseURL, chatModel, embeddingModel string, timeout time.Duration, maxRetries int) *OllamaClient {
	return &OllamaClient{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
	}
}

// Complete generates text completion using the chat model
func (c *OllamaClient) Complete(ctx context.Context, prompt string, options *interfaces.LLMOptions) (string, error) {
	request := map[string]any{
		"model":  c.chatModel,
		"prompt": prompt,
		"stream": false,
	}

	if options != nil {
		opts := map[string]any{}
		if options.Temperature > 0 {
			opts["temperature"] = options.Temperature
		}
		if options.MaxTokens > 0 {
			opts["num_predict"] = options.MaxTokens
		}
		if len(opts) > 0 {
			request["options"] = opts
		}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var response GenerateResponse
	err = c.makeRequest(ctx, "POST", "/api/generate", body, &response)
	if err != nil {
		return "", fmt.Errorf("failed to complete: %w", err)
	}

	return response.Response, nil
}

// Embed generates embeddings for text using the embedding model
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	request := map[string]any{
		"model":  c.embeddingModel,
		"prompt": text,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var response EmbeddingResponse
	err = c.makeRequest(ctx, "POST", "/api/embeddings", body, &response)
	if err != nil {
		return nil, fmt.Errorf("failed to embed: %w", err)
	}

	return response.Embedding, nil
}

// Health checks if the Ollama service is healthy
func (c *OllamaClient) Health(ctx context.Context) error {
	var response any
	err := c.makeRequest(ctx, "GET", "/api/tags", nil, &response)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the client connection
func (c *OllamaClient) Close() error {
	// HTTP client doesn't need explicit closing
	return nil
}

// makeRequest makes an HTTP request to the Ollama API with retries
func (c *OllamaClient) makeRequest(ctx context.Context, method, path string, body []byte, response any) error {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			waitTime := time.Duration(attempt) * 10 * time.Millisecond
			slog.DebugContext(ctx, "Retrying request", "attempt", attempt, "wait", waitTime)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			lastErr = err
			continue
		}

		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			slog.DebugContext(ctx, "Request failed", "attempt", attempt, "error", err)
			continue
		}

		func() {
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				bodyBytes, _ := io.ReadAll(resp.Body)
				lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
				slog.DebugContext(ctx, "Request returned error status", "status", resp.StatusCode, "response", string(bodyBytes))
				return
			}

			if response != nil {
				if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
					lastErr = err
					slog.DebugContext(ctx, "Failed to decode response", "error", err)
					return
				}
			}
			lastErr = nil
		}()

		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// GenerateResponse represents Ollama's generate API response
type GenerateResponse struct {
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"created_at"`
	Response      string    `json:"response"`
	Done          bool      `json:"done"`
	TotalDuration int64     `json:"total_duration,omitempty"`
	EvalCount     int       `json:"eval_count,omitempty"`
}

// EmbeddingResponse represents Ollama's embedding API response
type EmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}
