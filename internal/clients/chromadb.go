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

// ChromaDBClient provides a client for ChromaDB operations using the v2 API.
// It implements interfaces.ChromaClient.
type ChromaDBClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	tenant     string
	database   string
}

// NewChromaDBClient creates a new ChromaDB client with v2 API
func NewChromaDBClient(baseURL string, timeout time.Duration, maxRetries int, tenant, database string) *ChromaDBClient {
	// Set defaults for tenant and database if not provided
	if tenant == "" {
		tenant = "default_tenant"
	}
	if database == "" {
		database = "default_database"
	}

	return &ChromaDBClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		tenant:     tenant,
		database:   database,
	}
}

// Health checks if ChromaDB is available using the v2 heartbeat endpoint
func (c *ChromaDBClient) Health(ctx context.Context) error {
	var response heartbeatResponse
	err := c.makeRequest(ctx, "GET", "/api/v2/heartbeat", nil, &response)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection if needed and returns its ID
func (c *ChromaDBClient) EnsureCollection(ctx context.Context, name, description string) (string, error) {
	request := createCollectionRequest{
		Name:        name,
		GetOrCreate: true,
		Metadata: map[string]any{
			"description": description,
		},
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var collection collectionResponse
	path := fmt.Sprintf("/api/v2/tenants/%s/databases/%s/collections", c.tenant, c.database)
	err = c.makeRequest(ctx, "POST", path, body, &collection)
	if err != nil {
		return "", fmt.Errorf("failed to ensure collection: %w", err)
	}

	return collection.ID, nil
}

// AddDocument stores one document in a collection
func (c *ChromaDBClient) AddDocument(ctx context.Context, collectionID string, doc interfaces.ChromaDocument) error {
	request := addDocumentsRequest{
		IDs:       []string{doc.ID},
		Documents: []string{doc.Text},
		Metadatas: []map[string]any{doc.Metadata},
	}
	if doc.Embedding != nil {
		request.Embeddings = [][]float64{doc.Embedding}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	path := fmt.Sprintf("/api/v2/tenants/%s/databases/%s/collections/%s/add", c.tenant, c.database, collectionID)
	err = c.makeRequest(ctx, "POST", path, body, nil)
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}

	return nil
}

// CountDocuments returns the number of documents in a collection
func (c *ChromaDBClient) CountDocuments(ctx context.Context, collectionID string) (int, error) {
	var response int
	path := fmt.Sprintf("/api/v2/tenants/%s/databases/%s/collections/%s/count", c.tenant, c.database, collectionID)
	err := c.makeRequest(ctx, "GET", path, nil, &response)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}

	return response, nil
}

// makeRequest makes an HTTP request with retries and error handling
func (c *ChromaDBClient) makeRequest(ctx context.Context, method, path string, body []byte, response any) error {
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

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
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

// heartbeatResponse represents ChromaDB's heartbeat API response
type heartbeatResponse struct {
	NanosecondHeartbeat int64 `json:"nanosecond heartbeat"`
}

// createCollectionRequest represents a v2 create collection request
type createCollectionRequest struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create"`
}

// collectionResponse represents a v2 collection payload
type collectionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// addDocumentsRequest represents a v2 add documents request
type addDocumentsRequest struct {
	IDs        []string         `json:"ids"`
	Documents  []string         `json:"documents,omitempty"`
	Embeddings [][]float64      `json:"embeddings,omitempty"`
	Metadatas  []map[string]any `json:"metadatas,omitempty"`
}
