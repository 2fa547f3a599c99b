package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/example/maps/internal/types"
)

// SectionClient fetches parsed manuscript sections from the upstream
// content extraction service. It implements interfaces.ContentExtractor.
type SectionClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewSectionClient creates a new content extraction client
func NewSectionClient(baseURL string, timeout time.Duration, maxRetries int) *SectionClient {
	return &SectionClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
	}
}

// sectionsResponse is the extraction service payload.
type sectionsResponse struct {
	ContentReference string            `json:"content_reference"`
	Sections         map[string]string `json:"sections"`
}

// FetchSections returns the section content for a content reference.
// Unknown section names in the payload are dropped; a reference without any
// known sections yields an empty set, not an error.
func (c *SectionClient) FetchSections(ctx context.Context, contentReference string) (types.SectionSet, error) {
	path := fmt.Sprintf("/api/v1/content/%s/sections", url.PathEscape(contentReference))

	var response sectionsResponse
	if err := c.makeRequest(ctx, path, &response); err != nil {
		return nil, err
	}

	known := make(map[types.SectionType]bool, len(types.AllSectionTypes()))
	for _, section := range types.AllSectionTypes() {
		known[section] = true
	}

	sections := make(types.SectionSet, len(response.Sections))
	for name, text := range response.Sections {
		section := types.SectionType(strings.ToLower(name))
		if !known[section] {
			slog.DebugContext(ctx, "Dropping unknown section", "section", name)
			continue
		}
		sections[section] = text
	}
	return sections, nil
}

// Health checks whether the extraction service is reachable.
func (c *SectionClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

// makeRequest performs a GET with retries. A 404 is terminal: the content
// reference does not resolve and retrying cannot change that.
func (c *SectionClient) makeRequest(ctx context.Context, path string, response any) error {
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

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			slog.DebugContext(ctx, "Request failed", "attempt", attempt, "error", err)
			continue
		}

		done := false
		func() {
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusOK:
				if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
					lastErr = fmt.Errorf("failed to decode response: %w", err)
					return
				}
				lastErr = nil
				done = true
			case resp.StatusCode == http.StatusNotFound:
				lastErr = fmt.Errorf("content reference not found")
				done = true
			default:
				bodyBytes, _ := io.ReadAll(resp.Body)
				lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
			}
		}()

		if done {
			return lastErr
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}
