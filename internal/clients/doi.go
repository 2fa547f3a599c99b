package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/maps/internal/interfaces"
)

// DOIClient implements DOI resolution using CrossRef
type DOIClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	rateLimit  time.Duration

	// One client is shared by all pipeline workers, so the rate limiter
	// state needs the mutex.
	rateMu   sync.Mutex
	lastCall time.Time
}

// NewDOIClient creates a new DOI resolution client
func NewDOIClient(baseURL, userAgent string, timeout, rateLimit time.Duration) *DOIClient {
	return &DOIClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimit: rateLimit,
	}
}

// ResolveDOI resolves a DOI to citation metadata
func (d *DOIClient) ResolveDOI(ctx context.Context, doi string) (*interfaces.DOIMetadata, error) {
	// Respect rate limit; concurrent callers queue on the mutex so the
	// interval holds across workers.
	if d.rateLimit > 0 {
		d.rateMu.Lock()
		if wait := d.rateLimit - time.Since(d.lastCall); wait > 0 {
			select {
			case <-ctx.Done():
				d.rateMu.Unlock()
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		d.lastCall = time.Now()
		d.rateMu.Unlock()
	}

	// Clean DOI
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://dx.doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")

	url := fmt.Sprintf("%s/%s", d.baseURL, doi)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DOI resolution failed with status %d", resp.StatusCode)
	}

	var response crossRefResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Message.toMetadata(), nil
}

// crossRefResponse is the CrossRef works API envelope.
type crossRefResponse struct {
	Status  string       `json:"status"`
	Message crossRefWork `json:"message"`
}

// crossRefWork is the subset of CrossRef work metadata used for enrichment.
type crossRefWork struct {
	DOI       string           `json:"DOI"`
	Title     []string         `json:"title"`
	Author    []crossRefAuthor `json:"author"`
	Published struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published-print"`
	ContainerTitle []string `json:"container-title"`
	URL            string   `json:"URL"`
}

// crossRefAuthor represents an author from CrossRef metadata
type crossRefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

// fullName returns the author's full name
func (a crossRefAuthor) fullName() string {
	if a.Given == "" {
		return a.Family
	}
	if a.Family == "" {
		return a.Given
	}
	return fmt.Sprintf("%s %s", a.Given, a.Family)
}

func (w crossRefWork) toMetadata() *interfaces.DOIMetadata {
	meta := &interfaces.DOIMetadata{
		DOI: w.DOI,
		URL: w.URL,
	}
	if len(w.Title) > 0 {
		meta.Title = w.Title[0]
	}
	if len(w.ContainerTitle) > 0 {
		meta.Journal = w.ContainerTitle[0]
	}
	for _, author := range w.Author {
		if name := author.fullName(); name != "" {
			meta.Authors = append(meta.Authors, name)
		}
	}
	if len(w.Published.DateParts) > 0 && len(w.Published.DateParts[0]) > 0 {
		meta.Year = w.Published.DateParts[0][0]
	}
	return meta
}
