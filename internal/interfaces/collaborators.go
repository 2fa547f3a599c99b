// Package interfaces defines the collaborator boundaries of the analysis
// pipeline: content extraction, stage logic, LLM access, and persistence.
//
// Implementations live in the clients, provider, and storage packages;
// every boundary is mockable for tests.
package interfaces

import (
	"context"
	"time"

	"github.com/example/maps/internal/types"
)

// ContentExtractor resolves a content reference into parsed section data.
// Absence of individual sections is not an error; stages must tolerate
// partially populated section sets.
type ContentExtractor interface {
	// FetchSections returns the section content for a content reference.
	FetchSections(ctx context.Context, contentReference string) (types.SectionSet, error)

	// Health checks whether the extraction service is reachable.
	Health(ctx context.Context) error
}

// StageProvider performs the actual semantic extraction for one stage. It is
// a black box that may fail outright or return data that does not match the
// stage's output schema; the pipeline validates everything it returns.
type StageProvider interface {
	// Execute runs the stage logic against the resolved inputs and returns
	// candidate output data keyed by the stage's declared output keys.
	// Implementations must respect ctx cancellation and deadlines.
	Execute(ctx context.Context, stage types.StageID, inputs map[string]any) (map[string]any, error)
}

// ResultStore durably persists the assembled aggregate result. Persistence
// is all-or-nothing: implementations must fail explicitly rather than leave
// partial writes behind.
type ResultStore interface {
	// Store persists the record and returns a freshly generated identifier
	// distinct from any identifier referenced within the payload.
	Store(ctx context.Context, record *types.AnalysisRecord) (string, error)

	// Health checks whether the backing store is reachable.
	Health(ctx context.Context) error

	// Close releases any held resources.
	Close() error
}

// LLMOptions carries per-call generation parameters.
type LLMOptions struct {
	Temperature float64
	MaxTokens   int
}

// LLMClient abstracts the language model service used by the stage logic
// provider and by the result store for embedding generation.
type LLMClient interface {
	// Complete generates a text completion for the prompt.
	Complete(ctx context.Context, prompt string, options *LLMOptions) (string, error)

	// Embed generates an embedding vector for the text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Health checks whether the LLM service is reachable.
	Health(ctx context.Context) error

	// Close closes the client connection.
	Close() error
}

// ChromaDocument is one document payload for the vector store.
type ChromaDocument struct {
	ID        string
	Text      string
	Embedding []float64
	Metadata  map[string]any
}

// ChromaClient is the slim seam over the ChromaDB operations the result
// store needs. The concrete client lives in the clients package.
type ChromaClient interface {
	// Health checks service availability.
	Health(ctx context.Context) error

	// EnsureCollection creates the collection if needed and returns its ID.
	EnsureCollection(ctx context.Context, name, description string) (string, error)

	// AddDocument stores one document in a collection.
	AddDocument(ctx context.Context, collectionID string, doc ChromaDocument) error

	// CountDocuments returns the number of documents in a collection.
	CountDocuments(ctx context.Context, collectionID string) (int, error)
}

// DOIResolver enriches citation metadata from a registry such as CrossRef.
// Lookups are strictly best-effort; failures never affect stage results.
type DOIResolver interface {
	ResolveDOI(ctx context.Context, doi string) (*DOIMetadata, error)
}

// DOIMetadata is the subset of registry metadata used for enrichment.
type DOIMetadata struct {
	DOI     string
	Title   string
	Authors []string
	Year    int
	Journal string
	URL     string
}

// RunObserver receives pipeline progress events, e.g. for websocket feeds.
type RunObserver func(event RunEvent)

// RunEvent describes one controller state transition within a run.
type RunEvent struct {
	RunID     string        `json:"run_id"`
	State     string        `json:"state"`
	Stage     types.StageID `json:"stage,omitempty"`
	Status    string        `json:"status,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
