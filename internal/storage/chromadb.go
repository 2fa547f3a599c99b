// Package storage provides the durable result store behind the pipeline's
// persist step.
//
// The ChromaDB store serializes the assembled analysis record as a JSON
// document, embeds the content overview for later semantic retrieval, and
// writes both in a single add call.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/example/maps/internal/interfaces"
	"github.com/example/maps/internal/types"
)

// ChromaResultStore implements interfaces.ResultStore against ChromaDB.
type ChromaResultStore struct {
	client     interfaces.ChromaClient
	llm        interfaces.LLMClient
	collection string

	mu           sync.Mutex
	collectionID string
}

// NewChromaResultStore creates a result store over a ChromaDB client.
// The llm client is used for embedding generation and may be nil, in which
// case records are stored without embeddings.
func NewChromaResultStore(client interfaces.ChromaClient, llm interfaces.LLMClient, collection string) *ChromaResultStore {
	return &ChromaResultStore{
		client:     client,
		llm:        llm,
		collection: collection,
	}
}

// Initialize verifies connectivity and ensures the result collection exists.
func (s *ChromaResultStore) Initialize(ctx context.Context) error {
	slog.InfoContext(ctx, "initializing ChromaDB result store", "collection", s.collection)

	if err := s.client.Health(ctx); err != nil {
		return fmt.Errorf("ChromaDB health check failed: %w", err)
	}
	_, err := s.ensureCollection(ctx)
	return err
}

// Store persists the record and returns a freshly generated identifier.
// The identifier never collides with any identifier inside the payload.
func (s *ChromaResultStore) Store(ctx context.Context, record *types.AnalysisRecord) (string, error) {
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return "", &types.PersistenceError{Message: "collection unavailable", Cause: err}
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return "", &types.PersistenceError{Message: "record serialization failed", Cause: err}
	}

	resultID := uuid.New().String()
	for resultID == record.ID || resultID == record.ContentReference {
		resultID = uuid.New().String()
	}

	doc := interfaces.ChromaDocument{
		ID:   resultID,
		Text: string(payload),
		Metadata: map[string]any{
			"content_reference": record.ContentReference,
			"category":          string(record.Category),
			"confidence_score":  record.ConfidenceScore,
			"total_references":  record.TotalReferences,
			"analyzed_at":       record.AnalyzedAt.Format("2006-01-02T15:04:05Z07:00"),
			"version":           record.Version,
		},
	}

	if s.llm != nil && record.ContentOverview != "" {
		embedding, err := s.llm.Embed(ctx, record.ContentOverview)
		if err != nil {
			// Embeddings improve retrieval but are not part of the
			// persistence contract.
			slog.WarnContext(ctx, "embedding generation failed, storing without embedding",
				"error", err)
		} else {
			doc.Embedding = embedding
		}
	}

	if err := s.client.AddDocument(ctx, collectionID, doc); err != nil {
		return "", &types.PersistenceError{Message: "document write failed", Cause: err}
	}

	slog.InfoContext(ctx, "analysis record persisted",
		"analysis_result_id", resultID,
		"content_reference", record.ContentReference,
		"category", record.Category)
	return resultID, nil
}

// Count returns the number of persisted analysis records.
func (s *ChromaResultStore) Count(ctx context.Context) (int, error) {
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return 0, err
	}
	return s.client.CountDocuments(ctx, collectionID)
}

// Health checks whether the backing store is reachable.
func (s *ChromaResultStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close releases any held resources.
func (s *ChromaResultStore) Close() error {
	return nil
}

// ensureCollection resolves and caches the collection ID.
func (s *ChromaResultStore) ensureCollection(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collectionID != "" {
		return s.collectionID, nil
	}

	id, err := s.client.EnsureCollection(ctx, s.collection, "manuscript analysis results")
	if err != nil {
		return "", fmt.Errorf("failed to ensure collection %q: %w", s.collection, err)
	}
	s.collectionID = id
	return id, nil
}
