package retrieval

import (
	"context"

	"kb-rag-api/internal/domain/entity"
)

// VectorStore is the application's view of a vector backend.
// Implementations live in infrastructure/persistence.
type VectorStore interface {
	Name() string
	Collection() string
	// EnsureCollection creates the collection if absent; repeated calls are no-ops.
	EnsureCollection(ctx context.Context) error
	// Upsert replaces records by ID.
	Upsert(ctx context.Context, records []entity.VectorRecord) error
	// Query returns at most topK passages by ascending cosine distance.
	Query(ctx context.Context, embedding []float32, topK int) ([]Passage, error)
	// DeleteBySource removes a document's chunks; an empty category matches every category.
	DeleteBySource(ctx context.Context, source, category string) error
	DeleteByCategory(ctx context.Context, category string) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	ListDocuments(ctx context.Context) ([]entity.DocumentSummary, error)
}

// Embedder turns text into vectors of a fixed dimension.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
