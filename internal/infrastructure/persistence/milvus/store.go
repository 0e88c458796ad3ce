package milvus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kb-rag-api/internal/application/retrieval"
	domain "kb-rag-api/internal/domain/entity"
	apperrors "kb-rag-api/pkg/errors"
	"kb-rag-api/pkg/metrics"
)

const backendName = "milvus"

// Store is the Milvus-backed retrieval.VectorStore.
type Store struct {
	repo       *Repository
	collection string
	dim        int

	mu      sync.Mutex
	ensured bool
}

var _ retrieval.VectorStore = (*Store)(nil)

func NewStore(repo *Repository, collection string, dim int) *Store {
	return &Store{repo: repo, collection: collection, dim: dim}
}

func (s *Store) Name() string       { return backendName }
func (s *Store) Collection() string { return s.repo.client.CollectionName(s.collection) }

// EnsureCollection creates and loads the collection once per process. An existing
// collection with a different vector dimension is an error, never silently reused.
func (s *Store) EnsureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	err := s.ensure(ctx)
	s.observe("ensure", err)
	if err != nil {
		return apperrors.VectorStoreFailure("ensure_collection", err)
	}
	s.ensured = true
	return nil
}

func (s *Store) ensure(ctx context.Context) error {
	exists, err := s.repo.client.HasCollection(ctx, s.collection)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.repo.CreateCollection(ctx, ChunkSchema(s.collection, s.dim)); err != nil {
			return err
		}
		if err := s.repo.CreateIndex(ctx, s.collection); err != nil {
			return err
		}
	} else {
		dim, err := s.repo.CollectionDim(ctx, s.collection)
		if err != nil {
			return err
		}
		if dim != 0 && dim != s.dim {
			return fmt.Errorf("collection %s has dimension %d but the embedder produces %d", s.Collection(), dim, s.dim)
		}
	}
	return s.repo.client.LoadCollection(ctx, s.collection)
}

func (s *Store) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]chunkRow, len(records))
	vectors := make([][]float32, len(records))
	for i, rec := range records {
		if len(rec.Embedding) != s.dim {
			return apperrors.VectorStoreFailure("upsert",
				fmt.Errorf("record %s has dimension %d, want %d", rec.ID, len(rec.Embedding), s.dim))
		}
		if len(rec.Document) > maxDocumentLength {
			return apperrors.VectorStoreFailure("upsert",
				fmt.Errorf("record %s text is %d bytes, limit %d", rec.ID, len(rec.Document), maxDocumentLength))
		}
		rows[i] = chunkRow{
			ID:          rec.ID,
			Source:      rec.Metadata.Source,
			Category:    rec.Metadata.Category,
			ChunkIndex:  int64(rec.Metadata.ChunkIndex),
			TotalChunks: int64(rec.Metadata.TotalChunks),
			Document:    rec.Document,
		}
		vectors[i] = rec.Embedding
	}

	err := s.repo.Upsert(ctx, s.collection, s.dim, rows, vectors)
	s.observe("upsert", err)
	if err != nil {
		return apperrors.VectorStoreFailure("upsert", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, topK int) ([]retrieval.Passage, error) {
	if len(embedding) != s.dim {
		err := fmt.Errorf("query has dimension %d, want %d", len(embedding), s.dim)
		s.observe("query", err)
		return nil, apperrors.VectorStoreFailure("query", err)
	}
	hits, err := s.repo.Search(ctx, s.collection, embedding, topK)
	s.observe("query", err)
	if err != nil {
		return nil, apperrors.VectorStoreFailure("query", err)
	}
	return toPassages(hits), nil
}

// toPassages converts cosine similarities to distances, nearest first.
func toPassages(hits []chunkRow) []retrieval.Passage {
	out := make([]retrieval.Passage, 0, len(hits))
	for _, h := range hits {
		score := float64(h.Score)
		out = append(out, retrieval.Passage{
			ID:   h.ID,
			Text: h.Document,
			Metadata: domain.ChunkMetadata{
				Source:      h.Source,
				Category:    h.Category,
				ChunkIndex:  int(h.ChunkIndex),
				TotalChunks: int(h.TotalChunks),
			},
			Distance: 1 - score,
			Score:    score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

func (s *Store) DeleteBySource(ctx context.Context, source, category string) error {
	err := s.repo.Delete(ctx, s.collection, sourceExpr(source, category))
	s.observe("delete", err)
	if err != nil {
		return apperrors.VectorStoreFailure("delete_by_source", err)
	}
	return nil
}

func (s *Store) DeleteByCategory(ctx context.Context, category string) error {
	err := s.repo.Delete(ctx, s.collection, categoryExpr(category))
	s.observe("delete", err)
	if err != nil {
		return apperrors.VectorStoreFailure("delete_by_category", err)
	}
	return nil
}

// DeleteAll drops and recreates the collection.
func (s *Store) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.repo.DropCollection(ctx, s.collection)
	if err == nil {
		s.ensured = false
		err = s.ensure(ctx)
		s.ensured = err == nil
	}
	s.observe("delete_all", err)
	if err != nil {
		return apperrors.VectorStoreFailure("delete_all", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx, s.collection)
	s.observe("count", err)
	if err != nil {
		return 0, apperrors.VectorStoreFailure("count", err)
	}
	return n, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]domain.DocumentSummary, error) {
	rows, err := s.repo.Scan(ctx, s.collection, fieldChunkIndex+" >= 0")
	s.observe("list", err)
	if err != nil {
		return nil, apperrors.VectorStoreFailure("list_documents", err)
	}
	return summarize(rows), nil
}

// summarize groups chunk rows by (source, category), sorted by source then category.
func summarize(rows []chunkRow) []domain.DocumentSummary {
	type key struct{ source, category string }
	byKey := make(map[key]*domain.DocumentSummary)
	for _, r := range rows {
		k := key{r.Source, r.Category}
		sum, ok := byKey[k]
		if !ok {
			sum = &domain.DocumentSummary{Source: r.Source, Category: r.Category}
			byKey[k] = sum
		}
		sum.ChunkCount++
		if int(r.TotalChunks) > sum.TotalChunks {
			sum.TotalChunks = int(r.TotalChunks)
		}
	}

	out := make([]domain.DocumentSummary, 0, len(byKey))
	for _, sum := range byKey {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func (s *Store) observe(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.VectorOperationTotal.WithLabelValues(backendName, op, status).Inc()
}
