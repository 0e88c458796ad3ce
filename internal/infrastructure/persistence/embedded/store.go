package embedded

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"kb-rag-api/internal/application/retrieval"
	"kb-rag-api/internal/config"
	domain "kb-rag-api/internal/domain/entity"
	apperrors "kb-rag-api/pkg/errors"
	"kb-rag-api/pkg/metrics"
)

const backendName = "embedded"

// Store is the in-process retrieval.VectorStore.
type Store struct {
	db         *sql.DB
	collection string
	dim        int

	mu      sync.RWMutex
	idx     *index
	ensured bool
}

var _ retrieval.VectorStore = (*Store)(nil)

// Open opens the database at cfg.Path for one collection of dim-sized vectors.
func Open(cfg config.EmbeddedConfig, collection string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedded store: dimension must be positive, got %d", dim)
	}
	path := cfg.Path
	if path == "" {
		path = "./data/vectors.db"
	}
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("embedded store: %w", err)
	}
	return &Store{
		db:         db,
		collection: collection,
		dim:        dim,
		idx:        newIndex(cfg.HNSWM, cfg.EfSearch),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Name() string       { return backendName }
func (s *Store) Collection() string { return s.collection }

// EnsureCollection registers the collection and loads its vectors into the graph.
// A stored dimension that differs from the store's is an error.
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
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dim)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO collections (name, dimension) VALUES (?, ?)`, s.collection, s.dim); err != nil {
			return fmt.Errorf("registering collection: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading collection: %w", err)
	case dim != s.dim:
		return fmt.Errorf("collection %s has dimension %d but the embedder produces %d", s.collection, dim, s.dim)
	}
	return s.rebuild(ctx)
}

// rebuild reloads the graph from the table. Caller holds s.mu.
func (s *Store) rebuild(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunks WHERE collection = ?`, s.collection)
	if err != nil {
		return fmt.Errorf("loading vectors: %w", err)
	}
	defer rows.Close()

	s.idx.reset()
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return fmt.Errorf("scanning vector: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", id, err)
		}
		s.idx.add(id, vec)
	}
	return rows.Err()
}

func (s *Store) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if len(rec.Embedding) != s.dim {
			return apperrors.VectorStoreFailure("upsert",
				fmt.Errorf("record %s has dimension %d, want %d", rec.ID, len(rec.Embedding), s.dim))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.upsert(ctx, records)
	s.observe("upsert", err)
	if err != nil {
		return apperrors.VectorStoreFailure("upsert", err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, records []domain.VectorRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, source, category, chunk_index, total_chunks, document, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			source = excluded.source,
			category = excluded.category,
			chunk_index = excluded.chunk_index,
			total_chunks = excluded.total_chunks,
			document = excluded.document,
			embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		m := rec.Metadata
		if _, err := stmt.ExecContext(ctx, s.collection, rec.ID, m.Source, m.Category,
			m.ChunkIndex, m.TotalChunks, rec.Document, encodeVector(rec.Embedding)); err != nil {
			return fmt.Errorf("writing chunk %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	for _, rec := range records {
		s.idx.add(rec.ID, rec.Embedding)
	}
	return s.compact(ctx)
}

func (s *Store) compact(ctx context.Context) error {
	if !s.idx.needsCompaction() {
		return nil
	}
	return s.rebuild(ctx)
}

func (s *Store) Query(ctx context.Context, embedding []float32, topK int) ([]retrieval.Passage, error) {
	if len(embedding) != s.dim {
		err := fmt.Errorf("query has dimension %d, want %d", len(embedding), s.dim)
		s.observe("query", err)
		return nil, apperrors.VectorStoreFailure("query", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out, err := s.query(ctx, embedding, topK)
	s.observe("query", err)
	if err != nil {
		return nil, apperrors.VectorStoreFailure("query", err)
	}
	return out, nil
}

func (s *Store) query(ctx context.Context, embedding []float32, topK int) ([]retrieval.Passage, error) {
	hits := s.idx.search(embedding, topK)
	if len(hits) == 0 {
		return []retrieval.Passage{}, nil
	}

	args := make([]any, 0, len(hits)+1)
	args = append(args, s.collection)
	for _, h := range hits {
		args = append(args, h.ID)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, source, category, chunk_index, total_chunks, document
		FROM chunks WHERE collection = ? AND id IN (%s)`, placeholders(len(hits))), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]retrieval.Passage, len(hits))
	for rows.Next() {
		var p retrieval.Passage
		if err := rows.Scan(&p.ID, &p.Metadata.Source, &p.Metadata.Category,
			&p.Metadata.ChunkIndex, &p.Metadata.TotalChunks, &p.Text); err != nil {
			return nil, err
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]retrieval.Passage, 0, len(hits))
	for _, h := range hits {
		p, ok := byID[h.ID]
		if !ok {
			continue
		}
		p.Distance = float64(h.Distance)
		p.Score = 1 - p.Distance
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) DeleteBySource(ctx context.Context, source, category string) error {
	where, args := `source = ?`, []any{source}
	if category != "" {
		where, args = `source = ? AND category = ?`, []any{source, category}
	}
	err := s.deleteWhere(ctx, where, args...)
	s.observe("delete", err)
	if err != nil {
		return apperrors.VectorStoreFailure("delete_by_source", err)
	}
	return nil
}

func (s *Store) DeleteByCategory(ctx context.Context, category string) error {
	err := s.deleteWhere(ctx, `category = ?`, category)
	s.observe("delete", err)
	if err != nil {
		return apperrors.VectorStoreFailure("delete_by_category", err)
	}
	return nil
}

func (s *Store) deleteWhere(ctx context.Context, where string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append([]any{s.collection}, args...)
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE collection = ? AND `+where, all...)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ? AND `+where, all...); err != nil {
		return err
	}
	for _, id := range ids {
		s.idx.remove(id)
	}
	return s.compact(ctx)
}

// DeleteAll empties the collection. The collection itself stays registered.
func (s *Store) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, s.collection)
	if err == nil {
		s.idx.reset()
	}
	s.observe("delete_all", err)
	if err != nil {
		return apperrors.VectorStoreFailure("delete_all", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, s.collection).Scan(&n)
	s.observe("count", err)
	if err != nil {
		return 0, apperrors.VectorStoreFailure("count", err)
	}
	return n, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]domain.DocumentSummary, error) {
	out, err := s.listDocuments(ctx)
	s.observe("list", err)
	if err != nil {
		return nil, apperrors.VectorStoreFailure("list_documents", err)
	}
	return out, nil
}

func (s *Store) listDocuments(ctx context.Context) ([]domain.DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, category, COUNT(*), MAX(total_chunks)
		FROM chunks WHERE collection = ?
		GROUP BY source, category
		ORDER BY source, category`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.DocumentSummary{}
	for rows.Next() {
		var d domain.DocumentSummary
		if err := rows.Scan(&d.Source, &d.Category, &d.ChunkCount, &d.TotalChunks); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) observe(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.VectorOperationTotal.WithLabelValues(backendName, op, status).Inc()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
