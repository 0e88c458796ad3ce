package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"kb-rag-api/internal/domain/entity"
	"kb-rag-api/internal/domain/repository"
	apperrors "kb-rag-api/pkg/errors"
	"kb-rag-api/pkg/logger"
	"kb-rag-api/pkg/metrics"
	"kb-rag-api/pkg/tracer"
)

const defaultIngestConcurrency = 4

type IndexerConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	DefaultCategory string
	// Concurrency bounds IngestBatch.
	Concurrency int
}

// Indexer owns the write side of the knowledge base: ingestion, deletion and listing.
type Indexer struct {
	embedder Embedder
	vector   VectorStore
	// catalog is optional.
	catalog repository.DocumentRepository

	chunker         *Chunker
	defaultCategory string
	concurrency     int

	locks keyedMutex
}

func NewIndexer(embedder Embedder, vector VectorStore, catalog repository.DocumentRepository, cfg IndexerConfig) *Indexer {
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = entity.DefaultCategory
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultIngestConcurrency
	}
	return &Indexer{
		embedder:        embedder,
		vector:          vector,
		catalog:         catalog,
		chunker:         NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		defaultCategory: cfg.DefaultCategory,
		concurrency:     cfg.Concurrency,
	}
}

func (i *Indexer) Enabled() bool {
	return i != nil && i.embedder != nil && i.vector != nil
}

func (i *Indexer) ensureReady(ctx context.Context) error {
	if !i.Enabled() {
		return ErrVectorDisabled
	}
	return i.vector.EnsureCollection(ctx)
}

// Ingest chunks, embeds and stores one document. Any stale chunks of the same
// (source, category) are removed first, so re-ingesting never leaves orphans.
func (i *Indexer) Ingest(ctx context.Context, text, source, category string) (*IngestResult, error) {
	source = strings.TrimSpace(source)
	category = strings.TrimSpace(category)
	if category == "" {
		category = i.defaultCategory
	}
	ctx = logger.WithContext(ctx, logger.SourceKey, source)
	ctx, span := tracer.Start(ctx, "retrieval.Indexer.Ingest",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.String("category", category),
		))
	defer span.End()

	start := time.Now()
	res, err := i.ingest(ctx, text, source, category)
	if err != nil {
		span.RecordError(err)
		metrics.IngestDocumentsTotal.WithLabelValues(category, "error").Inc()
		logger.Error(ctx, "document ingestion failed", err, "category", category)
		return nil, ingestError(source, category, err)
	}

	metrics.IngestDocumentsTotal.WithLabelValues(category, "success").Inc()
	metrics.IngestChunks.Observe(float64(res.ChunksCreated))
	logger.Info(ctx, "document ingested",
		"category", category,
		"chunks", res.ChunksCreated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (i *Indexer) ingest(ctx context.Context, text, source, category string) (*IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}
	if source == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("source is required")
	}
	if !i.Enabled() {
		return nil, ErrVectorDisabled
	}

	pieces := i.chunker.Split(text)
	if len(pieces) == 0 {
		return nil, ErrNoChunks
	}

	vectors, err := i.embedder.EmbedDocuments(ctx, pieces)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(pieces) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(pieces))
	}

	records := make([]entity.VectorRecord, len(pieces))
	for idx, piece := range pieces {
		records[idx] = entity.NewVectorRecord(entity.Chunk{
			Text:        piece,
			Index:       idx,
			SourceID:    source,
			Category:    category,
			TotalChunks: len(pieces),
		}, vectors[idx])
	}

	unlock := i.locks.Lock(source + "\x00" + category)
	defer unlock()

	if err := i.ensureReady(ctx); err != nil {
		return nil, err
	}
	if err := i.vector.DeleteBySource(ctx, source, category); err != nil {
		return nil, err
	}
	if err := i.vector.Upsert(ctx, records); err != nil {
		return nil, err
	}

	i.recordCatalog(ctx, &entity.IngestedDocument{
		Source:            source,
		Category:          category,
		ChunkCount:        len(records),
		CharCount:         len([]rune(text)),
		EmbeddingProvider: i.embedder.Name(),
	})

	return &IngestResult{ChunksCreated: len(records), Source: source, Category: category}, nil
}

// ingestError keeps the ingestion code but answers 400 for bad input and 503 when vectors are off.
func ingestError(source, category string, err error) *apperrors.AppError {
	appErr := apperrors.IngestionFailure(source, category, err)
	switch {
	case errors.Is(err, ErrEmptyDocument), errors.Is(err, ErrNoChunks), apperrors.IsCode(err, apperrors.CodeInvalidParam):
		appErr.HTTPStatus = http.StatusBadRequest
	case errors.Is(err, ErrVectorDisabled):
		appErr.HTTPStatus = http.StatusServiceUnavailable
	}
	return appErr
}

// recordCatalog is best effort: the vector store is the source of truth.
func (i *Indexer) recordCatalog(ctx context.Context, doc *entity.IngestedDocument) {
	if i.catalog == nil {
		return
	}
	if err := i.catalog.Upsert(ctx, doc); err != nil {
		logger.Warn(ctx, "document catalog update failed", "error", err.Error())
	}
}

// IngestBatch ingests independent documents concurrently. Outcomes keep request order.
func (i *Indexer) IngestBatch(ctx context.Context, reqs []IngestRequest) []IngestOutcome {
	out := make([]IngestOutcome, len(reqs))
	g := new(errgroup.Group)
	g.SetLimit(i.concurrency)
	for idx, req := range reqs {
		g.Go(func() error {
			res, err := i.Ingest(ctx, req.Text, req.Source, req.Category)
			out[idx] = IngestOutcome{Source: req.Source, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// DeleteDocument removes one document. An empty category removes it from every category.
func (i *Indexer) DeleteDocument(ctx context.Context, source, category string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return apperrors.ErrInvalidParam.WithDetail("source is required")
	}
	if err := i.ensureReady(ctx); err != nil {
		return err
	}
	if err := i.vector.DeleteBySource(ctx, source, category); err != nil {
		return err
	}
	if i.catalog != nil {
		if err := i.catalog.DeleteBySource(ctx, source, category); err != nil {
			logger.Warn(ctx, "document catalog delete failed", "source", source, "error", err.Error())
		}
	}
	logger.Info(ctx, "document deleted", "source", source, "category", category)
	return nil
}

func (i *Indexer) DeleteCategory(ctx context.Context, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return apperrors.ErrInvalidParam.WithDetail("category is required")
	}
	if err := i.ensureReady(ctx); err != nil {
		return err
	}
	if err := i.vector.DeleteByCategory(ctx, category); err != nil {
		return err
	}
	if i.catalog != nil {
		if err := i.catalog.DeleteByCategory(ctx, category); err != nil {
			logger.Warn(ctx, "document catalog delete failed", "category", category, "error", err.Error())
		}
	}
	logger.Info(ctx, "category deleted", "category", category)
	return nil
}

// Clear removes every chunk from the collection.
func (i *Indexer) Clear(ctx context.Context) error {
	if err := i.ensureReady(ctx); err != nil {
		return err
	}
	if err := i.vector.DeleteAll(ctx); err != nil {
		return err
	}
	if i.catalog != nil {
		if err := i.catalog.DeleteAll(ctx); err != nil {
			logger.Warn(ctx, "document catalog clear failed", "error", err.Error())
		}
	}
	logger.Info(ctx, "collection cleared", "collection", i.vector.Collection())
	return nil
}

func (i *Indexer) ListDocuments(ctx context.Context) ([]entity.DocumentSummary, error) {
	if err := i.ensureReady(ctx); err != nil {
		return nil, err
	}
	return i.vector.ListDocuments(ctx)
}

// Stats never fails; backend errors are reported in the result.
func (i *Indexer) Stats(ctx context.Context) Stats {
	if !i.Enabled() {
		return Stats{Status: "error", Error: ErrVectorDisabled.Error()}
	}
	st := Stats{
		Collection: i.vector.Collection(),
		Backend:    i.vector.Name(),
		Embedder:   i.embedder.Name(),
	}
	if err := i.ensureReady(ctx); err != nil {
		st.Status, st.Error = "error", err.Error()
		return st
	}
	n, err := i.vector.Count(ctx)
	if err != nil {
		st.Status, st.Error = "error", err.Error()
		return st
	}
	st.TotalChunks = n
	st.Status = "healthy"
	return st
}

// keyedMutex serialises work per key; different keys never contend.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
