package retrieval

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kb-rag-api/pkg/logger"
	"kb-rag-api/pkg/metrics"
	"kb-rag-api/pkg/tracer"
)

// Engine is the read side: query embedding plus nearest-neighbour search.
type Engine struct {
	embedder    Embedder
	vector      VectorStore
	defaultTopK int
}

func NewEngine(embedder Embedder, vector VectorStore, defaultTopK int) *Engine {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Engine{
		embedder:    embedder,
		vector:      vector,
		defaultTopK: defaultTopK,
	}
}

func (e *Engine) Enabled() bool {
	return e != nil && e.embedder != nil && e.vector != nil
}

func (e *Engine) ensureReady(ctx context.Context) error {
	if !e.Enabled() {
		return ErrVectorDisabled
	}
	return e.vector.EnsureCollection(ctx)
}

// Retrieve never returns an error. Failures degrade to StatusFailed with a Reason,
// so callers that only look at Passages treat them like an empty knowledge base.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) Result {
	if topK <= 0 {
		topK = e.defaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	ctx, span := tracer.Start(ctx, "retrieval.Engine.Retrieve",
		trace.WithAttributes(attribute.Int("top_k", topK)))
	defer span.End()

	res := e.retrieve(ctx, strings.TrimSpace(query), topK)
	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("passages", len(res.Passages)),
	)
	metrics.RetrievalTotal.WithLabelValues(string(res.Status)).Inc()
	if res.Status == StatusFailed {
		logger.Warn(ctx, "retrieval degraded to empty result", "reason", res.Reason)
	}
	return res
}

func (e *Engine) retrieve(ctx context.Context, query string, topK int) Result {
	if query == "" {
		return failed(ErrEmptyQuery)
	}
	if err := e.ensureReady(ctx); err != nil {
		return failed(err)
	}

	emb, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return failed(err)
	}

	start := time.Now()
	passages, err := e.vector.Query(ctx, emb, topK)
	metrics.VectorSearchDuration.WithLabelValues(e.vector.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return failed(err)
	}
	if len(passages) > topK {
		passages = passages[:topK]
	}
	if len(passages) == 0 {
		return Result{Status: StatusEmpty}
	}
	return Result{Passages: passages, Status: StatusOK}
}

func failed(err error) Result {
	return Result{Status: StatusFailed, Reason: err.Error()}
}
