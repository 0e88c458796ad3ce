// Package embedding turns text into vectors through one of several providers.
package embedding

import (
	"context"
	"fmt"
	"time"

	apperrors "kb-rag-api/pkg/errors"
	"kb-rag-api/pkg/metrics"
)

// Kind names a provider implementation.
type Kind string

const (
	KindLocal  Kind = "local"
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
)

// Dispatch says how a provider's calls are scheduled.
type Dispatch int

const (
	// DispatchNative providers block on I/O and honour ctx themselves.
	DispatchNative Dispatch = iota
	// DispatchPool providers are CPU-bound and run on the shared worker pool.
	DispatchPool
)

func (d Dispatch) String() string {
	if d == DispatchPool {
		return "pool"
	}
	return "native"
}

// Task tells remote providers whether text is stored or searched with.
type Task int

const (
	TaskDocument Task = iota
	TaskQuery
)

func (t Task) String() string {
	if t == TaskQuery {
		return "query"
	}
	return "documents"
}

// backend is implemented once per Kind.
type backend interface {
	embed(ctx context.Context, texts []string, task Task) ([][]float32, error)
}

// Provider is the single embedding entry point. Its variant is fixed at construction.
type Provider struct {
	kind      Kind
	dispatch  Dispatch
	model     string
	dimension int
	backend   backend
	pool      *Pool
	batchSize int
	// secret is scrubbed from every error this provider returns.
	secret string
}

func (p *Provider) Kind() Kind         { return p.kind }
func (p *Provider) Dispatch() Dispatch { return p.dispatch }
func (p *Provider) Dimension() int     { return p.dimension }

// Name identifies provider and model, e.g. "openai/text-embedding-3-small".
func (p *Provider) Name() string {
	if p.model == "" {
		return string(p.kind)
	}
	return string(p.kind) + "/" + p.model
}

func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return p.run(ctx, texts, TaskDocument)
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.run(ctx, []string{text}, TaskQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *Provider) run(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	start := time.Now()
	vecs, err := p.call(ctx, texts, task)
	if err == nil {
		err = validate(p.dimension, len(texts), vecs)
	}

	metrics.EmbeddingCallDuration.WithLabelValues(string(p.kind), task.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmbeddingCallTotal.WithLabelValues(string(p.kind), task.String(), "error").Inc()
		return nil, apperrors.EmbeddingFailure(p.Name(), apperrors.Redact(err, p.secret))
	}
	metrics.EmbeddingCallTotal.WithLabelValues(string(p.kind), task.String(), "success").Inc()
	return vecs, nil
}

func (p *Provider) call(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	switch p.dispatch {
	case DispatchPool:
		return p.pool.Map(ctx, texts, p.batchSize, func(ctx context.Context, part []string) ([][]float32, error) {
			return p.backend.embed(ctx, part, task)
		})
	default:
		return p.backend.embed(ctx, texts, task)
	}
}

// validate rejects results that would silently corrupt the index.
func validate(dimension, want int, vecs [][]float32) error {
	if len(vecs) != want {
		return fmt.Errorf("provider returned %d vectors for %d inputs", len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("vector %d is empty", i)
		}
		if dimension > 0 && len(v) != dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dimension)
		}
		if allZero(v) {
			return fmt.Errorf("vector %d is all zeros", i)
		}
	}
	return nil
}

func allZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// batches splits texts into runs of at most size.
func batches(texts []string, size int) [][]string {
	if size <= 0 || size >= len(texts) {
		return [][]string{texts}
	}
	out := make([][]string, 0, (len(texts)+size-1)/size)
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[i:end])
	}
	return out
}
