package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"

	"kb-rag-api/internal/config"
)

const (
	DefaultOpenAIModel     = "text-embedding-3-small"
	DefaultOpenAIDimension = 1536
)

// openAIEmbedder adapts the eino OpenAI embedder, which speaks float64.
type openAIEmbedder struct {
	inner     einoembedding.Embedder
	batchSize int
}

func newOpenAIEmbedder(ctx context.Context, cfg *config.RemoteEmbeddingConfig) (*openAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedding api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	inner, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create eino embedder: %w", err)
	}
	return &openAIEmbedder{inner: inner, batchSize: cfg.BatchSize}, nil
}

func (e *openAIEmbedder) embed(ctx context.Context, texts []string, _ Task) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.batchSize) {
		vecs, err := e.inner.EmbedStrings(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("openai returned %d vectors for %d inputs", len(vecs), len(batch))
		}
		for _, v := range vecs {
			out = append(out, toFloat32(v))
		}
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
