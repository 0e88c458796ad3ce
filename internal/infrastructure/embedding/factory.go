package embedding

import (
	"context"
	"fmt"
	"strings"

	"kb-rag-api/internal/config"
)

// New builds the provider selected by cfg.Provider. "auto" (or empty) picks
// local when enabled, then OpenAI, then Gemini, by which has credentials.
func New(ctx context.Context, cfg *config.EmbeddingConfig) (*Provider, error) {
	kind, err := resolveKind(cfg)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindLocal:
		dim := cfg.Local.Dimension
		if dim <= 0 {
			dim = DefaultLocalDimension
		}
		return &Provider{
			kind:      KindLocal,
			dispatch:  DispatchPool,
			model:     fmt.Sprintf("hash-%d", dim),
			dimension: dim,
			backend:   newHashEmbedder(dim),
			pool:      NewPool(cfg.PoolSize),
			batchSize: 64,
		}, nil

	case KindOpenAI:
		b, err := newOpenAIEmbedder(ctx, &cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		return &Provider{
			kind:      KindOpenAI,
			dispatch:  DispatchNative,
			model:     orDefault(cfg.OpenAI.Model, DefaultOpenAIModel),
			dimension: orDefaultInt(cfg.OpenAI.Dimension, DefaultOpenAIDimension),
			backend:   b,
			secret:    cfg.OpenAI.APIKey,
		}, nil

	case KindGemini:
		b, err := newGeminiEmbedder(ctx, &cfg.Gemini)
		if err != nil {
			return nil, err
		}
		return &Provider{
			kind:      KindGemini,
			dispatch:  DispatchNative,
			model:     strings.TrimPrefix(b.model, "models/"),
			dimension: orDefaultInt(cfg.Gemini.Dimension, DefaultGeminiDimension),
			backend:   b,
			secret:    cfg.Gemini.APIKey,
		}, nil
	}
	return nil, fmt.Errorf("unsupported embedding provider %q", kind)
}

// NewFromConfig builds the configured provider behind a query cache.
func NewFromConfig(ctx context.Context, cfg *config.EmbeddingConfig) (*CachedEmbedder, error) {
	p, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(p, cfg.QueryCacheSize), nil
}

func resolveKind(cfg *config.EmbeddingConfig) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.EmbeddingProviderLocal:
		return KindLocal, nil
	case config.EmbeddingProviderOpenAI:
		return KindOpenAI, nil
	case config.EmbeddingProviderGemini:
		return KindGemini, nil
	case config.EmbeddingProviderAuto, "":
		switch {
		case cfg.Local.Enabled:
			return KindLocal, nil
		case cfg.OpenAI.APIKey != "":
			return KindOpenAI, nil
		case cfg.Gemini.APIKey != "":
			return KindGemini, nil
		}
		return "", fmt.Errorf("no embedding provider available: enable local embeddings or configure an api key")
	default:
		return "", fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
