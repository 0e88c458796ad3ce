package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"kb-rag-api/internal/config"
)

const (
	DefaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/"
	DefaultGeminiModel     = "models/embedding-001"
	DefaultGeminiDimension = 768
	// batchEmbedContents accepts at most 100 requests.
	maxGeminiBatch = 100

	geminiAPIVersion   = "v1beta"
	geminiTaskDocument = "RETRIEVAL_DOCUMENT"
	geminiTaskQuery    = "RETRIEVAL_QUERY"
)

// geminiEmbedder calls the Gemini API through the genai client. The client
// sends the key in the x-goog-api-key header, never in the URL.
type geminiEmbedder struct {
	models    *genai.Models
	model     string
	batchSize int
	limiter   *rate.Limiter
}

func newGeminiEmbedder(ctx context.Context, cfg *config.RemoteEmbeddingConfig) (*geminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedding api key is required")
	}
	baseURL := strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/"+geminiAPIVersion)
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > maxGeminiBatch {
		batchSize = maxGeminiBatch
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
		if burst <= 0 {
			burst = 1
		}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: geminiAPIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &geminiEmbedder{
		models:    client.Models,
		model:     model,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(limit, burst),
	}, nil
}

func (g *geminiEmbedder) embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	taskType := geminiTaskDocument
	if task == TaskQuery {
		taskType = geminiTaskQuery
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, g.batchSize) {
		vecs, err := g.embedBatch(ctx, batch, taskType)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (g *geminiEmbedder) embedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}

	resp, err := g.models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{TaskType: taskType})
	if err != nil {
		return nil, fmt.Errorf("gemini embed %s failed: %w", strings.ToLower(taskType), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("gemini returned an empty embedding at %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}
