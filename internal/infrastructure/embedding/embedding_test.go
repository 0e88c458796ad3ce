package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-rag-api/internal/config"
	apperrors "kb-rag-api/pkg/errors"
)

func newLocal(t *testing.T, dim int) *Provider {
	t.Helper()
	p, err := New(context.Background(), &config.EmbeddingConfig{
		Provider: config.EmbeddingProviderLocal,
		PoolSize: 2,
		Local:    config.LocalEmbeddingConfig{Enabled: true, Dimension: dim},
	})
	require.NoError(t, err)
	return p
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestLocalProviderIsDeterministicAndNormalised(t *testing.T) {
	p := newLocal(t, 128)
	assert.Equal(t, KindLocal, p.Kind())
	assert.Equal(t, DispatchPool, p.Dispatch())
	assert.Equal(t, "local/hash-128", p.Name())

	ctx := context.Background()
	a, err := p.EmbedQuery(ctx, "Install Docker Desktop")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "Install Docker Desktop")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, math.Sqrt(dot(a, a)), 1e-5)
}

func TestLocalProviderRanksRelatedTextHigher(t *testing.T) {
	p := newLocal(t, 384)
	ctx := context.Background()
	vecs, err := p.EmbedDocuments(ctx, []string{
		"how to configure the vpn client",
		"vpn client configuration steps",
		"the cafeteria menu for friday",
	})
	require.NoError(t, err)
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestLocalProviderHandlesPunctuationOnly(t *testing.T) {
	p := newLocal(t, 64)
	v, err := p.EmbedQuery(context.Background(), "?!")
	require.NoError(t, err)
	assert.False(t, allZero(v))
}

func TestLocalProviderKeepsOrderAcrossPoolParts(t *testing.T) {
	p := newLocal(t, 64)
	texts := make([]string, 200)
	for i := range texts {
		texts[i] = strings.Repeat("w", i%7+1) + " doc"
	}
	ctx := context.Background()
	all, err := p.EmbedDocuments(ctx, texts)
	require.NoError(t, err)
	require.Len(t, all, 200)
	for _, i := range []int{0, 63, 64, 199} {
		one, err := p.EmbedQuery(ctx, texts[i])
		require.NoError(t, err)
		assert.Equal(t, one, all[i])
	}
}

func TestPoolStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newLocal(t, 32)
	_, err := p.EmbedDocuments(ctx, []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmbeddingFailed))
}

func TestValidateRejectsBadVectors(t *testing.T) {
	assert.Error(t, validate(3, 2, [][]float32{{1, 0, 0}}))
	assert.Error(t, validate(3, 1, [][]float32{{}}))
	assert.Error(t, validate(3, 1, [][]float32{{1, 0}}))
	assert.Error(t, validate(3, 1, [][]float32{{0, 0, 0}}))
	assert.NoError(t, validate(3, 1, [][]float32{{0, 1, 0}}))
}

func TestResolveKind(t *testing.T) {
	k, err := resolveKind(&config.EmbeddingConfig{Provider: "auto", Local: config.LocalEmbeddingConfig{Enabled: true}})
	require.NoError(t, err)
	assert.Equal(t, KindLocal, k)

	k, err = resolveKind(&config.EmbeddingConfig{OpenAI: config.RemoteEmbeddingConfig{APIKey: "a"}, Gemini: config.RemoteEmbeddingConfig{APIKey: "b"}})
	require.NoError(t, err)
	assert.Equal(t, KindOpenAI, k)

	k, err = resolveKind(&config.EmbeddingConfig{Provider: "auto", Gemini: config.RemoteEmbeddingConfig{APIKey: "b"}})
	require.NoError(t, err)
	assert.Equal(t, KindGemini, k)

	_, err = resolveKind(&config.EmbeddingConfig{Provider: "auto"})
	assert.Error(t, err)
	_, err = resolveKind(&config.EmbeddingConfig{Provider: "word2vec"})
	assert.Error(t, err)
}

type geminiBatchBody struct {
	Requests []struct {
		TaskType string `json:"taskType"`
		Content  struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"requests"`
}

type geminiEmbeddings struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

func geminiReply(vecs ...[]float32) geminiEmbeddings {
	var out geminiEmbeddings
	for _, v := range vecs {
		out.Embeddings = append(out.Embeddings, struct {
			Values []float32 `json:"values"`
		}{Values: v})
	}
	return out
}

func newGeminiServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.Header.Get("x-goog-api-key") != "test-key-123" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key test-key-123 not valid","status":"PERMISSION_DENIED"}}`))
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/models/embedding-001:batchEmbedContents") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.NotContains(t, r.URL.RawQuery, "test-key-123")

		var req geminiBatchBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var vecs [][]float32
		for i, q := range req.Requests {
			switch q.TaskType {
			case "RETRIEVAL_QUERY":
				vecs = append(vecs, []float32{0, 1, 0})
			default:
				assert.Equal(t, "RETRIEVAL_DOCUMENT", q.TaskType)
				vecs = append(vecs, []float32{float32(i + 1), 0, 1})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geminiReply(vecs...))
	}))
}

func newGemini(t *testing.T, url, key string, batch int) *Provider {
	t.Helper()
	p, err := New(context.Background(), &config.EmbeddingConfig{
		Provider: config.EmbeddingProviderGemini,
		Gemini: config.RemoteEmbeddingConfig{
			APIKey:    key,
			BaseURL:   url,
			Model:     "embedding-001",
			Dimension: 3,
			BatchSize: batch,
		},
	})
	require.NoError(t, err)
	return p
}

func TestGeminiProviderBatchesDocuments(t *testing.T) {
	var calls int32
	srv := newGeminiServer(t, &calls)
	defer srv.Close()

	p := newGemini(t, srv.URL, "test-key-123", 2)
	assert.Equal(t, DispatchNative, p.Dispatch())
	assert.Equal(t, "gemini/embedding-001", p.Name())

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0, 1}, vecs[0])
	assert.Equal(t, []float32{1, 0, 1}, vecs[2])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	q, err := p.EmbedQuery(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, q)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGeminiProviderReportsShortBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geminiReply([]float32{1, 0, 0}))
	}))
	defer srv.Close()

	p := newGemini(t, srv.URL, "short-batch-key", 0)
	_, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmbeddingFailed))
	assert.Contains(t, err.Error(), "1 embeddings for 2 inputs")
}

func TestGeminiProviderNeverLeaksKey(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key wrong-key-999 not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	p := newGemini(t, srv.URL, "wrong-key-999", 0)
	_, err := p.EmbedDocuments(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmbeddingFailed))
	assert.NotContains(t, err.Error(), "wrong-key-999")
	assert.Contains(t, err.Error(), "INVALID_ARGUMENT")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "provider=gemini/embedding-001", appErr.Detail)
}

func TestGeminiProviderRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geminiReply([]float32{1, 2}))
	}))
	defer srv.Close()

	p := newGemini(t, srv.URL, "dimension-test-key", 0)
	_, err := p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 2, want 3")
}

type countingEmbedder struct {
	Embedder
	queries int
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.queries++
	return c.Embedder.EmbedQuery(ctx, text)
}

func TestCachedEmbedderMemoisesQueries(t *testing.T) {
	inner := &countingEmbedder{Embedder: newLocal(t, 32)}
	c := NewCachedEmbedder(inner, 2)
	ctx := context.Background()

	a, err := c.EmbedQuery(ctx, "same question")
	require.NoError(t, err)
	b, err := c.EmbedQuery(ctx, "same question")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, inner.queries)

	_, _ = c.EmbedQuery(ctx, "other")
	assert.Equal(t, 2, inner.queries)
	assert.Equal(t, 32, c.Dimension())
}

func TestOpenAIRequiresKey(t *testing.T) {
	_, err := New(context.Background(), &config.EmbeddingConfig{Provider: config.EmbeddingProviderOpenAI})
	assert.Error(t, err)
}

type openAIEmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

func newOpenAIServer(t *testing.T, calls *int32, short bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "Bearer sk-openai-test", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		n := len(req.Input)
		if short {
			n--
		}
		data := make([]openAIEmbeddingData, 0, n)
		for i := 0; i < n; i++ {
			data = append(data, openAIEmbeddingData{Object: "embedding", Index: i, Embedding: []float64{0.5, float64(len(req.Input[i])), 0.25}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func newOpenAI(t *testing.T, url string, batch int) *Provider {
	t.Helper()
	p, err := New(context.Background(), &config.EmbeddingConfig{
		Provider: config.EmbeddingProviderOpenAI,
		OpenAI: config.RemoteEmbeddingConfig{
			APIKey:    "sk-openai-test",
			BaseURL:   url,
			Dimension: 3,
			BatchSize: batch,
		},
	})
	require.NoError(t, err)
	return p
}

func TestOpenAIProviderBatchesAndConverts(t *testing.T) {
	var calls int32
	srv := newOpenAIServer(t, &calls, false)
	defer srv.Close()

	p := newOpenAI(t, srv.URL, 2)
	assert.Equal(t, "openai/text-embedding-3-small", p.Name())

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{0.5, 1, 0.25}, vecs[0])
	assert.Equal(t, []float32{0.5, 3, 0.25}, vecs[2])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIProviderRejectsShortResponse(t *testing.T) {
	var calls int32
	srv := newOpenAIServer(t, &calls, true)
	defer srv.Close()

	p := newOpenAI(t, srv.URL, 0)
	_, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmbeddingFailed))
	assert.NotContains(t, err.Error(), "sk-openai-test")
}

type gatedEmbedder struct {
	Embedder
	gate  chan struct{}
	calls atomic.Int32
}

func (g *gatedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	g.calls.Add(1)
	<-g.gate
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Embedder.EmbedQuery(ctx, text)
}

func TestCachedEmbedderSharesConcurrentMisses(t *testing.T) {
	inner := &gatedEmbedder{Embedder: newLocal(t, 16), gate: make(chan struct{})}
	c := NewCachedEmbedder(inner, 8)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.EmbedQuery(context.Background(), "where is the wiki?")
			assert.NoError(t, err)
			assert.Len(t, v, 16)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(inner.gate)
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedEmbedderSharedCallSurvivesFirstCallerCancel(t *testing.T) {
	inner := &gatedEmbedder{Embedder: newLocal(t, 16), gate: make(chan struct{})}
	c := NewCachedEmbedder(inner, 8)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.EmbedQuery(ctx, "shared question")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		vec []float32
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.EmbedQuery(context.Background(), "shared question")
		second <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(inner.gate)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.vec, 16)
	assert.Equal(t, int32(1), inner.calls.Load())

	cached, err := c.EmbedQuery(context.Background(), "shared question")
	require.NoError(t, err)
	assert.Equal(t, res.vec, cached)
}
