package retrieval

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"

	"kb-rag-api/internal/domain/entity"
)

// wordEmbedder maps each distinct word to its own axis of a normalised bag-of-words vector.
type wordEmbedder struct {
	dim      int
	failWith error
	calls    int
	vocab    map[string]int
	mu       sync.Mutex
}

func newWordEmbedder() *wordEmbedder { return &wordEmbedder{dim: 512, vocab: map[string]int{}} }

func (w *wordEmbedder) Name() string   { return "words" }
func (w *wordEmbedder) Dimension() int { return w.dim }

func (w *wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	if w.failWith != nil {
		return nil, w.failWith
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = w.vec(t)
	}
	return out, nil
}

func (w *wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if w.failWith != nil {
		return nil, w.failWith
	}
	return w.vec(text), nil
}

func (w *wordEmbedder) vec(text string) []float32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := make([]float32, w.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,?!")
		idx, ok := w.vocab[word]
		if !ok {
			idx = len(w.vocab) % (w.dim - 1)
			w.vocab[word] = idx
		}
		v[idx]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[w.dim-1] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// memStore is a brute-force VectorStore for tests.
type memStore struct {
	mu        sync.Mutex
	records   map[string]entity.VectorRecord
	ensured   int
	upsertErr error
	queryErr  error
}

func newMemStore() *memStore { return &memStore{records: map[string]entity.VectorRecord{}} }

func (m *memStore) Name() string       { return "memory" }
func (m *memStore) Collection() string { return "test_documents" }

func (m *memStore) EnsureCollection(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured++
	return nil
}

func (m *memStore) Upsert(_ context.Context, records []entity.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memStore) Query(_ context.Context, q []float32, topK int) ([]Passage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	out := make([]Passage, 0, len(m.records))
	for _, r := range m.records {
		d := 1 - cosine(q, r.Embedding)
		out = append(out, Passage{ID: r.ID, Text: r.Document, Metadata: r.Metadata, Distance: d, Score: 1 - d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			return out[i].ID < out[j].ID
		}
		return out[i].Distance < out[j].Distance
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memStore) DeleteBySource(_ context.Context, source, category string) error {
	return m.deleteWhere(func(md entity.ChunkMetadata) bool {
		return md.Source == source && (category == "" || md.Category == category)
	})
}

func (m *memStore) DeleteByCategory(_ context.Context, category string) error {
	return m.deleteWhere(func(md entity.ChunkMetadata) bool { return md.Category == category })
}

func (m *memStore) DeleteAll(context.Context) error {
	return m.deleteWhere(func(entity.ChunkMetadata) bool { return true })
}

func (m *memStore) deleteWhere(match func(entity.ChunkMetadata) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if match(r.Metadata) {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *memStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *memStore) ListDocuments(context.Context) ([]entity.DocumentSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKey := map[[2]string]*entity.DocumentSummary{}
	for _, r := range m.records {
		k := [2]string{r.Metadata.Source, r.Metadata.Category}
		s, ok := byKey[k]
		if !ok {
			s = &entity.DocumentSummary{Source: k[0], Category: k[1], TotalChunks: r.Metadata.TotalChunks}
			byKey[k] = s
		}
		s.ChunkCount++
	}
	out := make([]entity.DocumentSummary, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var errBoom = errors.New("boom")
