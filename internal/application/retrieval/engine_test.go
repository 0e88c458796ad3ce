package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieveEmptyStore(t *testing.T) {
	eng := NewEngine(newWordEmbedder(), newMemStore(), 5)

	res := eng.Retrieve(context.Background(), "anything", 0)
	assert.Equal(t, StatusEmpty, res.Status)
	assert.True(t, res.Empty())
	assert.Empty(t, res.Reason)
}

func TestRetrieveAbsorbsFailures(t *testing.T) {
	ctx := context.Background()

	emb := newWordEmbedder()
	emb.failWith = errBoom
	res := NewEngine(emb, newMemStore(), 5).Retrieve(ctx, "question", 5)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, res.Empty())
	assert.Contains(t, res.Reason, "boom")

	store := newMemStore()
	store.queryErr = errBoom
	res = NewEngine(newWordEmbedder(), store, 5).Retrieve(ctx, "question", 5)
	assert.Equal(t, StatusFailed, res.Status)

	res = NewEngine(newWordEmbedder(), newMemStore(), 5).Retrieve(ctx, "   ", 5)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ErrEmptyQuery.Error(), res.Reason)

	var disabled *Engine
	res = disabled.Retrieve(ctx, "question", 5)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestRetrieveRanksAndLimits(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	emb := newWordEmbedder()
	idx := newTestIndexer(store, emb)

	for _, d := range []struct{ text, src string }{
		{"install docker engine locally", "docker.md"},
		{"expense reports are due monthly", "finance.md"},
		{"docker compose starts local services", "compose.md"},
		{"lunch is served at noon", "office.md"},
	} {
		_, err := idx.Ingest(ctx, d.text, d.src, "general")
		require.NoError(t, err)
	}

	eng := NewEngine(emb, store, 2)
	res := eng.Retrieve(ctx, "docker", 0)
	require.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Passages, 2)
	for i := 1; i < len(res.Passages); i++ {
		assert.LessOrEqual(t, res.Passages[i-1].Distance, res.Passages[i].Distance)
	}
	srcs := []string{res.Passages[0].Metadata.Source, res.Passages[1].Metadata.Source}
	assert.ElementsMatch(t, []string{"docker.md", "compose.md"}, srcs)

	res = eng.Retrieve(ctx, "docker", 500)
	assert.Len(t, res.Passages, 4)
}
