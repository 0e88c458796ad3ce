package embedded

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-rag-api/internal/config"
	domain "kb-rag-api/internal/domain/entity"
)

func openTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	s, err := Open(config.EmbeddedConfig{Path: ":memory:"}, "test_docs", dim)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureCollection(context.Background()))
	return s
}

func record(source, category string, index, total int, vec ...float32) domain.VectorRecord {
	return domain.NewVectorRecord(domain.Chunk{
		Text:        source + " chunk",
		Index:       index,
		SourceID:    source,
		Category:    category,
		TotalChunks: total,
	}, vec)
}

func TestStoreQueryOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)

	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{
		record("a.md", "general", 0, 1, 1, 0, 0),
		record("b.md", "general", 0, 1, 0, 1, 0),
		record("c.md", "general", 0, 1, 0.9, 0.1, 0),
	}))

	got, err := s.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.md", got[0].Metadata.Source)
	assert.Equal(t, "c.md", got[1].Metadata.Source)
	assert.InDelta(t, 0, got[0].Distance, 1e-5)
	assert.LessOrEqual(t, got[0].Distance, got[1].Distance)
	assert.Equal(t, "a.md chunk", got[0].Text)
}

func TestStoreQueryEmpty(t *testing.T) {
	s := openTestStore(t, 2)
	got, err := s.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 2)

	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("a.md", "general", 0, 1, 1, 0)}))
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("a.md", "general", 0, 1, 0, 1)}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Query(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0, got[0].Distance, 1e-5)
}

func TestStoreDeletes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 2)
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{
		record("a.md", "general", 0, 2, 1, 0),
		record("a.md", "general", 1, 2, 1, 0.1),
		record("a.md", "hr", 0, 1, 0.5, 0.5),
		record("b.md", "hr", 0, 1, 0, 1),
	}))

	require.NoError(t, s.DeleteBySource(ctx, "a.md", "general"))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.DeleteBySource(ctx, "a.md", ""))
	n, _ = s.Count(ctx)
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeleteByCategory(ctx, "hr"))
	n, _ = s.Count(ctx)
	assert.Equal(t, 0, n)

	got, err := s.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreDeleteAllKeepsCollectionUsable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 2)
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("a.md", "general", 0, 1, 1, 0)}))

	require.NoError(t, s.DeleteAll(ctx))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("b.md", "general", 0, 1, 0, 1)}))
	got, err := s.Query(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b.md", got[0].Metadata.Source)
}

func TestStoreListDocuments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 2)
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{
		record("b.md", "general", 0, 1, 1, 0),
		record("a.md", "hr", 0, 2, 1, 0),
		record("a.md", "hr", 1, 2, 0, 1),
		record("a.md", "general", 0, 1, 0, 1),
	}))

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.DocumentSummary{
		{Source: "a.md", Category: "general", ChunkCount: 1, TotalChunks: 1},
		{Source: "a.md", Category: "hr", ChunkCount: 2, TotalChunks: 2},
		{Source: "b.md", Category: "general", ChunkCount: 1, TotalChunks: 1},
	}, docs)
}

func TestStoreRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)

	err := s.Upsert(ctx, []domain.VectorRecord{record("a.md", "general", 0, 1, 1, 0)})
	require.Error(t, err)
	_, err = s.Query(ctx, []float32{1, 0}, 1)
	require.Error(t, err)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/vectors.db"

	s, err := Open(config.EmbeddedConfig{Path: path}, "docs", 2)
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollection(ctx))
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("a.md", "general", 0, 1, 1, 0)}))
	require.NoError(t, s.Close())

	s, err = Open(config.EmbeddedConfig{Path: path}, "docs", 2)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureCollection(ctx))
	got, err := s.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a.md", got[0].Metadata.Source)

	other, err := Open(config.EmbeddedConfig{Path: path}, "docs", 4)
	require.NoError(t, err)
	defer other.Close()
	assert.Error(t, other.EnsureCollection(ctx))
}

func TestVectorCodecRoundTrip(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestIndexTracksOrphans(t *testing.T) {
	idx := newIndex(8, 32)
	for i := 0; i < 100; i++ {
		idx.add("same", []float32{1, float32(i)})
	}
	assert.Equal(t, 1, idx.live())
	assert.Equal(t, 99, idx.orphans)
	assert.True(t, idx.needsCompaction())

	idx.remove("same")
	assert.Zero(t, idx.live())
	assert.Empty(t, idx.search([]float32{1, 0}, 3))
}

func TestStoreCompactsAfterRepeatedUpserts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 2)
	for i := 0; i < 70; i++ {
		require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("a.md", "general", 0, 1, 1, float32(i))}))
	}
	assert.Equal(t, 1, s.idx.live())
	assert.LessOrEqual(t, s.idx.orphans, 64)

	got, err := s.Query(ctx, []float32{1, 69}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a.md", got[0].Metadata.Source)
}
