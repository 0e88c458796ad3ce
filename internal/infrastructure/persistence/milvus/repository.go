package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSearchEf = 128
	queryWindow     = 16384
)

// Repository runs raw collection operations against Milvus.
type Repository struct {
	client *Client
}

func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// chunkRow is one stored chunk without its vector. Score is set for search results.
type chunkRow struct {
	ID          string
	Score       float32
	Source      string
	Category    string
	ChunkIndex  int64
	TotalChunks int64
	Document    string
}

func (r *Repository) ready() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	schema.CollectionName = r.client.CollectionName(schema.CollectionName)
	if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CreateIndex builds an HNSW index with the cosine metric on the vector field.
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	m, ef := r.client.config.HNSWM, r.client.config.HNSWEfConstruction
	if m <= 0 {
		m = 16
	}
	if ef <= 0 {
		ef = 256
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, m, ef)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := r.client.milvus.CreateIndex(ctx, r.client.CollectionName(collection), fieldVector, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// CollectionDim returns the vector dimension of an existing collection.
func (r *Repository) CollectionDim(ctx context.Context, collection string) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	coll, err := r.client.milvus.DescribeCollection(ctx, r.client.CollectionName(collection))
	if err != nil {
		return 0, fmt.Errorf("failed to describe collection: %w", err)
	}
	return vectorDim(coll.Schema), nil
}

func (r *Repository) DropCollection(ctx context.Context, collection string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.DropCollection",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	if err := r.client.milvus.DropCollection(ctx, r.client.CollectionName(collection)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Upsert writes columns keyed by id, replacing rows that already exist.
func (r *Repository) Upsert(ctx context.Context, collection string, dim int, rows []chunkRow, vectors [][]float32) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(rows)),
		))
	defer span.End()

	if len(rows) == 0 {
		return nil
	}

	ids := make([]string, len(rows))
	sources := make([]string, len(rows))
	categories := make([]string, len(rows))
	indexes := make([]int64, len(rows))
	totals := make([]int64, len(rows))
	docs := make([]string, len(rows))
	for i, rw := range rows {
		ids[i] = rw.ID
		sources[i] = rw.Source
		categories[i] = rw.Category
		indexes[i] = rw.ChunkIndex
		totals[i] = rw.TotalChunks
		docs[i] = rw.Document
	}

	_, err := r.client.milvus.Upsert(ctx, r.client.CollectionName(collection), "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, dim, vectors),
		entity.NewColumnVarChar(fieldSource, sources),
		entity.NewColumnVarChar(fieldCategory, categories),
		entity.NewColumnInt64(fieldChunkIndex, indexes),
		entity.NewColumnInt64(fieldTotalChunks, totals),
		entity.NewColumnVarChar(fieldDocument, docs),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

// Search returns the topK nearest rows by cosine similarity.
func (r *Repository) Search(ctx context.Context, collection string, vector []float32, topK int) ([]chunkRow, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	ef := r.client.config.SearchEf
	if ef < topK {
		ef = max(defaultSearchEf, topK)
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		r.client.CollectionName(collection),
		nil,
		"",
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		fieldVector,
		entity.COSINE,
		topK,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	// one query vector, so only the first result set matters
	res := results[0]
	if res.Err != nil {
		span.RecordError(res.Err)
		return nil, fmt.Errorf("failed to search: %w", res.Err)
	}
	hits := readRows(res.Fields, res.ResultCount)
	for i := range hits {
		if i < len(res.Scores) {
			hits[i].Score = res.Scores[i]
		}
	}
	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// Delete removes every row matching expr.
func (r *Repository) Delete(ctx context.Context, collection, expr string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.Delete",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("expr", expr),
		))
	defer span.End()

	if err := r.client.milvus.Delete(ctx, r.client.CollectionName(collection), "", expr); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Scan returns rows matching expr, up to the Milvus query window of 16384 rows.
func (r *Repository) Scan(ctx context.Context, collection, expr string) ([]chunkRow, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.Scan",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	rs, err := r.client.milvus.Query(ctx,
		r.client.CollectionName(collection),
		nil,
		expr,
		[]string{fieldID, fieldSource, fieldCategory, fieldTotalChunks},
		client.WithLimit(queryWindow),
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	rows := readRows(rs, -1)
	span.SetAttributes(attribute.Int("result_count", len(rows)))
	return rows, nil
}

func (r *Repository) Count(ctx context.Context, collection string) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	rs, err := r.client.milvus.Query(ctx, r.client.CollectionName(collection), nil, "",
		[]string{"count(*)"},
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	col, ok := rs.GetColumn("count(*)").(*entity.ColumnInt64)
	if !ok || col.Len() == 0 {
		return 0, nil
	}
	return int(col.Data()[0]), nil
}

// readRows converts result columns into rows. n < 0 means "length of the id column".
func readRows(rs client.ResultSet, n int) []chunkRow {
	ids, _ := rs.GetColumn(fieldID).(*entity.ColumnVarChar)
	if n < 0 {
		if ids == nil {
			return nil
		}
		n = ids.Len()
	}
	sources, _ := rs.GetColumn(fieldSource).(*entity.ColumnVarChar)
	categories, _ := rs.GetColumn(fieldCategory).(*entity.ColumnVarChar)
	indexes, _ := rs.GetColumn(fieldChunkIndex).(*entity.ColumnInt64)
	totals, _ := rs.GetColumn(fieldTotalChunks).(*entity.ColumnInt64)
	docs, _ := rs.GetColumn(fieldDocument).(*entity.ColumnVarChar)

	out := make([]chunkRow, n)
	for i := 0; i < n; i++ {
		if ids != nil && i < ids.Len() {
			out[i].ID = ids.Data()[i]
		}
		if sources != nil && i < sources.Len() {
			out[i].Source = sources.Data()[i]
		}
		if categories != nil && i < categories.Len() {
			out[i].Category = categories.Data()[i]
		}
		if indexes != nil && i < indexes.Len() {
			out[i].ChunkIndex = indexes.Data()[i]
		}
		if totals != nil && i < totals.Len() {
			out[i].TotalChunks = totals.Data()[i]
		}
		if docs != nil && i < docs.Len() {
			out[i].Document = docs.Data()[i]
		}
	}
	return out
}

// quote renders s as a Milvus string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func sourceExpr(source, category string) string {
	expr := fieldSource + " == " + quote(source)
	if category != "" {
		expr += " && " + fieldCategory + " == " + quote(category)
	}
	return expr
}

func categoryExpr(category string) string {
	return fieldCategory + " == " + quote(category)
}
