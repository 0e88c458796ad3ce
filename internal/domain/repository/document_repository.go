package repository

import (
	"context"

	"kb-rag-api/internal/domain/entity"
)

// DocumentRepository records which documents have been ingested.
type DocumentRepository interface {
	Upsert(ctx context.Context, doc *entity.IngestedDocument) error
	Get(ctx context.Context, source, category string) (*entity.IngestedDocument, error)
	List(ctx context.Context, pagination Pagination) (*PagedResult[*entity.IngestedDocument], error)
	// DeleteBySource removes catalog rows for source; an empty category matches all.
	DeleteBySource(ctx context.Context, source, category string) error
	DeleteByCategory(ctx context.Context, category string) error
	DeleteAll(ctx context.Context) error
}
