package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kb-rag-api/internal/domain/entity"
	"kb-rag-api/internal/domain/repository"
	apperrors "kb-rag-api/pkg/errors"
)

// DocumentRepository is the GORM catalog of ingested documents, keyed by (source, category).
type DocumentRepository struct {
	client *Client
}

var _ repository.DocumentRepository = (*DocumentRepository)(nil)

func NewDocumentRepository(client *Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

// upsertClause refreshes the counters when the document was ingested before.
var upsertClause = clause.OnConflict{
	Columns:   []clause.Column{{Name: "source"}, {Name: "category"}},
	DoUpdates: clause.AssignmentColumns([]string{"chunk_count", "char_count", "embedding_provider", "updated_at"}),
}

func (r *DocumentRepository) Upsert(ctx context.Context, doc *entity.IngestedDocument) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Upsert")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Clauses(upsertClause).Create(doc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, source, category string) (*entity.IngestedDocument, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Get")
	defer span.End()

	var doc entity.IngestedDocument
	err := r.client.db.WithContext(ctx).
		Where("source = ? AND category = ?", source, category).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithDetail(fmt.Sprintf("document %s (%s)", source, category))
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.IngestedDocument], error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.List")
	defer span.End()

	db := r.client.db.WithContext(ctx).Model(&entity.IngestedDocument{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	var docs []*entity.IngestedDocument
	err := db.Order("source ASC, category ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&docs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return repository.NewPagedResult(docs, total, pagination), nil
}

func (r *DocumentRepository) DeleteBySource(ctx context.Context, source, category string) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.DeleteBySource")
	defer span.End()

	return r.delete(ctx, bySource(r.client.db.WithContext(ctx), source, category))
}

func (r *DocumentRepository) DeleteByCategory(ctx context.Context, category string) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.DeleteByCategory")
	defer span.End()

	return r.delete(ctx, r.client.db.WithContext(ctx).Where("category = ?", category))
}

func (r *DocumentRepository) DeleteAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.DeleteAll")
	defer span.End()

	return r.delete(ctx, r.client.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}))
}

func (r *DocumentRepository) delete(_ context.Context, scoped *gorm.DB) error {
	if err := scoped.Delete(&entity.IngestedDocument{}).Error; err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// bySource scopes to one source; an empty category matches every category.
func bySource(db *gorm.DB, source, category string) *gorm.DB {
	db = db.Where("source = ?", source)
	if category != "" {
		db = db.Where("category = ?", category)
	}
	return db
}
