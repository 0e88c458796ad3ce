package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"kb-rag-api/internal/domain/entity"
)

// ConversationTurnRepository keeps conversation history in the conversation_turns table.
// Each Save replaces the whole history of one conversation inside a transaction.
type ConversationTurnRepository struct {
	client *Client
}

func NewConversationTurnRepository(client *Client) *ConversationTurnRepository {
	return &ConversationTurnRepository{client: client}
}

func byConversation(db *gorm.DB, id string) *gorm.DB {
	return db.Where("conversation_id = ?", id)
}

// Load returns nil when the conversation has no stored turns.
func (r *ConversationTurnRepository) Load(ctx context.Context, id string) ([]entity.Turn, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationTurnRepository.Load")
	defer span.End()

	var rows []entity.StoredTurn
	if err := byConversation(r.client.db.WithContext(ctx), id).Order("seq ASC").Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load conversation turns: %w", err)
	}
	return turnsFromRows(rows), nil
}

func (r *ConversationTurnRepository) Save(ctx context.Context, id string, turns []entity.Turn) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationTurnRepository.Save")
	defer span.End()

	rows := rowsFromTurns(id, turns)
	err := r.client.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := byConversation(tx, id).Delete(&entity.StoredTurn{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save conversation turns: %w", err)
	}
	return nil
}

func (r *ConversationTurnRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationTurnRepository.Delete")
	defer span.End()

	if err := byConversation(r.client.db.WithContext(ctx), id).Delete(&entity.StoredTurn{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete conversation turns: %w", err)
	}
	return nil
}

func rowsFromTurns(id string, turns []entity.Turn) []entity.StoredTurn {
	rows := make([]entity.StoredTurn, len(turns))
	for i, t := range turns {
		rows[i] = entity.StoredTurn{
			ConversationID: id,
			Seq:            i,
			Role:           t.Role,
			Content:        t.Content,
			CreatedAt:      t.CreatedAt,
		}
	}
	return rows
}

func turnsFromRows(rows []entity.StoredTurn) []entity.Turn {
	if len(rows) == 0 {
		return nil
	}
	turns := make([]entity.Turn, len(rows))
	for i, row := range rows {
		turns[i] = entity.Turn{Role: row.Role, Content: row.Content, CreatedAt: row.CreatedAt}
	}
	return turns
}
