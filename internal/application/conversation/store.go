package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kb-rag-api/internal/domain/entity"
)

// TurnStore persists conversation turns outside the process.
type TurnStore interface {
	// Load returns nil turns when the conversation is unknown.
	Load(ctx context.Context, id string) ([]entity.Turn, error)
	Save(ctx context.Context, id string, turns []entity.Turn) error
	Delete(ctx context.Context, id string) error
}

// KVCache is the subset of a key-value cache KVTurnStore needs.
type KVCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const DefaultTurnTTL = 30 * 24 * time.Hour

// KVTurnStore keeps each conversation as one JSON snapshot with a sliding TTL.
type KVTurnStore struct {
	cache KVCache
	ttl   time.Duration
	// isMiss reports whether a Get error means "absent"; nil treats every Get error as a miss.
	isMiss func(error) bool
}

func NewKVTurnStore(cache KVCache, ttl time.Duration, isMiss func(error) bool) *KVTurnStore {
	if ttl <= 0 {
		ttl = DefaultTurnTTL
	}
	return &KVTurnStore{cache: cache, ttl: ttl, isMiss: isMiss}
}

func turnsKey(id string) string {
	return fmt.Sprintf("conv:%s:turns", id)
}

func (s *KVTurnStore) Load(ctx context.Context, id string) ([]entity.Turn, error) {
	b, err := s.cache.Get(ctx, turnsKey(id))
	if err != nil {
		if s.isMiss == nil || s.isMiss(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var turns []entity.Turn
	if err := json.Unmarshal(b, &turns); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return turns, nil
}

// Save expects a cache that JSON-encodes value itself.
func (s *KVTurnStore) Save(ctx context.Context, id string, turns []entity.Turn) error {
	if err := s.cache.Set(ctx, turnsKey(id), turns, s.ttl); err != nil {
		return fmt.Errorf("save conversation %s: %w", id, err)
	}
	return nil
}

func (s *KVTurnStore) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, turnsKey(id))
}
