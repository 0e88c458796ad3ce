package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kb-rag-api/internal/application/ephemeral"
	"kb-rag-api/internal/domain/entity"
	apperrors "kb-rag-api/pkg/errors"
	"kb-rag-api/pkg/logger"
	"kb-rag-api/pkg/metrics"
)

// expiredGrace keeps a key alive past its expiry so the first late read
// can report the document as expired rather than unknown.
const expiredGrace = 10 * time.Minute

// EphemeralStore keeps ephemeral documents in Redis so every gateway replica sees them.
type EphemeralStore struct {
	client *Client
	now    func() time.Time
}

var _ ephemeral.Store = (*EphemeralStore)(nil)

func NewEphemeralStore(client *Client) *EphemeralStore {
	return &EphemeralStore{client: client, now: time.Now}
}

func ephemeralKey(id string) string {
	return "ephemeral:" + id
}

func (s *EphemeralStore) Put(ctx context.Context, doc *entity.EphemeralDocument) error {
	if doc == nil || doc.ID == "" {
		return apperrors.ErrInvalidParam.WithDetail("document id is required")
	}
	ctx, span := tracer.Start(ctx, "ephemeral.Put",
		trace.WithAttributes(attribute.String("ephemeral.id", doc.ID)))
	defer span.End()

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := s.client.rdb.Set(ctx, ephemeralKey(doc.ID), raw, keyTTL(doc, s.now())).Err(); err != nil {
		span.RecordError(err)
		return apperrors.ErrServiceUnavailable.WithError(err)
	}
	return nil
}

// keyTTL is always positive: Redis treats a zero expiration as "never".
func keyTTL(doc *entity.EphemeralDocument, now time.Time) time.Duration {
	ttl := doc.ExpiresAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	return ttl + expiredGrace
}

func (s *EphemeralStore) Get(ctx context.Context, id string) (*entity.EphemeralDocument, error) {
	ctx, span := tracer.Start(ctx, "ephemeral.Get",
		trace.WithAttributes(attribute.String("ephemeral.id", id)))
	defer span.End()

	raw, err := s.client.rdb.Get(ctx, ephemeralKey(id)).Bytes()
	if err != nil {
		if IsNil(err) {
			metrics.EphemeralLookupTotal.WithLabelValues("not_found").Inc()
			return nil, apperrors.ErrSessionNotFound
		}
		span.RecordError(err)
		return nil, apperrors.ErrServiceUnavailable.WithError(err)
	}

	doc, err := decodeEphemeral(raw, s.now())
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionExpired) {
			metrics.EphemeralLookupTotal.WithLabelValues("expired").Inc()
			s.dropExpired(ctx, id)
		}
		return nil, err
	}
	metrics.EphemeralLookupTotal.WithLabelValues("hit").Inc()
	return doc, nil
}

// dropExpired removes an expired key so later reads see the document as
// unknown. GETDEL claims the value atomically; a document that was re-put in
// the meantime is written back.
func (s *EphemeralStore) dropExpired(ctx context.Context, id string) {
	key := ephemeralKey(id)
	raw, err := s.client.rdb.GetDel(ctx, key).Bytes()
	if err != nil {
		if !IsNil(err) {
			logger.Warn(ctx, "failed to drop expired ephemeral document", "ephemeral_id", id, "error", err.Error())
		}
		return
	}

	now := s.now()
	doc, err := decodeEphemeral(raw, now)
	if err != nil {
		return
	}
	if err := s.client.rdb.SetNX(ctx, key, raw, keyTTL(doc, now)).Err(); err != nil {
		logger.Warn(ctx, "failed to restore ephemeral document", "ephemeral_id", id, "error", err.Error())
	}
}

// decodeEphemeral parses a stored document and applies the expiry check.
func decodeEphemeral(raw []byte, now time.Time) (*entity.EphemeralDocument, error) {
	var doc entity.EphemeralDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("corrupt ephemeral document: %w", err)
	}
	if doc.ExpiredAt(now) {
		return nil, apperrors.ErrSessionExpired
	}
	return &doc, nil
}

func (s *EphemeralStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.rdb.Del(ctx, ephemeralKey(id)).Result()
	if err != nil {
		return false, apperrors.ErrServiceUnavailable.WithError(err)
	}
	return n > 0, nil
}
