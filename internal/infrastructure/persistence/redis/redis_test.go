package redis

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-rag-api/internal/domain/entity"
	apperrors "kb-rag-api/pkg/errors"
)

func TestDecodeEphemeral(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	doc := entity.EphemeralDocument{ID: "d1", Filename: "a.txt", FullText: "hello", UploadedAt: now, ExpiresAt: now.Add(time.Hour)}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	got, err := decodeEphemeral(raw, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "hello", got.FullText)

	got, err = decodeEphemeral(raw, now.Add(time.Hour))
	require.NoError(t, err, "expiry instant itself is still valid")
	assert.NotNil(t, got)

	_, err = decodeEphemeral(raw, now.Add(time.Hour+time.Second))
	assert.True(t, errors.Is(err, apperrors.ErrSessionExpired))

	_, err = decodeEphemeral([]byte("{"), now)
	assert.Error(t, err)
}

func TestKeyTTLIsAlwaysPositive(t *testing.T) {
	now := time.Now()
	doc := &entity.EphemeralDocument{ExpiresAt: now}
	assert.Equal(t, expiredGrace, keyTTL(doc, now))

	doc.ExpiresAt = now.Add(-time.Hour)
	assert.Equal(t, expiredGrace, keyTTL(doc, now))

	doc.ExpiresAt = now.Add(time.Hour)
	assert.Equal(t, time.Hour+expiredGrace, keyTTL(doc, now))
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(goredis.Nil))
	assert.True(t, IsNil(errors.Join(errors.New("wrapped"), goredis.Nil)))
	assert.False(t, IsNil(errors.New("connection refused")))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "ephemeral:abc", ephemeralKey("abc"))
	assert.Equal(t, "ratelimit:10.0.0.1:/api/chat", RateLimitKey("10.0.0.1", "/api/chat"))
}
