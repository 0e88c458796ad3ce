package ephemeral

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "kb-rag-api/pkg/errors"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*MemoryStore, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemoryStore().WithClock(clk.Now), clk
}

func TestGetReturnsStoredDocument(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore()
	require.NoError(t, s.Put(ctx, NewDocument("d1", "notes.txt", "body", time.Hour, clk.Now())))

	clk.Advance(30 * time.Minute)
	doc, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, "body", doc.FullText)
	assert.Equal(t, doc.UploadedAt.Add(time.Hour), doc.ExpiresAt)
}

func TestZeroTTLExpiresOnceThenNotFound(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore()
	require.NoError(t, s.Put(ctx, NewDocument("d1", "a.txt", "x", 0, clk.Now())))

	clk.Advance(time.Millisecond)
	_, err := s.Get(ctx, "d1")
	assert.True(t, errors.Is(err, apperrors.ErrSessionExpired))
	assert.True(t, IsMissing(err))

	_, err = s.Get(ctx, "d1")
	assert.True(t, errors.Is(err, apperrors.ErrSessionNotFound))
	assert.True(t, IsMissing(err))
}

func TestExpiryBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore()
	require.NoError(t, s.Put(ctx, NewDocument("d1", "a.txt", "x", time.Minute, clk.Now())))

	clk.Advance(time.Minute)
	_, err := s.Get(ctx, "d1")
	require.NoError(t, err)

	clk.Advance(time.Nanosecond)
	_, err = s.Get(ctx, "d1")
	assert.True(t, errors.Is(err, apperrors.ErrSessionExpired))
}

func TestUnknownAndDeleted(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore()

	_, err := s.Get(ctx, "nope")
	assert.True(t, errors.Is(err, apperrors.ErrSessionNotFound))

	require.NoError(t, s.Put(ctx, NewDocument("d1", "a.txt", "x", time.Hour, clk.Now())))
	ok, err := s.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "d1")
	assert.True(t, errors.Is(err, apperrors.ErrSessionNotFound))
}

func TestPutRequiresID(t *testing.T) {
	s, clk := newTestStore()
	err := s.Put(context.Background(), NewDocument("", "a.txt", "x", time.Hour, clk.Now()))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))
}

func TestSweepEvictsExpired(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore()
	require.NoError(t, s.Put(ctx, NewDocument("short", "a.txt", "x", time.Minute, clk.Now())))
	require.NoError(t, s.Put(ctx, NewDocument("long", "b.txt", "y", time.Hour, clk.Now())))

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())

	_, err := s.Get(ctx, "long")
	require.NoError(t, err)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore()
	require.NoError(t, s.Put(ctx, NewDocument("d1", "a.txt", "orig", time.Hour, clk.Now())))

	doc, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	doc.FullText = "changed"

	again, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "orig", again.FullText)
}
