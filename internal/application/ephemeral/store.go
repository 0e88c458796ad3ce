// Package ephemeral holds uploaded documents for direct question answering
// without indexing them. Documents expire after a fixed TTL.
package ephemeral

import (
	"context"
	"errors"
	"sync"
	"time"

	"kb-rag-api/internal/domain/entity"
	apperrors "kb-rag-api/pkg/errors"
	"kb-rag-api/pkg/logger"
	"kb-rag-api/pkg/metrics"
)

const DefaultTTL = time.Hour

// Store keeps ephemeral documents by id.
//
// Get returns ErrSessionNotFound for unknown ids. A document past its expiry
// is reported once as ErrSessionExpired and evicted, after which it is unknown.
type Store interface {
	Put(ctx context.Context, doc *entity.EphemeralDocument) error
	Get(ctx context.Context, id string) (*entity.EphemeralDocument, error)
	// Delete reports whether a document was removed.
	Delete(ctx context.Context, id string) (bool, error)
}

// NewDocument stamps a document with its upload and expiry times.
func NewDocument(id, filename, text string, ttl time.Duration, now time.Time) *entity.EphemeralDocument {
	if ttl < 0 {
		ttl = 0
	}
	return &entity.EphemeralDocument{
		ID:         id,
		Filename:   filename,
		FullText:   text,
		UploadedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsMissing reports whether err means the document cannot be served.
func IsMissing(err error) bool {
	return errors.Is(err, apperrors.ErrSessionNotFound) || errors.Is(err, apperrors.ErrSessionExpired)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*entity.EphemeralDocument
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*entity.EphemeralDocument), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Put(_ context.Context, doc *entity.EphemeralDocument) error {
	if doc == nil || doc.ID == "" {
		return apperrors.ErrInvalidParam.WithDetail("document id is required")
	}
	cp := *doc
	s.mu.Lock()
	s.docs[doc.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*entity.EphemeralDocument, error) {
	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		metrics.EphemeralLookupTotal.WithLabelValues("not_found").Inc()
		return nil, apperrors.ErrSessionNotFound
	}

	if doc.ExpiredAt(s.now()) {
		s.mu.Lock()
		// another reader may already have evicted it
		_, still := s.docs[id]
		delete(s.docs, id)
		s.mu.Unlock()
		if !still {
			metrics.EphemeralLookupTotal.WithLabelValues("not_found").Inc()
			return nil, apperrors.ErrSessionNotFound
		}
		metrics.EphemeralLookupTotal.WithLabelValues("expired").Inc()
		return nil, apperrors.ErrSessionExpired
	}

	metrics.EphemeralLookupTotal.WithLabelValues("hit").Inc()
	cp := *doc
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[id]
	delete(s.docs, id)
	return ok, nil
}

// Sweep evicts every expired document and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, doc := range s.docs {
		if doc.ExpiredAt(now) {
			delete(s.docs, id)
			n++
		}
	}
	return n
}

// RunJanitor sweeps on every tick until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Debug(ctx, "expired ephemeral documents evicted", "count", n)
			}
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
