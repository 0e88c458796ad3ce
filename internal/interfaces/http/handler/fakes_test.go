package handler

import (
	"context"
	"errors"
	"sync"
	"time"

	"kb-rag-api/internal/application/chat"
	"kb-rag-api/internal/application/retrieval"
	"kb-rag-api/internal/domain/entity"
	"kb-rag-api/internal/domain/repository"
	"kb-rag-api/internal/infrastructure/messaging"
	apperrors "kb-rag-api/pkg/errors"
)

type fakeChat struct {
	mu        sync.Mutex
	askErr    error
	lastQuery string
	lastConv  string
	docs      map[string]*entity.EphemeralDocument
	lastTTL   time.Duration
}

func newFakeChat() *fakeChat {
	return &fakeChat{docs: make(map[string]*entity.EphemeralDocument)}
}

func (f *fakeChat) Ask(_ context.Context, query, conversationID string) (*chat.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.askErr != nil {
		return nil, f.askErr
	}
	f.lastQuery, f.lastConv = query, conversationID
	if conversationID == "" {
		conversationID = "default"
	}
	return &chat.Answer{
		Response:        "answer to " + query,
		Sources:         []string{"guide.md"},
		ConversationID:  conversationID,
		RetrievalStatus: retrieval.StatusOK,
	}, nil
}

func (f *fakeChat) History(_ context.Context, conversationID string) ([]entity.Turn, error) {
	return []entity.Turn{
		{Role: entity.RoleUser, Content: "q"},
		{Role: entity.RoleAssistant, Content: "a"},
	}, nil
}

func (f *fakeChat) ResetConversation(context.Context, string) error { return nil }

func (f *fakeChat) UploadDocument(_ context.Context, filename, text string, ttl time.Duration) (*entity.EphemeralDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if text == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("document has no text")
	}
	f.lastTTL = ttl
	doc := &entity.EphemeralDocument{ID: "doc-1", Filename: filename, FullText: text, UploadedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	f.docs[doc.ID] = doc
	return doc, nil
}

func (f *fakeChat) AskDocument(_ context.Context, documentID, query string) (*chat.Answer, error) {
	doc, err := f.GetDocument(context.Background(), documentID)
	if err != nil {
		return nil, err
	}
	return &chat.Answer{Response: "doc answer to " + query, Sources: []string{doc.Filename}}, nil
}

func (f *fakeChat) GetDocument(_ context.Context, documentID string) (*entity.EphemeralDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if documentID == "expired" {
		return nil, apperrors.ErrSessionExpired
	}
	doc, ok := f.docs[documentID]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return doc, nil
}

func (f *fakeChat) DeleteDocument(_ context.Context, documentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[documentID]
	delete(f.docs, documentID)
	return ok, nil
}

type fakeIndexer struct {
	mu         sync.Mutex
	ingested   []retrieval.IngestRequest
	deleted    [][2]string
	cleared    bool
	ingestErr  error
	listErr    error
	categories []string
}

func (f *fakeIndexer) Ingest(_ context.Context, text, source, category string) (*retrieval.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	if text == "" {
		return nil, apperrors.IngestionFailure(source, category, retrieval.ErrEmptyDocument)
	}
	if category == "" {
		category = entity.DefaultCategory
	}
	f.ingested = append(f.ingested, retrieval.IngestRequest{Text: text, Source: source, Category: category})
	return &retrieval.IngestResult{ChunksCreated: 2, Source: source, Category: category}, nil
}

func (f *fakeIndexer) IngestBatch(ctx context.Context, reqs []retrieval.IngestRequest) []retrieval.IngestOutcome {
	out := make([]retrieval.IngestOutcome, len(reqs))
	for i, r := range reqs {
		res, err := f.Ingest(ctx, r.Text, r.Source, r.Category)
		out[i] = retrieval.IngestOutcome{Source: r.Source, Result: res, Err: err}
	}
	return out
}

func (f *fakeIndexer) DeleteDocument(_ context.Context, source, category string) error {
	f.deleted = append(f.deleted, [2]string{source, category})
	return nil
}

func (f *fakeIndexer) DeleteCategory(_ context.Context, category string) error {
	if category == "" {
		return apperrors.ErrInvalidParam
	}
	f.categories = append(f.categories, category)
	return nil
}

func (f *fakeIndexer) Clear(context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakeIndexer) ListDocuments(context.Context) ([]entity.DocumentSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []entity.DocumentSummary{{Source: "guide.md", Category: "general", ChunkCount: 2, TotalChunks: 2}}, nil
}

func (f *fakeIndexer) Stats(context.Context) retrieval.Stats {
	return retrieval.Stats{TotalChunks: 2, Collection: "docs", Backend: "embedded", Embedder: "local/hash-384", Status: "healthy"}
}

type fakePublisher struct {
	jobs      []*messaging.IngestJob
	requestID string
	err       error
}

func (f *fakePublisher) PublishIngestJob(_ context.Context, job *messaging.IngestJob, requestID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, job)
	f.requestID = requestID
	return "1-0", nil
}

type fakeCatalog struct {
	docs []*entity.IngestedDocument
}

func (f *fakeCatalog) Upsert(context.Context, *entity.IngestedDocument) error { return nil }
func (f *fakeCatalog) Get(context.Context, string, string) (*entity.IngestedDocument, error) {
	return nil, apperrors.ErrNotFound
}
func (f *fakeCatalog) List(_ context.Context, p repository.Pagination) (*repository.PagedResult[*entity.IngestedDocument], error) {
	return repository.NewPagedResult(f.docs, int64(len(f.docs)), p), nil
}
func (f *fakeCatalog) DeleteBySource(context.Context, string, string) error { return nil }
func (f *fakeCatalog) DeleteByCategory(context.Context, string) error     { return nil }
func (f *fakeCatalog) DeleteAll(context.Context) error                    { return nil }

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

var errBackend = errors.New("dial tcp 10.0.0.1:19530: connection refused")
