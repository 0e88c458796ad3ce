package handler

import (
	"context"
	"time"

	"kb-rag-api/internal/application/chat"
	"kb-rag-api/internal/application/retrieval"
	"kb-rag-api/internal/domain/entity"
	"kb-rag-api/internal/infrastructure/messaging"
)

// ChatService is the part of chat.Service the handlers call.
type ChatService interface {
	Ask(ctx context.Context, query, conversationID string) (*chat.Answer, error)
	History(ctx context.Context, conversationID string) ([]entity.Turn, error)
	ResetConversation(ctx context.Context, conversationID string) error
	UploadDocument(ctx context.Context, filename, text string, ttl time.Duration) (*entity.EphemeralDocument, error)
	AskDocument(ctx context.Context, documentID, query string) (*chat.Answer, error)
	GetDocument(ctx context.Context, documentID string) (*entity.EphemeralDocument, error)
	DeleteDocument(ctx context.Context, documentID string) (bool, error)
}

// Indexer is the write side of the knowledge base.
type Indexer interface {
	Ingest(ctx context.Context, text, source, category string) (*retrieval.IngestResult, error)
	IngestBatch(ctx context.Context, reqs []retrieval.IngestRequest) []retrieval.IngestOutcome
	DeleteDocument(ctx context.Context, source, category string) error
	DeleteCategory(ctx context.Context, category string) error
	Clear(ctx context.Context) error
	ListDocuments(ctx context.Context) ([]entity.DocumentSummary, error)
	Stats(ctx context.Context) retrieval.Stats
}

// JobPublisher queues ingestion for the worker.
type JobPublisher interface {
	PublishIngestJob(ctx context.Context, job *messaging.IngestJob, requestID string) (string, error)
}
