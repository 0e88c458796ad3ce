package dto

import (
	"time"

	"kb-rag-api/internal/domain/entity"
)

// IngestRequest is the JSON form of a document upload.
type IngestRequest struct {
	Text     string `json:"text" binding:"required"`
	Source   string `json:"source" binding:"required,max=512"`
	Category string `json:"category,omitempty" binding:"max=128"`
}

type BatchIngestRequest struct {
	Documents []IngestRequest `json:"documents" binding:"required,min=1,max=100,dive"`
}

type IngestResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Source        string `json:"source"`
	ChunksCreated int    `json:"chunks_created"`
	Category      string `json:"category"`
}

type BatchItem struct {
	Filename      string `json:"filename"`
	Status        string `json:"status"`
	ChunksCreated int    `json:"chunks_created,omitempty"`
	Error         string `json:"error,omitempty"`
}

type BatchIngestResponse struct {
	Status  string       `json:"status"`
	Results []*BatchItem `json:"results"`
}

type AsyncIngestResponse struct {
	JobID    string `json:"job_id"`
	StreamID string `json:"stream_id"`
}

type DocumentListResponse struct {
	Documents []entity.DocumentSummary `json:"documents"`
}

type CatalogEntry struct {
	Source            string    `json:"source"`
	Category          string    `json:"category"`
	ChunkCount        int       `json:"chunk_count"`
	CharCount         int       `json:"char_count"`
	EmbeddingProvider string    `json:"embedding_provider"`
	IngestedAt        time.Time `json:"ingested_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func ToCatalogEntries(docs []*entity.IngestedDocument) []*CatalogEntry {
	out := make([]*CatalogEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, &CatalogEntry{
			Source:            d.Source,
			Category:          d.Category,
			ChunkCount:        d.ChunkCount,
			CharCount:         d.CharCount,
			EmbeddingProvider: d.EmbeddingProvider,
			IngestedAt:        d.IngestedAt,
			UpdatedAt:         d.UpdatedAt,
		})
	}
	return out
}
