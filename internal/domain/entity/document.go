package entity

import "time"

// EphemeralDocument is an uploaded document held for ad-hoc QA outside the vector store.
type EphemeralDocument struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FullText   string    `json:"full_text"`
	UploadedAt time.Time `json:"uploaded_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the document is past its expiry at now.
func (d *EphemeralDocument) ExpiredAt(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// DocumentSummary aggregates the chunks stored for one (source, category) pair.
type DocumentSummary struct {
	Source      string `json:"source"`
	Category    string `json:"category"`
	ChunkCount  int    `json:"chunk_count"`
	TotalChunks int    `json:"total_chunks"`
}

// IngestedDocument is the catalog row written after a successful ingestion.
type IngestedDocument struct {
	ID                int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Source            string    `json:"source" gorm:"type:varchar(512);not null;uniqueIndex:uniq_ingested_source_category"`
	Category          string    `json:"category" gorm:"type:varchar(128);not null;uniqueIndex:uniq_ingested_source_category;index"`
	ChunkCount        int       `json:"chunk_count" gorm:"not null"`
	CharCount         int       `json:"char_count" gorm:"not null"`
	EmbeddingProvider string    `json:"embedding_provider" gorm:"type:varchar(64)"`
	IngestedAt        time.Time `json:"ingested_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (IngestedDocument) TableName() string {
	return "ingested_documents"
}
