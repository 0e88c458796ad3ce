package dto

import (
	"time"

	"kb-rag-api/internal/domain/entity"
)

// EphemeralUploadRequest is the JSON form of an ephemeral upload; multipart uploads use a "file" field.
type EphemeralUploadRequest struct {
	Filename   string `json:"filename" binding:"required,max=255"`
	Text       string `json:"text" binding:"required"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" binding:"min=0"`
}

type EphemeralDocumentResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Chars      int       `json:"chars"`
	UploadedAt time.Time `json:"uploaded_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func ToEphemeralDocumentResponse(doc *entity.EphemeralDocument) *EphemeralDocumentResponse {
	return &EphemeralDocumentResponse{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Chars:      len([]rune(doc.FullText)),
		UploadedAt: doc.UploadedAt,
		ExpiresAt:  doc.ExpiresAt,
	}
}

type EphemeralAskRequest struct {
	Question string `json:"question" binding:"required,max=10000"`
}

type EphemeralAskResponse struct {
	Response   string   `json:"response"`
	DocumentID string   `json:"document_id"`
	Sources    []string `json:"sources"`
}
