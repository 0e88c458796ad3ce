package dto

import (
	"time"

	"kb-rag-api/internal/domain/entity"
)

type ChatRequest struct {
	Message        string `json:"message" binding:"required,max=10000"`
	ConversationID string `json:"conversation_id,omitempty" binding:"max=128"`
}

type ChatResponse struct {
	Response        string   `json:"response"`
	Sources         []string `json:"sources"`
	ConversationID  string   `json:"conversation_id"`
	RetrievalStatus string   `json:"retrieval_status,omitempty"`
}

type TurnResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryResponse struct {
	ConversationID string          `json:"conversation_id"`
	Turns          []*TurnResponse `json:"turns"`
}

func ToHistoryResponse(id string, turns []entity.Turn) *HistoryResponse {
	out := &HistoryResponse{ConversationID: id, Turns: make([]*TurnResponse, 0, len(turns))}
	for _, t := range turns {
		out.Turns = append(out.Turns, &TurnResponse{Role: string(t.Role), Content: t.Content, CreatedAt: t.CreatedAt})
	}
	return out
}
