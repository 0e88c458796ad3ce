package handler

import (
	"github.com/gin-gonic/gin"

	"kb-rag-api/internal/application/conversation"
	"kb-rag-api/internal/interfaces/http/dto"
)

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Chat answers a question from the knowledge base.
// @Router /v1/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	answer, err := h.svc.Ask(c.Request.Context(), req.Message, req.ConversationID)
	if err != nil {
		dto.Fail(c, err)
		return
	}

	dto.Success(c, &dto.ChatResponse{
		Response:        answer.Response,
		Sources:         answer.Sources,
		ConversationID:  answer.ConversationID,
		RetrievalStatus: string(answer.RetrievalStatus),
	})
}

// History returns the remembered turns of a conversation.
// @Router /v1/conversations/{id} [get]
func (h *ChatHandler) History(c *gin.Context) {
	id := conversation.NormalizeID(c.Param("id"))
	turns, err := h.svc.History(c.Request.Context(), id)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToHistoryResponse(id, turns))
}

// Reset forgets a conversation.
// @Router /v1/conversations/{id} [delete]
func (h *ChatHandler) Reset(c *gin.Context) {
	if err := h.svc.ResetConversation(c.Request.Context(), c.Param("id")); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.NoContent(c)
}
