package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"kb-rag-api/internal/interfaces/http/dto"
	apperrors "kb-rag-api/pkg/errors"
)

// EphemeralHandler serves question answering over uploaded, unindexed documents.
type EphemeralHandler struct {
	svc          ChatService
	maxFileBytes int64
}

func NewEphemeralHandler(svc ChatService, maxFileBytes int64) *EphemeralHandler {
	return &EphemeralHandler{svc: svc, maxFileBytes: maxFileBytes}
}

// Upload stores a document from a multipart "file" (with optional ttl_seconds) or JSON text.
// @Router /v1/ephemeral [post]
func (h *EphemeralHandler) Upload(c *gin.Context) {
	var (
		filename, text string
		ttl            time.Duration
	)
	if isMultipart(c) {
		fh, err := c.FormFile("file")
		if err != nil {
			dto.BadRequest(c, "file is required")
			return
		}
		if filename, text, err = readUpload(fh, h.maxFileBytes); err != nil {
			dto.Fail(c, err)
			return
		}
		if v := c.PostForm("ttl_seconds"); v != "" {
			secs, err := strconv.Atoi(v)
			if err != nil || secs < 0 {
				dto.BadRequest(c, "ttl_seconds must be a non-negative integer")
				return
			}
			ttl = time.Duration(secs) * time.Second
		}
	} else {
		var req dto.EphemeralUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
		filename, text, ttl = req.Filename, req.Text, time.Duration(req.TTLSeconds)*time.Second
	}

	doc, err := h.svc.UploadDocument(c.Request.Context(), filename, text, ttl)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToEphemeralDocumentResponse(doc))
}

// @Router /v1/ephemeral/{id} [get]
func (h *EphemeralHandler) Get(c *gin.Context) {
	doc, err := h.svc.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToEphemeralDocumentResponse(doc))
}

// Ask answers a question using only the uploaded document.
// @Router /v1/ephemeral/{id}/ask [post]
func (h *EphemeralHandler) Ask(c *gin.Context) {
	var req dto.EphemeralAskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	id := c.Param("id")
	answer, err := h.svc.AskDocument(c.Request.Context(), id, req.Question)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, &dto.EphemeralAskResponse{Response: answer.Response, DocumentID: id, Sources: answer.Sources})
}

// @Router /v1/ephemeral/{id} [delete]
func (h *EphemeralHandler) Delete(c *gin.Context) {
	removed, err := h.svc.DeleteDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	if !removed {
		dto.Fail(c, apperrors.ErrSessionNotFound)
		return
	}
	dto.NoContent(c)
}
