package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kb-rag-api/internal/application/retrieval"
	"kb-rag-api/internal/domain/repository"
	"kb-rag-api/internal/infrastructure/messaging"
	"kb-rag-api/internal/interfaces/http/dto"
	"kb-rag-api/pkg/logger"
)

// DocumentHandler manages the indexed knowledge base.
type DocumentHandler struct {
	indexer      Indexer
	publisher    JobPublisher
	catalog      repository.DocumentRepository
	maxFileBytes int64
}

// NewDocumentHandler takes optional publisher and catalog; the routes that need them answer 503 when nil.
func NewDocumentHandler(indexer Indexer, publisher JobPublisher, catalog repository.DocumentRepository, maxFileBytes int64) *DocumentHandler {
	return &DocumentHandler{
		indexer:      indexer,
		publisher:    publisher,
		catalog:      catalog,
		maxFileBytes: maxFileBytes,
	}
}

// Ingest indexes one document, sent as JSON text or as a multipart "file".
// @Router /v1/documents [post]
func (h *DocumentHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestRequest
	if isMultipart(c) {
		fh, err := c.FormFile("file")
		if err != nil {
			dto.BadRequest(c, "file is required")
			return
		}
		filename, text, err := readUpload(fh, h.maxFileBytes)
		if err != nil {
			dto.Fail(c, err)
			return
		}
		req = dto.IngestRequest{Text: text, Source: filename, Category: c.PostForm("category")}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	res, err := h.indexer.Ingest(ctx, req.Text, req.Source, req.Category)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, &dto.IngestResponse{
		Status:        "success",
		Message:       "Document '" + res.Source + "' processed successfully",
		Source:        res.Source,
		ChunksCreated: res.ChunksCreated,
		Category:      res.Category,
	})
}

// IngestBatch indexes several documents. One failure never stops the others.
// @Router /v1/documents/batch [post]
func (h *DocumentHandler) IngestBatch(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		reqs    []retrieval.IngestRequest
		results []*dto.BatchItem
	)
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil || len(form.File["files"]) == 0 {
			dto.BadRequest(c, "files are required")
			return
		}
		category := c.PostForm("category")
		for _, fh := range form.File["files"] {
			filename, text, err := readUpload(fh, h.maxFileBytes)
			if err != nil {
				results = append(results, &dto.BatchItem{Filename: filename, Status: "error", Error: err.Error()})
				continue
			}
			reqs = append(reqs, retrieval.IngestRequest{Text: text, Source: filename, Category: category})
		}
	} else {
		var body dto.BatchIngestRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
		for _, d := range body.Documents {
			reqs = append(reqs, retrieval.IngestRequest{Text: d.Text, Source: d.Source, Category: d.Category})
		}
	}

	for _, out := range h.indexer.IngestBatch(ctx, reqs) {
		item := &dto.BatchItem{Filename: out.Source, Status: "success"}
		if out.Err != nil {
			item.Status, item.Error = "error", out.Err.Error()
		} else {
			item.ChunksCreated = out.Result.ChunksCreated
		}
		results = append(results, item)
	}
	dto.Success(c, &dto.BatchIngestResponse{Status: "completed", Results: results})
}

// IngestAsync queues a document for the ingest worker.
// @Router /v1/documents/async [post]
func (h *DocumentHandler) IngestAsync(c *gin.Context) {
	if h.publisher == nil {
		dto.ServiceUnavailable(c, "async ingestion is not configured")
		return
	}
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	job := &messaging.IngestJob{
		JobID:    uuid.NewString(),
		Source:   req.Source,
		Category: req.Category,
		Text:     req.Text,
	}
	streamID, err := h.publisher.PublishIngestJob(ctx, job, c.GetString("request_id"))
	if err != nil {
		logger.Error(ctx, "failed to queue ingest job", err, "source", req.Source)
		dto.ServiceUnavailable(c, "failed to queue ingest job")
		return
	}
	dto.Accepted(c, &dto.AsyncIngestResponse{JobID: job.JobID, StreamID: streamID})
}

// List groups indexed chunks by document.
// @Router /v1/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.indexer.ListDocuments(c.Request.Context())
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, &dto.DocumentListResponse{Documents: docs})
}

// Catalog pages through the ingestion catalog.
// @Router /v1/documents/catalog [get]
func (h *DocumentHandler) Catalog(c *gin.Context) {
	if h.catalog == nil {
		dto.ServiceUnavailable(c, "document catalog is not configured")
		return
	}
	page := dto.BindPage(c)
	p := repository.NewPagination(page.Page, page.PageSize)

	result, err := h.catalog.List(c.Request.Context(), p)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list catalog", err)
		dto.Fail(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.ToCatalogEntries(result.Items), dto.NewPageMeta(p.Page, p.PageSize, int(result.Total)))
}

// Delete removes one document; ?category= narrows it to one category.
// @Router /v1/documents/{source} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.indexer.DeleteDocument(c.Request.Context(), c.Param("source"), c.Query("category")); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.NoContent(c)
}

// DeleteCategory removes every document in a category.
// @Router /v1/categories/{category} [delete]
func (h *DocumentHandler) DeleteCategory(c *gin.Context) {
	if err := h.indexer.DeleteCategory(c.Request.Context(), c.Param("category")); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.NoContent(c)
}

// Clear empties the knowledge base.
// @Router /v1/documents [delete]
func (h *DocumentHandler) Clear(c *gin.Context) {
	if err := h.indexer.Clear(c.Request.Context()); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.NoContent(c)
}

// Stats reports collection size and backend health. Backend errors are part of the body.
// @Router /v1/stats [get]
func (h *DocumentHandler) Stats(c *gin.Context) {
	dto.Success(c, h.indexer.Stats(c.Request.Context()))
}
