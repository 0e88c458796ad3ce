// Package chat answers questions against the knowledge base or a single uploaded document.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kb-rag-api/internal/application/conversation"
	"kb-rag-api/internal/application/ephemeral"
	"kb-rag-api/internal/application/retrieval"
	"kb-rag-api/internal/domain/entity"
	apperrors "kb-rag-api/pkg/errors"
	"kb-rag-api/pkg/logger"
	"kb-rag-api/pkg/tracer"
)

// Completer is an opaque text-in/text-out language model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retriever finds passages for a query. It reports failures in the result, never as an error.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) retrieval.Result
}

type Config struct {
	SystemPrompt string
	TopK         int
	HistoryTurns int
	EphemeralTTL time.Duration
	MaxFileBytes int64
}

type Answer struct {
	Response       string   `json:"response"`
	Sources        []string `json:"sources"`
	ConversationID string   `json:"conversation_id"`
	// RetrievalStatus is "ok", "empty" or "failed"; empty for document answers.
	RetrievalStatus retrieval.Status `json:"retrieval_status,omitempty"`
}

type Service struct {
	retriever Retriever
	completer Completer
	sessions  *conversation.Manager
	documents ephemeral.Store
	cfg       Config
	now       func() time.Time
}

func NewService(retriever Retriever, completer Completer, sessions *conversation.Manager, documents ephemeral.Store, cfg Config) *Service {
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = conversation.DefaultHistoryTurns
	}
	if cfg.EphemeralTTL <= 0 {
		cfg.EphemeralTTL = ephemeral.DefaultTTL
	}
	return &Service{
		retriever: retriever,
		completer: completer,
		sessions:  sessions,
		documents: documents,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Ask answers query from the knowledge base within a conversation.
// The exchange is remembered only when the model call succeeds.
func (s *Service) Ask(ctx context.Context, query, conversationID string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("message is required")
	}
	conversationID = conversation.NormalizeID(conversationID)
	ctx = logger.WithContext(ctx, logger.ConversationIDKey, conversationID)
	ctx, span := tracer.Start(ctx, "chat.Service.Ask",
		trace.WithAttributes(attribute.String("conversation_id", conversationID)))
	defer span.End()

	res := s.retriever.Retrieve(ctx, query, s.cfg.TopK)
	if res.Empty() {
		if res.Status == retrieval.StatusFailed {
			logger.Warn(ctx, "answering without context: retrieval failed", "reason", res.Reason)
		}
		return &Answer{
			Response:        NotFoundAnswer,
			Sources:         []string{},
			ConversationID:  conversationID,
			RetrievalStatus: res.Status,
		}, nil
	}

	kbContext, sources := retrieval.BuildContext(res.Passages)

	session, err := s.sessions.GetOrCreate(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := s.sessions.RenderHistory(session, s.cfg.HistoryTurns)

	answer, err := s.completer.Complete(ctx, buildPrompt(s.cfg.SystemPrompt, kbContext, history, query))
	if err != nil {
		span.RecordError(err)
		logger.Error(ctx, "completion failed", err)
		return nil, err
	}

	if err := s.sessions.AppendExchange(ctx, session, query, answer); err != nil {
		// the answer is still valid; only the memory write was lost
		logger.Warn(ctx, "conversation history not saved", "error", err.Error())
	}

	return &Answer{
		Response:        answer,
		Sources:         sources.List(),
		ConversationID:  conversationID,
		RetrievalStatus: res.Status,
	}, nil
}

// History returns the stored turns of a conversation.
func (s *Service) History(ctx context.Context, conversationID string) ([]entity.Turn, error) {
	session, err := s.sessions.GetOrCreate(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.sessions.Turns(session), nil
}

// ResetConversation forgets a conversation.
func (s *Service) ResetConversation(ctx context.Context, conversationID string) error {
	return s.sessions.Delete(ctx, conversationID)
}

// UploadDocument stores text for direct questioning under a new id.
// A ttl of zero or less uses the configured default.
func (s *Service) UploadDocument(ctx context.Context, filename, text string, ttl time.Duration) (*entity.EphemeralDocument, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("filename is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ExtractionFailure(filename, retrieval.ErrEmptyDocument)
	}
	if s.cfg.MaxFileBytes > 0 && int64(len(text)) > s.cfg.MaxFileBytes {
		return nil, apperrors.ErrFileTooLarge.WithDetail(filename)
	}
	if ttl <= 0 {
		ttl = s.cfg.EphemeralTTL
	}

	doc := ephemeral.NewDocument(uuid.NewString(), filename, text, ttl, s.now())
	if err := s.documents.Put(ctx, doc); err != nil {
		return nil, err
	}
	logger.Info(ctx, "ephemeral document stored",
		"document_id", doc.ID,
		"filename", filename,
		"expires_at", doc.ExpiresAt,
	)
	return doc, nil
}

// AskDocument answers query using only the stored document as context.
func (s *Service) AskDocument(ctx context.Context, documentID, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("question is required")
	}
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	answer, err := s.completer.Complete(ctx, buildDocumentPrompt(s.cfg.SystemPrompt, doc.Filename, doc.FullText, query))
	if err != nil {
		logger.Error(ctx, "document completion failed", err, "document_id", documentID)
		return nil, err
	}
	return &Answer{Response: answer, Sources: []string{doc.Filename}}, nil
}

// GetDocument returns a stored document's metadata and text.
func (s *Service) GetDocument(ctx context.Context, documentID string) (*entity.EphemeralDocument, error) {
	return s.documents.Get(ctx, documentID)
}

// DeleteDocument reports whether the document existed.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	return s.documents.Delete(ctx, documentID)
}
