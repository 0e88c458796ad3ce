// Package errors defines the application error type and error codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode identifies an error class across process and API boundaries.
type ErrorCode string

const (
	// general (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// resources (3xxx)
	CodeDocumentNotFound ErrorCode = "3001"
	CodeFileNotFound     ErrorCode = "3004"
	CodeSessionNotFound  ErrorCode = "3005"
	CodeSessionExpired   ErrorCode = "3006"
	CodeFileTooLarge     ErrorCode = "3007"

	// pipeline (4xxx)
	CodeRetrievalFailed   ErrorCode = "4003"
	CodeMemoryWriteFailed ErrorCode = "4004"
	CodeLLMCallFailed     ErrorCode = "4005"
	CodeEmbeddingFailed   ErrorCode = "4006"
	CodeIngestionFailed   ErrorCode = "4007"
	CodeExtractionFailed  ErrorCode = "4008"

	// external services (5xxx)
	CodeDatabaseError    ErrorCode = "5001"
	CodeCacheError       ErrorCode = "5002"
	CodeVectorDBError    ErrorCode = "5003"
	CodeQueueError       ErrorCode = "5004"
	CodeLLMProviderError ErrorCode = "5005"
)

// AppError is the error type surfaced to API callers.
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError with the same code, so sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy with Detail set; the receiver is left untouched.
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError returns a copy wrapping err.
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeExtractionFailed:
		return http.StatusBadRequest
	case CodeNotFound, CodeDocumentNotFound, CodeFileNotFound, CodeSessionNotFound:
		return http.StatusNotFound
	case CodeSessionExpired:
		return http.StatusGone
	case CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeConflict:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeEmbeddingFailed, CodeLLMCallFailed, CodeLLMProviderError, CodeVectorDBError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels. Compare with errors.Is; derive instances with WithDetail/WithError.
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrSessionNotFound = New(CodeSessionNotFound, "document session not found")
	ErrSessionExpired  = New(CodeSessionExpired, "document session expired")
	ErrFileTooLarge    = New(CodeFileTooLarge, "file too large")

	ErrRetrievalFailed  = New(CodeRetrievalFailed, "retrieval failed")
	ErrLLMCallFailed    = New(CodeLLMCallFailed, "LLM call failed")
	ErrEmbeddingFailed  = New(CodeEmbeddingFailed, "embedding failed")
	ErrIngestionFailed  = New(CodeIngestionFailed, "ingestion failed")
	ErrExtractionFailed = New(CodeExtractionFailed, "text extraction failed")
	ErrVectorStore      = New(CodeVectorDBError, "vector store failure")
)

// EmbeddingFailure wraps err with the identity of the provider that produced it.
func EmbeddingFailure(provider string, err error) *AppError {
	return Wrap(err, CodeEmbeddingFailed, "embedding failed").WithDetail("provider=" + provider)
}

// VectorStoreFailure wraps a backend error with the operation that failed.
func VectorStoreFailure(op string, err error) *AppError {
	return Wrap(err, CodeVectorDBError, "vector store failure").WithDetail("op=" + op)
}

// IngestionFailure wraps err with the document identity.
func IngestionFailure(source, category string, err error) *AppError {
	return Wrap(err, CodeIngestionFailed, "ingestion failed").
		WithDetail(fmt.Sprintf("source=%s category=%s", source, category))
}

// ExtractionFailure reports unsupported or unreadable input.
func ExtractionFailure(filename string, err error) *AppError {
	return Wrap(err, CodeExtractionFailed, "text extraction failed").WithDetail("file=" + filename)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError returns the first AppError in err's chain, or wraps err as CodeUnknown.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// IsCode reports whether any AppError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// RedactSecrets replaces every non-empty secret in msg with "***".
func RedactSecrets(msg string, secrets ...string) string {
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			msg = strings.ReplaceAll(msg, s, "***")
		}
	}
	return msg
}

// redactedError keeps the chain for errors.Is while scrubbing the text.
type redactedError struct {
	msg string
	err error
}

func (r *redactedError) Error() string { return r.msg }
func (r *redactedError) Unwrap() error { return r.err }

// Redact returns err with secrets scrubbed from its message. nil stays nil.
func Redact(err error, secrets ...string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	clean := RedactSecrets(msg, secrets...)
	if clean == msg {
		return err
	}
	return &redactedError{msg: clean, err: err}
}
