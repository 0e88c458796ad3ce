package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormatting(t *testing.T) {
	err := Wrap(stderrors.New("timeout"), CodeVectorDBError, "vector store failure")
	assert.Equal(t, "[5003] vector store failure: timeout", err.Error())
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)

	assert.Equal(t, "[1004] resource not found", ErrNotFound.Error())
}

func TestSentinelsMatchByCode(t *testing.T) {
	err := fmt.Errorf("lookup: %w", ErrSessionExpired.WithDetail("id=abc"))
	assert.True(t, stderrors.Is(err, ErrSessionExpired))
	assert.False(t, stderrors.Is(err, ErrSessionNotFound))
	assert.Empty(t, ErrSessionExpired.Detail, "sentinel must not be mutated")
}

func TestIngestionFailureCarriesContext(t *testing.T) {
	inner := EmbeddingFailure("gemini", stderrors.New("503"))
	err := IngestionFailure("handbook.pdf", "hr", inner)

	assert.Contains(t, err.Detail, "source=handbook.pdf")
	assert.Contains(t, err.Detail, "category=hr")
	assert.True(t, IsCode(err, CodeIngestionFailed))
	assert.True(t, IsCode(err, CodeEmbeddingFailed))
	assert.False(t, IsCode(err, CodeVectorDBError))

	got := AsAppError(fmt.Errorf("outer: %w", err))
	require.NotNil(t, got)
	assert.Equal(t, CodeIngestionFailed, got.Code)
}

func TestAsAppErrorWrapsPlainErrors(t *testing.T) {
	got := AsAppError(stderrors.New("plain"))
	assert.Equal(t, CodeUnknown, got.Code)
	assert.False(t, IsAppError(stderrors.New("plain")))
}

func TestRedact(t *testing.T) {
	base := stderrors.New(`POST https://example.test/v1?key=sk-secret-123: 401`)
	err := Redact(base, "sk-secret-123", "")

	assert.NotContains(t, err.Error(), "sk-secret-123")
	assert.Contains(t, err.Error(), "key=***")
	assert.True(t, stderrors.Is(err, base))

	assert.Same(t, base, Redact(base, "not-present"))
	assert.Nil(t, Redact(nil, "x"))
}
