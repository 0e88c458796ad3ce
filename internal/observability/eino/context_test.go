package eino

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowProviderContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", WorkflowFromContext(ctx))
	assert.Equal(t, "unknown", ProviderFromContext(ctx))

	ctx = WithWorkflowProvider(ctx, " kb_chat ", "gemini")
	assert.Equal(t, "kb_chat", WorkflowFromContext(ctx))
	assert.Equal(t, "gemini", ProviderFromContext(ctx))

	ctx = WithWorkflowProvider(ctx, "", "")
	assert.Equal(t, "kb_chat", WorkflowFromContext(ctx))
}

func TestElapsedSecondsWithoutStart(t *testing.T) {
	assert.Zero(t, elapsedSeconds(context.Background()))
}

func TestInitIsIdempotent(t *testing.T) {
	assert.NotNil(t, Handler())
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}
