package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	einoobs "kb-rag-api/internal/observability/eino"
	apperrors "kb-rag-api/pkg/errors"
)

// ChatModelFactory is what the completer needs from EinoFactory.
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
	Resolve(name string) string
	Secret(name string) string
}

// Completer sends a single prompt to a chat model and returns the reply text.
// Every call is independent; no history is kept here.
type Completer struct {
	factory  ChatModelFactory
	provider string
	workflow string
}

func NewCompleter(factory ChatModelFactory, provider, workflow string) *Completer {
	if workflow == "" {
		workflow = "kb_chat"
	}
	return &Completer{factory: factory, provider: provider, workflow: workflow}
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	provider := c.factory.Resolve(c.provider)
	secret := c.factory.Secret(c.provider)

	chatModel, err := c.factory.Get(ctx, provider)
	if err != nil {
		return "", apperrors.ErrLLMCallFailed.WithError(apperrors.Redact(err, secret))
	}

	ctx = einoobs.WithWorkflowProvider(ctx, c.workflow, provider)
	// direct calls outside a compose graph only reach the global handlers once the run info is set
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      c.workflow,
		Type:      provider,
		Component: components.ComponentOfChatModel,
	})

	out, err := chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", apperrors.ErrLLMCallFailed.WithError(apperrors.Redact(err, secret))
	}
	if out == nil {
		return "", apperrors.ErrLLMCallFailed.WithError(fmt.Errorf("empty llm response"))
	}
	return strings.TrimSpace(out.Content), nil
}
