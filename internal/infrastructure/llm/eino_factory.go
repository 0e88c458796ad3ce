package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"kb-rag-api/internal/config"
	apperrors "kb-rag-api/pkg/errors"
)

// EinoFactory lazily builds one chat model per configured provider.
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

func NewEinoFactory(cfg *config.LLMConfig) *EinoFactory {
	return &EinoFactory{
		config: cfg,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get returns the named provider's model; an empty name selects the default provider.
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	name = f.Resolve(name)

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       providerCfg.Model,
		MaxTokens:   ptrInt(providerCfg.MaxTokens),
		Temperature: ptrFloat32(float32(providerCfg.Temperature)),
		Timeout:     providerCfg.Timeout,
	})
	if err != nil {
		return nil, apperrors.Redact(fmt.Errorf("create chat model for %s: %w", name, err), providerCfg.APIKey)
	}

	f.models[name] = chatModel
	return chatModel, nil
}

// Resolve maps an empty name to the default provider.
func (f *EinoFactory) Resolve(name string) string {
	if name == "" {
		return f.config.DefaultProvider
	}
	return name
}

// Secret returns the API key configured for a provider, for error redaction.
func (f *EinoFactory) Secret(name string) string {
	return f.config.Providers[f.Resolve(name)].APIKey
}

// Providers lists the configured provider names.
func (f *EinoFactory) Providers() []string {
	names := make([]string, 0, len(f.config.Providers))
	for n := range f.config.Providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func ptrInt(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func ptrFloat32(f float32) *float32 {
	return &f
}
