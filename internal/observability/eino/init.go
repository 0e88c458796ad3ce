package eino

import (
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
)

var registerOnce sync.Once

// Handler returns the callback handler that turns chat model calls into metrics and spans.
func Handler() einocallbacks.Handler {
	return cbtemplate.NewHandlerHelper().
		ChatModel(newChatModelCallbackHandler()).
		Handler()
}

// Init appends Handler to eino's global handlers the first time it is called.
func Init() {
	registerOnce.Do(func() {
		einocallbacks.AppendGlobalHandlers(Handler())
	})
}
