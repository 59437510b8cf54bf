package agent

import (
	"context"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/engine/llm"
)

// ChatAgent answers directly from the LLM using chat-history context, with
// no retrieval step.
type ChatAgent struct {
	chat  llm.ChatClient
	model string
}

// NewChatAgent creates a ChatAgent.
func NewChatAgent(chat llm.ChatClient, model string) *ChatAgent {
	return &ChatAgent{chat: chat, model: model}
}

// Run sends input.Prompt plus input.History straight to the LLM.
func (a *ChatAgent) Run(ctx context.Context, input Input) (Output, error) {
	messages := make([]llm.Message, 0, len(input.History)+1)
	for _, h := range input.History {
		messages = append(messages, llm.Message{Role: h.Role, Content: h.Text})
	}
	messages = append(messages, llm.Message{Role: "user", Content: input.Prompt})

	text, err := a.chat.Complete(ctx, a.model, messages)
	if err != nil {
		return Output{}, domain.Wrap(domain.CodeLLMUnavailable, err, "chat agent completion")
	}
	return Output{Text: text}, nil
}

// Capabilities reports the ChatAgent's declared capability tags.
func (a *ChatAgent) Capabilities() []string { return []string{"chat"} }

// Tools returns no tools; the ChatAgent never invokes one.
func (a *ChatAgent) Tools() []domain.Tool { return nil }
