package agent

import (
	"context"
	"strings"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/engine/llm"
)

const classifySystemPrompt = `Classify the user's request into exactly one of: chat, plan, dbquery, rag. ` +
	`Respond with only that single word.`

var keywordTags = map[string]Tag{
	"plan":     TagPlan,
	"steps":    TagPlan,
	"schedule": TagPlan,
	"select":   TagDBQuery,
	"query":    TagDBQuery,
	"database": TagDBQuery,
	"table":    TagDBQuery,
	"sql":      TagDBQuery,
	"document": TagRAG,
	"source":   TagRAG,
	"manual":   TagRAG,
	"search":   TagRAG,
}

// RoutingAgent classifies a prompt into one of {chat, plan, dbquery, rag} and
// dispatches to the matching Agent by tag, never by a runtime type switch.
type RoutingAgent struct {
	registry *Registry
	chat     llm.ChatClient
	model    string
}

// NewRoutingAgent creates a RoutingAgent over registry. chat is optional: if
// nil, classification falls back to the keyword heuristic alone.
func NewRoutingAgent(registry *Registry, chat llm.ChatClient, model string) *RoutingAgent {
	return &RoutingAgent{registry: registry, chat: chat, model: model}
}

// Run classifies input.Prompt and delegates to the resolved Agent.
func (a *RoutingAgent) Run(ctx context.Context, input Input) (Output, error) {
	tag := a.classify(ctx, input.Prompt)
	target, err := a.registry.For(tag)
	if err != nil {
		return Output{}, err
	}
	return target.Run(ctx, input)
}

// Capabilities reports the RoutingAgent's declared capability tags.
func (a *RoutingAgent) Capabilities() []string { return []string{"routing"} }

// Tools returns no declared tools; routing itself invokes no tool.
func (a *RoutingAgent) Tools() []domain.Tool { return nil }

func (a *RoutingAgent) classify(ctx context.Context, prompt string) Tag {
	if tag, ok := classifyByKeyword(prompt); ok {
		return tag
	}
	if a.chat != nil {
		if tag, ok := a.classifyByLLM(ctx, prompt); ok {
			return tag
		}
	}
	return TagChat
}

func classifyByKeyword(prompt string) (Tag, bool) {
	lower := strings.ToLower(prompt)
	for word, tag := range keywordTags {
		if strings.Contains(lower, word) {
			return tag, true
		}
	}
	return "", false
}

func (a *RoutingAgent) classifyByLLM(ctx context.Context, prompt string) (Tag, bool) {
	reply, err := a.chat.Complete(ctx, a.model, []llm.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case string(TagChat):
		return TagChat, true
	case string(TagPlan):
		return TagPlan, true
	case string(TagDBQuery):
		return TagDBQuery, true
	case string(TagRAG):
		return TagRAG, true
	default:
		return "", false
	}
}
