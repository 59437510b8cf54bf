package agent

import (
	"context"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/engine/query"
)

// EngineLookup resolves a QueryEngine id to its current record.
type EngineLookup func(ctx context.Context, id string) (domain.QueryEngine, error)

// RAGAgent delegates to the Query Executor for a QueryEngine resolved per
// request, falling back to defaultEngineID when the caller names none.
type RAGAgent struct {
	executor        *query.Executor
	lookup          EngineLookup
	defaultEngineID string
	topK            int
}

// NewRAGAgent creates a RAGAgent that resolves QueryEngines via lookup,
// defaulting to defaultEngineID when Input.EngineID is empty.
func NewRAGAgent(executor *query.Executor, lookup EngineLookup, defaultEngineID string, topK int) *RAGAgent {
	return &RAGAgent{executor: executor, lookup: lookup, defaultEngineID: defaultEngineID, topK: topK}
}

// Run embeds, retrieves, and answers input.Prompt against the resolved engine.
func (a *RAGAgent) Run(ctx context.Context, input Input) (Output, error) {
	engineID := input.EngineID
	if engineID == "" {
		engineID = a.defaultEngineID
	}
	engine, err := a.lookup(ctx, engineID)
	if err != nil {
		return Output{}, err
	}

	history := make([]query.HistoryEntry, 0, len(input.History))
	for _, h := range input.History {
		history = append(history, query.HistoryEntry{Role: h.Role, Text: h.Text})
	}

	topK := a.topK
	answer, err := a.executor.Query(ctx, engine, input.Prompt, &topK, history, "")
	if err != nil {
		return Output{}, err
	}
	return Output{Text: answer.Text}, nil
}

// Capabilities reports the RAGAgent's declared capability tags.
func (a *RAGAgent) Capabilities() []string { return []string{"rag", "query"} }

// Tools returns no tools; retrieval is not exposed as a callable tool.
func (a *RAGAgent) Tools() []domain.Tool { return nil }
