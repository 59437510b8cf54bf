// Package agent implements the Agent Runtime: a dispatcher over Chat, Plan,
// DBQuery, and RAG agent variants behind a single capability interface,
// fronted by a Routing agent that classifies a prompt and dispatches by tag.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/beaconrag/beacon/engine/domain"
)

// Tag names an Agent variant for dispatch purposes.
type Tag string

const (
	TagChat    Tag = "chat"
	TagPlan    Tag = "plan"
	TagDBQuery Tag = "dbquery"
	TagRAG     Tag = "rag"
)

// Output is the result of running an Agent.
type Output struct {
	Text   string
	PlanID string
}

// Agent is the capability interface every runtime variant implements.
type Agent interface {
	Run(ctx context.Context, input Input) (Output, error)
	Capabilities() []string
	Tools() []domain.Tool
}

// Input carries the request context passed to an Agent.
type Input struct {
	Prompt   string
	ChatID   string
	UserID   string
	EngineID string
	History  []HistoryEntry
}

// HistoryEntry is one role-labeled prior chat turn.
type HistoryEntry struct {
	Role string
	Text string
}

// Registry resolves a Tag to its Agent, the dispatch surface the Routing
// agent and the HTTP layer both use.
type Registry struct {
	agents map[Tag]Agent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[Tag]Agent)}
}

// Register binds an Agent to a Tag.
func (r *Registry) Register(tag Tag, a Agent) {
	r.agents[tag] = a
}

// For returns the Agent registered for tag, or domain.ErrNotFound.
func (r *Registry) For(tag Tag) (Agent, error) {
	a, ok := r.agents[tag]
	if !ok {
		return nil, domain.New(domain.CodeNotFound, "no agent registered for tag %q", tag)
	}
	return a, nil
}

// LogToolInvocation records a tool call as a single structured log line:
// step id, tool name, a digest of the canonical input, outcome, and
// duration, mirroring the teacher's structured-logging idiom.
func LogToolInvocation(log *slog.Logger, stepID, tool string, input any, outcome string, dur time.Duration) {
	if log == nil {
		log = slog.Default()
	}
	log.Info("agent: tool invocation",
		"step_id", stepID,
		"tool", tool,
		"input_digest", digest(input),
		"outcome", outcome,
		"duration_ms", dur.Milliseconds(),
	)
}

func digest(input any) string {
	data, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
