package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/engine/llm"
)

const planSystemPrompt = `You are a planning assistant. Break the user's request into a short, ` +
	`numbered sequence of concrete actions. Respond with one action per line in the ` +
	`form "tool: action", using only the declared tools when possible.`

// PlanAgent produces a numbered Plan of "Use [tool] to [action]" steps and
// persists it via SavePlan.
type PlanAgent struct {
	chat     llm.ChatClient
	model    string
	tools    []domain.Tool
	savePlan func(ctx context.Context, p domain.Plan) error
}

// NewPlanAgent creates a PlanAgent declaring the given tools as known.
func NewPlanAgent(chat llm.ChatClient, model string, tools []domain.Tool, savePlan func(ctx context.Context, p domain.Plan) error) *PlanAgent {
	return &PlanAgent{chat: chat, model: model, tools: tools, savePlan: savePlan}
}

// Run asks the LLM to decompose input.Prompt into steps, builds and persists
// a Plan, and returns its formatted text alongside the Plan id.
func (a *PlanAgent) Run(ctx context.Context, input Input) (Output, error) {
	messages := []llm.Message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: input.Prompt},
	}
	raw, err := a.chat.Complete(ctx, a.model, messages)
	if err != nil {
		return Output{}, domain.Wrap(domain.CodeLLMUnavailable, err, "plan decomposition")
	}

	steps := parsePlanLines(raw)
	declared := declaredToolSet(a.tools)

	plan := domain.Plan{
		ID:        uuid.NewString(),
		ChatID:    input.ChatID,
		Prompt:    input.Prompt,
		Steps:     steps,
		CreatedAt: time.Now(),
	}
	for _, step := range steps {
		if err := domain.ValidatePlanStep(step); err != nil {
			return Output{}, err
		}
	}

	if a.savePlan != nil {
		if err := a.savePlan(ctx, plan); err != nil {
			return Output{}, domain.Wrap(domain.CodeInternal, err, "saving plan")
		}
	}

	return Output{Text: FormatPlan(plan, declared), PlanID: plan.ID}, nil
}

// Capabilities reports the PlanAgent's declared capability tags.
func (a *PlanAgent) Capabilities() []string { return []string{"plan"} }

// Tools returns the tools declared to this PlanAgent.
func (a *PlanAgent) Tools() []domain.Tool { return a.tools }

func parsePlanLines(raw string) []domain.PlanStep {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	steps := make([]domain.PlanStep, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tool, action := splitToolAction(line)
		if tool == "" {
			tool = "assistant"
		}
		steps = append(steps, domain.PlanStep{Tool: tool, Description: action, Status: domain.StepPending})
	}
	return steps
}

func splitToolAction(line string) (tool, action string) {
	line = strings.TrimLeft(line, "0123456789.) -")
	if idx := strings.Index(line, ":"); idx >= 0 {
		return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:])
	}
	return "", line
}

func declaredToolSet(tools []domain.Tool) map[string]bool {
	set := make(map[string]bool, len(tools))
	for _, t := range tools {
		set[t.Name] = true
	}
	return set
}

// FormatPlan renders plan as a numbered list of "Use [tool] to [action]"
// lines, prefixing any tool missing from declared with "*".
func FormatPlan(plan domain.Plan, declared map[string]bool) string {
	var b strings.Builder
	for i, step := range plan.Steps {
		tool := step.Tool
		if !declared[tool] {
			tool = "*" + tool
		}
		fmt.Fprintf(&b, "%d. Use [%s] to [%s]\n", i+1, tool, step.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
