// Package llm provides a pluggable chat-completion client used by the query
// executor and the agent runtime to turn grounded prompts into model
// responses.
package llm

import "context"

// Message is one turn in a chat completion request.
type Message struct {
	Role    string // system | user | assistant
	Content string
}

// ChatClient completes a chat conversation against a language model.
type ChatClient interface {
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}
