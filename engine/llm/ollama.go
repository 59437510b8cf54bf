package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// OllamaChatClient implements ChatClient against Ollama's /api/chat
// endpoint, following the same request/response shape as the embedding
// client's /api/embeddings calls.
type OllamaChatClient struct {
	baseURL string
	client  *http.Client
}

// NewOllamaChatClient creates an OllamaChatClient.
func NewOllamaChatClient(baseURL string) *OllamaChatClient {
	return &OllamaChatClient{baseURL: baseURL, client: &http.Client{}}
}

var _ ChatClient = (*OllamaChatClient)(nil)

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatReq struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResp struct {
	Message ollamaChatMessage `json:"message"`
}

// Complete implements ChatClient.
func (c *OllamaChatClient) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	req := ollamaChatReq{Model: model, Stream: false}
	for _, m := range messages {
		req.Messages = append(req.Messages, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama chat: status %d", resp.StatusCode)
	}

	var result ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ollama chat decode: %w", err)
	}
	return result.Message.Content, nil
}
