package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// OllamaClient implements Client against an Ollama server's /api/embeddings
// endpoint, grounded on the teacher's HTTP-calling convention but returning
// plain []float32 rather than a generated proto type pulled from a submodule
// this repository doesn't have.
type OllamaClient struct {
	baseURL    string
	client     *http.Client
	dimensions map[string]int
}

// NewOllamaClient creates an OllamaClient. dimensions maps model name to its
// output vector width, since Ollama's API does not report it.
func NewOllamaClient(baseURL string, dimensions map[string]int) *OllamaClient {
	return &OllamaClient{baseURL: baseURL, client: &http.Client{}, dimensions: dimensions}
}

var _ Client = (*OllamaClient)(nil)

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Images []string `json:"images,omitempty"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (c *OllamaClient) embed(ctx context.Context, req ollamaEmbedReq) ([]float32, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var result ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Embed implements Client.
func (c *OllamaClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	return c.embed(ctx, ollamaEmbedReq{Model: model, Prompt: text})
}

// EmbedImage implements Client for multimodal models by base64-encoding the
// image payload into the prompt's images field.
func (c *OllamaClient) EmbedImage(ctx context.Context, model string, image []byte) ([]float32, error) {
	return c.embed(ctx, ollamaEmbedReq{Model: model, Images: []string{base64.StdEncoding.EncodeToString(image)}})
}

// Dimension returns the configured vector width for model, or 0 if unknown.
func (c *OllamaClient) Dimension(model string) int {
	return c.dimensions[model]
}
