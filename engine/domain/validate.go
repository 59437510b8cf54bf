package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxPromptTokens is the approximate upper bound on a grounded prompt,
// measured in whitespace-delimited tokens.
const MaxPromptTokens = 8000

func requireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(field, value, ErrEmptyField)
	}
	return nil
}

// ValidateQueryEngine checks the fields required to create a QueryEngine.
func ValidateQueryEngine(e QueryEngine) error {
	if err := requireNonEmpty("name", e.Name); err != nil {
		return err
	}
	if err := requireNonEmpty("embedding_model", e.EmbeddingModel); err != nil {
		return err
	}
	if err := requireNonEmpty("source_url", e.SourceURL); err != nil {
		return err
	}
	switch e.VectorStore {
	case VectorStoreQdrant, VectorStorePgVector:
	default:
		return NewValidationError("vector_store", string(e.VectorStore), ErrEmptyField)
	}
	if e.DepthLimit < 0 {
		return NewValidationError("depth_limit", "", ErrEmptyField)
	}
	return nil
}

// ValidateSourceFile checks a SourceFile prior to staging.
func ValidateSourceFile(f SourceFile) error {
	if err := requireNonEmpty("query_engine_id", f.QueryEngineID); err != nil {
		return err
	}
	if err := requireNonEmpty("content_hash", f.ContentHash); err != nil {
		return err
	}
	if f.SourceURL == "" && f.ObjectStorePath == "" && f.StagingPath == "" {
		return NewValidationError("source_url", "", ErrEmptyField)
	}
	return nil
}

// ValidateChunk enforces the non-empty-after-trim invariant.
func ValidateChunk(c Chunk) error {
	if strings.TrimSpace(c.Text) == "" && c.ImageRef == "" {
		return NewValidationError("text", c.Text, ErrChunkEmpty)
	}
	if c.Ordinal < 0 {
		return NewValidationError("ordinal", "", ErrEmptyField)
	}
	if c.EndOffset < c.StartOffset {
		return NewValidationError("end_offset", "", ErrEmptyField)
	}
	return nil
}

// ValidateEmbedding checks that an Embedding's dimension matches the
// QueryEngine it belongs to.
func ValidateEmbedding(emb Embedding, engineDimension int) error {
	if len(emb.Values) == 0 {
		return NewValidationError("values", "", ErrEmptyField)
	}
	if engineDimension != 0 && len(emb.Values) != engineDimension {
		return NewValidationError("dimension", "", ErrDimensionMismatch)
	}
	return nil
}

// ValidatePrompt enforces the maximum grounded-prompt length, counted in
// whitespace-delimited tokens as an approximation of model tokenization.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return NewValidationError("prompt", "", ErrEmptyField)
	}
	if !utf8.ValidString(prompt) {
		return NewValidationError("prompt", "", ErrEmptyField)
	}
	if n := len(strings.Fields(prompt)); n > MaxPromptTokens {
		return NewValidationError("prompt", "", ErrPromptTooLong)
	}
	return nil
}

// ValidatePlanStep checks a single PlanStep's required fields.
func ValidatePlanStep(s PlanStep) error {
	if err := requireNonEmpty("description", s.Description); err != nil {
		return err
	}
	if err := requireNonEmpty("tool", s.Tool); err != nil {
		return err
	}
	return nil
}

// ValidateBuildRequest checks the fields required to enqueue a BuildJob.
func ValidateBuildRequest(r BuildRequest) error {
	if err := requireNonEmpty("engine_name", r.EngineName); err != nil {
		return err
	}
	if err := requireNonEmpty("source_url", r.SourceURL); err != nil {
		return err
	}
	if err := requireNonEmpty("embedding_model", r.EmbeddingModel); err != nil {
		return err
	}
	if r.Depth < 0 {
		return NewValidationError("depth", "", ErrEmptyField)
	}
	return nil
}
