package cache

import "context"

// VerifiedIdentity is the identity shape returned by the token verifier and
// cached under Tokens.
type VerifiedIdentity struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Status        string `json:"status"`
	UserType      string `json:"user_type"`
	AccessAPIDocs bool   `json:"access_api_docs"`
}

// Tokens caches verified bearer tokens.
type Tokens struct{ c *Cache }

// NewTokens wraps c as a Tokens cache.
func NewTokens(c *Cache) Tokens { return Tokens{c: c} }

// Get returns the cached identity for rawToken, if present.
func (t Tokens) Get(ctx context.Context, rawToken string) (VerifiedIdentity, bool) {
	var v VerifiedIdentity
	ok := t.c.Get(ctx, TokenKey(rawToken), &v)
	return v, ok
}

// Set caches identity for rawToken.
func (t Tokens) Set(ctx context.Context, rawToken string, identity VerifiedIdentity) {
	t.c.Set(ctx, TokenKey(rawToken), identity)
}

// Invalidate removes rawToken from the cache, used on explicit sign-out.
func (t Tokens) Invalidate(ctx context.Context, rawToken string) {
	t.c.Delete(ctx, TokenKey(rawToken))
}

// Embeddings caches embeddings of prompt text, keyed by model and prompt hash.
type Embeddings struct{ c *Cache }

// NewEmbeddings wraps c as an Embeddings cache.
func NewEmbeddings(c *Cache) Embeddings { return Embeddings{c: c} }

// Get returns the cached embedding for (model, prompt), if present.
func (e Embeddings) Get(ctx context.Context, model, prompt string) ([]float32, bool) {
	var v []float32
	ok := e.c.Get(ctx, EmbeddingKey(model, prompt), &v)
	return v, ok
}

// Set caches the embedding for (model, prompt).
func (e Embeddings) Set(ctx context.Context, model, prompt string, embedding []float32) {
	e.c.Set(ctx, EmbeddingKey(model, prompt), embedding)
}
