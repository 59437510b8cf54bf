// Package query implements the Query Executor: embed prompt, search the
// vector store, hydrate references, assemble the grounded prompt, and call
// the LLM for a final answer.
package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/engine/embedding"
	"github.com/beaconrag/beacon/engine/llm"
	"github.com/beaconrag/beacon/engine/vectorstore"
	"github.com/beaconrag/beacon/pkg/cache"
)

// groundedPromptTemplate is the bit-exact template the final LLM call is
// composed from.
const groundedPromptTemplate = `You are a helpful and truthful AI Assistant.
Use the following pieces of context and the chat history
to answer the question at the end. If you don't know the
answer, just say that you don't know.

Context:
%s

Chat History:
%s

Question: %s
Helpful Answer:`

// Options configures the Query Executor.
type Options struct {
	TopK          int
	Model         string
	SearchTimeout time.Duration
	EmbedTimeout  time.Duration
	LLMTimeout    time.Duration
	// StoreFor, if set, picks the vector store for the engine being queried
	// instead of the Store the Executor was constructed with, letting one
	// Executor serve engines bound to different VectorStoreKinds.
	StoreFor func(domain.QueryEngine) vectorstore.Store
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          5,
		SearchTimeout: 30 * time.Second,
		EmbedTimeout:  30 * time.Second,
		LLMTimeout:    60 * time.Second,
	}
}

// Executor runs grounded queries against a QueryEngine.
type Executor struct {
	embedder   *embedding.Batcher
	store      vectorstore.Store
	chat       llm.ChatClient
	embedCache cache.Embeddings
	opts       Options
}

// New creates an Executor.
func New(embedder *embedding.Batcher, store vectorstore.Store, chat llm.ChatClient, embedCache cache.Embeddings, opts Options) *Executor {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	return &Executor{embedder: embedder, store: store, chat: chat, embedCache: embedCache, opts: opts}
}

// HistoryEntry is one role-labeled prior turn folded into the chat-history
// field of the grounded prompt.
type HistoryEntry struct {
	Role string
	Text string
}

// Answer is the result of a Query call.
type Answer struct {
	Text       string
	References []domain.QueryReference
}

// Query runs the full pipeline for one prompt against engine, which must be
// READY. k is the caller's requested reference count: nil means "caller did
// not specify one, use the executor's default TopK"; a non-nil zero means an
// explicit k=0 request, which per spec.md §8 returns no references at all
// and skips the vector-store search.
func (e *Executor) Query(ctx context.Context, engine domain.QueryEngine, prompt string, k *int, history []HistoryEntry, model string) (Answer, error) {
	if err := domain.RequireReady(engine); err != nil {
		return Answer{}, err
	}
	topK := e.opts.TopK
	if k != nil {
		topK = *k
	}
	if model == "" {
		model = engine.EmbeddingModel
	}

	var refs []domain.QueryReference
	if topK != 0 {
		vec, err := e.embedPrompt(ctx, engine, prompt)
		if err != nil {
			return Answer{}, err
		}

		searchCtx, cancel := context.WithTimeout(ctx, e.opts.SearchTimeout)
		defer cancel()

		store := e.store
		if e.opts.StoreFor != nil {
			store = e.opts.StoreFor(engine)
		}
		results, err := store.Search(searchCtx, engine.ID, vec, topK, nil)
		if err != nil {
			return Answer{}, domain.Wrap(domain.CodeVectorStoreUnavailable, err, "searching engine %s", engine.ID)
		}

		refs = hydrateReferences(results, topK)
	}

	contextText := composeContext(refs)
	historyText := composeHistory(history)
	groundedPrompt := fmt.Sprintf(groundedPromptTemplate, contextText, historyText, prompt)

	llmCtx, llmCancel := context.WithTimeout(ctx, e.opts.LLMTimeout)
	defer llmCancel()

	llmModel := e.opts.Model
	if llmModel == "" {
		llmModel = model
	}
	response, err := e.chat.Complete(llmCtx, llmModel, []llm.Message{{Role: "user", Content: groundedPrompt}})
	if err != nil {
		return Answer{}, domain.Wrap(domain.CodeLLMUnavailable, err, "completing grounded prompt")
	}

	return Answer{Text: response, References: refs}, nil
}

func (e *Executor) embedPrompt(ctx context.Context, engine domain.QueryEngine, prompt string) ([]float32, error) {
	if e.embedCache != (cache.Embeddings{}) {
		if vec, ok := e.embedCache.Get(ctx, engine.EmbeddingModel, prompt); ok {
			return vec, nil
		}
	}

	embedCtx, cancel := context.WithTimeout(ctx, e.opts.EmbedTimeout)
	defer cancel()

	chunk := domain.Chunk{ID: "query", Text: prompt}
	embeddings, errs := e.embedder.EmbedChunks(embedCtx, engine.EmbeddingModel, []domain.Chunk{chunk})
	if errs[0] != nil {
		return nil, errs[0]
	}
	vec := embeddings[0].Values

	if e.embedCache != (cache.Embeddings{}) {
		e.embedCache.Set(ctx, engine.EmbeddingModel, prompt, vec)
	}
	return vec, nil
}

// hydrateReferences converts search hits into QueryReferences, deduplicating
// by chunk id and capping at k, applying the tie-break ordering: equal score
// prefers lower ordinal within the same source, then smaller source id.
func hydrateReferences(results []vectorstore.SearchResult, k int) []domain.QueryReference {
	seen := make(map[string]bool, len(results))
	deduped := make([]vectorstore.SearchResult, 0, len(results))
	for _, r := range results {
		if seen[r.ChunkID] {
			continue
		}
		seen[r.ChunkID] = true
		deduped = append(deduped, r)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		a, b := deduped[i], deduped[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		sourceA, sourceB := a.Payload["source_file_id"], b.Payload["source_file_id"]
		if sourceA == sourceB {
			return ordinalOf(a) < ordinalOf(b)
		}
		return sourceA < sourceB
	})

	if len(deduped) > k {
		deduped = deduped[:k]
	}

	refs := make([]domain.QueryReference, len(deduped))
	for i, r := range deduped {
		refs[i] = domain.QueryReference{
			ChunkID:   r.ChunkID,
			SourceURL: r.Payload["source_url"],
			Excerpt:   r.Payload["excerpt"],
			ImageURL:  r.Payload["image_url"],
			Score:     r.Score,
		}
	}
	return refs
}

func ordinalOf(r vectorstore.SearchResult) int {
	n, _ := strconv.Atoi(r.Payload["ordinal"])
	return n
}

func composeContext(refs []domain.QueryReference) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, r.Excerpt)
	}
	return strings.Join(parts, "\n\n")
}

func composeHistory(history []HistoryEntry) string {
	if len(history) == 0 {
		return ""
	}
	lines := make([]string, 0, len(history))
	for _, h := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", h.Role, h.Text))
	}
	return strings.Join(lines, "\n")
}
