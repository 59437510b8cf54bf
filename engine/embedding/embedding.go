// Package embedding batches text (and optionally image) Chunks into dense
// vectors through a pluggable Client, rate-limited and circuit-broken
// against the backing model server.
package embedding

import (
	"context"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/fn"
	"github.com/beaconrag/beacon/pkg/resilience"
)

// Client embeds text, and optionally images, into dense vectors.
type Client interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
	EmbedImage(ctx context.Context, model string, image []byte) ([]float32, error)
	Dimension(model string) int
}

// BatcherConfig controls concurrency and throttling for a Batcher.
type BatcherConfig struct {
	Workers        int
	RequestsPerSec float64
	Burst          int
}

// DefaultBatcherConfig provides sensible defaults.
var DefaultBatcherConfig = BatcherConfig{Workers: 8, RequestsPerSec: 10, Burst: 20}

// Batcher embeds many Chunks concurrently, bounded by Workers and throttled
// by a token-bucket limiter, with a circuit breaker protecting the Client
// from cascading failures.
type Batcher struct {
	client  Client
	cfg     BatcherConfig
	limiter *resilience.Limiter
	breaker *resilience.Breaker
}

// NewBatcher creates a Batcher wrapping client.
func NewBatcher(client Client, cfg BatcherConfig) *Batcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultBatcherConfig.Workers
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = DefaultBatcherConfig.RequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBatcherConfig.Burst
	}
	return &Batcher{
		client:  client,
		cfg:     cfg,
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.RequestsPerSec, Burst: cfg.Burst}),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// EmbedChunks embeds every Chunk's text, returning one domain.Embedding per
// Chunk in the same order. A single Chunk's failure does not abort the
// batch; its error is reported via the returned error slice aligned by index.
func (b *Batcher) EmbedChunks(ctx context.Context, model string, chunks []domain.Chunk) ([]domain.Embedding, []error) {
	results := fn.ParMapResult(chunks, b.cfg.Workers, func(c domain.Chunk) fn.Result[domain.Embedding] {
		return b.embedOne(ctx, model, c)
	})

	embeddings := make([]domain.Embedding, len(results))
	errs := make([]error, len(results))
	for i, r := range results {
		v, err := r.Unwrap()
		embeddings[i] = v
		errs[i] = err
	}
	return embeddings, errs
}

// RetryFailed re-embeds chunks that failed an earlier EmbedChunks call. It
// is the end-of-build retry sweep required by spec.md §4.3 ("failed chunks
// may be retried once at the end of the build"): callers invoke it once,
// after the whole build's ingest pass completes, with only the chunks whose
// embedding previously failed. It shares embedOne's per-call backoff, so a
// chunk gets its normal in-call retries plus this one additional sweep.
func (b *Batcher) RetryFailed(ctx context.Context, model string, chunks []domain.Chunk) ([]domain.Embedding, []error) {
	return b.EmbedChunks(ctx, model, chunks)
}

func (b *Batcher) embedOne(ctx context.Context, model string, c domain.Chunk) fn.Result[domain.Embedding] {
	if err := b.limiter.Wait(ctx); err != nil {
		return fn.Err[domain.Embedding](domain.Wrap(domain.CodeEmbeddingRateLimited, err, "waiting for embed token"))
	}

	stage := fn.RetryStage(fn.DefaultRetry, func(ctx context.Context, text string) fn.Result[[]float32] {
		return resilience.CallResult(b.breaker, ctx, func(ctx context.Context) fn.Result[[]float32] {
			vals, err := b.client.Embed(ctx, model, text)
			if err != nil {
				return fn.Err[[]float32](domain.Wrap(domain.CodeEmbeddingUnavailable, err, "embedding chunk %s", c.ID))
			}
			return fn.Ok(vals)
		})
	})

	result := stage(ctx, c.Text)
	vals, err := result.Unwrap()
	if err != nil {
		if err == resilience.ErrCircuitOpen {
			err = domain.Wrap(domain.CodeEmbeddingUnavailable, err, "embed circuit open")
		}
		return fn.Err[domain.Embedding](err)
	}

	return fn.Ok(domain.Embedding{
		ChunkID:   c.ID,
		Model:     model,
		Dimension: len(vals),
		Values:    vals,
	})
}

// EmbedImage embeds a single Chunk's image bytes, used for multimodal
// QueryEngines.
func (b *Batcher) EmbedImage(ctx context.Context, model string, c domain.Chunk, image []byte) (domain.Embedding, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return domain.Embedding{}, domain.Wrap(domain.CodeEmbeddingRateLimited, err, "waiting for embed token")
	}
	var vals []float32
	err := b.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := b.client.EmbedImage(ctx, model, image)
		if err != nil {
			return domain.Wrap(domain.CodeEmbeddingUnavailable, err, "embedding image chunk %s", c.ID)
		}
		vals = v
		return nil
	})
	if err != nil {
		return domain.Embedding{}, err
	}
	return domain.Embedding{ChunkID: c.ID, Model: model, Dimension: len(vals), Image: vals}, nil
}
