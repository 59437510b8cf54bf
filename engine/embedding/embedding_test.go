package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/beaconrag/beacon/engine/domain"
)

type fakeClient struct {
	dim      int
	failN    int32 // fail this many calls, then succeed
	called   int32
}

func (f *fakeClient) Embed(_ context.Context, _, text string) ([]float32, error) {
	n := atomic.AddInt32(&f.called, 1)
	if n <= atomic.LoadInt32(&f.failN) {
		return nil, errors.New("model unavailable")
	}
	return make([]float32, f.dim), nil
}

func (f *fakeClient) EmbedImage(_ context.Context, _ string, _ []byte) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func (f *fakeClient) Dimension(string) int { return f.dim }

func TestBatcher_EmbedChunks_Success(t *testing.T) {
	client := &fakeClient{dim: 8}
	b := NewBatcher(client, BatcherConfig{Workers: 4, RequestsPerSec: 1000, Burst: 1000})

	chunks := []domain.Chunk{{ID: "c1", Text: "one"}, {ID: "c2", Text: "two"}}
	embs, errs := b.EmbedChunks(context.Background(), "model-x", chunks)

	for i, err := range errs {
		if err != nil {
			t.Fatalf("chunk %d: unexpected error: %v", i, err)
		}
	}
	if len(embs) != 2 || embs[0].ChunkID != "c1" || embs[1].ChunkID != "c2" {
		t.Errorf("unexpected embeddings: %+v", embs)
	}
	if embs[0].Dimension != 8 {
		t.Errorf("expected dimension 8, got %d", embs[0].Dimension)
	}
}

func TestBatcher_EmbedChunks_PartialFailureIsolated(t *testing.T) {
	client := &fakeClient{dim: 4}
	b := NewBatcher(client, BatcherConfig{Workers: 1, RequestsPerSec: 1000, Burst: 1000})

	// fn.DefaultRetry gives 3 attempts; fail the first call only.
	client.failN = 1
	chunks := []domain.Chunk{{ID: "c1", Text: "one"}}
	_, errs := b.EmbedChunks(context.Background(), "model-x", chunks)
	if errs[0] != nil {
		t.Errorf("expected retry to recover from single failure, got %v", errs[0])
	}
}

func TestBatcher_RetryFailed_RecoversAfterPermanentFirstPassFailure(t *testing.T) {
	client := &fakeClient{dim: 4}
	b := NewBatcher(client, BatcherConfig{Workers: 1, RequestsPerSec: 1000, Burst: 1000})

	// fn.DefaultRetry exhausts 3 attempts per EmbedChunks call; fail all of
	// them so the chunk comes out of the main ingest pass still failed.
	client.failN = 3
	chunks := []domain.Chunk{{ID: "c1", Text: "one"}}
	_, errs := b.EmbedChunks(context.Background(), "model-x", chunks)
	if errs[0] == nil {
		t.Fatalf("expected first pass to exhaust retries and fail")
	}

	// The 4th call (the end-of-build retry sweep) succeeds.
	embs, retryErrs := b.RetryFailed(context.Background(), "model-x", chunks)
	if retryErrs[0] != nil {
		t.Fatalf("expected RetryFailed to recover the chunk, got %v", retryErrs[0])
	}
	if embs[0].ChunkID != "c1" {
		t.Errorf("unexpected embedding: %+v", embs[0])
	}
}

func TestOllamaClient_Dimension(t *testing.T) {
	c := NewOllamaClient("http://localhost:11434", map[string]int{"nomic-embed-text": 768})
	if c.Dimension("nomic-embed-text") != 768 {
		t.Errorf("expected 768, got %d", c.Dimension("nomic-embed-text"))
	}
	if c.Dimension("unknown") != 0 {
		t.Errorf("expected 0 for unknown model, got %d", c.Dimension("unknown"))
	}
}
