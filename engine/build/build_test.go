package build

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/engine/embedding"
	"github.com/beaconrag/beacon/engine/normalize"
	"github.com/beaconrag/beacon/engine/source"
	"github.com/beaconrag/beacon/engine/vectorstore"
)

type fakeAdapter struct {
	docs []source.Document
	err  error
}

func (f *fakeAdapter) Fetch(_ context.Context, _ string, _ int) (<-chan source.Document, <-chan error) {
	docCh := make(chan source.Document, len(f.docs))
	errCh := make(chan error, 1)
	for _, d := range f.docs {
		docCh <- d
	}
	close(docCh)
	if f.err != nil {
		errCh <- f.err
	}
	close(errCh)
	return docCh, errCh
}

type fakeEmbedClient struct{ dim int }

func (f *fakeEmbedClient) Embed(_ context.Context, _, _ string) ([]float32, error) {
	return make([]float32, f.dim), nil
}
func (f *fakeEmbedClient) EmbedImage(_ context.Context, _ string, _ []byte) ([]float32, error) {
	return make([]float32, f.dim), nil
}
func (f *fakeEmbedClient) Dimension(string) int { return f.dim }

type fakeStore struct {
	upserted []vectorstore.Record
}

func (s *fakeStore) EnsureCollection(context.Context, string, int) error { return nil }
func (s *fakeStore) DeleteCollection(context.Context, string) error      { return nil }
func (s *fakeStore) Upsert(_ context.Context, _ string, records []vectorstore.Record) error {
	s.upserted = append(s.upserted, records...)
	return nil
}
func (s *fakeStore) DeleteBySourceFile(context.Context, string, string) error { return nil }
func (s *fakeStore) Search(context.Context, string, []float32, int, map[string]string) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func newTestCoordinator(t *testing.T, adapter source.Adapter, dim int) (*Coordinator, *fakeStore) {
	t.Helper()
	registry := source.NewRegistry()
	registry.Register(source.SchemeHTTPS, adapter)

	store := &fakeStore{}
	batcher := embedding.NewBatcher(&fakeEmbedClient{dim: dim}, embedding.BatcherConfig{Workers: 2, RequestsPerSec: 1000, Burst: 1000})

	c := NewCoordinator(Deps{
		Sources:  registry,
		Batcher:  batcher,
		Store:    store,
		ChunkCfg: normalize.DefaultChunkConfig,
	})
	return c, store
}

func TestCoordinator_Run_Success(t *testing.T) {
	adapter := &fakeAdapter{docs: []source.Document{
		{DisplayName: "a.txt", SourceURL: "https://x/a.txt", MimeType: "text/plain", Body: []byte("Hello world. This is a test document.")},
	}}
	c, store := newTestCoordinator(t, adapter, 8)

	engine := domain.QueryEngine{ID: "e1", EmbeddingModel: "m", Dimension: 8}
	job := domain.BuildJob{ID: "j1", QueryEngineID: "e1", Status: domain.JobRunning, Request: domain.BuildRequest{SourceURL: "https://x"}}

	if err := c.Run(context.Background(), &engine, &job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", job.Status)
	}
	if len(job.Manifest) != 1 {
		t.Errorf("expected 1 manifest entry, got %d", len(job.Manifest))
	}
	if len(store.upserted) == 0 {
		t.Error("expected records upserted to the vector store")
	}
}

func TestCoordinator_Run_EmptySourceSucceeds(t *testing.T) {
	adapter := &fakeAdapter{}
	c, _ := newTestCoordinator(t, adapter, 8)

	engine := domain.QueryEngine{ID: "e1", EmbeddingModel: "m", Dimension: 8}
	job := domain.BuildJob{ID: "j1", Status: domain.JobRunning, Request: domain.BuildRequest{SourceURL: "https://x"}}

	if err := c.Run(context.Background(), &engine, &job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobSucceeded {
		t.Errorf("expected SUCCEEDED for a source with zero documents, got %s", job.Status)
	}
	if job.ChunksTotal != 0 {
		t.Errorf("expected zero chunks, got %d", job.ChunksTotal)
	}
}

func TestCoordinator_Run_AllDocumentsUnusableFails(t *testing.T) {
	adapter := &fakeAdapter{docs: []source.Document{
		{DisplayName: "empty.txt", SourceURL: "https://x/empty.txt", MimeType: "text/plain", Body: []byte("   ")},
	}}
	c, _ := newTestCoordinator(t, adapter, 8)

	engine := domain.QueryEngine{ID: "e1", EmbeddingModel: "m", Dimension: 8}
	job := domain.BuildJob{ID: "j1", Status: domain.JobRunning, Request: domain.BuildRequest{SourceURL: "https://x"}}

	if err := c.Run(context.Background(), &engine, &job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobFailed {
		t.Errorf("expected FAILED when every document yields no chunks, got %s", job.Status)
	}
}

// flakyEmbedClient fails every chunk's first full embed pass (exhausting
// the Batcher's in-call retries), then succeeds, so it exercises the
// end-of-build retry sweep rather than the Batcher's own per-call backoff.
type flakyEmbedClient struct {
	dim     int
	failFor int32
	called  int32
}

func (f *flakyEmbedClient) Embed(_ context.Context, _, _ string) ([]float32, error) {
	n := atomic.AddInt32(&f.called, 1)
	if n <= atomic.LoadInt32(&f.failFor) {
		return nil, errors.New("model unavailable")
	}
	return make([]float32, f.dim), nil
}
func (f *flakyEmbedClient) EmbedImage(_ context.Context, _ string, _ []byte) ([]float32, error) {
	return make([]float32, f.dim), nil
}
func (f *flakyEmbedClient) Dimension(string) int { return f.dim }

func TestCoordinator_Run_RetriesFailedChunksOnceAtEndOfBuild(t *testing.T) {
	adapter := &fakeAdapter{docs: []source.Document{
		{DisplayName: "a.txt", SourceURL: "https://x/a.txt", MimeType: "text/plain", Body: []byte("Hello world. This is a test document.")},
	}}
	registry := source.NewRegistry()
	registry.Register(source.SchemeHTTPS, adapter)

	store := &fakeStore{}
	// fn.DefaultRetry gives 3 in-call attempts; fail all of them during the
	// main ingest pass so the chunk only recovers via retryFailedChunks.
	client := &flakyEmbedClient{dim: 8, failFor: 3}
	batcher := embedding.NewBatcher(client, embedding.BatcherConfig{Workers: 1, RequestsPerSec: 1000, Burst: 1000})
	c := NewCoordinator(Deps{Sources: registry, Batcher: batcher, Store: store, ChunkCfg: normalize.DefaultChunkConfig})

	engine := domain.QueryEngine{ID: "e1", EmbeddingModel: "m", Dimension: 8}
	job := domain.BuildJob{ID: "j1", QueryEngineID: "e1", Status: domain.JobRunning, Request: domain.BuildRequest{SourceURL: "https://x"}}

	if err := c.Run(context.Background(), &engine, &job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobSucceeded {
		t.Fatalf("expected SUCCEEDED after the retry sweep recovers the chunk, got %s", job.Status)
	}
	if job.ChunksFailed != 0 {
		t.Errorf("expected ChunksFailed to be decremented back to 0 after recovery, got %d", job.ChunksFailed)
	}
	if job.ChunksTotal == 0 {
		t.Error("expected the recovered chunk to count toward ChunksTotal")
	}
	if len(store.upserted) == 0 {
		t.Error("expected the retry sweep to upsert the recovered chunk")
	}
}

func TestSchemeOf(t *testing.T) {
	cases := map[string]source.Scheme{
		"https://example.com": source.SchemeHTTPS,
		"s3://bucket/prefix":  source.SchemeS3,
		"no-scheme-here":      source.SchemeHTTPS,
	}
	for in, want := range cases {
		if got := schemeOf(in); got != want {
			t.Errorf("schemeOf(%q) = %q, want %q", in, got, want)
		}
	}
}
