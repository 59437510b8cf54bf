// Package build implements the Build Job Coordinator: it drives a
// BuildRequest through source discovery, normalization, embedding, and
// vector-store upsert, tracking progress on a BuildJob.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/engine/embedding"
	"github.com/beaconrag/beacon/engine/normalize"
	"github.com/beaconrag/beacon/engine/source"
	"github.com/beaconrag/beacon/engine/vectorstore"
	"github.com/beaconrag/beacon/pkg/fn"
)

// IngestSubject is the NATS subject BuildRequests are published to.
const IngestSubject = "beacon.build"

// DLQSubject is the dead-letter subject for builds that fail MaxRetries times.
const DLQSubject = "beacon.build.dlq"

// MaxRetries bounds the total number of delivery attempts for a BuildJob;
// the job moves to the DLQ after its MaxRetries-th failure.
const MaxRetries = 3

// Deps holds the external dependencies a Coordinator needs.
type Deps struct {
	Sources   *source.Registry
	Batcher   *embedding.Batcher
	Store     vectorstore.Store
	ChunkCfg  normalize.ChunkConfig
	SaveJob    func(ctx context.Context, job domain.BuildJob) error
	SaveFile   func(ctx context.Context, file domain.SourceFile) error
	SaveChunk  func(ctx context.Context, chunk domain.Chunk, emb domain.Embedding) error
	SaveEngine func(ctx context.Context, engine domain.QueryEngine) error
	Logger     *slog.Logger
}

// Coordinator runs BuildRequests end to end.
type Coordinator struct {
	deps Deps
	log  *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(deps Deps) *Coordinator {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{deps: deps, log: log}
}

// Run executes req against engine, mutating job in place to its terminal
// state. engine.ID and engine.Dimension should already be populated by the
// caller; Run does not create the QueryEngine record itself.
func (c *Coordinator) Run(ctx context.Context, engine *domain.QueryEngine, job *domain.BuildJob) error {
	scheme := schemeOf(job.Request.SourceURL)
	adapter, err := c.deps.Sources.For(scheme)
	if err != nil {
		return domain.FinalizeJob(job, err)
	}

	docCh, errCh := adapter.Fetch(ctx, job.Request.SourceURL, job.Request.Depth)

	var buildErr error
	var pending []pendingChunk
	for docCh != nil || errCh != nil {
		select {
		case doc, ok := <-docCh:
			if !ok {
				docCh = nil
				continue
			}
			job.DocsSeen++
			if err := c.ingestDocument(ctx, engine, job, doc, &pending); err != nil {
				c.log.Warn("build: ingest document failed", "source_url", doc.SourceURL, "error", err)
				job.ChunksFailed++
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			c.log.Warn("build: adapter error", "error", err)
			buildErr = err
		case <-ctx.Done():
			return domain.FinalizeJob(job, ctx.Err())
		}
	}

	if len(pending) > 0 {
		c.retryFailedChunks(ctx, engine, job, pending)
	}

	return domain.FinalizeJob(job, firstFatal(buildErr, job))
}

// firstFatal decides whether an adapter-level error should fail the whole
// job: it does only when nothing was successfully ingested.
func firstFatal(err error, job *domain.BuildJob) error {
	if len(job.Manifest) > 0 {
		return nil
	}
	return err
}

// pendingChunk is a chunk whose embedding failed during the main ingest
// pass, kept with the source-file context needed to upsert it if the
// end-of-build retry sweep (retryFailedChunks) succeeds.
type pendingChunk struct {
	chunk        domain.Chunk
	sourceFileID string
	sourceURL    string
}

func (c *Coordinator) ingestDocument(ctx context.Context, engine *domain.QueryEngine, job *domain.BuildJob, doc source.Document, pending *[]pendingChunk) error {
	sf := domain.SourceFile{
		ID:            uuid.NewString(),
		QueryEngineID: engine.ID,
		DisplayName:   doc.DisplayName,
		SourceURL:     doc.SourceURL,
		MimeType:      doc.MimeType,
		ContentHash:   doc.ContentHash(),
	}
	if err := domain.ValidateSourceFile(sf); err != nil {
		return err
	}
	if c.deps.SaveFile != nil {
		if err := c.deps.SaveFile(ctx, sf); err != nil {
			return fmt.Errorf("save source file: %w", err)
		}
	}

	stage := normalize.Pipeline(sf.ID, c.deps.ChunkCfg)
	result := stage(ctx, doc)
	chunks, err := result.Unwrap()
	if err != nil {
		return err
	}
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].QueryEngineID = engine.ID
	}

	embeddings, errs := c.deps.Batcher.EmbedChunks(ctx, engine.EmbeddingModel, chunks)

	var records []vectorstore.Record
	for i, emb := range embeddings {
		if errs[i] != nil {
			job.ChunksFailed++
			*pending = append(*pending, pendingChunk{chunk: chunks[i], sourceFileID: sf.ID, sourceURL: sf.SourceURL})
			continue
		}
		if err := domain.ValidateEmbedding(emb, engine.Dimension); err != nil {
			job.ChunksFailed++
			continue
		}
		if c.deps.SaveChunk != nil {
			if err := c.deps.SaveChunk(ctx, chunks[i], emb); err != nil {
				job.ChunksFailed++
				continue
			}
		}
		records = append(records, vectorstore.Record{
			ChunkID:   chunks[i].ID,
			Embedding: emb.Values,
			Payload: map[string]any{
				"source_file_id": sf.ID,
				"source_url":     sf.SourceURL,
				"excerpt":        excerpt(chunks[i].Text),
				"ordinal":        chunks[i].Ordinal,
			},
		})
		job.ChunksTotal++
	}

	if len(records) > 0 {
		if err := c.deps.Store.Upsert(ctx, engine.ID, records); err != nil {
			return domain.Wrap(domain.CodeVectorStoreUnavailable, err, "upserting %d chunks", len(records))
		}
	}

	job.Manifest = append(job.Manifest, sf.ID)
	return nil
}

// retryFailedChunks re-embeds every chunk that failed during the main
// ingest pass exactly once, per spec.md §4.3: "failed chunks may be
// retried once at the end of the build." Chunks that succeed on retry are
// upserted and move from ChunksFailed to ChunksTotal; chunks that fail
// again stay counted as failed.
func (c *Coordinator) retryFailedChunks(ctx context.Context, engine *domain.QueryEngine, job *domain.BuildJob, pending []pendingChunk) {
	chunks := make([]domain.Chunk, len(pending))
	for i, p := range pending {
		chunks[i] = p.chunk
	}

	embeddings, errs := c.deps.Batcher.RetryFailed(ctx, engine.EmbeddingModel, chunks)

	var records []vectorstore.Record
	for i, emb := range embeddings {
		if errs[i] != nil {
			continue
		}
		if err := domain.ValidateEmbedding(emb, engine.Dimension); err != nil {
			continue
		}
		if c.deps.SaveChunk != nil {
			if err := c.deps.SaveChunk(ctx, pending[i].chunk, emb); err != nil {
				continue
			}
		}
		records = append(records, vectorstore.Record{
			ChunkID:   pending[i].chunk.ID,
			Embedding: emb.Values,
			Payload: map[string]any{
				"source_file_id": pending[i].sourceFileID,
				"source_url":     pending[i].sourceURL,
				"excerpt":        excerpt(pending[i].chunk.Text),
				"ordinal":        pending[i].chunk.Ordinal,
			},
		})
		job.ChunksFailed--
		job.ChunksTotal++
	}

	if len(records) == 0 {
		return
	}
	if err := c.deps.Store.Upsert(ctx, engine.ID, records); err != nil {
		c.log.Warn("build: retry-sweep upsert failed", "error", err)
	}
}

func excerpt(text string) string {
	const maxLen = 280
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen]
}

func schemeOf(sourceURL string) source.Scheme {
	for i := 0; i < len(sourceURL); i++ {
		if sourceURL[i] == ':' {
			return source.Scheme(sourceURL[:i])
		}
	}
	return source.SchemeHTTPS
}

// RetryPolicy describes an exponential backoff for failed build attempts.
// StartConsumer does not apply it: a failed job is republished without delay.
var RetryPolicy = fn.RetryOpts{MaxAttempts: MaxRetries, InitialWait: 2 * time.Second, MaxWait: 30 * time.Second, Jitter: true}
