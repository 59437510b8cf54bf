package chatstore

import (
	"context"
	"testing"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/repo"
)

func TestSourceFileStore_Save(t *testing.T) {
	r := &mockRunner{}
	store := NewSourceFileStore(nil, repo.WithSessionFactory[domain.SourceFile, string](func(ctx context.Context) repo.Runner { return r }))

	sf := domain.SourceFile{ID: "f1", QueryEngineID: "e1", DisplayName: "doc.pdf", MimeType: "application/pdf"}
	r.result = newMockResult(makeNodeRecord(sourceFileToMap(sf)))
	if err := store.Save(context.Background(), sf); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestChunkStore_Save(t *testing.T) {
	r := &mockRunner{}
	store := NewChunkStore(nil, repo.WithSessionFactory[domain.Chunk, string](func(ctx context.Context) repo.Runner { return r }))

	chunk := domain.Chunk{ID: "c1", QueryEngineID: "e1", SourceFileID: "f1", Ordinal: 0, Text: "hello"}
	r.result = newMockResult(makeNodeRecord(chunkToMap(chunk)))
	if err := store.Save(context.Background(), chunk, domain.Embedding{ChunkID: "c1", Model: "m", Dimension: 3, Values: []float32{0, 0, 0}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
}
