package chatstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/repo"
)

// SourceFileStore persists SourceFile records discovered during a build.
type SourceFileStore struct {
	repo *repo.Neo4jRepo[domain.SourceFile, string]
}

// NewSourceFileStore creates a SourceFileStore over driver.
func NewSourceFileStore(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[domain.SourceFile, string]) *SourceFileStore {
	return &SourceFileStore{repo: repo.NewNeo4jRepo[domain.SourceFile, string](driver, "SourceFile", sourceFileToMap, sourceFileFromRecord, opts...)}
}

// Save persists sf via build.Deps.SaveFile.
func (s *SourceFileStore) Save(ctx context.Context, sf domain.SourceFile) error {
	_, err := s.repo.Create(ctx, sf)
	return err
}

func sourceFileToMap(sf domain.SourceFile) map[string]any {
	return map[string]any{
		"id":                sf.ID,
		"query_engine_id":   sf.QueryEngineID,
		"display_name":      sf.DisplayName,
		"source_url":        sf.SourceURL,
		"staging_path":      sf.StagingPath,
		"object_store_path": sf.ObjectStorePath,
		"mime_type":         sf.MimeType,
		"content_hash":      sf.ContentHash,
	}
}

func sourceFileFromRecord(rec *neo4j.Record) (domain.SourceFile, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.SourceFile{}, err
	}
	props := node.Props
	return domain.SourceFile{
		ID:              strProp(props, "id"),
		QueryEngineID:   strProp(props, "query_engine_id"),
		DisplayName:     strProp(props, "display_name"),
		SourceURL:       strProp(props, "source_url"),
		StagingPath:     strProp(props, "staging_path"),
		ObjectStorePath: strProp(props, "object_store_path"),
		MimeType:        strProp(props, "mime_type"),
		ContentHash:     strProp(props, "content_hash"),
	}, nil
}

// ChunkStore persists Chunk and Embedding records produced during a build.
type ChunkStore struct {
	repo *repo.Neo4jRepo[domain.Chunk, string]
}

// NewChunkStore creates a ChunkStore over driver.
func NewChunkStore(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[domain.Chunk, string]) *ChunkStore {
	return &ChunkStore{repo: repo.NewNeo4jRepo[domain.Chunk, string](driver, "Chunk", chunkToMap, chunkFromRecord, opts...)}
}

// Save persists chunk metadata; the embedding itself lives only in the
// vector store, not in the metadata graph.
func (s *ChunkStore) Save(ctx context.Context, chunk domain.Chunk, _ domain.Embedding) error {
	_, err := s.repo.Create(ctx, chunk)
	return err
}

func chunkToMap(c domain.Chunk) map[string]any {
	return map[string]any{
		"id":              c.ID,
		"query_engine_id": c.QueryEngineID,
		"source_file_id":  c.SourceFileID,
		"ordinal":         c.Ordinal,
		"text":            c.Text,
		"image_ref":       c.ImageRef,
		"start_offset":    c.StartOffset,
		"end_offset":      c.EndOffset,
	}
}

func chunkFromRecord(rec *neo4j.Record) (domain.Chunk, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.Chunk{}, err
	}
	props := node.Props
	c := domain.Chunk{
		ID:            strProp(props, "id"),
		QueryEngineID: strProp(props, "query_engine_id"),
		SourceFileID:  strProp(props, "source_file_id"),
		Text:          strProp(props, "text"),
		ImageRef:      strProp(props, "image_ref"),
	}
	if n, ok := props["ordinal"].(int64); ok {
		c.Ordinal = int(n)
	}
	if n, ok := props["start_offset"].(int64); ok {
		c.StartOffset = int(n)
	}
	if n, ok := props["end_offset"].(int64); ok {
		c.EndOffset = int(n)
	}
	return c, nil
}
