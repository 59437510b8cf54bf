package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore stores embeddings in Postgres tables via pgvector, used for
// engines that want relational filtering alongside similarity search rather
// than a dedicated ANN index.
type PgVectorStore struct {
	pool *pgxpool.Pool
}

// NewPgVectorStore creates a PgVectorStore over an existing pool.
func NewPgVectorStore(pool *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{pool: pool}
}

var _ Store = (*PgVectorStore)(nil)

// tableName maps a logical collection name to its backing table, quoting it
// as a Postgres identifier.
func tableName(collection string) string {
	return pgx.Identifier{"chunk_vectors_" + sanitizeIdent(collection)}.Sanitize()
}

func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// EnsureCollection creates the per-engine table if it doesn't exist.
func (s *PgVectorStore) EnsureCollection(ctx context.Context, name string, dims int) error {
	table := tableName(name)
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS %s (
			chunk_id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			source_file_id TEXT,
			source_url TEXT,
			excerpt TEXT,
			image_url TEXT,
			ordinal INT
		);
		CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
	`, table, dims, sanitizeIdent(name), table))
	if err != nil {
		return fmt.Errorf("vectorstore: ensure table %s: %w", table, err)
	}
	return nil
}

// DeleteCollection drops the per-engine table.
func (s *PgVectorStore) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName(name)))
	if err != nil {
		return fmt.Errorf("vectorstore: drop table %s: %w", tableName(name), err)
	}
	return nil
}

// Upsert writes records into the per-engine table.
func (s *PgVectorStore) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	table := tableName(collection)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (chunk_id, embedding, source_file_id, source_url, excerpt, image_url, ordinal)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (chunk_id) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				source_file_id = EXCLUDED.source_file_id,
				source_url = EXCLUDED.source_url,
				excerpt = EXCLUDED.excerpt,
				image_url = EXCLUDED.image_url,
				ordinal = EXCLUDED.ordinal
		`, table),
			r.ChunkID,
			pgvector.NewVector(r.Embedding),
			stringPayload(r.Payload, "source_file_id"),
			stringPayload(r.Payload, "source_url"),
			stringPayload(r.Payload, "excerpt"),
			stringPayload(r.Payload, "image_url"),
			intPayload(r.Payload, "ordinal"),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("vectorstore: upsert into %s: %w", table, err)
		}
	}
	return nil
}

// DeleteBySourceFile removes all rows tagged with the given source_file_id.
func (s *PgVectorStore) DeleteBySourceFile(ctx context.Context, collection, sourceFileID string) error {
	table := tableName(collection)
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE source_file_id = $1", table), sourceFileID)
	if err != nil {
		return fmt.Errorf("vectorstore: delete by source_file_id %s: %w", sourceFileID, err)
	}
	return nil
}

// Search runs a cosine-distance nearest-neighbor query, translating
// pgvector's "<=>" distance operator into a similarity score of 1-distance.
func (s *PgVectorStore) Search(ctx context.Context, collection string, embedding []float32, topK int, filters map[string]string) ([]SearchResult, error) {
	table := tableName(collection)

	query := fmt.Sprintf(`
		SELECT chunk_id, source_file_id, source_url, excerpt, image_url, ordinal,
			1 - (embedding <=> $1) AS score
		FROM %s
	`, table)
	args := []any{pgvector.NewVector(embedding)}

	if sourceFileID, ok := filters["source_file_id"]; ok {
		query += " WHERE source_file_id = $2"
		args = append(args, sourceFileID)
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT %d", topK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search %s: %w", table, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var chunkID, sourceFileID, sourceURL, excerpt, imageURL string
		var ordinal int
		var score float32
		if err := rows.Scan(&chunkID, &sourceFileID, &sourceURL, &excerpt, &imageURL, &ordinal, &score); err != nil {
			return nil, fmt.Errorf("vectorstore: scan row: %w", err)
		}
		results = append(results, SearchResult{
			ChunkID: chunkID,
			Score:   score,
			Payload: map[string]string{
				"source_file_id": sourceFileID,
				"source_url":     sourceURL,
				"excerpt":        excerpt,
				"image_url":      imageURL,
				"ordinal":        fmt.Sprintf("%d", ordinal),
			},
		})
	}
	return results, rows.Err()
}

func stringPayload(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intPayload(payload map[string]any, key string) int {
	if v, ok := payload[key]; ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}
