package chatstore

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/repo"
)

// JobStore persists BuildJob lifecycle records.
type JobStore struct {
	repo *repo.Neo4jRepo[domain.BuildJob, string]
}

// NewJobStore creates a JobStore over driver.
func NewJobStore(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[domain.BuildJob, string]) *JobStore {
	return &JobStore{repo: repo.NewNeo4jRepo[domain.BuildJob, string](driver, "BuildJob", jobToMap, jobFromRecord, opts...)}
}

// Create persists a new BuildJob.
func (s *JobStore) Create(ctx context.Context, j domain.BuildJob) (domain.BuildJob, error) {
	return s.repo.Create(ctx, j)
}

// Save updates an existing BuildJob's mutable fields (status, manifest,
// chunk counters, error details).
func (s *JobStore) Save(ctx context.Context, j domain.BuildJob) error {
	j.UpdatedAt = time.Now()
	_, err := s.repo.Update(ctx, j)
	return err
}

// Get retrieves a BuildJob by id.
func (s *JobStore) Get(ctx context.Context, id string) (domain.BuildJob, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.BuildJob{}, domain.Wrap(domain.CodeNotFound, err, "build job %s", id)
	}
	return j, nil
}

func jobToMap(j domain.BuildJob) map[string]any {
	return map[string]any{
		"id":              j.ID,
		"query_engine_id": j.QueryEngineID,
		"status":          string(j.Status),
		"error_code":      string(j.ErrorCode),
		"error_message":   j.ErrorMessage,
		"manifest":        j.Manifest,
		"chunks_total":    j.ChunksTotal,
		"chunks_failed":   j.ChunksFailed,
		"created_at":      j.CreatedAt.Format(time.RFC3339),
		"updated_at":      j.UpdatedAt.Format(time.RFC3339),
	}
}

func jobFromRecord(rec *neo4j.Record) (domain.BuildJob, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.BuildJob{}, err
	}
	props := node.Props

	j := domain.BuildJob{
		ID:            strProp(props, "id"),
		QueryEngineID: strProp(props, "query_engine_id"),
		Status:        domain.JobStatus(strProp(props, "status")),
		ErrorCode:     domain.Code(strProp(props, "error_code")),
		ErrorMessage:  strProp(props, "error_message"),
	}
	if n, ok := props["chunks_total"].(int64); ok {
		j.ChunksTotal = int(n)
	}
	if n, ok := props["chunks_failed"].(int64); ok {
		j.ChunksFailed = int(n)
	}
	if raw, ok := props["manifest"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				j.Manifest = append(j.Manifest, s)
			}
		}
	}
	if ts, err := time.Parse(time.RFC3339, strProp(props, "created_at")); err == nil {
		j.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, strProp(props, "updated_at")); err == nil {
		j.UpdatedAt = ts
	}
	return j, nil
}
