package chatstore

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/repo"
)

// EngineStore persists QueryEngine records.
type EngineStore struct {
	repo *repo.Neo4jRepo[domain.QueryEngine, string]
}

// NewEngineStore creates an EngineStore over driver.
func NewEngineStore(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[domain.QueryEngine, string]) *EngineStore {
	return &EngineStore{repo: repo.NewNeo4jRepo[domain.QueryEngine, string](driver, "QueryEngine", engineToMap, engineFromRecord, opts...)}
}

// Create persists a new QueryEngine.
func (s *EngineStore) Create(ctx context.Context, e domain.QueryEngine) (domain.QueryEngine, error) {
	return s.repo.Create(ctx, e)
}

// Save updates an existing QueryEngine's mutable fields.
func (s *EngineStore) Save(ctx context.Context, e domain.QueryEngine) error {
	e.UpdatedAt = time.Now()
	_, err := s.repo.Update(ctx, e)
	return err
}

// Get retrieves a QueryEngine by id.
func (s *EngineStore) Get(ctx context.Context, id string) (domain.QueryEngine, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.QueryEngine{}, domain.Wrap(domain.CodeNotFound, err, "query engine %s", id)
	}
	return e, nil
}

// List returns every QueryEngine, most recently created first is not
// guaranteed; callers sort if order matters.
func (s *EngineStore) List(ctx context.Context) ([]domain.QueryEngine, error) {
	return s.repo.List(ctx, repo.ListOpts{Limit: 1000})
}

func engineToMap(e domain.QueryEngine) map[string]any {
	return map[string]any{
		"id":              e.ID,
		"name":            e.Name,
		"description":     e.Description,
		"embedding_model": e.EmbeddingModel,
		"vector_store":    string(e.VectorStore),
		"multimodal":      e.Multimodal,
		"owner_user_id":   e.OwnerUserID,
		"state":           string(e.State),
		"depth_limit":     e.DepthLimit,
		"source_url":      e.SourceURL,
		"dimension":       e.Dimension,
		"empty":           e.Empty,
		"created_at":      e.CreatedAt.Format(time.RFC3339),
		"updated_at":      e.UpdatedAt.Format(time.RFC3339),
	}
}

func engineFromRecord(rec *neo4j.Record) (domain.QueryEngine, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.QueryEngine{}, err
	}
	props := node.Props

	e := domain.QueryEngine{
		ID:             strProp(props, "id"),
		Name:           strProp(props, "name"),
		Description:    strProp(props, "description"),
		EmbeddingModel: strProp(props, "embedding_model"),
		VectorStore:    domain.VectorStoreKind(strProp(props, "vector_store")),
		OwnerUserID:    strProp(props, "owner_user_id"),
		State:          domain.EngineState(strProp(props, "state")),
		SourceURL:      strProp(props, "source_url"),
	}
	if b, ok := props["multimodal"].(bool); ok {
		e.Multimodal = b
	}
	if b, ok := props["empty"].(bool); ok {
		e.Empty = b
	}
	if n, ok := props["depth_limit"].(int64); ok {
		e.DepthLimit = int(n)
	}
	if n, ok := props["dimension"].(int64); ok {
		e.Dimension = int(n)
	}
	if ts, err := time.Parse(time.RFC3339, strProp(props, "created_at")); err == nil {
		e.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, strProp(props, "updated_at")); err == nil {
		e.UpdatedAt = ts
	}
	return e, nil
}
