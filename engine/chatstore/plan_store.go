package chatstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/repo"
)

// PlanStore persists Plan records, each generated once by the Plan agent
// and immutable thereafter.
type PlanStore struct {
	repo *repo.Neo4jRepo[domain.Plan, string]
}

// NewPlanStore creates a PlanStore over driver.
func NewPlanStore(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[domain.Plan, string]) *PlanStore {
	return &PlanStore{repo: repo.NewNeo4jRepo[domain.Plan, string](driver, "Plan", planToMap, planFromRecord, opts...)}
}

// Save persists p, creating it if it doesn't already exist.
func (s *PlanStore) Save(ctx context.Context, p domain.Plan) error {
	_, err := s.repo.Create(ctx, p)
	return err
}

// Get retrieves a Plan by id.
func (s *PlanStore) Get(ctx context.Context, id string) (domain.Plan, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Plan{}, domain.Wrap(domain.CodeNotFound, err, "plan %s", id)
	}
	return p, nil
}

func planToMap(p domain.Plan) map[string]any {
	stepsJSON, _ := json.Marshal(p.Steps)
	return map[string]any{
		"id":         p.ID,
		"chat_id":    p.ChatID,
		"prompt":     p.Prompt,
		"steps":      string(stepsJSON),
		"created_at": p.CreatedAt.Format(time.RFC3339),
	}
}

func planFromRecord(rec *neo4j.Record) (domain.Plan, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.Plan{}, err
	}
	props := node.Props

	p := domain.Plan{
		ID:     strProp(props, "id"),
		ChatID: strProp(props, "chat_id"),
		Prompt: strProp(props, "prompt"),
	}
	if ts, err := time.Parse(time.RFC3339, strProp(props, "created_at")); err == nil {
		p.CreatedAt = ts
	}
	_ = json.Unmarshal([]byte(strProp(props, "steps")), &p.Steps)
	return p, nil
}
