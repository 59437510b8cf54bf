package chatstore

import (
	"context"
	"testing"
	"time"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/repo"
)

func TestPlanStore_SaveAndGet(t *testing.T) {
	r := &mockRunner{}
	store := NewPlanStore(nil, repo.WithSessionFactory[domain.Plan, string](func(ctx context.Context) repo.Runner { return r }))

	plan := domain.Plan{
		ID:     "p1",
		ChatID: "c1",
		Prompt: "find the manual",
		Steps: []domain.PlanStep{
			{Description: "find the manual", Tool: "search", Status: domain.StepPending},
		},
		CreatedAt: time.Now(),
	}
	r.result = newMockResult(makeNodeRecord(planToMap(plan)))

	if err := store.Save(context.Background(), plan); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r.result = newMockResult(makeNodeRecord(planToMap(plan)))
	got, err := store.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "p1" || len(got.Steps) != 1 || got.Steps[0].Tool != "search" {
		t.Fatalf("got %+v", got)
	}
}

func TestPlanStore_Get_NotFound(t *testing.T) {
	r := &mockRunner{result: newMockResult()}
	store := NewPlanStore(nil, repo.WithSessionFactory[domain.Plan, string](func(ctx context.Context) repo.Runner { return r }))

	_, err := store.Get(context.Background(), "missing")
	if domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}
}
