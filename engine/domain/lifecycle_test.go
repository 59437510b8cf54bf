package domain

import (
	"errors"
	"testing"
)

func TestTransitionEngine_Valid(t *testing.T) {
	e := QueryEngine{State: EngineCreated}
	if err := TransitionEngine(&e, EngineBuilding); err != nil {
		t.Fatalf("expected valid transition, got %v", err)
	}
	if e.State != EngineBuilding {
		t.Errorf("expected BUILDING, got %s", e.State)
	}
	if err := TransitionEngine(&e, EngineReady); err != nil {
		t.Fatalf("expected valid transition, got %v", err)
	}
}

func TestTransitionEngine_Invalid(t *testing.T) {
	e := QueryEngine{State: EngineArchived}
	if err := TransitionEngine(&e, EngineBuilding); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionEngine_RebuildAllowed(t *testing.T) {
	e := QueryEngine{State: EngineFailed}
	if err := TransitionEngine(&e, EngineBuilding); err != nil {
		t.Errorf("expected rebuild from FAILED to be allowed, got %v", err)
	}
}

func TestTransitionJob(t *testing.T) {
	j := BuildJob{Status: JobPending}
	if err := TransitionJob(&j, JobRunning); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := TransitionJob(&j, JobPending); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition going backwards, got %v", err)
	}
}

func TestTransitionStep(t *testing.T) {
	s := PlanStep{Status: StepPending}
	if err := TransitionStep(&s, StepRunning); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := TransitionStep(&s, StepDone); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := TransitionStep(&s, StepRunning); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from terminal state, got %v", err)
	}
}

func TestRequireReady(t *testing.T) {
	e := QueryEngine{ID: "e1", State: EngineBuilding}
	err := RequireReady(e)
	if CodeOf(err) != CodeQueryEngineUnavailable {
		t.Errorf("expected CodeQueryEngineUnavailable, got %v", CodeOf(err))
	}
	if !errors.Is(err, ErrEngineNotReady) {
		t.Errorf("expected ErrEngineNotReady in chain, got %v", err)
	}
	e.State = EngineReady
	if err := RequireReady(e); err != nil {
		t.Errorf("expected nil for READY engine, got %v", err)
	}
}

func TestFinalizeJob_Success(t *testing.T) {
	j := BuildJob{Status: JobRunning, Manifest: []string{"sf1"}, ChunksTotal: 10}
	if err := FinalizeJob(&j, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Status != JobSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", j.Status)
	}
}

func TestFinalizeJob_EmptyManifest(t *testing.T) {
	j := BuildJob{Status: JobRunning, DocsSeen: 3}
	if err := FinalizeJob(&j, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Status != JobFailed {
		t.Errorf("expected FAILED when documents were seen but none ingested, got %s", j.Status)
	}
	if j.ErrorCode != CodeValidation {
		t.Errorf("expected CodeValidation, got %s", j.ErrorCode)
	}
}

func TestFinalizeJob_EmptySource(t *testing.T) {
	j := BuildJob{Status: JobRunning}
	if err := FinalizeJob(&j, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Status != JobSucceeded {
		t.Errorf("expected SUCCEEDED for a source with no documents, got %s", j.Status)
	}
}

func TestFinalizeJob_ChunkFailureWithinTolerance(t *testing.T) {
	j := BuildJob{Status: JobRunning, Manifest: []string{"sf1"}, ChunksTotal: 96, ChunksFailed: 4}
	if err := FinalizeJob(&j, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Status != JobSucceeded {
		t.Errorf("expected SUCCEEDED at 4%% chunk failure, got %s", j.Status)
	}
}

func TestFinalizeJob_ChunkFailureExceedsTolerance(t *testing.T) {
	j := BuildJob{Status: JobRunning, Manifest: []string{"sf1"}, ChunksTotal: 1, ChunksFailed: 99}
	if err := FinalizeJob(&j, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Status != JobFailed {
		t.Errorf("expected FAILED at 99%% chunk failure, got %s", j.Status)
	}
	if j.ErrorCode != CodeEmbeddingInvalidInput {
		t.Errorf("expected CodeEmbeddingInvalidInput, got %s", j.ErrorCode)
	}
}

func TestFinalizeJob_UpstreamError(t *testing.T) {
	j := BuildJob{Status: JobRunning}
	cause := New(CodeSourceUnreachable, "dns failure")
	if err := FinalizeJob(&j, cause); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Status != JobFailed || j.ErrorCode != CodeSourceUnreachable {
		t.Errorf("expected FAILED/SOURCE_UNREACHABLE, got %s/%s", j.Status, j.ErrorCode)
	}
}
