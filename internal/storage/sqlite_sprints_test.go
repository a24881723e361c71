package storage_test

import (
	"context"
	"errors"
	"testing"

	"sprintdeck/internal/domain"
	"sprintdeck/internal/storage"
)

type sprintFixture struct {
	Store  *storage.SQLite
	Ctx    context.Context
	Phase  domain.Phase
	Sprint domain.Sprint
}

func newSprintFixture(t *testing.T, ownerID string) sprintFixture {
	t.Helper()
	store := newTestStore(t)
	ctx := context.Background()
	project, err := store.CreateProject(ctx, ownerID, storage.CreateProjectData{Name: "Platform"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	phase, err := store.CreatePhase(ctx, ownerID, storage.CreatePhaseData{
		ProjectID: project.ID,
		Name:      "MVP",
	})
	if err != nil {
		t.Fatalf("create phase: %v", err)
	}
	sprint, err := store.CreateSprint(ctx, ownerID, storage.CreateSprintData{
		PhaseID: phase.ID,
		Name:    "Auth Revamp",
		Goal:    "ship login",
	})
	if err != nil {
		t.Fatalf("create sprint: %v", err)
	}
	return sprintFixture{Store: store, Ctx: ctx, Phase: phase, Sprint: sprint}
}

func TestPhasePositionsAndOwnership(t *testing.T) {
	fx := newSprintFixture(t, "alice")

	second, err := fx.Store.CreatePhase(fx.Ctx, "alice", storage.CreatePhaseData{
		ProjectID: fx.Phase.ProjectID,
		Name:      "Hardening",
	})
	if err != nil {
		t.Fatalf("create second phase: %v", err)
	}
	if second.Position <= fx.Phase.Position {
		t.Fatalf("positions: %d then %d", fx.Phase.Position, second.Position)
	}

	// A phase cannot be hung off another owner's project.
	_, err = fx.Store.CreatePhase(fx.Ctx, "bob", storage.CreatePhaseData{
		ProjectID: fx.Phase.ProjectID,
		Name:      "Sneaky",
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cross-owner phase create: %v", err)
	}

	// The owner scope reaches through the project join.
	if _, err := fx.Store.GetPhase(fx.Ctx, "bob", fx.Phase.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cross-owner phase get: %v", err)
	}
	if _, err := fx.Store.GetSprint(fx.Ctx, "bob", fx.Sprint.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cross-owner sprint get: %v", err)
	}
}

func TestUpdateSprintOrchestratorFields(t *testing.T) {
	fx := newSprintFixture(t, "")

	repo := "/srv/repos/platform"
	branch := "sprint/1-auth-revamp"
	stage := "Tech Lead evaluation"
	progress := 5
	running := domain.OrchestratorRunning
	step := domain.StepPlanning
	substep := "tech_lead"
	blob := `{"version":1,"step":"planning"}`
	at := "2024-01-01T00:00:00Z"

	sp, err := fx.Store.UpdateSprint(fx.Ctx, "", fx.Sprint.ID, storage.UpdateSprintData{
		TargetRepoPath:       &repo,
		SprintBranch:         &branch,
		OrchestratorStatus:   &running,
		OrchestratorStage:    &stage,
		OrchestratorProgress: &progress,
		CurrentStep:          &step,
		CurrentSubstep:       &substep,
		CheckpointData:       &blob,
		LastCheckpointAt:     &at,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sp.OrchestratorStatus != domain.OrchestratorRunning || sp.OrchestratorProgress != 5 {
		t.Fatalf("orchestrator state: %+v", sp)
	}
	if sp.CurrentStep == nil || *sp.CurrentStep != domain.StepPlanning {
		t.Fatalf("current step = %v", sp.CurrentStep)
	}
	if sp.CheckpointData == nil || *sp.CheckpointData != blob {
		t.Fatalf("checkpoint = %v", sp.CheckpointData)
	}

	// Clear flags null what a nil pointer cannot.
	sp, err = fx.Store.UpdateSprint(fx.Ctx, "", fx.Sprint.ID, storage.UpdateSprintData{
		ClearStage:      true,
		ClearBranch:     true,
		ClearCheckpoint: true,
	})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if sp.OrchestratorStage != nil || sp.SprintBranch != nil {
		t.Fatalf("stage/branch survived clear: %+v", sp)
	}
	if sp.CurrentStep != nil || sp.CurrentSubstep != nil || sp.CheckpointData != nil || sp.LastCheckpointAt != nil {
		t.Fatalf("checkpoint survived clear: %+v", sp)
	}
	// Untouched fields hold their values.
	if sp.TargetRepoPath == nil || *sp.TargetRepoPath != repo {
		t.Fatalf("repo path lost: %v", sp.TargetRepoPath)
	}
}

func TestAgentRunsAndGates(t *testing.T) {
	fx := newSprintFixture(t, "")

	run, err := fx.Store.CreateAgentRun(fx.Ctx, "", storage.CreateAgentRunData{
		SprintID:  fx.Sprint.ID,
		AgentName: "Senior Developer",
		AgentType: domain.AgentSeniorDev,
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.Status != domain.RunPending {
		t.Fatalf("run status = %s", run.Status)
	}

	started := "2024-01-01T00:05:00Z"
	completed := "2024-01-01T00:30:00Z"
	status := domain.RunCompleted
	summary := "done"
	run, err = fx.Store.UpdateAgentRun(fx.Ctx, "", run.ID, storage.UpdateAgentRunData{
		Status:        &status,
		StartedAt:     &started,
		CompletedAt:   &completed,
		OutputSummary: &summary,
	})
	if err != nil {
		t.Fatalf("update run: %v", err)
	}
	if run.Status != domain.RunCompleted || run.CompletedAt == nil {
		t.Fatalf("run = %+v", run)
	}

	max := 100.0
	gate, err := fx.Store.CreateQualityGate(fx.Ctx, "", storage.CreateQualityGateData{
		SprintID: fx.Sprint.ID,
		GateName: "Code Review",
		GateType: domain.GateAutomated,
		MaxScore: &max,
	})
	if err != nil {
		t.Fatalf("create gate: %v", err)
	}
	score := 95.0
	passed := domain.GatePassed
	at := "2024-01-01T00:45:00Z"
	gate, err = fx.Store.UpdateQualityGate(fx.Ctx, "", gate.ID, storage.UpdateQualityGateData{
		Status:   &passed,
		Score:    &score,
		PassedAt: &at,
	})
	if err != nil {
		t.Fatalf("update gate: %v", err)
	}
	if gate.Status != domain.GatePassed || gate.Score == nil || *gate.Score != 95 {
		t.Fatalf("gate = %+v", gate)
	}

	// GetSprint aggregates both.
	sp, err := fx.Store.GetSprint(fx.Ctx, "", fx.Sprint.ID)
	if err != nil {
		t.Fatalf("get sprint: %v", err)
	}
	if len(sp.AgentRuns) != 1 || len(sp.QualityGates) != 1 {
		t.Fatalf("aggregate: %d runs, %d gates", len(sp.AgentRuns), len(sp.QualityGates))
	}

	if err := fx.Store.DeleteAgentRuns(fx.Ctx, "", fx.Sprint.ID); err != nil {
		t.Fatalf("delete runs: %v", err)
	}
	if err := fx.Store.DeleteQualityGates(fx.Ctx, "", fx.Sprint.ID); err != nil {
		t.Fatalf("delete gates: %v", err)
	}
	runs, err := fx.Store.ListAgentRuns(fx.Ctx, "", fx.Sprint.ID)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("runs survived delete: %+v", runs)
	}
}

func TestDeleteSprintCascades(t *testing.T) {
	fx := newSprintFixture(t, "")

	if _, err := fx.Store.CreateAgentRun(fx.Ctx, "", storage.CreateAgentRunData{
		SprintID:  fx.Sprint.ID,
		AgentName: "QA Engineer",
		AgentType: domain.AgentQA,
	}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := fx.Store.DeleteSprint(fx.Ctx, "", fx.Sprint.ID); err != nil {
		t.Fatalf("delete sprint: %v", err)
	}
	if _, err := fx.Store.GetSprint(fx.Ctx, "", fx.Sprint.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("sprint survived delete: %v", err)
	}
	runs, err := fx.Store.ListAgentRuns(fx.Ctx, "", fx.Sprint.ID)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("agent runs survived sprint delete: %+v", runs)
	}
}
