package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sprintdeck/internal/db"
	"sprintdeck/internal/domain"
	"sprintdeck/internal/migrate"
	"sprintdeck/internal/orchestrator"
	"sprintdeck/internal/storage"
)

type testEnv struct {
	Orch   *orchestrator.Orchestrator
	Store  storage.Storage
	Ctx    context.Context
	Sprint domain.Sprint
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := storage.NewSQLite(conn)
	store.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	orch := orchestrator.New(store)
	orch.Now = store.Now

	ctx := context.Background()
	project, err := store.CreateProject(ctx, "", storage.CreateProjectData{Name: "Platform"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	phase, err := store.CreatePhase(ctx, "", storage.CreatePhaseData{ProjectID: project.ID, Name: "MVP"})
	if err != nil {
		t.Fatalf("create phase: %v", err)
	}
	sprint, err := store.CreateSprint(ctx, "", storage.CreateSprintData{PhaseID: phase.ID, Name: "Auth Revamp"})
	if err != nil {
		t.Fatalf("create sprint: %v", err)
	}
	return testEnv{Orch: orch, Store: store, Ctx: ctx, Sprint: sprint}
}

func configureAndStart(t *testing.T, env testEnv) domain.Sprint {
	t.Helper()
	repo := "/srv/repos/platform"
	if _, err := env.Orch.Configure(env.Ctx, "", env.Sprint.ID, orchestrator.ConfigureOptions{RepoPath: &repo}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	sp, err := env.Orch.Start(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return sp
}

func TestConfigureSetsRepoAndResets(t *testing.T) {
	env := newTestEnv(t)
	repo := "/srv/repos/platform"
	branch := "develop"
	sp, err := env.Orch.Configure(env.Ctx, "", env.Sprint.ID, orchestrator.ConfigureOptions{
		RepoPath:   &repo,
		BaseBranch: branch,
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if sp.TargetRepoPath == nil || *sp.TargetRepoPath != repo {
		t.Fatalf("repo path not set: %+v", sp.TargetRepoPath)
	}
	if sp.BaseBranch != "develop" {
		t.Fatalf("base branch = %q, want develop", sp.BaseBranch)
	}
	if sp.OrchestratorStatus != domain.OrchestratorIdle || sp.OrchestratorProgress != 0 {
		t.Fatalf("expected idle at 0%%, got %s at %d", sp.OrchestratorStatus, sp.OrchestratorProgress)
	}
}

func TestConfigureRequiresRepo(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Orch.Configure(env.Ctx, "", env.Sprint.ID, orchestrator.ConfigureOptions{BaseBranch: "main"})
	if !errors.Is(err, orchestrator.ErrRepoRequired) {
		t.Fatalf("expected ErrRepoRequired, got %v", err)
	}
}

func TestStartSeedsPipeline(t *testing.T) {
	env := newTestEnv(t)
	sp := configureAndStart(t, env)

	if sp.OrchestratorStatus != domain.OrchestratorRunning {
		t.Fatalf("status = %s, want running", sp.OrchestratorStatus)
	}
	if sp.OrchestratorStage == nil || *sp.OrchestratorStage != "Tech Lead evaluation" {
		t.Fatalf("stage = %v", sp.OrchestratorStage)
	}
	if sp.OrchestratorProgress != 5 {
		t.Fatalf("progress = %d, want 5", sp.OrchestratorProgress)
	}
	want := orchestrator.BranchName(env.Sprint.ID, "Auth Revamp")
	if sp.SprintBranch == nil || *sp.SprintBranch != want {
		t.Fatalf("branch = %v, want %s", sp.SprintBranch, want)
	}
	if len(sp.AgentRuns) != 10 {
		t.Fatalf("agent runs = %d, want 10", len(sp.AgentRuns))
	}
	for _, run := range sp.AgentRuns {
		if run.Status != domain.RunPending {
			t.Fatalf("run %s status = %s, want pending", run.AgentName, run.Status)
		}
	}
	if len(sp.QualityGates) != 6 {
		t.Fatalf("quality gates = %d, want 6", len(sp.QualityGates))
	}
	for _, gate := range sp.QualityGates {
		if gate.Status != domain.GatePending {
			t.Fatalf("gate %s status = %s, want pending", gate.GateName, gate.Status)
		}
	}
}

func TestBranchNameSlug(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Auth Revamp", "sprint/7-auth-revamp"},
		{"V2 -- API  (beta)", "sprint/7-v2-api-beta"},
		{"  ", "sprint/7-sprint"},
	}
	for _, tc := range cases {
		if got := orchestrator.BranchName(7, tc.name); got != tc.want {
			t.Errorf("BranchName(7, %q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestStartRequiresConfiguredRepo(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Orch.Start(env.Ctx, "", env.Sprint.ID)
	if !errors.Is(err, orchestrator.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStartRejectedWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	_, err := env.Orch.Start(env.Ctx, "", env.Sprint.ID)
	var se *orchestrator.StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if se.Current != domain.OrchestratorRunning {
		t.Fatalf("current = %s, want running", se.Current)
	}
}

func TestStartWipesPreviousAttempt(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	saveCheckpoint(t, env, domain.StepPlanning, "")
	markStatus(t, env, domain.OrchestratorFailed)

	sp, err := env.Orch.Start(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if len(sp.AgentRuns) != 10 || len(sp.QualityGates) != 6 {
		t.Fatalf("reseed: %d runs, %d gates", len(sp.AgentRuns), len(sp.QualityGates))
	}
	if sp.CheckpointData != nil || sp.CurrentStep != nil {
		t.Fatalf("expected checkpoint wiped on restart")
	}
}

func encodeCheckpoint(t *testing.T, ckpt orchestrator.Checkpoint) string {
	t.Helper()
	blob, err := ckpt.Encode()
	if err != nil {
		t.Fatalf("encode checkpoint: %v", err)
	}
	return blob
}

func saveCheckpoint(t *testing.T, env testEnv, step domain.OrchestratorStep, substep string) orchestrator.SaveCheckpointResult {
	t.Helper()
	res, err := env.Orch.SaveCheckpoint(env.Ctx, "", env.Sprint.ID, orchestrator.SaveCheckpointOptions{
		Step:    step,
		Substep: substep,
		Data:    encodeCheckpoint(t, orchestrator.Checkpoint{Step: step, Substep: substep, ContextTokensUsed: 120_000}),
	})
	if err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	return res
}

func markStatus(t *testing.T, env testEnv, status domain.OrchestratorStatus) {
	t.Helper()
	_, err := env.Store.UpdateSprint(env.Ctx, "", env.Sprint.ID, storage.UpdateSprintData{
		OrchestratorStatus: &status,
	})
	if err != nil {
		t.Fatalf("mark %s: %v", status, err)
	}
}

func TestSaveCheckpointRecordsResumeState(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)

	stage := "Senior Dev implementing"
	progress := 40
	_, err := env.Orch.SaveCheckpoint(env.Ctx, "", env.Sprint.ID, orchestrator.SaveCheckpointOptions{
		Step:    domain.StepParallelDev,
		Substep: "senior_dev",
		Data: encodeCheckpoint(t, orchestrator.Checkpoint{
			Step:              domain.StepParallelDev,
			Substep:           "senior_dev",
			ContextTokensUsed: 250_000,
			Blockers:          []string{"flaky integration suite"},
		}),
		Stage:    &stage,
		Progress: &progress,
	})
	if err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	sp, err := env.Store.GetSprint(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("get sprint: %v", err)
	}
	if sp.CurrentStep == nil || *sp.CurrentStep != domain.StepParallelDev {
		t.Fatalf("current step = %v", sp.CurrentStep)
	}
	if sp.CurrentSubstep == nil || *sp.CurrentSubstep != "senior_dev" {
		t.Fatalf("substep = %v", sp.CurrentSubstep)
	}
	if sp.OrchestratorStage == nil || *sp.OrchestratorStage != stage {
		t.Fatalf("stage = %v", sp.OrchestratorStage)
	}
	if sp.OrchestratorProgress != 40 {
		t.Fatalf("progress = %d", sp.OrchestratorProgress)
	}
	if sp.CheckpointData == nil || sp.LastCheckpointAt == nil {
		t.Fatalf("checkpoint not persisted")
	}
	ckpt, err := orchestrator.DecodeCheckpoint(*sp.CheckpointData)
	if err != nil {
		t.Fatalf("decode stored checkpoint: %v", err)
	}
	if ckpt.ContextTokensUsed != 250_000 || len(ckpt.Blockers) != 1 {
		t.Fatalf("payload lost: %+v", ckpt)
	}
}

func TestSaveCheckpointStoresBlobVerbatim(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)

	// Fields the decoder does not know about must survive storage untouched.
	blob := `{"step":"parallel_dev","context_tokens_used":250000,"driver_scratch":{"retries":2}}`
	_, err := env.Orch.SaveCheckpoint(env.Ctx, "", env.Sprint.ID, orchestrator.SaveCheckpointOptions{
		Step: domain.StepParallelDev,
		Data: blob,
	})
	if err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	sp, err := env.Store.GetSprint(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("get sprint: %v", err)
	}
	if sp.CheckpointData == nil || *sp.CheckpointData != blob {
		t.Fatalf("blob rewritten: %v", sp.CheckpointData)
	}
}

func TestSaveCheckpointRejectsUndecodableBlob(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)

	for _, blob := range []string{`{"step":`, `{"step":"teleport"}`, `{"version":9,"step":"planning"}`} {
		_, err := env.Orch.SaveCheckpoint(env.Ctx, "", env.Sprint.ID, orchestrator.SaveCheckpointOptions{
			Step: domain.StepPlanning,
			Data: blob,
		})
		if !errors.Is(err, orchestrator.ErrCorruptCheckpoint) {
			t.Fatalf("blob %q: expected ErrCorruptCheckpoint, got %v", blob, err)
		}
	}
	sp, _ := env.Store.GetSprint(env.Ctx, "", env.Sprint.ID)
	if sp.CheckpointData != nil {
		t.Fatalf("rejected blob persisted")
	}
}

func TestSaveCheckpointAgentAndGateUpdates(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)

	// Agent moves to running: started_at is stamped.
	_, err := env.Orch.SaveCheckpoint(env.Ctx, "", env.Sprint.ID, orchestrator.SaveCheckpointOptions{
		Step:    domain.StepParallelDev,
		Substep: "senior_dev",
		Data:    encodeCheckpoint(t, orchestrator.Checkpoint{Step: domain.StepParallelDev, Substep: "senior_dev"}),
		Agent: &orchestrator.AgentUpdate{
			AgentType: domain.AgentSeniorDev,
			Status:    domain.RunRunning,
		},
	})
	if err != nil {
		t.Fatalf("checkpoint 1: %v", err)
	}
	run := findRun(t, env, domain.AgentSeniorDev)
	if run.Status != domain.RunRunning || run.StartedAt == nil {
		t.Fatalf("run after start: %+v", run)
	}
	if run.CompletedAt != nil {
		t.Fatalf("completed_at set too early")
	}

	// Agent completes with output, gate passes with a score.
	summary := "implemented auth flows"
	score := 87.5
	_, err = env.Orch.SaveCheckpoint(env.Ctx, "", env.Sprint.ID, orchestrator.SaveCheckpointOptions{
		Step:    domain.StepParallelDev,
		Substep: "qa",
		Data:    encodeCheckpoint(t, orchestrator.Checkpoint{Step: domain.StepParallelDev, Substep: "qa"}),
		Agent: &orchestrator.AgentUpdate{
			AgentType:     domain.AgentSeniorDev,
			Status:        domain.RunCompleted,
			OutputSummary: &summary,
		},
		Gate: &orchestrator.GateUpdate{
			GateName: "Code Review",
			Status:   domain.GatePassed,
			Score:    &score,
		},
	})
	if err != nil {
		t.Fatalf("checkpoint 2: %v", err)
	}
	run = findRun(t, env, domain.AgentSeniorDev)
	if run.Status != domain.RunCompleted || run.CompletedAt == nil {
		t.Fatalf("run after completion: %+v", run)
	}
	if run.OutputSummary == nil || *run.OutputSummary != summary {
		t.Fatalf("output summary = %v", run.OutputSummary)
	}
	gate := findGate(t, env, "Code Review")
	if gate.Status != domain.GatePassed || gate.PassedAt == nil {
		t.Fatalf("gate after pass: %+v", gate)
	}
	if gate.Score == nil || *gate.Score != score {
		t.Fatalf("gate score = %v", gate.Score)
	}
}

func TestSaveCheckpointUnknownAgentIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	if err := deleteRuns(env); err != nil {
		t.Fatalf("clear runs: %v", err)
	}
	// No matching row: the checkpoint itself must still land.
	_, err := env.Orch.SaveCheckpoint(env.Ctx, "", env.Sprint.ID, orchestrator.SaveCheckpointOptions{
		Step:  domain.StepPlanning,
		Data:  encodeCheckpoint(t, orchestrator.Checkpoint{Step: domain.StepPlanning}),
		Agent: &orchestrator.AgentUpdate{AgentType: domain.AgentTechLead, Status: domain.RunRunning},
	})
	if err != nil {
		t.Fatalf("checkpoint with unknown agent: %v", err)
	}
	sp, _ := env.Store.GetSprint(env.Ctx, "", env.Sprint.ID)
	if sp.CheckpointData == nil {
		t.Fatalf("checkpoint lost")
	}
}

func deleteRuns(env testEnv) error {
	return env.Store.DeleteAgentRuns(env.Ctx, "", env.Sprint.ID)
}

func TestSaveCheckpointWrongState(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Orch.SaveCheckpoint(env.Ctx, "", env.Sprint.ID, orchestrator.SaveCheckpointOptions{
		Step: domain.StepPlanning,
		Data: encodeCheckpoint(t, orchestrator.Checkpoint{Step: domain.StepPlanning}),
	})
	var se *orchestrator.StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError, got %v", err)
	}
}

func TestGateScoreOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	score := 45.0 // Security Scan tops out at 30
	_, err := env.Orch.SaveCheckpoint(env.Ctx, "", env.Sprint.ID, orchestrator.SaveCheckpointOptions{
		Step: domain.StepSecurity,
		Data: encodeCheckpoint(t, orchestrator.Checkpoint{Step: domain.StepSecurity}),
		Gate: &orchestrator.GateUpdate{
			GateName: "Security Scan",
			Status:   domain.GateFailed,
			Score:    &score,
		},
	})
	if !errors.Is(err, orchestrator.ErrScoreOutOfRange) {
		t.Fatalf("expected ErrScoreOutOfRange, got %v", err)
	}
	// Nothing should have been persisted for this call.
	sp, _ := env.Store.GetSprint(env.Ctx, "", env.Sprint.ID)
	if sp.CurrentStep != nil {
		t.Fatalf("checkpoint persisted despite score error")
	}
}

func findRun(t *testing.T, env testEnv, agentType domain.AgentType) domain.AgentRun {
	t.Helper()
	runs, err := env.Store.ListAgentRuns(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	for _, run := range runs {
		if run.AgentType == agentType {
			return run
		}
	}
	t.Fatalf("no run for %s", agentType)
	return domain.AgentRun{}
}

func findGate(t *testing.T, env testEnv, name string) domain.QualityGate {
	t.Helper()
	gates, err := env.Store.ListQualityGates(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("list gates: %v", err)
	}
	for _, gate := range gates {
		if gate.GateName == name {
			return gate
		}
	}
	t.Fatalf("no gate named %s", name)
	return domain.QualityGate{}
}

func TestResumeLifecycle(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	saveCheckpoint(t, env, domain.StepParallelDev, "senior_dev")

	// Resume is rejected while still running.
	_, err := env.Orch.Resume(env.Ctx, "", env.Sprint.ID)
	var se *orchestrator.StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError while running, got %v", err)
	}

	markStatus(t, env, domain.OrchestratorPaused)
	res, err := env.Orch.Resume(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Stage != "Resuming from parallel_dev/senior_dev" {
		t.Fatalf("stage = %q", res.Stage)
	}
	if res.Checkpoint.Step != domain.StepParallelDev || res.Checkpoint.Substep != "senior_dev" {
		t.Fatalf("checkpoint = %+v", res.Checkpoint)
	}
	if res.Agents.Total != 10 || res.Agents.Pending != 10 {
		t.Fatalf("agent summary = %+v", res.Agents)
	}
	if res.Gates.Total != 6 || res.Gates.Pending != 6 {
		t.Fatalf("gate summary = %+v", res.Gates)
	}
	// A fresh driver needs the repo and branch config to land in the right
	// workspace.
	if res.SprintID != env.Sprint.ID || res.Name != "Auth Revamp" {
		t.Fatalf("sprint identity = %d %q", res.SprintID, res.Name)
	}
	if res.TargetRepoPath == nil || *res.TargetRepoPath != "/srv/repos/platform" {
		t.Fatalf("repo path = %v", res.TargetRepoPath)
	}
	if res.BaseBranch != "main" {
		t.Fatalf("base branch = %q", res.BaseBranch)
	}
	if res.SprintBranch == nil || *res.SprintBranch != orchestrator.BranchName(env.Sprint.ID, env.Sprint.Name) {
		t.Fatalf("sprint branch = %v", res.SprintBranch)
	}

	sp, _ := env.Store.GetSprint(env.Ctx, "", env.Sprint.ID)
	if sp.OrchestratorStatus != domain.OrchestratorRunning {
		t.Fatalf("status after resume = %s", sp.OrchestratorStatus)
	}
	if sp.OrchestratorError != nil {
		t.Fatalf("error not cleared: %v", *sp.OrchestratorError)
	}
}

func TestResumeFromFailedClearsError(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	saveCheckpoint(t, env, domain.StepSecurity, "")

	msg := "driver lost connection"
	failed := domain.OrchestratorFailed
	if _, err := env.Store.UpdateSprint(env.Ctx, "", env.Sprint.ID, storage.UpdateSprintData{
		OrchestratorStatus: &failed,
		OrchestratorError:  &msg,
	}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	res, err := env.Orch.Resume(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("resume from failed: %v", err)
	}
	if res.Stage != "Resuming from security" {
		t.Fatalf("stage = %q", res.Stage)
	}
	sp, _ := env.Store.GetSprint(env.Ctx, "", env.Sprint.ID)
	if sp.OrchestratorError != nil {
		t.Fatalf("error survived resume")
	}
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	markStatus(t, env, domain.OrchestratorPaused)
	_, err := env.Orch.Resume(env.Ctx, "", env.Sprint.ID)
	if !errors.Is(err, orchestrator.ErrNoCheckpoint) {
		t.Fatalf("expected ErrNoCheckpoint, got %v", err)
	}
}

func TestResumeCorruptCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	saveCheckpoint(t, env, domain.StepMerge, "")
	corruptCheckpoint(t, env)
	markStatus(t, env, domain.OrchestratorPaused)
	_, err := env.Orch.Resume(env.Ctx, "", env.Sprint.ID)
	if !errors.Is(err, orchestrator.ErrCorruptCheckpoint) {
		t.Fatalf("expected ErrCorruptCheckpoint, got %v", err)
	}
}

func corruptCheckpoint(t *testing.T, env testEnv) {
	t.Helper()
	garbage := `{"step": truncated`
	if _, err := env.Store.UpdateSprint(env.Ctx, "", env.Sprint.ID, storage.UpdateSprintData{
		CheckpointData: &garbage,
	}); err != nil {
		t.Fatalf("corrupt checkpoint: %v", err)
	}
}

func TestLoadCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)

	// Before any save.
	res, err := env.Orch.LoadCheckpoint(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.HasCheckpoint {
		t.Fatalf("unexpected checkpoint before save")
	}

	saveCheckpoint(t, env, domain.StepDocs, "")
	res, err = env.Orch.LoadCheckpoint(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("load after save: %v", err)
	}
	if !res.HasCheckpoint || res.Checkpoint == nil || res.Checkpoint.Step != domain.StepDocs {
		t.Fatalf("load result = %+v", res)
	}

	// Corrupt blob reads as no checkpoint, not an error.
	corruptCheckpoint(t, env)
	res, err = env.Orch.LoadCheckpoint(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("load corrupt: %v", err)
	}
	if res.HasCheckpoint {
		t.Fatalf("corrupt blob reported as checkpoint")
	}
}

func TestStatusAggregates(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	saveCheckpoint(t, env, domain.StepParallelDev, "qa")

	_, err := env.Orch.SaveCheckpoint(env.Ctx, "", env.Sprint.ID, orchestrator.SaveCheckpointOptions{
		Step:    domain.StepParallelDev,
		Substep: "qa",
		Data:    encodeCheckpoint(t, orchestrator.Checkpoint{Step: domain.StepParallelDev, Substep: "qa"}),
		Agent:   &orchestrator.AgentUpdate{AgentType: domain.AgentTechLead, Status: domain.RunCompleted},
	})
	if err != nil {
		t.Fatalf("agent checkpoint: %v", err)
	}

	res, err := env.Orch.Status(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if res.Status != domain.OrchestratorRunning || !res.HasCheckpoint {
		t.Fatalf("status = %+v", res)
	}
	if res.Agents.Completed != 1 || res.Agents.Pending != 9 {
		t.Fatalf("agent summary = %+v", res.Agents)
	}
	if res.CurrentStep == nil || *res.CurrentStep != domain.StepParallelDev {
		t.Fatalf("current step = %v", res.CurrentStep)
	}
}

func TestResetReturnsSprintToIdle(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	saveCheckpoint(t, env, domain.StepPlanning, "")
	markStatus(t, env, domain.OrchestratorPaused)

	sp, err := env.Orch.Reset(env.Ctx, "", env.Sprint.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if sp.OrchestratorStatus != domain.OrchestratorIdle || sp.OrchestratorProgress != 0 {
		t.Fatalf("after reset: %s at %d", sp.OrchestratorStatus, sp.OrchestratorProgress)
	}
	if sp.SprintBranch != nil || sp.CheckpointData != nil || sp.CurrentStep != nil {
		t.Fatalf("reset left state behind: %+v", sp)
	}
	// Repo configuration survives.
	if sp.TargetRepoPath == nil {
		t.Fatalf("reset dropped repo configuration")
	}

	// A reset sprint can start again.
	if _, err := env.Orch.Start(env.Ctx, "", env.Sprint.ID); err != nil {
		t.Fatalf("start after reset: %v", err)
	}
}

func TestResetRejectedWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	_, err := env.Orch.Reset(env.Ctx, "", env.Sprint.ID)
	var se *orchestrator.StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError, got %v", err)
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	configureAndStart(t, env)
	saveCheckpoint(t, env, domain.StepPlanning, "")
	markStatus(t, env, domain.OrchestratorPaused)
	if _, err := env.Orch.Resume(env.Ctx, "", env.Sprint.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}

	events, err := env.Store.ListEvents(env.Ctx, "", "sprint", env.Sprint.ID, 50)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	seen := map[string]bool{}
	for _, e := range events {
		seen[e.Type] = true
	}
	for _, want := range []string{"sprint.configured", "orchestrator.started", "checkpoint.saved", "orchestrator.resumed"} {
		if !seen[want] {
			t.Errorf("missing event %s (have %v)", want, seen)
		}
	}
}
