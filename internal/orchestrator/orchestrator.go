// Package orchestrator is the bookkeeping core for driver-run sprints. It
// enforces the lifecycle state machine, seeds agent runs and quality gates,
// and owns the checkpoint protocol that makes a crashed driver resumable. It
// never executes agents itself.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sprintdeck/internal/domain"
	"sprintdeck/internal/storage"
)

type Orchestrator struct {
	Store storage.Storage
	Now   func() time.Time
}

func New(store storage.Storage) *Orchestrator {
	return &Orchestrator{Store: store, Now: time.Now}
}

func (o *Orchestrator) now() string {
	return o.Now().UTC().Format(time.RFC3339)
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func statusPtr(v domain.OrchestratorStatus) *domain.OrchestratorStatus { return &v }

// slugify lowercases the name and collapses every run of non-alphanumerics
// into a single dash.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BranchName derives the working branch for a sprint.
func BranchName(sprintID int64, name string) string {
	slug := slugify(name)
	if slug == "" {
		slug = "sprint"
	}
	return fmt.Sprintf("sprint/%d-%s", sprintID, slug)
}

type ConfigureOptions struct {
	RepoPath   *string
	RepoURL    *string
	BaseBranch string
}

// Configure binds a sprint to a target repository. Allowed while idle or
// failed; it rewinds the orchestrator to idle but leaves any previous
// checkpoint in place so a configure between failures does not destroy the
// resume point.
func (o *Orchestrator) Configure(ctx context.Context, ownerID string, sprintID int64, opts ConfigureOptions) (domain.Sprint, error) {
	sprint, err := o.Store.GetSprint(ctx, ownerID, sprintID)
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := requireStatus("configure", sprint.OrchestratorStatus,
		domain.OrchestratorIdle, domain.OrchestratorFailed); err != nil {
		return domain.Sprint{}, err
	}
	if opts.RepoPath == nil && opts.RepoURL == nil &&
		sprint.TargetRepoPath == nil && sprint.TargetRepoURL == nil {
		return domain.Sprint{}, ErrRepoRequired
	}

	update := storage.UpdateSprintData{
		TargetRepoPath:       opts.RepoPath,
		TargetRepoURL:        opts.RepoURL,
		OrchestratorStatus:   statusPtr(domain.OrchestratorIdle),
		ClearStage:           true,
		OrchestratorProgress: intPtr(0),
		ClearError:           true,
	}
	if opts.BaseBranch != "" {
		update.BaseBranch = &opts.BaseBranch
	}
	sprint, err = o.Store.UpdateSprint(ctx, ownerID, sprintID, update)
	if err != nil {
		return domain.Sprint{}, err
	}
	_ = o.Store.AppendEvent(ctx, ownerID, "sprint.configured", "sprint", sprintID, map[string]any{
		"base_branch": sprint.BaseBranch,
	})
	return sprint, nil
}

// Start transitions a configured sprint into the running state: it names the
// sprint branch, wipes any bookkeeping from a previous attempt and seeds the
// full agent roster and gate set as pending.
func (o *Orchestrator) Start(ctx context.Context, ownerID string, sprintID int64) (domain.Sprint, error) {
	sprint, err := o.Store.GetSprint(ctx, ownerID, sprintID)
	if err != nil {
		return domain.Sprint{}, err
	}
	if sprint.TargetRepoPath == nil && sprint.TargetRepoURL == nil {
		return domain.Sprint{}, ErrNotConfigured
	}
	if err := requireStatus("start", sprint.OrchestratorStatus,
		domain.OrchestratorIdle, domain.OrchestratorFailed); err != nil {
		return domain.Sprint{}, err
	}

	branch := BranchName(sprint.ID, sprint.Name)
	if _, err := o.Store.UpdateSprint(ctx, ownerID, sprintID, storage.UpdateSprintData{
		OrchestratorStatus:   statusPtr(domain.OrchestratorInitializing),
		OrchestratorStage:    strPtr("Setting up sprint branch"),
		OrchestratorProgress: intPtr(0),
		SprintBranch:         &branch,
		ClearError:           true,
		ClearCheckpoint:      true,
	}); err != nil {
		return domain.Sprint{}, err
	}

	if err := o.Store.DeleteAgentRuns(ctx, ownerID, sprintID); err != nil {
		return domain.Sprint{}, err
	}
	if err := o.Store.DeleteQualityGates(ctx, ownerID, sprintID); err != nil {
		return domain.Sprint{}, err
	}
	for _, agent := range agentPipeline {
		if _, err := o.Store.CreateAgentRun(ctx, ownerID, storage.CreateAgentRunData{
			SprintID:  sprintID,
			AgentName: agent.Name,
			AgentType: agent.Type,
		}); err != nil {
			return domain.Sprint{}, err
		}
	}
	for _, gate := range qualityGateSpecs {
		if _, err := o.Store.CreateQualityGate(ctx, ownerID, storage.CreateQualityGateData{
			SprintID: sprintID,
			GateName: gate.Name,
			GateType: gate.Type,
			MaxScore: gate.MaxScore,
		}); err != nil {
			return domain.Sprint{}, err
		}
	}

	sprint, err = o.Store.UpdateSprint(ctx, ownerID, sprintID, storage.UpdateSprintData{
		OrchestratorStatus:   statusPtr(domain.OrchestratorRunning),
		OrchestratorStage:    strPtr("Tech Lead evaluation"),
		OrchestratorProgress: intPtr(5),
	})
	if err != nil {
		return domain.Sprint{}, err
	}
	_ = o.Store.AppendEvent(ctx, ownerID, "orchestrator.started", "sprint", sprintID, map[string]any{
		"branch": branch,
	})
	return sprint, nil
}

// AgentUpdate is a driver report about one agent, addressed by type.
type AgentUpdate struct {
	AgentType     domain.AgentType
	Status        domain.AgentRunStatus
	BranchName    *string
	OutputSummary *string
	ErrorMessage  *string
}

// GateUpdate is a driver report about one quality gate, addressed by name.
type GateUpdate struct {
	GateName string
	Status   domain.GateStatus
	Score    *float64
	Details  *string
}

type SaveCheckpointOptions struct {
	Step     domain.OrchestratorStep
	Substep  string
	Stage    *string
	Progress *int
	// Data is the serialized checkpoint blob. It is stored verbatim; the
	// orchestrator only checks that it decodes, it never rewrites it.
	Data  string
	Agent *AgentUpdate
	Gate  *GateUpdate
}

type SaveCheckpointResult struct {
	Step             domain.OrchestratorStep
	Substep          string
	LastCheckpointAt string
}

// SaveCheckpoint records the driver's resume state plus optional status
// refreshes. Agent and gate updates address rows by type and name; an
// unknown address is skipped rather than failing the checkpoint, because
// losing the resume point is worse than losing one status update.
func (o *Orchestrator) SaveCheckpoint(ctx context.Context, ownerID string, sprintID int64, opts SaveCheckpointOptions) (SaveCheckpointResult, error) {
	sprint, err := o.Store.GetSprint(ctx, ownerID, sprintID)
	if err != nil {
		return SaveCheckpointResult{}, err
	}
	if err := requireStatus("save checkpoint", sprint.OrchestratorStatus,
		domain.OrchestratorRunning, domain.OrchestratorInitializing); err != nil {
		return SaveCheckpointResult{}, err
	}
	if !opts.Step.Valid() {
		return SaveCheckpointResult{}, fmt.Errorf("%w: %q", ErrInvalidStep, opts.Step)
	}
	if opts.Gate != nil && opts.Gate.Score != nil {
		if err := o.validateGateScore(sprint, opts.Gate); err != nil {
			return SaveCheckpointResult{}, err
		}
	}
	if _, err := DecodeCheckpoint(opts.Data); err != nil {
		return SaveCheckpointResult{}, err
	}

	now := o.now()
	step := opts.Step
	blob := opts.Data
	update := storage.UpdateSprintData{
		CurrentStep:          &step,
		CheckpointData:       &blob,
		LastCheckpointAt:     &now,
		OrchestratorStage:    opts.Stage,
		OrchestratorProgress: opts.Progress,
	}
	if opts.Substep != "" {
		update.CurrentSubstep = strPtr(opts.Substep)
	} else {
		update.ClearSubstep = true
	}
	if _, err := o.Store.UpdateSprint(ctx, ownerID, sprintID, update); err != nil {
		return SaveCheckpointResult{}, err
	}

	if opts.Agent != nil {
		o.applyAgentUpdate(ctx, ownerID, sprint, opts.Agent, now)
	}
	if opts.Gate != nil {
		o.applyGateUpdate(ctx, ownerID, sprint, opts.Gate, now)
	}

	_ = o.Store.AppendEvent(ctx, ownerID, "checkpoint.saved", "sprint", sprintID, map[string]any{
		"step":    string(step),
		"substep": opts.Substep,
	})
	return SaveCheckpointResult{
		Step:             step,
		Substep:          opts.Substep,
		LastCheckpointAt: now,
	}, nil
}

func (o *Orchestrator) validateGateScore(sprint domain.Sprint, upd *GateUpdate) error {
	for _, gate := range sprint.QualityGates {
		if gate.GateName != upd.GateName {
			continue
		}
		if *upd.Score < 0 || (gate.MaxScore != nil && *upd.Score > *gate.MaxScore) {
			return fmt.Errorf("%w: %s scored %g", ErrScoreOutOfRange, upd.GateName, *upd.Score)
		}
		return nil
	}
	return nil
}

func (o *Orchestrator) applyAgentUpdate(ctx context.Context, ownerID string, sprint domain.Sprint, upd *AgentUpdate, now string) {
	for _, run := range sprint.AgentRuns {
		if run.AgentType != upd.AgentType {
			continue
		}
		data := storage.UpdateAgentRunData{
			Status:        &upd.Status,
			BranchName:    upd.BranchName,
			OutputSummary: upd.OutputSummary,
			ErrorMessage:  upd.ErrorMessage,
		}
		if upd.Status == domain.RunRunning && run.StartedAt == nil {
			data.StartedAt = &now
		}
		if upd.Status.Terminal() && run.CompletedAt == nil {
			data.CompletedAt = &now
		}
		_, _ = o.Store.UpdateAgentRun(ctx, ownerID, run.ID, data)
		return
	}
}

func (o *Orchestrator) applyGateUpdate(ctx context.Context, ownerID string, sprint domain.Sprint, upd *GateUpdate, now string) {
	for _, gate := range sprint.QualityGates {
		if gate.GateName != upd.GateName {
			continue
		}
		data := storage.UpdateQualityGateData{
			Status:  &upd.Status,
			Score:   upd.Score,
			Details: upd.Details,
		}
		if upd.Status == domain.GatePassed && gate.PassedAt == nil {
			data.PassedAt = &now
		}
		_, _ = o.Store.UpdateQualityGate(ctx, ownerID, gate.ID, data)
		return
	}
}

type LoadCheckpointResult struct {
	HasCheckpoint    bool
	Checkpoint       *Checkpoint
	Status           domain.OrchestratorStatus
	CurrentStep      *domain.OrchestratorStep
	CurrentSubstep   *string
	LastCheckpointAt *string
}

// LoadCheckpoint is a read-only peek at the stored resume state. A missing
// or corrupt blob reads as "no checkpoint"; inspection never fails the call.
func (o *Orchestrator) LoadCheckpoint(ctx context.Context, ownerID string, sprintID int64) (LoadCheckpointResult, error) {
	sprint, err := o.Store.GetSprint(ctx, ownerID, sprintID)
	if err != nil {
		return LoadCheckpointResult{}, err
	}
	res := LoadCheckpointResult{
		Status:           sprint.OrchestratorStatus,
		CurrentStep:      sprint.CurrentStep,
		CurrentSubstep:   sprint.CurrentSubstep,
		LastCheckpointAt: sprint.LastCheckpointAt,
	}
	if sprint.CheckpointData == nil {
		return res, nil
	}
	ckpt, err := DecodeCheckpoint(*sprint.CheckpointData)
	if err != nil {
		return res, nil
	}
	res.HasCheckpoint = true
	res.Checkpoint = &ckpt
	return res, nil
}

type AgentSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type GateSummary struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func summarize(runs []domain.AgentRun, gates []domain.QualityGate) (AgentSummary, GateSummary) {
	var as AgentSummary
	as.Total = len(runs)
	for _, r := range runs {
		switch r.Status {
		case domain.RunPending:
			as.Pending++
		case domain.RunRunning:
			as.Running++
		case domain.RunCompleted:
			as.Completed++
		case domain.RunFailed:
			as.Failed++
		case domain.RunSkipped:
			as.Skipped++
		}
	}
	var gs GateSummary
	gs.Total = len(gates)
	for _, g := range gates {
		switch g.Status {
		case domain.GatePending:
			gs.Pending++
		case domain.GatePassed:
			gs.Passed++
		case domain.GateFailed:
			gs.Failed++
		case domain.GateSkipped:
			gs.Skipped++
		}
	}
	return as, gs
}

type ResumeResult struct {
	SprintID       int64
	Name           string
	TargetRepoPath *string
	TargetRepoURL  *string
	BaseBranch     string
	SprintBranch   *string
	Progress       int
	Checkpoint     Checkpoint
	Stage          string
	Agents         AgentSummary
	Gates          GateSummary
}

// Resume revives a paused or failed sprint from its last checkpoint. The
// three failure modes are distinct: wrong state, no checkpoint, and a
// checkpoint that cannot be decoded. The summary echoes the sprint's repo
// and branch configuration so a fresh driver can verify its workspace.
func (o *Orchestrator) Resume(ctx context.Context, ownerID string, sprintID int64) (ResumeResult, error) {
	sprint, err := o.Store.GetSprint(ctx, ownerID, sprintID)
	if err != nil {
		return ResumeResult{}, err
	}
	if err := requireStatus("resume", sprint.OrchestratorStatus,
		domain.OrchestratorPaused, domain.OrchestratorFailed); err != nil {
		return ResumeResult{}, err
	}
	if sprint.CurrentStep == nil || sprint.CheckpointData == nil {
		return ResumeResult{}, ErrNoCheckpoint
	}
	ckpt, err := DecodeCheckpoint(*sprint.CheckpointData)
	if err != nil {
		return ResumeResult{}, err
	}

	stage := "Resuming from " + string(*sprint.CurrentStep)
	if sprint.CurrentSubstep != nil {
		stage += "/" + *sprint.CurrentSubstep
	}
	if _, err := o.Store.UpdateSprint(ctx, ownerID, sprintID, storage.UpdateSprintData{
		OrchestratorStatus: statusPtr(domain.OrchestratorRunning),
		OrchestratorStage:  &stage,
		ClearError:         true,
	}); err != nil {
		return ResumeResult{}, err
	}

	agents, gates := summarize(sprint.AgentRuns, sprint.QualityGates)
	_ = o.Store.AppendEvent(ctx, ownerID, "orchestrator.resumed", "sprint", sprintID, map[string]any{
		"step":    string(ckpt.Step),
		"substep": ckpt.Substep,
	})
	return ResumeResult{
		SprintID:       sprint.ID,
		Name:           sprint.Name,
		TargetRepoPath: sprint.TargetRepoPath,
		TargetRepoURL:  sprint.TargetRepoURL,
		BaseBranch:     sprint.BaseBranch,
		SprintBranch:   sprint.SprintBranch,
		Progress:       sprint.OrchestratorProgress,
		Checkpoint:     ckpt,
		Stage:          stage,
		Agents:         agents,
		Gates:          gates,
	}, nil
}

type StatusResult struct {
	SprintID         int64
	Name             string
	Status           domain.OrchestratorStatus
	Stage            *string
	Progress         int
	Error            *string
	TargetRepoPath   *string
	TargetRepoURL    *string
	BaseBranch       string
	SprintBranch     *string
	CurrentStep      *domain.OrchestratorStep
	CurrentSubstep   *string
	HasCheckpoint    bool
	LastCheckpointAt *string
	Agents           AgentSummary
	Gates            GateSummary
	AgentRuns        []domain.AgentRun
	QualityGates     []domain.QualityGate
}

// Status aggregates the orchestrator view of a sprint. Read-only, valid in
// any state.
func (o *Orchestrator) Status(ctx context.Context, ownerID string, sprintID int64) (StatusResult, error) {
	sprint, err := o.Store.GetSprint(ctx, ownerID, sprintID)
	if err != nil {
		return StatusResult{}, err
	}
	agents, gates := summarize(sprint.AgentRuns, sprint.QualityGates)
	hasCkpt := false
	if sprint.CheckpointData != nil {
		if _, err := DecodeCheckpoint(*sprint.CheckpointData); err == nil {
			hasCkpt = true
		}
	}
	return StatusResult{
		SprintID:         sprint.ID,
		Name:             sprint.Name,
		Status:           sprint.OrchestratorStatus,
		Stage:            sprint.OrchestratorStage,
		Progress:         sprint.OrchestratorProgress,
		Error:            sprint.OrchestratorError,
		TargetRepoPath:   sprint.TargetRepoPath,
		TargetRepoURL:    sprint.TargetRepoURL,
		BaseBranch:       sprint.BaseBranch,
		SprintBranch:     sprint.SprintBranch,
		CurrentStep:      sprint.CurrentStep,
		CurrentSubstep:   sprint.CurrentSubstep,
		HasCheckpoint:    hasCkpt,
		LastCheckpointAt: sprint.LastCheckpointAt,
		Agents:           agents,
		Gates:            gates,
		AgentRuns:        sprint.AgentRuns,
		QualityGates:     sprint.QualityGates,
	}, nil
}

// Reset force-returns a sprint to idle, discarding branch, checkpoint and
// error state. It is the operator escape hatch for a driver that died
// between start and its first checkpoint; a running sprint must be paused or
// failed first.
func (o *Orchestrator) Reset(ctx context.Context, ownerID string, sprintID int64) (domain.Sprint, error) {
	sprint, err := o.Store.GetSprint(ctx, ownerID, sprintID)
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := requireStatus("reset", sprint.OrchestratorStatus,
		domain.OrchestratorIdle, domain.OrchestratorInitializing,
		domain.OrchestratorPaused, domain.OrchestratorCompleted, domain.OrchestratorFailed); err != nil {
		return domain.Sprint{}, err
	}
	sprint, err = o.Store.UpdateSprint(ctx, ownerID, sprintID, storage.UpdateSprintData{
		OrchestratorStatus:   statusPtr(domain.OrchestratorIdle),
		ClearStage:           true,
		OrchestratorProgress: intPtr(0),
		ClearError:           true,
		ClearBranch:          true,
		ClearCheckpoint:      true,
	})
	if err != nil {
		return domain.Sprint{}, err
	}
	_ = o.Store.AppendEvent(ctx, ownerID, "orchestrator.reset", "sprint", sprintID, nil)
	return sprint, nil
}
