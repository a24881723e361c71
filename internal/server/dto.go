package server

import (
	"sprintdeck/internal/domain"
	"sprintdeck/internal/orchestrator"
)

// Requests. Responses reuse the domain structs, which carry the wire tags.

type CreateProjectRequest struct {
	Name        string `json:"name" minLength:"1"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Path        *string `json:"path,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type CreateTagRequest struct {
	Name  string `json:"name" minLength:"1"`
	Color string `json:"color,omitempty" pattern:"^#[0-9a-fA-F]{6}$"`
}

type CreateTicketRequest struct {
	Title       string              `json:"title" minLength:"1"`
	Description string              `json:"description,omitempty"`
	ProjectID   *int64              `json:"project_id,omitempty"`
	PhaseID     *int64              `json:"phase_id,omitempty"`
	SprintID    *int64              `json:"sprint_id,omitempty"`
	Status      domain.TicketStatus `json:"status,omitempty" enum:"backlog,in_progress,review,done"`
	Priority    int                 `json:"priority,omitempty" minimum:"0" maximum:"3"`
	StartDate   *string             `json:"start_date,omitempty"`
	DueDate     *string             `json:"due_date,omitempty"`
	TagIDs      []int64             `json:"tag_ids,omitempty"`
}

type UpdateTicketRequest struct {
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	ProjectID   *int64               `json:"project_id,omitempty"`
	PhaseID     *int64               `json:"phase_id,omitempty"`
	SprintID    *int64               `json:"sprint_id,omitempty"`
	Status      *domain.TicketStatus `json:"status,omitempty" enum:"backlog,in_progress,review,done"`
	Priority    *int                 `json:"priority,omitempty" minimum:"0" maximum:"3"`
	Position    *int                 `json:"position,omitempty"`
	StartDate   *string              `json:"start_date,omitempty"`
	DueDate     *string              `json:"due_date,omitempty"`
	TagIDs      []int64              `json:"tag_ids,omitempty"`
}

type CreatePhaseRequest struct {
	Name        string  `json:"name" minLength:"1"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status,omitempty" enum:"planned,active,completed"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
}

type UpdatePhaseRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"planned,active,completed"`
	Position    *int    `json:"position,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
}

type CreateSprintRequest struct {
	Name        string              `json:"name" minLength:"1"`
	Description string              `json:"description,omitempty"`
	Goal        string              `json:"goal,omitempty"`
	Status      domain.SprintStatus `json:"status,omitempty" enum:"planned,active,completed"`
	StartDate   *string             `json:"start_date,omitempty"`
	EndDate     *string             `json:"end_date,omitempty"`
}

type UpdateSprintRequest struct {
	Name        *string              `json:"name,omitempty"`
	Description *string              `json:"description,omitempty"`
	Goal        *string              `json:"goal,omitempty"`
	Status      *domain.SprintStatus `json:"status,omitempty" enum:"planned,active,completed"`
	Position    *int                 `json:"position,omitempty"`
	StartDate   *string              `json:"start_date,omitempty"`
	EndDate     *string              `json:"end_date,omitempty"`

	// The driver marks a sprint paused or failed through the regular patch.
	OrchestratorStatus *domain.OrchestratorStatus `json:"orchestrator_status,omitempty" enum:"idle,initializing,running,paused,completed,failed"`
	OrchestratorError  *string                    `json:"orchestrator_error,omitempty"`
}

type ConfigureSprintRequest struct {
	TargetRepoPath *string `json:"target_repo_path,omitempty"`
	TargetRepoURL  *string `json:"target_repo_url,omitempty"`
	BaseBranch     string  `json:"base_branch,omitempty"`
}

type AgentUpdatePayload struct {
	AgentType     domain.AgentType      `json:"agent_type" enum:"tech_lead,api_architect,senior_dev,qa,purple_team,performance,docs_writer,code_janitor,red_team,black_team"`
	Status        domain.AgentRunStatus `json:"status" enum:"pending,running,completed,failed,skipped"`
	BranchName    *string               `json:"branch_name,omitempty"`
	OutputSummary *string               `json:"output_summary,omitempty"`
	ErrorMessage  *string               `json:"error_message,omitempty"`
}

type GateUpdatePayload struct {
	GateName string            `json:"gate_name" minLength:"1"`
	Status   domain.GateStatus `json:"status" enum:"pending,passed,failed,skipped"`
	Score    *float64          `json:"score,omitempty"`
	Details  *string           `json:"details,omitempty"`
}

// SaveCheckpointRequest carries the resume coordinates at the top level and
// the checkpoint blob as an opaque object. The blob is persisted as sent;
// its internal fields are never rewritten server-side.
type SaveCheckpointRequest struct {
	Step           domain.OrchestratorStep `json:"step" enum:"branch,planning,parallel_dev,merge,performance,docs,janitor,security,final"`
	Substep        *string                 `json:"substep,omitempty"`
	Stage          *string                 `json:"stage,omitempty"`
	Progress       *int                    `json:"progress,omitempty" minimum:"0" maximum:"100"`
	CheckpointData map[string]any          `json:"checkpoint_data"`
	AgentUpdate    *AgentUpdatePayload     `json:"agent_update,omitempty"`
	GateUpdate     *GateUpdatePayload      `json:"gate_update,omitempty"`
}

type SaveCheckpointResponse struct {
	Saved            bool                    `json:"saved"`
	Step             domain.OrchestratorStep `json:"step"`
	Substep          string                  `json:"substep,omitempty"`
	LastCheckpointAt string                  `json:"last_checkpoint_at" format:"date-time"`
}

type LoadCheckpointResponse struct {
	HasCheckpoint    bool                       `json:"has_checkpoint"`
	Checkpoint       *orchestratorCheckpoint    `json:"checkpoint,omitempty"`
	Status           domain.OrchestratorStatus  `json:"status"`
	CurrentStep      *domain.OrchestratorStep   `json:"current_step,omitempty"`
	CurrentSubstep   *string                    `json:"current_substep,omitempty"`
	LastCheckpointAt *string                    `json:"last_checkpoint_at,omitempty" format:"date-time"`
}

// orchestratorCheckpoint mirrors orchestrator.Checkpoint on the wire.
type orchestratorCheckpoint struct {
	Version           int                     `json:"version"`
	Step              domain.OrchestratorStep `json:"step"`
	Substep           string                  `json:"substep,omitempty"`
	ContextTokensUsed int64                   `json:"context_tokens_used,omitempty"`
	LastAgentOutput   string                  `json:"last_agent_output,omitempty"`
	SecurityLoopCount int                     `json:"security_loop_count,omitempty"`
	RedTeamScore      *float64                `json:"red_team_score,omitempty"`
	Blockers          []string                `json:"blockers,omitempty"`
}

type ResumeResponse struct {
	SprintID       int64                     `json:"sprint_id"`
	Name           string                    `json:"name"`
	TargetRepoPath *string                   `json:"target_repo_path,omitempty"`
	TargetRepoURL  *string                   `json:"target_repo_url,omitempty"`
	BaseBranch     string                    `json:"base_branch"`
	SprintBranch   *string                   `json:"sprint_branch,omitempty"`
	Progress       int                       `json:"progress"`
	Status         domain.OrchestratorStatus `json:"status"`
	Stage          string                    `json:"stage"`
	Checkpoint     orchestratorCheckpoint    `json:"checkpoint"`
	Agents         AgentSummaryBody          `json:"agents"`
	Gates          GateSummaryBody           `json:"gates"`
}

type AgentSummaryBody struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type GateSummaryBody struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type StatusResponse struct {
	SprintID         int64                     `json:"sprint_id"`
	Name             string                    `json:"name"`
	Status           domain.OrchestratorStatus `json:"status"`
	Stage            *string                   `json:"stage,omitempty"`
	Progress         int                       `json:"progress"`
	Error            *string                   `json:"error,omitempty"`
	TargetRepoPath   *string                   `json:"target_repo_path,omitempty"`
	TargetRepoURL    *string                   `json:"target_repo_url,omitempty"`
	BaseBranch       string                    `json:"base_branch"`
	SprintBranch     *string                   `json:"sprint_branch,omitempty"`
	CurrentStep      *domain.OrchestratorStep  `json:"current_step,omitempty"`
	CurrentSubstep   *string                   `json:"current_substep,omitempty"`
	HasCheckpoint    bool                      `json:"has_checkpoint"`
	LastCheckpointAt *string                   `json:"last_checkpoint_at,omitempty" format:"date-time"`
	Agents           AgentSummaryBody          `json:"agents"`
	Gates            GateSummaryBody           `json:"gates"`
	AgentRuns        []domain.AgentRun         `json:"agent_runs,omitempty"`
	QualityGates     []domain.QualityGate      `json:"quality_gates,omitempty"`
}

func checkpointResponse(c orchestrator.Checkpoint) orchestratorCheckpoint {
	return orchestratorCheckpoint{
		Version:           c.Version,
		Step:              c.Step,
		Substep:           c.Substep,
		ContextTokensUsed: c.ContextTokensUsed,
		LastAgentOutput:   c.LastAgentOutput,
		SecurityLoopCount: c.SecurityLoopCount,
		RedTeamScore:      c.RedTeamScore,
		Blockers:          c.Blockers,
	}
}

func agentSummaryBody(s orchestrator.AgentSummary) AgentSummaryBody {
	return AgentSummaryBody(s)
}

func gateSummaryBody(s orchestrator.GateSummary) GateSummaryBody {
	return GateSummaryBody(s)
}
