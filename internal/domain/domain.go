package domain

type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type Ticket struct {
	ID          int64        `json:"id"`
	ProjectID   *int64       `json:"project_id,omitempty"`
	PhaseID     *int64       `json:"phase_id,omitempty"`
	SprintID    *int64       `json:"sprint_id,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      TicketStatus `json:"status" enum:"backlog,in_progress,review,done"`
	Priority    int          `json:"priority" minimum:"0" maximum:"3"`
	Position    int          `json:"position"`
	StartDate   *string      `json:"start_date,omitempty"`
	DueDate     *string      `json:"due_date,omitempty"`
	Tags        []Tag        `json:"tags,omitempty"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
	UpdatedAt   string       `json:"updated_at" format:"date-time"`
}

type Phase struct {
	ID          int64   `json:"id"`
	ProjectID   int64   `json:"project_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"planned,active,completed"`
	Position    int     `json:"position"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// Sprint is the unit of orchestrated work. Beyond the scheduling fields it
// carries the orchestrator configuration and runtime state, including the
// opaque checkpoint blob that makes resume possible.
type Sprint struct {
	ID          int64        `json:"id"`
	PhaseID     int64        `json:"phase_id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Goal        string       `json:"goal,omitempty"`
	Status      SprintStatus `json:"status" enum:"planned,active,completed"`
	Position    int          `json:"position"`
	StartDate   *string      `json:"start_date,omitempty"`
	EndDate     *string      `json:"end_date,omitempty"`

	TargetRepoPath *string `json:"target_repo_path,omitempty"`
	TargetRepoURL  *string `json:"target_repo_url,omitempty"`
	BaseBranch     string  `json:"base_branch"`
	SprintBranch   *string `json:"sprint_branch,omitempty"`

	OrchestratorStatus   OrchestratorStatus `json:"orchestrator_status" enum:"idle,initializing,running,paused,completed,failed"`
	OrchestratorStage    *string            `json:"orchestrator_stage,omitempty"`
	OrchestratorProgress int                `json:"orchestrator_progress"`
	OrchestratorError    *string            `json:"orchestrator_error,omitempty"`

	CurrentStep      *OrchestratorStep `json:"current_step,omitempty"`
	CurrentSubstep   *string           `json:"current_substep,omitempty"`
	CheckpointData   *string           `json:"checkpoint_data,omitempty"`
	LastCheckpointAt *string           `json:"last_checkpoint_at,omitempty" format:"date-time"`

	AgentRuns    []AgentRun    `json:"agent_runs,omitempty"`
	QualityGates []QualityGate `json:"quality_gates,omitempty"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type AgentRun struct {
	ID            int64          `json:"id"`
	SprintID      int64          `json:"sprint_id"`
	AgentName     string         `json:"agent_name"`
	AgentType     AgentType      `json:"agent_type"`
	Status        AgentRunStatus `json:"status" enum:"pending,running,completed,failed,skipped"`
	BranchName    *string        `json:"branch_name,omitempty"`
	StartedAt     *string        `json:"started_at,omitempty" format:"date-time"`
	CompletedAt   *string        `json:"completed_at,omitempty" format:"date-time"`
	OutputSummary *string        `json:"output_summary,omitempty"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
}

type QualityGate struct {
	ID        int64      `json:"id"`
	SprintID  int64      `json:"sprint_id"`
	GateName  string     `json:"gate_name"`
	GateType  GateType   `json:"gate_type" enum:"automated,manual"`
	Status    GateStatus `json:"status" enum:"pending,passed,failed,skipped"`
	Score     *float64   `json:"score,omitempty"`
	MaxScore  *float64   `json:"max_score,omitempty"`
	PassedAt  *string    `json:"passed_at,omitempty" format:"date-time"`
	Details   *string    `json:"details,omitempty"`
	CreatedAt string     `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
