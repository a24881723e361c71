package storage

import (
	"context"
	"errors"
	"fmt"

	"sprintdeck/internal/config"
	"sprintdeck/internal/db"
	"sprintdeck/internal/domain"
	"sprintdeck/internal/migrate"
)

var ErrNotFound = errors.New("not found")

type CreateProjectData struct {
	Name        string
	Path        string
	Description string
}

type UpdateProjectData struct {
	Name        *string
	Path        *string
	Description *string
	IsActive    *bool
}

type TicketFilters struct {
	ProjectID int64
	PhaseID   int64
	SprintID  int64
	Status    domain.TicketStatus
	TagID     int64
}

type CreateTicketData struct {
	Title       string
	Description string
	ProjectID   *int64
	PhaseID     *int64
	SprintID    *int64
	Status      domain.TicketStatus
	Priority    int
	StartDate   *string
	DueDate     *string
	TagIDs      []int64
}

type UpdateTicketData struct {
	Title       *string
	Description *string
	ProjectID   *int64
	PhaseID     *int64
	SprintID    *int64
	Status      *domain.TicketStatus
	Priority    *int
	Position    *int
	StartDate   *string
	DueDate     *string
	TagIDs      []int64
	TagsSet     bool
}

type CreatePhaseData struct {
	ProjectID   int64
	Name        string
	Description string
	Status      string
	StartDate   *string
	EndDate     *string
}

type UpdatePhaseData struct {
	Name        *string
	Description *string
	Status      *string
	Position    *int
	StartDate   *string
	EndDate     *string
}

type CreateSprintData struct {
	PhaseID     int64
	Name        string
	Description string
	Goal        string
	Status      domain.SprintStatus
	StartDate   *string
	EndDate     *string
}

// UpdateSprintData carries partial sprint updates. Pointer fields are
// skipped when nil; the Clear flags null out fields that a nil pointer
// cannot distinguish from "leave alone".
type UpdateSprintData struct {
	Name        *string
	Description *string
	Goal        *string
	Status      *domain.SprintStatus
	Position    *int
	StartDate   *string
	EndDate     *string

	TargetRepoPath *string
	TargetRepoURL  *string
	BaseBranch     *string
	SprintBranch   *string

	OrchestratorStatus   *domain.OrchestratorStatus
	OrchestratorStage    *string
	ClearStage           bool
	OrchestratorProgress *int
	OrchestratorError    *string
	ClearError           bool

	CurrentStep      *domain.OrchestratorStep
	CurrentSubstep   *string
	ClearSubstep     bool
	CheckpointData   *string
	LastCheckpointAt *string

	// ClearBranch nulls sprint_branch; ClearCheckpoint nulls current_step,
	// current_substep, checkpoint_data and last_checkpoint_at.
	ClearBranch     bool
	ClearCheckpoint bool
}

type CreateAgentRunData struct {
	SprintID   int64
	AgentName  string
	AgentType  domain.AgentType
	BranchName *string
}

type UpdateAgentRunData struct {
	Status        *domain.AgentRunStatus
	BranchName    *string
	StartedAt     *string
	CompletedAt   *string
	OutputSummary *string
	ErrorMessage  *string
}

type CreateQualityGateData struct {
	SprintID int64
	GateName string
	GateType domain.GateType
	MaxScore *float64
}

type UpdateQualityGateData struct {
	Status   *domain.GateStatus
	Score    *float64
	PassedAt *string
	Details  *string
}

// Storage is the persistence boundary. Every operation is scoped by an
// owner id; the empty string selects single-user mode and matches rows
// with no owner. The orchestrator core depends only on this interface.
type Storage interface {
	// Projects
	ListProjects(ctx context.Context, ownerID string, activeOnly bool) ([]domain.Project, error)
	GetProject(ctx context.Context, ownerID string, id int64) (domain.Project, error)
	CreateProject(ctx context.Context, ownerID string, data CreateProjectData) (domain.Project, error)
	UpdateProject(ctx context.Context, ownerID string, id int64, data UpdateProjectData) (domain.Project, error)
	DeleteProject(ctx context.Context, ownerID string, id int64) error

	// Tags
	ListTags(ctx context.Context, ownerID string) ([]domain.Tag, error)
	CreateTag(ctx context.Context, ownerID, name, color string) (domain.Tag, error)
	DeleteTag(ctx context.Context, ownerID string, id int64) error

	// Tickets
	ListTickets(ctx context.Context, ownerID string, f TicketFilters) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, ownerID string, id int64) (domain.Ticket, error)
	CreateTicket(ctx context.Context, ownerID string, data CreateTicketData) (domain.Ticket, error)
	UpdateTicket(ctx context.Context, ownerID string, id int64, data UpdateTicketData) (domain.Ticket, error)
	DeleteTicket(ctx context.Context, ownerID string, id int64) error

	// Phases
	ListPhases(ctx context.Context, ownerID string, projectID int64) ([]domain.Phase, error)
	GetPhase(ctx context.Context, ownerID string, id int64) (domain.Phase, error)
	CreatePhase(ctx context.Context, ownerID string, data CreatePhaseData) (domain.Phase, error)
	UpdatePhase(ctx context.Context, ownerID string, id int64, data UpdatePhaseData) (domain.Phase, error)
	DeletePhase(ctx context.Context, ownerID string, id int64) error

	// Sprints. GetSprint loads agent runs and quality gates.
	ListSprints(ctx context.Context, ownerID string, phaseID int64) ([]domain.Sprint, error)
	GetSprint(ctx context.Context, ownerID string, id int64) (domain.Sprint, error)
	CreateSprint(ctx context.Context, ownerID string, data CreateSprintData) (domain.Sprint, error)
	UpdateSprint(ctx context.Context, ownerID string, id int64, data UpdateSprintData) (domain.Sprint, error)
	DeleteSprint(ctx context.Context, ownerID string, id int64) error

	// Agent runs
	ListAgentRuns(ctx context.Context, ownerID string, sprintID int64) ([]domain.AgentRun, error)
	CreateAgentRun(ctx context.Context, ownerID string, data CreateAgentRunData) (domain.AgentRun, error)
	UpdateAgentRun(ctx context.Context, ownerID string, id int64, data UpdateAgentRunData) (domain.AgentRun, error)
	DeleteAgentRuns(ctx context.Context, ownerID string, sprintID int64) error

	// Quality gates
	ListQualityGates(ctx context.Context, ownerID string, sprintID int64) ([]domain.QualityGate, error)
	CreateQualityGate(ctx context.Context, ownerID string, data CreateQualityGateData) (domain.QualityGate, error)
	UpdateQualityGate(ctx context.Context, ownerID string, id int64, data UpdateQualityGateData) (domain.QualityGate, error)
	DeleteQualityGates(ctx context.Context, ownerID string, sprintID int64) error

	// Event log
	AppendEvent(ctx context.Context, ownerID, evtType, entityKind string, entityID int64, payload map[string]any) error
	ListEvents(ctx context.Context, ownerID, entityKind string, entityID int64, limit int) ([]domain.Event, error)

	// API keys
	InsertAPIKey(ctx context.Context, key domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error)
	ListAPIKeys(ctx context.Context, ownerID string) ([]domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error

	Close() error
}

// Open builds the Storage selected by configuration. The driver is chosen
// once at startup, never inspected per call.
func Open(cfg *config.Config) (Storage, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		conn, err := db.Open(db.Config{Workspace: cfg.Storage.Workspace})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return NewSQLite(conn), nil
	default:
		return nil, fmt.Errorf("storage driver %q not supported", cfg.Storage.Driver)
	}
}
