package domain

type TicketStatus string

const (
	TicketBacklog    TicketStatus = "backlog"
	TicketInProgress TicketStatus = "in_progress"
	TicketReview     TicketStatus = "review"
	TicketDone       TicketStatus = "done"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketBacklog, TicketInProgress, TicketReview, TicketDone:
		return true
	}
	return false
}

type SprintStatus string

const (
	SprintPlanned   SprintStatus = "planned"
	SprintActive    SprintStatus = "active"
	SprintCompleted SprintStatus = "completed"
)

func (s SprintStatus) Valid() bool {
	switch s {
	case SprintPlanned, SprintActive, SprintCompleted:
		return true
	}
	return false
}

// OrchestratorStatus is the sprint orchestrator lifecycle state. Transitions
// are enforced by the orchestrator control surface, not by storage.
type OrchestratorStatus string

const (
	OrchestratorIdle         OrchestratorStatus = "idle"
	OrchestratorInitializing OrchestratorStatus = "initializing"
	OrchestratorRunning      OrchestratorStatus = "running"
	OrchestratorPaused       OrchestratorStatus = "paused"
	OrchestratorCompleted    OrchestratorStatus = "completed"
	OrchestratorFailed       OrchestratorStatus = "failed"
)

func (s OrchestratorStatus) Valid() bool {
	switch s {
	case OrchestratorIdle, OrchestratorInitializing, OrchestratorRunning,
		OrchestratorPaused, OrchestratorCompleted, OrchestratorFailed:
		return true
	}
	return false
}

// OrchestratorStep is the coarse checkpoint position. It groups the ten-agent
// pipeline into nine phases; parallel_dev covers the four agents that run
// concurrently in the real workflow.
type OrchestratorStep string

const (
	StepBranch      OrchestratorStep = "branch"
	StepPlanning    OrchestratorStep = "planning"
	StepParallelDev OrchestratorStep = "parallel_dev"
	StepMerge       OrchestratorStep = "merge"
	StepPerformance OrchestratorStep = "performance"
	StepDocs        OrchestratorStep = "docs"
	StepJanitor     OrchestratorStep = "janitor"
	StepSecurity    OrchestratorStep = "security"
	StepFinal       OrchestratorStep = "final"
)

func (s OrchestratorStep) Valid() bool {
	switch s {
	case StepBranch, StepPlanning, StepParallelDev, StepMerge, StepPerformance,
		StepDocs, StepJanitor, StepSecurity, StepFinal:
		return true
	}
	return false
}

type AgentType string

const (
	AgentTechLead     AgentType = "tech_lead"
	AgentAPIArchitect AgentType = "api_architect"
	AgentSeniorDev    AgentType = "senior_dev"
	AgentQA           AgentType = "qa"
	AgentPurpleTeam   AgentType = "purple_team"
	AgentPerformance  AgentType = "performance"
	AgentDocsWriter   AgentType = "docs_writer"
	AgentCodeJanitor  AgentType = "code_janitor"
	AgentRedTeam      AgentType = "red_team"
	AgentBlackTeam    AgentType = "black_team"
)

func (t AgentType) Valid() bool {
	switch t {
	case AgentTechLead, AgentAPIArchitect, AgentSeniorDev, AgentQA,
		AgentPurpleTeam, AgentPerformance, AgentDocsWriter, AgentCodeJanitor,
		AgentRedTeam, AgentBlackTeam:
		return true
	}
	return false
}

type AgentRunStatus string

const (
	RunPending   AgentRunStatus = "pending"
	RunRunning   AgentRunStatus = "running"
	RunCompleted AgentRunStatus = "completed"
	RunFailed    AgentRunStatus = "failed"
	RunSkipped   AgentRunStatus = "skipped"
)

func (s AgentRunStatus) Valid() bool {
	switch s {
	case RunPending, RunRunning, RunCompleted, RunFailed, RunSkipped:
		return true
	}
	return false
}

// Terminal reports whether the run status is an end state that stamps
// completed_at.
func (s AgentRunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunSkipped:
		return true
	}
	return false
}

type GateType string

const (
	GateAutomated GateType = "automated"
	GateManual    GateType = "manual"
)

func (t GateType) Valid() bool {
	return t == GateAutomated || t == GateManual
}

type GateStatus string

const (
	GatePending GateStatus = "pending"
	GatePassed  GateStatus = "passed"
	GateFailed  GateStatus = "failed"
	GateSkipped GateStatus = "skipped"
)

func (s GateStatus) Valid() bool {
	switch s {
	case GatePending, GatePassed, GateFailed, GateSkipped:
		return true
	}
	return false
}
