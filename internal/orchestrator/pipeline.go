package orchestrator

import "sprintdeck/internal/domain"

// pipelineAgent pairs a display name with the wire type the driver reports
// against.
type pipelineAgent struct {
	Name string
	Type domain.AgentType
}

// agentPipeline is the fixed roster seeded on every start, in execution
// order. senior_dev through purple_team run concurrently on the driver side;
// the roster is flat because bookkeeping does not care about concurrency.
var agentPipeline = []pipelineAgent{
	{"Tech Lead", domain.AgentTechLead},
	{"API Architect", domain.AgentAPIArchitect},
	{"Senior Developer", domain.AgentSeniorDev},
	{"QA Engineer", domain.AgentQA},
	{"Purple Team", domain.AgentPurpleTeam},
	{"Performance", domain.AgentPerformance},
	{"Docs Writer", domain.AgentDocsWriter},
	{"Code Janitor", domain.AgentCodeJanitor},
	{"Red Team", domain.AgentRedTeam},
	{"Black Team", domain.AgentBlackTeam},
}

type gateSpec struct {
	Name     string
	Type     domain.GateType
	MaxScore *float64
}

func maxScore(v float64) *float64 { return &v }

// qualityGateSpecs is the fixed gate set seeded on every start. Security
// Scan is scored against the red team rubric, hence the smaller ceiling.
var qualityGateSpecs = []gateSpec{
	{"Code Review", domain.GateAutomated, maxScore(100)},
	{"Test Coverage", domain.GateAutomated, maxScore(100)},
	{"Security Scan", domain.GateAutomated, maxScore(30)},
	{"Performance Audit", domain.GateAutomated, maxScore(100)},
	{"Documentation Check", domain.GateAutomated, maxScore(100)},
	{"Final Approval", domain.GateManual, nil},
}
