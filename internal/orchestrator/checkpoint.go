package orchestrator

import (
	"encoding/json"
	"fmt"

	"sprintdeck/internal/domain"
)

// CheckpointVersion is the current blob format version. Blobs without a
// version field are treated as version 1; blobs from a newer format are
// corrupt as far as this build is concerned.
const CheckpointVersion = 1

// Checkpoint is the driver-supplied resume state. The orchestrator validates
// shape and step on the way in and hands the blob back verbatim on resume;
// the meaning of the payload fields belongs to the driver.
type Checkpoint struct {
	Version           int                     `json:"version,omitempty"`
	Step              domain.OrchestratorStep `json:"step"`
	Substep           string                  `json:"substep,omitempty"`
	ContextTokensUsed int64                   `json:"context_tokens_used,omitempty"`
	LastAgentOutput   string                  `json:"last_agent_output,omitempty"`
	SecurityLoopCount int                     `json:"security_loop_count,omitempty"`
	RedTeamScore      *float64                `json:"red_team_score,omitempty"`
	Blockers          []string                `json:"blockers,omitempty"`
}

// Encode serializes the checkpoint for storage, stamping the current version.
func (c Checkpoint) Encode() (string, error) {
	c.Version = CheckpointVersion
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	return string(data), nil
}

// DecodeCheckpoint parses a stored blob. Any failure to produce a usable
// checkpoint comes back as ErrCorruptCheckpoint so callers have a single
// condition to branch on.
func DecodeCheckpoint(raw string) (Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Checkpoint{}, ErrCorruptCheckpoint
	}
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Version > CheckpointVersion {
		return Checkpoint{}, ErrCorruptCheckpoint
	}
	if !c.Step.Valid() {
		return Checkpoint{}, ErrCorruptCheckpoint
	}
	return c, nil
}
