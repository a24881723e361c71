package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"sprintdeck/internal/domain"
)

var (
	// ErrNotConfigured means start was attempted before a target repository
	// was set.
	ErrNotConfigured = errors.New("sprint has no target repository configured")

	// ErrNoCheckpoint means resume found nothing to resume from.
	ErrNoCheckpoint = errors.New("sprint has no checkpoint")

	// ErrCorruptCheckpoint means the stored blob cannot be decoded into a
	// usable checkpoint.
	ErrCorruptCheckpoint = errors.New("checkpoint data is corrupt")

	// ErrRepoRequired means configure was called with neither a repository
	// path nor a URL.
	ErrRepoRequired = errors.New("target repository path or url is required")

	// ErrInvalidStep means a checkpoint named a step outside the pipeline.
	ErrInvalidStep = errors.New("unknown pipeline step")

	// ErrScoreOutOfRange means a gate update carried a score outside
	// [0, max_score].
	ErrScoreOutOfRange = errors.New("gate score out of range")
)

// StateError reports an operation attempted in the wrong orchestrator state.
type StateError struct {
	Op       string
	Current  domain.OrchestratorStatus
	Required []domain.OrchestratorStatus
}

func (e *StateError) Error() string {
	required := make([]string, len(e.Required))
	for i, s := range e.Required {
		required[i] = string(s)
	}
	return fmt.Sprintf("cannot %s while %s (requires %s)", e.Op, e.Current, strings.Join(required, " or "))
}

func requireStatus(op string, current domain.OrchestratorStatus, allowed ...domain.OrchestratorStatus) error {
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return &StateError{Op: op, Current: current, Required: allowed}
}
