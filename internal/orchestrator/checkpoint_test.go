package orchestrator_test

import (
	"errors"
	"strings"
	"testing"

	"sprintdeck/internal/domain"
	"sprintdeck/internal/orchestrator"
)

func TestCheckpointRoundTrip(t *testing.T) {
	score := 92.5
	in := orchestrator.Checkpoint{
		Step:              domain.StepParallelDev,
		Substep:           "qa",
		ContextTokensUsed: 310_000,
		LastAgentOutput:   "all suites green",
		SecurityLoopCount: 2,
		RedTeamScore:      &score,
		Blockers:          []string{"waiting on schema review"},
	}
	blob, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := orchestrator.DecodeCheckpoint(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Step != in.Step || out.Substep != in.Substep {
		t.Fatalf("position lost: %+v", out)
	}
	if out.ContextTokensUsed != in.ContextTokensUsed || out.SecurityLoopCount != 2 {
		t.Fatalf("counters lost: %+v", out)
	}
	if out.RedTeamScore == nil || *out.RedTeamScore != score {
		t.Fatalf("red team score = %v", out.RedTeamScore)
	}
	if len(out.Blockers) != 1 || out.Blockers[0] != in.Blockers[0] {
		t.Fatalf("blockers = %v", out.Blockers)
	}
}

func TestEncodeStampsVersion(t *testing.T) {
	blob, err := orchestrator.Checkpoint{Step: domain.StepPlanning}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(blob, `"version":1`) {
		t.Fatalf("version not stamped: %s", blob)
	}
}

func TestDecodeMissingVersionReadsAsOne(t *testing.T) {
	out, err := orchestrator.DecodeCheckpoint(`{"step":"planning"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Version != 1 || out.Step != domain.StepPlanning {
		t.Fatalf("got %+v", out)
	}
}

func TestDecodeRejectsNewerVersion(t *testing.T) {
	_, err := orchestrator.DecodeCheckpoint(`{"version":2,"step":"planning"}`)
	if !errors.Is(err, orchestrator.ErrCorruptCheckpoint) {
		t.Fatalf("expected ErrCorruptCheckpoint, got %v", err)
	}
}

func TestDecodeRejectsUnknownStep(t *testing.T) {
	_, err := orchestrator.DecodeCheckpoint(`{"version":1,"step":"teleport"}`)
	if !errors.Is(err, orchestrator.ErrCorruptCheckpoint) {
		t.Fatalf("expected ErrCorruptCheckpoint, got %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, blob := range []string{"", "not json", `{"step":`} {
		if _, err := orchestrator.DecodeCheckpoint(blob); !errors.Is(err, orchestrator.ErrCorruptCheckpoint) {
			t.Errorf("DecodeCheckpoint(%q) = %v, want ErrCorruptCheckpoint", blob, err)
		}
	}
}
