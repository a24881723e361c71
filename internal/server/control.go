package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sprintdeck/internal/domain"
	"sprintdeck/internal/orchestrator"
)

// registerOrchestrator wires the sprint control surface. The checkpoint and
// resume endpoints are authenticated with the shared driver key by the auth
// middleware; configure, start and status use the regular user credential.
func registerOrchestrator(api huma.API, orch *orchestrator.Orchestrator) {
	huma.Register(api, huma.Operation{
		OperationID: "configure-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{sprint_id}/configure",
		Summary:     "Configure sprint repository",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SprintID int64                  `path:"sprint_id"`
		Body     ConfigureSprintRequest `json:"body"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		sp, err := orch.Configure(ctx, ownerFromContext(ctx), input.SprintID, orchestrator.ConfigureOptions{
			RepoPath:   input.Body.TargetRepoPath,
			RepoURL:    input.Body.TargetRepoURL,
			BaseBranch: input.Body.BaseBranch,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: sp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{sprint_id}/start",
		Summary:     "Start sprint orchestration",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SprintID int64 `path:"sprint_id"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		sp, err := orch.Start(ctx, ownerFromContext(ctx), input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: sp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-checkpoint",
		Method:      http.MethodPost,
		Path:        "/sprints/{sprint_id}/checkpoint",
		Summary:     "Save driver checkpoint",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		SprintID int64                 `path:"sprint_id"`
		Body     SaveCheckpointRequest `json:"body"`
	}) (*struct {
		Body SaveCheckpointResponse `json:"body"`
	}, error) {
		blob, err := json.Marshal(input.Body.CheckpointData)
		if err != nil {
			return nil, huma.Error400BadRequest("checkpoint_data is not serializable", err)
		}
		opts := orchestrator.SaveCheckpointOptions{
			Step:     input.Body.Step,
			Data:     string(blob),
			Stage:    input.Body.Stage,
			Progress: input.Body.Progress,
		}
		if input.Body.Substep != nil {
			opts.Substep = *input.Body.Substep
		}
		if input.Body.AgentUpdate != nil {
			opts.Agent = &orchestrator.AgentUpdate{
				AgentType:     input.Body.AgentUpdate.AgentType,
				Status:        input.Body.AgentUpdate.Status,
				BranchName:    input.Body.AgentUpdate.BranchName,
				OutputSummary: input.Body.AgentUpdate.OutputSummary,
				ErrorMessage:  input.Body.AgentUpdate.ErrorMessage,
			}
		}
		if input.Body.GateUpdate != nil {
			opts.Gate = &orchestrator.GateUpdate{
				GateName: input.Body.GateUpdate.GateName,
				Status:   input.Body.GateUpdate.Status,
				Score:    input.Body.GateUpdate.Score,
				Details:  input.Body.GateUpdate.Details,
			}
		}
		res, err := orch.SaveCheckpoint(ctx, ownerFromContext(ctx), input.SprintID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SaveCheckpointResponse `json:"body"`
		}{Body: SaveCheckpointResponse{
			Saved:            true,
			Step:             res.Step,
			Substep:          res.Substep,
			LastCheckpointAt: res.LastCheckpointAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "load-checkpoint",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/checkpoint",
		Summary:     "Load driver checkpoint",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		SprintID int64 `path:"sprint_id"`
	}) (*struct {
		Body LoadCheckpointResponse `json:"body"`
	}, error) {
		res, err := orch.LoadCheckpoint(ctx, ownerFromContext(ctx), input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		body := LoadCheckpointResponse{
			HasCheckpoint:    res.HasCheckpoint,
			Status:           res.Status,
			CurrentStep:      res.CurrentStep,
			CurrentSubstep:   res.CurrentSubstep,
			LastCheckpointAt: res.LastCheckpointAt,
		}
		if res.Checkpoint != nil {
			ckpt := checkpointResponse(*res.Checkpoint)
			body.Checkpoint = &ckpt
		}
		return &struct {
			Body LoadCheckpointResponse `json:"body"`
		}{Body: body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{sprint_id}/resume",
		Summary:     "Resume sprint from checkpoint",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		SprintID int64 `path:"sprint_id"`
	}) (*struct {
		Body ResumeResponse `json:"body"`
	}, error) {
		res, err := orch.Resume(ctx, ownerFromContext(ctx), input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResumeResponse `json:"body"`
		}{Body: ResumeResponse{
			SprintID:       res.SprintID,
			Name:           res.Name,
			TargetRepoPath: res.TargetRepoPath,
			TargetRepoURL:  res.TargetRepoURL,
			BaseBranch:     res.BaseBranch,
			SprintBranch:   res.SprintBranch,
			Progress:       res.Progress,
			Status:         domain.OrchestratorRunning,
			Stage:          res.Stage,
			Checkpoint:     checkpointResponse(res.Checkpoint),
			Agents:         agentSummaryBody(res.Agents),
			Gates:          gateSummaryBody(res.Gates),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sprint-status",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/status",
		Summary:     "Sprint orchestration status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID int64 `path:"sprint_id"`
	}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		res, err := orch.Status(ctx, ownerFromContext(ctx), input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{
			SprintID:         res.SprintID,
			Name:             res.Name,
			Status:           res.Status,
			Stage:            res.Stage,
			Progress:         res.Progress,
			Error:            res.Error,
			TargetRepoPath:   res.TargetRepoPath,
			TargetRepoURL:    res.TargetRepoURL,
			BaseBranch:       res.BaseBranch,
			SprintBranch:     res.SprintBranch,
			CurrentStep:      res.CurrentStep,
			CurrentSubstep:   res.CurrentSubstep,
			HasCheckpoint:    res.HasCheckpoint,
			LastCheckpointAt: res.LastCheckpointAt,
			Agents:           agentSummaryBody(res.Agents),
			Gates:            gateSummaryBody(res.Gates),
			AgentRuns:        res.AgentRuns,
			QualityGates:     res.QualityGates,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{sprint_id}/reset",
		Summary:     "Reset sprint orchestration state",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SprintID int64 `path:"sprint_id"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		sp, err := orch.Reset(ctx, ownerFromContext(ctx), input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: sp}, nil
	})
}
