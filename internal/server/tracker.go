package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sprintdeck/internal/domain"
	"sprintdeck/internal/storage"
)

func registerProjects(api huma.API, store storage.Storage) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		Active bool `query:"active" doc:"Only active projects"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := store.ListProjects(ctx, ownerFromContext(ctx), input.Active)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		p, err := store.CreateProject(ctx, ownerFromContext(ctx), storage.CreateProjectData{
			Name:        input.Body.Name,
			Path:        input.Body.Path,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := store.GetProject(ctx, ownerFromContext(ctx), input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := store.UpdateProject(ctx, ownerFromContext(ctx), input.ProjectID, storage.UpdateProjectData{
			Name:        input.Body.Name,
			Path:        input.Body.Path,
			Description: input.Body.Description,
			IsActive:    input.Body.IsActive,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct{}, error) {
		if err := store.DeleteProject(ctx, ownerFromContext(ctx), input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTags(api huma.API, store storage.Storage) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tags",
		Method:      http.MethodGet,
		Path:        "/tags",
		Summary:     "List tags",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Tag `json:"body"`
	}, error) {
		items, err := store.ListTags(ctx, ownerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Tag `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-tag",
		Method:        http.MethodPost,
		Path:          "/tags",
		Summary:       "Create tag",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateTagRequest `json:"body"`
	}) (*struct {
		Body domain.Tag `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		t, err := store.CreateTag(ctx, ownerFromContext(ctx), input.Body.Name, input.Body.Color)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Tag `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-tag",
		Method:      http.MethodDelete,
		Path:        "/tags/{tag_id}",
		Summary:     "Delete tag",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TagID int64 `path:"tag_id"`
	}) (*struct{}, error) {
		if err := store.DeleteTag(ctx, ownerFromContext(ctx), input.TagID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTickets(api huma.API, store storage.Storage) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tickets",
		Method:      http.MethodGet,
		Path:        "/tickets",
		Summary:     "List tickets",
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `query:"project_id"`
		PhaseID   int64  `query:"phase_id"`
		SprintID  int64  `query:"sprint_id"`
		Status    string `query:"status" enum:",backlog,in_progress,review,done"`
		TagID     int64  `query:"tag_id"`
	}) (*struct {
		Body []domain.Ticket `json:"body"`
	}, error) {
		items, err := store.ListTickets(ctx, ownerFromContext(ctx), storage.TicketFilters{
			ProjectID: input.ProjectID,
			PhaseID:   input.PhaseID,
			SprintID:  input.SprintID,
			Status:    domain.TicketStatus(input.Status),
			TagID:     input.TagID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Ticket `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-ticket",
		Method:        http.MethodPost,
		Path:          "/tickets",
		Summary:       "Create ticket",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTicketRequest `json:"body"`
	}) (*struct {
		Body domain.Ticket `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		t, err := store.CreateTicket(ctx, ownerFromContext(ctx), storage.CreateTicketData{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			ProjectID:   input.Body.ProjectID,
			PhaseID:     input.Body.PhaseID,
			SprintID:    input.Body.SprintID,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			StartDate:   input.Body.StartDate,
			DueDate:     input.Body.DueDate,
			TagIDs:      input.Body.TagIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ticket `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ticket",
		Method:      http.MethodGet,
		Path:        "/tickets/{ticket_id}",
		Summary:     "Get ticket",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TicketID int64 `path:"ticket_id"`
	}) (*struct {
		Body domain.Ticket `json:"body"`
	}, error) {
		t, err := store.GetTicket(ctx, ownerFromContext(ctx), input.TicketID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ticket `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-ticket",
		Method:      http.MethodPatch,
		Path:        "/tickets/{ticket_id}",
		Summary:     "Update ticket",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TicketID int64               `path:"ticket_id"`
		Body     UpdateTicketRequest `json:"body"`
	}) (*struct {
		Body domain.Ticket `json:"body"`
	}, error) {
		t, err := store.UpdateTicket(ctx, ownerFromContext(ctx), input.TicketID, storage.UpdateTicketData{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			ProjectID:   input.Body.ProjectID,
			PhaseID:     input.Body.PhaseID,
			SprintID:    input.Body.SprintID,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			Position:    input.Body.Position,
			StartDate:   input.Body.StartDate,
			DueDate:     input.Body.DueDate,
			TagIDs:      input.Body.TagIDs,
			TagsSet:     input.Body.TagIDs != nil,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ticket `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-ticket",
		Method:      http.MethodDelete,
		Path:        "/tickets/{ticket_id}",
		Summary:     "Delete ticket",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TicketID int64 `path:"ticket_id"`
	}) (*struct{}, error) {
		if err := store.DeleteTicket(ctx, ownerFromContext(ctx), input.TicketID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerPhases(api huma.API, store storage.Storage) {
	huma.Register(api, huma.Operation{
		OperationID: "list-phases",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/phases",
		Summary:     "List phases",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body []domain.Phase `json:"body"`
	}, error) {
		if _, err := store.GetProject(ctx, ownerFromContext(ctx), input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := store.ListPhases(ctx, ownerFromContext(ctx), input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Phase `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-phase",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/phases",
		Summary:       "Create phase",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64              `path:"project_id"`
		Body      CreatePhaseRequest `json:"body"`
	}) (*struct {
		Body domain.Phase `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		p, err := store.CreatePhase(ctx, ownerFromContext(ctx), storage.CreatePhaseData{
			ProjectID:   input.ProjectID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			StartDate:   input.Body.StartDate,
			EndDate:     input.Body.EndDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Phase `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-phase",
		Method:      http.MethodPatch,
		Path:        "/phases/{phase_id}",
		Summary:     "Update phase",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PhaseID int64              `path:"phase_id"`
		Body    UpdatePhaseRequest `json:"body"`
	}) (*struct {
		Body domain.Phase `json:"body"`
	}, error) {
		p, err := store.UpdatePhase(ctx, ownerFromContext(ctx), input.PhaseID, storage.UpdatePhaseData{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Position:    input.Body.Position,
			StartDate:   input.Body.StartDate,
			EndDate:     input.Body.EndDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Phase `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-phase",
		Method:      http.MethodDelete,
		Path:        "/phases/{phase_id}",
		Summary:     "Delete phase",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PhaseID int64 `path:"phase_id"`
	}) (*struct{}, error) {
		if err := store.DeletePhase(ctx, ownerFromContext(ctx), input.PhaseID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSprints(api huma.API, store storage.Storage) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/phases/{phase_id}/sprints",
		Summary:     "List sprints",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PhaseID int64 `path:"phase_id"`
	}) (*struct {
		Body []domain.Sprint `json:"body"`
	}, error) {
		if _, err := store.GetPhase(ctx, ownerFromContext(ctx), input.PhaseID); err != nil {
			return nil, handleError(err)
		}
		items, err := store.ListSprints(ctx, ownerFromContext(ctx), input.PhaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Sprint `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/phases/{phase_id}/sprints",
		Summary:       "Create sprint",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PhaseID int64               `path:"phase_id"`
		Body    CreateSprintRequest `json:"body"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		sp, err := store.CreateSprint(ctx, ownerFromContext(ctx), storage.CreateSprintData{
			PhaseID:     input.PhaseID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Goal:        input.Body.Goal,
			Status:      input.Body.Status,
			StartDate:   input.Body.StartDate,
			EndDate:     input.Body.EndDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: sp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sprint",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Get sprint",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID int64 `path:"sprint_id"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		sp, err := store.GetSprint(ctx, ownerFromContext(ctx), input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: sp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-sprint",
		Method:      http.MethodPatch,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Update sprint",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID int64               `path:"sprint_id"`
		Body     UpdateSprintRequest `json:"body"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		sp, err := store.UpdateSprint(ctx, ownerFromContext(ctx), input.SprintID, storage.UpdateSprintData{
			Name:               input.Body.Name,
			Description:        input.Body.Description,
			Goal:               input.Body.Goal,
			Status:             input.Body.Status,
			Position:           input.Body.Position,
			StartDate:          input.Body.StartDate,
			EndDate:            input.Body.EndDate,
			OrchestratorStatus: input.Body.OrchestratorStatus,
			OrchestratorError:  input.Body.OrchestratorError,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: sp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-sprint",
		Method:      http.MethodDelete,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Delete sprint",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID int64 `path:"sprint_id"`
	}) (*struct{}, error) {
		if err := store.DeleteSprint(ctx, ownerFromContext(ctx), input.SprintID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, store storage.Storage) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sprint-events",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/events",
		Summary:     "Sprint event log",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID int64 `path:"sprint_id"`
		Limit    int   `query:"limit" minimum:"1" maximum:"500" default:"50"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		owner := ownerFromContext(ctx)
		if input.Limit <= 0 {
			input.Limit = 50
		}
		if _, err := store.GetSprint(ctx, owner, input.SprintID); err != nil {
			return nil, handleError(err)
		}
		items, err := store.ListEvents(ctx, owner, "sprint", input.SprintID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
