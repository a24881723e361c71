package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sprintdeck/internal/domain"
)

// Phases

const phaseCols = `id,project_id,name,COALESCE(description,''),status,position,start_date,end_date,created_at,updated_at`

func scanPhase(row interface{ Scan(...any) error }) (domain.Phase, error) {
	var p domain.Phase
	var startDate, endDate sql.NullString
	err := row.Scan(&p.ID, &p.ProjectID, &p.Name, &p.Description, &p.Status, &p.Position,
		&startDate, &endDate, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if startDate.Valid {
		p.StartDate = &startDate.String
	}
	if endDate.Valid {
		p.EndDate = &endDate.String
	}
	return p, err
}

func (s *SQLite) ListPhases(ctx context.Context, ownerID string, projectID int64) ([]domain.Phase, error) {
	clauses := []string{phaseOwnedExpr}
	args := []any{ownerID}
	if projectID != 0 {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+phaseCols+` FROM phases WHERE `+strings.Join(clauses, " AND ")+` ORDER BY position ASC, id ASC`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *SQLite) GetPhase(ctx context.Context, ownerID string, id int64) (domain.Phase, error) {
	return scanPhase(s.DB.QueryRowContext(ctx,
		`SELECT `+phaseCols+` FROM phases WHERE id=? AND `+phaseOwnedExpr, id, ownerID))
}

func (s *SQLite) CreatePhase(ctx context.Context, ownerID string, data CreatePhaseData) (domain.Phase, error) {
	if _, err := s.GetProject(ctx, ownerID, data.ProjectID); err != nil {
		return domain.Phase{}, err
	}
	status := data.Status
	if status == "" {
		status = "planned"
	}
	now := s.now()
	var position int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position)+1,0) FROM phases WHERE project_id=?`, data.ProjectID).Scan(&position); err != nil {
		return domain.Phase{}, err
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO phases(project_id,name,description,status,position,start_date,end_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		data.ProjectID, data.Name, nullable(data.Description), status, position,
		nullableStringPtr(data.StartDate), nullableStringPtr(data.EndDate), now, now)
	if err != nil {
		return domain.Phase{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Phase{}, err
	}
	return s.GetPhase(ctx, ownerID, id)
}

func (s *SQLite) UpdatePhase(ctx context.Context, ownerID string, id int64, data UpdatePhaseData) (domain.Phase, error) {
	var fields []string
	var args []any
	if data.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *data.Name)
	}
	if data.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*data.Description))
	}
	if data.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *data.Status)
	}
	if data.Position != nil {
		fields = append(fields, "position=?")
		args = append(args, *data.Position)
	}
	if data.StartDate != nil {
		fields = append(fields, "start_date=?")
		args = append(args, nullable(*data.StartDate))
	}
	if data.EndDate != nil {
		fields = append(fields, "end_date=?")
		args = append(args, nullable(*data.EndDate))
	}
	if len(fields) == 0 {
		return s.GetPhase(ctx, ownerID, id)
	}
	fields = append(fields, "updated_at=?")
	args = append(args, s.now(), id, ownerID)
	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE phases SET %s WHERE id=? AND `+phaseOwnedExpr, strings.Join(fields, ", ")), args...)
	if err != nil {
		return domain.Phase{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Phase{}, ErrNotFound
	}
	return s.GetPhase(ctx, ownerID, id)
}

func (s *SQLite) DeletePhase(ctx context.Context, ownerID string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM phases WHERE id=? AND `+phaseOwnedExpr, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Sprints

const sprintCols = `id,phase_id,name,COALESCE(description,''),COALESCE(goal,''),status,position,start_date,end_date,
target_repo_path,target_repo_url,base_branch,sprint_branch,
orchestrator_status,orchestrator_stage,orchestrator_progress,orchestrator_error,
current_step,current_substep,checkpoint_data,last_checkpoint_at,created_at,updated_at`

func scanSprint(row interface{ Scan(...any) error }) (domain.Sprint, error) {
	var sp domain.Sprint
	var startDate, endDate, repoPath, repoURL, branch sql.NullString
	var stage, oerr, step, substep, ckptData, ckptAt sql.NullString
	err := row.Scan(&sp.ID, &sp.PhaseID, &sp.Name, &sp.Description, &sp.Goal, &sp.Status,
		&sp.Position, &startDate, &endDate,
		&repoPath, &repoURL, &sp.BaseBranch, &branch,
		&sp.OrchestratorStatus, &stage, &sp.OrchestratorProgress, &oerr,
		&step, &substep, &ckptData, &ckptAt, &sp.CreatedAt, &sp.UpdatedAt)
	if err == sql.ErrNoRows {
		return sp, ErrNotFound
	}
	if err != nil {
		return sp, err
	}
	if startDate.Valid {
		sp.StartDate = &startDate.String
	}
	if endDate.Valid {
		sp.EndDate = &endDate.String
	}
	if repoPath.Valid {
		sp.TargetRepoPath = &repoPath.String
	}
	if repoURL.Valid {
		sp.TargetRepoURL = &repoURL.String
	}
	if branch.Valid {
		sp.SprintBranch = &branch.String
	}
	if stage.Valid {
		sp.OrchestratorStage = &stage.String
	}
	if oerr.Valid {
		sp.OrchestratorError = &oerr.String
	}
	if step.Valid {
		v := domain.OrchestratorStep(step.String)
		sp.CurrentStep = &v
	}
	if substep.Valid {
		sp.CurrentSubstep = &substep.String
	}
	if ckptData.Valid {
		sp.CheckpointData = &ckptData.String
	}
	if ckptAt.Valid {
		sp.LastCheckpointAt = &ckptAt.String
	}
	return sp, nil
}

func (s *SQLite) ListSprints(ctx context.Context, ownerID string, phaseID int64) ([]domain.Sprint, error) {
	clauses := []string{sprintOwnedExpr}
	args := []any{ownerID}
	if phaseID != 0 {
		clauses = append(clauses, "phase_id=?")
		args = append(args, phaseID)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+sprintCols+` FROM sprints WHERE `+strings.Join(clauses, " AND ")+` ORDER BY position ASC, id ASC`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sp)
	}
	return res, rows.Err()
}

func (s *SQLite) GetSprint(ctx context.Context, ownerID string, id int64) (domain.Sprint, error) {
	sp, err := scanSprint(s.DB.QueryRowContext(ctx,
		`SELECT `+sprintCols+` FROM sprints WHERE id=? AND `+sprintOwnedExpr, id, ownerID))
	if err != nil {
		return sp, err
	}
	runs, err := s.ListAgentRuns(ctx, ownerID, sp.ID)
	if err != nil {
		return sp, err
	}
	gates, err := s.ListQualityGates(ctx, ownerID, sp.ID)
	if err != nil {
		return sp, err
	}
	sp.AgentRuns = runs
	sp.QualityGates = gates
	return sp, nil
}

func (s *SQLite) CreateSprint(ctx context.Context, ownerID string, data CreateSprintData) (domain.Sprint, error) {
	if _, err := s.GetPhase(ctx, ownerID, data.PhaseID); err != nil {
		return domain.Sprint{}, err
	}
	status := data.Status
	if status == "" {
		status = domain.SprintPlanned
	}
	now := s.now()
	var position int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position)+1,0) FROM sprints WHERE phase_id=?`, data.PhaseID).Scan(&position); err != nil {
		return domain.Sprint{}, err
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO sprints(phase_id,name,description,goal,status,position,start_date,end_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		data.PhaseID, data.Name, nullable(data.Description), nullable(data.Goal), string(status), position,
		nullableStringPtr(data.StartDate), nullableStringPtr(data.EndDate), now, now)
	if err != nil {
		return domain.Sprint{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Sprint{}, err
	}
	return s.GetSprint(ctx, ownerID, id)
}

func (s *SQLite) UpdateSprint(ctx context.Context, ownerID string, id int64, data UpdateSprintData) (domain.Sprint, error) {
	var fields []string
	var args []any
	add := func(field string, val any) {
		fields = append(fields, field+"=?")
		args = append(args, val)
	}
	if data.Name != nil {
		add("name", *data.Name)
	}
	if data.Description != nil {
		add("description", nullable(*data.Description))
	}
	if data.Goal != nil {
		add("goal", nullable(*data.Goal))
	}
	if data.Status != nil {
		add("status", string(*data.Status))
	}
	if data.Position != nil {
		add("position", *data.Position)
	}
	if data.StartDate != nil {
		add("start_date", nullable(*data.StartDate))
	}
	if data.EndDate != nil {
		add("end_date", nullable(*data.EndDate))
	}
	if data.TargetRepoPath != nil {
		add("target_repo_path", nullable(*data.TargetRepoPath))
	}
	if data.TargetRepoURL != nil {
		add("target_repo_url", nullable(*data.TargetRepoURL))
	}
	if data.BaseBranch != nil {
		add("base_branch", *data.BaseBranch)
	}
	if data.ClearBranch {
		add("sprint_branch", nil)
	} else if data.SprintBranch != nil {
		add("sprint_branch", *data.SprintBranch)
	}
	if data.OrchestratorStatus != nil {
		add("orchestrator_status", string(*data.OrchestratorStatus))
	}
	if data.ClearStage {
		add("orchestrator_stage", nil)
	} else if data.OrchestratorStage != nil {
		add("orchestrator_stage", *data.OrchestratorStage)
	}
	if data.OrchestratorProgress != nil {
		add("orchestrator_progress", *data.OrchestratorProgress)
	}
	if data.ClearError {
		add("orchestrator_error", nil)
	} else if data.OrchestratorError != nil {
		add("orchestrator_error", *data.OrchestratorError)
	}
	if data.ClearCheckpoint {
		add("current_step", nil)
		add("current_substep", nil)
		add("checkpoint_data", nil)
		add("last_checkpoint_at", nil)
	} else {
		if data.CurrentStep != nil {
			add("current_step", string(*data.CurrentStep))
		}
		if data.ClearSubstep {
			add("current_substep", nil)
		} else if data.CurrentSubstep != nil {
			add("current_substep", *data.CurrentSubstep)
		}
		if data.CheckpointData != nil {
			add("checkpoint_data", *data.CheckpointData)
		}
		if data.LastCheckpointAt != nil {
			add("last_checkpoint_at", *data.LastCheckpointAt)
		}
	}
	if len(fields) == 0 {
		return s.GetSprint(ctx, ownerID, id)
	}
	add("updated_at", s.now())
	args = append(args, id, ownerID)
	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE sprints SET %s WHERE id=? AND `+sprintOwnedExpr, strings.Join(fields, ", ")), args...)
	if err != nil {
		return domain.Sprint{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Sprint{}, ErrNotFound
	}
	return s.GetSprint(ctx, ownerID, id)
}

func (s *SQLite) DeleteSprint(ctx context.Context, ownerID string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sprints WHERE id=? AND `+sprintOwnedExpr, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Agent runs

const runCols = `id,sprint_id,agent_name,agent_type,status,branch_name,started_at,completed_at,output_summary,error_message,created_at`

func scanAgentRun(row interface{ Scan(...any) error }) (domain.AgentRun, error) {
	var r domain.AgentRun
	var branch, started, completed, output, errMsg sql.NullString
	err := row.Scan(&r.ID, &r.SprintID, &r.AgentName, &r.AgentType, &r.Status,
		&branch, &started, &completed, &output, &errMsg, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	if branch.Valid {
		r.BranchName = &branch.String
	}
	if started.Valid {
		r.StartedAt = &started.String
	}
	if completed.Valid {
		r.CompletedAt = &completed.String
	}
	if output.Valid {
		r.OutputSummary = &output.String
	}
	if errMsg.Valid {
		r.ErrorMessage = &errMsg.String
	}
	return r, nil
}

func (s *SQLite) ListAgentRuns(ctx context.Context, ownerID string, sprintID int64) ([]domain.AgentRun, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+runCols+` FROM sprint_agent_runs WHERE sprint_id=? AND `+runOwnedExpr+` ORDER BY id ASC`,
		sprintID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AgentRun
	for rows.Next() {
		r, err := scanAgentRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *SQLite) CreateAgentRun(ctx context.Context, ownerID string, data CreateAgentRunData) (domain.AgentRun, error) {
	if _, err := scanSprint(s.DB.QueryRowContext(ctx,
		`SELECT `+sprintCols+` FROM sprints WHERE id=? AND `+sprintOwnedExpr, data.SprintID, ownerID)); err != nil {
		return domain.AgentRun{}, err
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO sprint_agent_runs(sprint_id,agent_name,agent_type,status,branch_name,created_at)
VALUES (?,?,?,'pending',?,?)`,
		data.SprintID, data.AgentName, string(data.AgentType), nullableStringPtr(data.BranchName), s.now())
	if err != nil {
		return domain.AgentRun{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.AgentRun{}, err
	}
	return scanAgentRun(s.DB.QueryRowContext(ctx,
		`SELECT `+runCols+` FROM sprint_agent_runs WHERE id=?`, id))
}

func (s *SQLite) UpdateAgentRun(ctx context.Context, ownerID string, id int64, data UpdateAgentRunData) (domain.AgentRun, error) {
	var fields []string
	var args []any
	if data.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, string(*data.Status))
	}
	if data.BranchName != nil {
		fields = append(fields, "branch_name=?")
		args = append(args, *data.BranchName)
	}
	if data.StartedAt != nil {
		fields = append(fields, "started_at=?")
		args = append(args, *data.StartedAt)
	}
	if data.CompletedAt != nil {
		fields = append(fields, "completed_at=?")
		args = append(args, *data.CompletedAt)
	}
	if data.OutputSummary != nil {
		fields = append(fields, "output_summary=?")
		args = append(args, *data.OutputSummary)
	}
	if data.ErrorMessage != nil {
		fields = append(fields, "error_message=?")
		args = append(args, *data.ErrorMessage)
	}
	if len(fields) == 0 {
		return scanAgentRun(s.DB.QueryRowContext(ctx,
			`SELECT `+runCols+` FROM sprint_agent_runs WHERE id=? AND `+runOwnedExpr, id, ownerID))
	}
	args = append(args, id, ownerID)
	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE sprint_agent_runs SET %s WHERE id=? AND `+runOwnedExpr, strings.Join(fields, ", ")), args...)
	if err != nil {
		return domain.AgentRun{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.AgentRun{}, ErrNotFound
	}
	return scanAgentRun(s.DB.QueryRowContext(ctx,
		`SELECT `+runCols+` FROM sprint_agent_runs WHERE id=?`, id))
}

func (s *SQLite) DeleteAgentRuns(ctx context.Context, ownerID string, sprintID int64) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM sprint_agent_runs WHERE sprint_id=? AND `+runOwnedExpr, sprintID, ownerID)
	return err
}

// Quality gates

const gateCols = `id,sprint_id,gate_name,gate_type,status,score,max_score,passed_at,details,created_at`

func scanQualityGate(row interface{ Scan(...any) error }) (domain.QualityGate, error) {
	var g domain.QualityGate
	var score, maxScore sql.NullFloat64
	var passedAt, details sql.NullString
	err := row.Scan(&g.ID, &g.SprintID, &g.GateName, &g.GateType, &g.Status,
		&score, &maxScore, &passedAt, &details, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if score.Valid {
		g.Score = &score.Float64
	}
	if maxScore.Valid {
		g.MaxScore = &maxScore.Float64
	}
	if passedAt.Valid {
		g.PassedAt = &passedAt.String
	}
	if details.Valid {
		g.Details = &details.String
	}
	return g, nil
}

func (s *SQLite) ListQualityGates(ctx context.Context, ownerID string, sprintID int64) ([]domain.QualityGate, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+gateCols+` FROM sprint_quality_gates WHERE sprint_id=? AND `+runOwnedExpr+` ORDER BY id ASC`,
		sprintID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QualityGate
	for rows.Next() {
		g, err := scanQualityGate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (s *SQLite) CreateQualityGate(ctx context.Context, ownerID string, data CreateQualityGateData) (domain.QualityGate, error) {
	if _, err := scanSprint(s.DB.QueryRowContext(ctx,
		`SELECT `+sprintCols+` FROM sprints WHERE id=? AND `+sprintOwnedExpr, data.SprintID, ownerID)); err != nil {
		return domain.QualityGate{}, err
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO sprint_quality_gates(sprint_id,gate_name,gate_type,status,max_score,created_at)
VALUES (?,?,?,'pending',?,?)`,
		data.SprintID, data.GateName, string(data.GateType), nullableFloat64Ptr(data.MaxScore), s.now())
	if err != nil {
		return domain.QualityGate{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.QualityGate{}, err
	}
	return scanQualityGate(s.DB.QueryRowContext(ctx,
		`SELECT `+gateCols+` FROM sprint_quality_gates WHERE id=?`, id))
}

func (s *SQLite) UpdateQualityGate(ctx context.Context, ownerID string, id int64, data UpdateQualityGateData) (domain.QualityGate, error) {
	var fields []string
	var args []any
	if data.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, string(*data.Status))
	}
	if data.Score != nil {
		fields = append(fields, "score=?")
		args = append(args, *data.Score)
	}
	if data.PassedAt != nil {
		fields = append(fields, "passed_at=?")
		args = append(args, *data.PassedAt)
	}
	if data.Details != nil {
		fields = append(fields, "details=?")
		args = append(args, *data.Details)
	}
	if len(fields) == 0 {
		return scanQualityGate(s.DB.QueryRowContext(ctx,
			`SELECT `+gateCols+` FROM sprint_quality_gates WHERE id=? AND `+runOwnedExpr, id, ownerID))
	}
	args = append(args, id, ownerID)
	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE sprint_quality_gates SET %s WHERE id=? AND `+runOwnedExpr, strings.Join(fields, ", ")), args...)
	if err != nil {
		return domain.QualityGate{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.QualityGate{}, ErrNotFound
	}
	return scanQualityGate(s.DB.QueryRowContext(ctx,
		`SELECT `+gateCols+` FROM sprint_quality_gates WHERE id=?`, id))
}

func (s *SQLite) DeleteQualityGates(ctx context.Context, ownerID string, sprintID int64) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM sprint_quality_gates WHERE sprint_id=? AND `+runOwnedExpr, sprintID, ownerID)
	return err
}
