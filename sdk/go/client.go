// Package sprintdecksdk is the client the sprint driver uses to talk to a
// SprintDeck server: configure, start, checkpoint, resume and status.
package sprintdecksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal SprintDeck HTTP API client.
type Client struct {
	BaseURL string

	// OrchestratorKey authenticates the checkpoint and resume endpoints.
	OrchestratorKey string

	// BearerToken or APIKey authenticates the user-facing endpoints.
	BearerToken string
	APIKey      string

	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Sprint mirrors the API sprint model (partial).
type Sprint struct {
	ID                 int64   `json:"id"`
	PhaseID            int64   `json:"phase_id"`
	Name               string  `json:"name"`
	BaseBranch         string  `json:"base_branch"`
	SprintBranch       *string `json:"sprint_branch,omitempty"`
	OrchestratorStatus string  `json:"orchestrator_status"`
	OrchestratorStage  *string `json:"orchestrator_stage,omitempty"`
	Progress           int     `json:"orchestrator_progress"`
	CurrentStep        *string `json:"current_step,omitempty"`
	CurrentSubstep     *string `json:"current_substep,omitempty"`
	LastCheckpointAt   *string `json:"last_checkpoint_at,omitempty"`
}

// Checkpoint is the driver resume state.
type Checkpoint struct {
	Version           int      `json:"version,omitempty"`
	Step              string   `json:"step"`
	Substep           string   `json:"substep,omitempty"`
	ContextTokensUsed int64    `json:"context_tokens_used,omitempty"`
	LastAgentOutput   string   `json:"last_agent_output,omitempty"`
	SecurityLoopCount int      `json:"security_loop_count,omitempty"`
	RedTeamScore      *float64 `json:"red_team_score,omitempty"`
	Blockers          []string `json:"blockers,omitempty"`
}

// AgentUpdate reports one agent's state alongside a checkpoint.
type AgentUpdate struct {
	AgentType     string  `json:"agent_type"`
	Status        string  `json:"status"`
	BranchName    *string `json:"branch_name,omitempty"`
	OutputSummary *string `json:"output_summary,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`
}

// GateUpdate reports one quality gate's state alongside a checkpoint.
type GateUpdate struct {
	GateName string   `json:"gate_name"`
	Status   string   `json:"status"`
	Score    *float64 `json:"score,omitempty"`
	Details  *string  `json:"details,omitempty"`
}

// SaveCheckpointRequest is the full checkpoint payload. CheckpointData is
// the resume blob, stored by the server exactly as sent; marshal a
// Checkpoint into it or supply any JSON object with a valid step.
type SaveCheckpointRequest struct {
	Step           string          `json:"step"`
	Substep        *string         `json:"substep,omitempty"`
	Stage          *string         `json:"stage,omitempty"`
	Progress       *int            `json:"progress,omitempty"`
	CheckpointData json.RawMessage `json:"checkpoint_data"`
	AgentUpdate    *AgentUpdate    `json:"agent_update,omitempty"`
	GateUpdate     *GateUpdate     `json:"gate_update,omitempty"`
}

type SaveCheckpointResponse struct {
	Saved            bool   `json:"saved"`
	Step             string `json:"step"`
	Substep          string `json:"substep,omitempty"`
	LastCheckpointAt string `json:"last_checkpoint_at"`
}

type LoadCheckpointResponse struct {
	HasCheckpoint    bool        `json:"has_checkpoint"`
	Checkpoint       *Checkpoint `json:"checkpoint,omitempty"`
	Status           string      `json:"status"`
	CurrentStep      *string     `json:"current_step,omitempty"`
	CurrentSubstep   *string     `json:"current_substep,omitempty"`
	LastCheckpointAt *string     `json:"last_checkpoint_at,omitempty"`
}

type Summary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type ResumeResponse struct {
	SprintID       int64      `json:"sprint_id"`
	Name           string     `json:"name"`
	TargetRepoPath *string    `json:"target_repo_path,omitempty"`
	TargetRepoURL  *string    `json:"target_repo_url,omitempty"`
	BaseBranch     string     `json:"base_branch"`
	SprintBranch   *string    `json:"sprint_branch,omitempty"`
	Progress       int        `json:"progress"`
	Status         string     `json:"status"`
	Stage          string     `json:"stage"`
	Checkpoint     Checkpoint `json:"checkpoint"`
	Agents         Summary    `json:"agents"`
	Gates          Summary    `json:"gates"`
}

type StatusResponse struct {
	SprintID         int64   `json:"sprint_id"`
	Name             string  `json:"name"`
	Status           string  `json:"status"`
	Stage            *string `json:"stage,omitempty"`
	Progress         int     `json:"progress"`
	Error            *string `json:"error,omitempty"`
	TargetRepoPath   *string `json:"target_repo_path,omitempty"`
	TargetRepoURL    *string `json:"target_repo_url,omitempty"`
	BaseBranch       string  `json:"base_branch"`
	SprintBranch     *string `json:"sprint_branch,omitempty"`
	CurrentStep      *string `json:"current_step,omitempty"`
	CurrentSubstep   *string `json:"current_substep,omitempty"`
	HasCheckpoint    bool    `json:"has_checkpoint"`
	LastCheckpointAt *string `json:"last_checkpoint_at,omitempty"`
	Agents           Summary `json:"agents"`
	Gates            Summary `json:"gates"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Configure points a sprint at its target repository.
func (c *Client) Configure(ctx context.Context, sprintID int64, repoPath, repoURL, baseBranch string) (Sprint, error) {
	body := map[string]any{}
	if repoPath != "" {
		body["target_repo_path"] = repoPath
	}
	if repoURL != "" {
		body["target_repo_url"] = repoURL
	}
	if baseBranch != "" {
		body["base_branch"] = baseBranch
	}
	var resp Sprint
	err := c.do(ctx, http.MethodPost, c.sprintPath(sprintID, "configure"), body, &resp, false)
	return resp, err
}

// Start begins orchestration for a configured sprint.
func (c *Client) Start(ctx context.Context, sprintID int64) (Sprint, error) {
	var resp Sprint
	err := c.do(ctx, http.MethodPost, c.sprintPath(sprintID, "start"), nil, &resp, false)
	return resp, err
}

// SaveCheckpoint records the driver's resume state. Uses the orchestrator key.
func (c *Client) SaveCheckpoint(ctx context.Context, sprintID int64, req SaveCheckpointRequest) (SaveCheckpointResponse, error) {
	var resp SaveCheckpointResponse
	err := c.do(ctx, http.MethodPost, c.sprintPath(sprintID, "checkpoint"), req, &resp, true)
	return resp, err
}

// LoadCheckpoint inspects the stored resume state. Uses the orchestrator key.
func (c *Client) LoadCheckpoint(ctx context.Context, sprintID int64) (LoadCheckpointResponse, error) {
	var resp LoadCheckpointResponse
	err := c.do(ctx, http.MethodGet, c.sprintPath(sprintID, "checkpoint"), nil, &resp, true)
	return resp, err
}

// Resume revives a paused or failed sprint. Uses the orchestrator key.
func (c *Client) Resume(ctx context.Context, sprintID int64) (ResumeResponse, error) {
	var resp ResumeResponse
	err := c.do(ctx, http.MethodPost, c.sprintPath(sprintID, "resume"), nil, &resp, true)
	return resp, err
}

// Status returns the orchestrator view of a sprint.
func (c *Client) Status(ctx context.Context, sprintID int64) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, c.sprintPath(sprintID, "status"), nil, &resp, false)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any, driver bool) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case driver && c.OrchestratorKey != "":
		req.Header.Set("Authorization", "Bearer "+c.OrchestratorKey)
		if c.APIKey != "" {
			req.Header.Set("X-Api-Key", c.APIKey)
		}
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) sprintPath(sprintID int64, p string) string {
	return fmt.Sprintf("v0/sprints/%d/%s", sprintID, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
