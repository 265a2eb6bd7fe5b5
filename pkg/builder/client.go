package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kode4food/paisley/pkg/api"
)

type (
	// Client talks to the engine's REST API
	Client struct {
		httpClient *http.Client
		baseURL    string
	}

	// StateClient binds engine operations to one workflow state record
	StateClient struct {
		client *Client
		id     api.StateID
	}

	// HistoryResponse is the body of the transition history endpoint
	HistoryResponse struct {
		History []*api.TransitionRecord `json:"history"`
		StateID api.StateID             `json:"state_id"`
		Count   int                     `json:"count"`
	}
)

var ErrRequestFailed = errors.New("engine request failed")

const (
	routeHealth  = "/health"
	routeState   = "/engine/state"
	routeMachine = "/engine/machine"
	routeLoop    = "/engine/loop"
)

// NewClient creates a client for the engine API at the given base URL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Health reports the engine's health status
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var res api.HealthResponse
	if err := c.get(ctx, routeHealth, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RegisterMachine registers or updates a machine configuration in the
// engine's catalog
func (c *Client) RegisterMachine(
	ctx context.Context, m *api.StateMachineConfig,
) error {
	return c.send(ctx, http.MethodPost, routeMachine, m, nil)
}

// GetMachine retrieves a machine configuration from the catalog
func (c *Client) GetMachine(
	ctx context.Context, id api.MachineID,
) (*api.StateMachineConfig, error) {
	var res api.StateMachineConfig
	if err := c.get(ctx, routeMachine+"/"+string(id), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListMachines retrieves the machine catalog
func (c *Client) ListMachines(
	ctx context.Context,
) (*api.MachinesListResponse, error) {
	var res api.MachinesListResponse
	if err := c.get(ctx, routeMachine, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RemoveMachine removes a machine configuration from the catalog
func (c *Client) RemoveMachine(ctx context.Context, id api.MachineID) error {
	return c.send(
		ctx, http.MethodDelete, routeMachine+"/"+string(id), nil, nil,
	)
}

// InitializeState creates a new workflow state record
func (c *Client) InitializeState(
	ctx context.Context, req *api.InitializeRequest,
) (*api.StateResult, error) {
	return c.stateOp(ctx, http.MethodPost, routeState, req)
}

// ListStates retrieves digests of the engine's workflow states
func (c *Client) ListStates(
	ctx context.Context,
) (*api.StatesListResponse, error) {
	var res api.StatesListResponse
	if err := c.get(ctx, routeState, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExecuteLoop runs a loop to completion and returns the outcome.
// Configuration rejections come back as results carrying field errors
func (c *Client) ExecuteLoop(
	ctx context.Context, req *api.LoopRequest,
) (*api.LoopExecutionResult, error) {
	resp, raw, err := c.do(ctx, http.MethodPost, routeLoop, req)
	if err != nil {
		return nil, err
	}

	var res api.LoopExecutionResult
	if err := json.Unmarshal(raw, &res); err == nil &&
		(res.LoopID != "" || len(res.Errors) > 0 || res.Success) {
		return &res, nil
	}
	return nil, statusError(resp, raw)
}

// ListLoops retrieves digests of recorded loop executions
func (c *Client) ListLoops(
	ctx context.Context,
) (*api.LoopsListResponse, error) {
	var res api.LoopsListResponse
	if err := c.get(ctx, routeLoop, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetLoopResult retrieves the recorded outcome of a loop execution
func (c *Client) GetLoopResult(
	ctx context.Context, id api.LoopID,
) (*api.LoopExecutionResult, error) {
	var res api.LoopExecutionResult
	path := routeLoop + "/" + string(id) + "/result"
	if err := c.get(ctx, path, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// State binds subsequent operations to the given state record
func (c *Client) State(id api.StateID) *StateClient {
	return &StateClient{client: c, id: id}
}

// Get retrieves the current state record
func (s *StateClient) Get(ctx context.Context) (*api.WorkflowState, error) {
	var res api.WorkflowState
	if err := s.client.get(ctx, s.path(""), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Transition requests a status change
func (s *StateClient) Transition(
	ctx context.Context, req *api.TransitionRequest,
) (*api.StateResult, error) {
	return s.client.stateOp(
		ctx, http.MethodPost, s.path("/transition"), req,
	)
}

// UpdateVariables replaces or extends the state's variables
func (s *StateClient) UpdateVariables(
	ctx context.Context, req *api.UpdateVariablesRequest,
) (*api.StateResult, error) {
	return s.client.stateOp(ctx, http.MethodPut, s.path("/variables"), req)
}

// MergeVariables folds variable sets from concurrent branches into the
// state
func (s *StateClient) MergeVariables(
	ctx context.Context, req *api.MergeRequest,
) (*api.StateResult, error) {
	return s.client.stateOp(ctx, http.MethodPost, s.path("/merge"), req)
}

// Snapshot captures the state's current content
func (s *StateClient) Snapshot(
	ctx context.Context, req *api.SnapshotRequest,
) (*api.StateResult, error) {
	return s.client.stateOp(ctx, http.MethodPost, s.path("/snapshot"), req)
}

// Restore reinstates a snapshot's content as a new version
func (s *StateClient) Restore(
	ctx context.Context, req *api.RestoreRequest,
) (*api.StateResult, error) {
	return s.client.stateOp(ctx, http.MethodPost, s.path("/restore"), req)
}

// Rollback rewinds the state to its last stable point
func (s *StateClient) Rollback(
	ctx context.Context, req *api.RollbackRequest,
) (*api.StateResult, error) {
	return s.client.stateOp(ctx, http.MethodPost, s.path("/rollback"), req)
}

// History retrieves the state's transition history
func (s *StateClient) History(
	ctx context.Context,
) (*HistoryResponse, error) {
	var res HistoryResponse
	if err := s.client.get(ctx, s.path("/history"), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Compact trims the state's transition history
func (s *StateClient) Compact(
	ctx context.Context, req *api.CompactRequest,
) (*api.StateResult, error) {
	return s.client.stateOp(ctx, http.MethodPost, s.path("/compact"), req)
}

// Archive queues the state's record for export to blob storage
func (s *StateClient) Archive(ctx context.Context) error {
	return s.client.send(
		ctx, http.MethodPost, s.path("/archive"), nil, nil,
	)
}

func (s *StateClient) path(suffix string) string {
	return routeState + "/" + string(s.id) + suffix
}

// stateOp posts a state operation and decodes its result. Business
// rejections come back as unsuccessful results with an HTTP error status,
// so the body is tried as a result before the status is reported
func (c *Client) stateOp(
	ctx context.Context, method, path string, body any,
) (*api.StateResult, error) {
	resp, raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	var res api.StateResult
	if err := json.Unmarshal(raw, &res); err == nil &&
		(res.State != nil || res.Code != "" || res.Success) {
		return &res, nil
	}
	return nil, statusError(resp, raw)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) send(
	ctx context.Context, method, path string, body, out any,
) error {
	resp, raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(resp, raw)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) do(
	ctx context.Context, method, path string, body any,
) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		reader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(
		ctx, method, c.baseURL+path, reader,
	)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, raw, nil
}

func statusError(resp *http.Response, raw []byte) error {
	var body api.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return fmt.Errorf("%w: status %d: %s",
			ErrRequestFailed, resp.StatusCode, body.Error)
	}
	return fmt.Errorf("%w: status %d, body: %s",
		ErrRequestFailed, resp.StatusCode, string(raw))
}
