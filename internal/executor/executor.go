// Package executor delegates task steps to their external handlers
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/log"
)

type (
	// StepExecutor invokes task steps against their handlers and returns
	// the variables they produce
	StepExecutor interface {
		Invoke(
			context.Context, *api.Step, api.Variables, api.Metadata,
		) (api.Variables, error)
	}

	// HTTPExecutor posts task requests to HTTP handlers
	HTTPExecutor struct {
		httpClient *http.Client
		timeout    time.Duration
	}
)

const userAgent = "Paisley-Engine/1.0"

var (
	ErrTaskUnsuccessful = errors.New("task returned success=false")
	ErrHTTPError        = errors.New("task returned HTTP error")
	ErrNoTaskConfig     = errors.New("step has no task configuration")
)

var _ StepExecutor = (*HTTPExecutor)(nil)

// NewHTTPExecutor creates an executor that posts task requests over HTTP
// with the given timeout
func NewHTTPExecutor(timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Invoke posts the step's task request to its handler and decodes the
// returned variables. Static task args are overlaid by the live args
func (e *HTTPExecutor) Invoke(
	ctx context.Context, step *api.Step, args api.Variables,
	meta api.Metadata,
) (api.Variables, error) {
	if step.Task == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTaskConfig, step.ID)
	}

	request := api.TaskRequest{
		Args:     step.Task.Args.Apply(args),
		Metadata: meta,
	}

	body, err := json.Marshal(request)
	if err != nil {
		slog.Error("Failed to marshal task request",
			log.StepID(step.ID),
			log.Error(err))
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, step.Task.Handler, bytes.NewBuffer(body),
	)
	if err != nil {
		slog.Error("Failed to create HTTP request",
			log.StepID(step.ID),
			log.Error(err))
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := e.httpClient.Do(httpReq)
	dur := time.Since(start)

	if err != nil {
		slog.Error("HTTP request failed",
			log.StepID(step.ID),
			slog.Duration("duration", dur),
			log.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("Failed to read response body",
			log.StepID(step.ID),
			log.Error(err))
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Task handler returned HTTP error",
			log.StepID(step.ID),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)))
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPError, resp.StatusCode)
	}

	var result api.TaskResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		slog.Error("Failed to unmarshal task result",
			log.StepID(step.ID),
			log.Error(err))
		return nil, err
	}

	if !result.Success {
		if result.Error == "" {
			return nil, ErrTaskUnsuccessful
		}
		return nil, fmt.Errorf("%w: %s", ErrTaskUnsuccessful, result.Error)
	}

	if result.Outputs == nil {
		return api.Variables{}, nil
	}
	return result.Outputs, nil
}
