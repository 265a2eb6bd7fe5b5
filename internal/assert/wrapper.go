package assert

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/paisley/internal/config"
	"github.com/kode4food/paisley/pkg/api"
)

type (
	Getter interface {
		GetVariable(
			ctx context.Context, stateID api.StateID, name api.Name,
		) (any, bool, error)
	}

	// Wrapper wraps testify assertions with Paisley-specific helpers
	Wrapper struct {
		*testing.T
		*assert.Assertions
		Require *require.Assertions
	}
)

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 100 * time.Millisecond

// New creates a new test assertion wrapper with both assert and require from
// testify plus Paisley-specific helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
		Require:    require.New(t),
	}
}

// StepValid asserts that a step is valid
func (w *Wrapper) StepValid(t *api.Step) {
	w.Helper()
	w.Empty(t.Validate())
	w.NotEmpty(t.ID)
	w.NotEmpty(t.Name)

	switch t.Type {
	case api.StepTypeTask:
		w.NotNil(t.Task, "task steps should have TaskConfig")
		if t.Task != nil {
			w.NotEmpty(t.Task.Handler)
		}
	case api.StepTypeScript:
		w.NotNil(t.Script, "script steps should have ScriptConfig")
		if t.Script != nil {
			w.NotEmpty(t.Script.Script)
		}
	case api.StepTypeLoop:
		w.NotNil(t.Loop, "loop steps should have LoopStep")
	}
}

// StepInvalid asserts that a step is invalid, with at least one field
// error containing the expected text, and returns the field errors
func (w *Wrapper) StepInvalid(
	t *api.Step, expectedErrorContains string,
) []*api.FieldError {
	w.Helper()
	errs := t.Validate()
	w.NotEmpty(errs)
	w.fieldErrorsContain(errs, expectedErrorContains)
	return errs
}

// MachineValid asserts that a state machine configuration is valid
func (w *Wrapper) MachineValid(m *api.StateMachineConfig) {
	w.Helper()
	w.Empty(m.Validate())
	w.NotEmpty(m.States)
	w.NotEmpty(m.InitialState)
}

// MachineInvalid asserts that a state machine configuration is invalid,
// with at least one field error containing the expected text, and returns
// the field errors
func (w *Wrapper) MachineInvalid(
	m *api.StateMachineConfig, expectedErrorContains string,
) []*api.FieldError {
	w.Helper()
	errs := m.Validate()
	w.NotEmpty(errs)
	w.fieldErrorsContain(errs, expectedErrorContains)
	return errs
}

func (w *Wrapper) fieldErrorsContain(errs []*api.FieldError, contains string) {
	w.Helper()
	if contains == "" {
		return
	}
	for _, err := range errs {
		if strings.Contains(err.Error(), contains) {
			return
		}
	}
	w.Fail("no field error contains: " + contains)
}

// StateStatus asserts the status of a workflow state
func (w *Wrapper) StateStatus(st *api.WorkflowState, expected api.Status) {
	w.Helper()
	w.Equal(expected, st.Status)
}

// ResultOK asserts that an operation result succeeded
func (w *Wrapper) ResultOK(res *api.StateResult) {
	w.Helper()
	w.Require.NotNil(res)
	w.True(res.Success, "expected success, got: %s", res.Error)
	w.Empty(res.Error)
	w.NotNil(res.State)
}

// ResultFailed asserts that an operation result failed with the given code
func (w *Wrapper) ResultFailed(res *api.StateResult, code api.ErrorCode) {
	w.Helper()
	w.Require.NotNil(res)
	w.False(res.Success)
	w.Equal(code, res.Code)
	w.NotEmpty(res.Error)
}

// StateHasVariables asserts that a workflow state has specific variables
func (w *Wrapper) StateHasVariables(
	ctx context.Context, get Getter, stateID api.StateID, names ...api.Name,
) {
	w.Helper()
	for _, name := range names {
		_, ok, err := get.GetVariable(ctx, stateID, name)
		w.NoError(err, "failed to check variable: %s", name)
		w.True(ok, "state should have variable: %s", name)
	}
}

// StateVariableEquals asserts that a variable has the expected value
func (w *Wrapper) StateVariableEquals(
	ctx context.Context, get Getter, stateID api.StateID, name api.Name,
	expected any,
) {
	w.Helper()
	val, ok, err := get.GetVariable(ctx, stateID, name)
	w.NoError(err, "failed to get variable: %s", name)
	w.True(ok, "state should have variable: %s", name)
	w.Equal(expected, val)
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= 65535)
	w.True(cfg.StepTimeout > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}

// EventuallyWithError runs a condition that returns an error until it succeeds
// or times out
func (w *Wrapper) EventuallyWithError(
	condition func() error, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		err := condition()
		if err == nil {
			return
		}
		lastErr = err
		time.Sleep(DefaultRetryInterval)
	}
	if lastErr != nil {
		w.Fail(msg+": last error: "+lastErr.Error(), args...)
		return
	}
	w.Fail(msg, args...)
}
