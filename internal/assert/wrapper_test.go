package assert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kode4food/paisley/internal/config"
	"github.com/kode4food/paisley/pkg/api"
)

type mockGetter struct {
	vars map[api.StateID]map[api.Name]any
	err  error
}

func (g *mockGetter) GetVariable(
	_ context.Context, stateID api.StateID, name api.Name,
) (any, bool, error) {
	if g.err != nil {
		return nil, false, g.err
	}
	if stateVars, ok := g.vars[stateID]; ok {
		if val, ok := stateVars[name]; ok {
			return val, true, nil
		}
	}
	return nil, false, nil
}

func TestNew(t *testing.T) {
	wrapper := New(t)

	if wrapper.T != t {
		t.Error("Wrapper.T should be set to the testing.T instance")
	}
	if wrapper.Assertions == nil {
		t.Error("Wrapper.Assertions should be initialized")
	}
	if wrapper.Require == nil {
		t.Error("Wrapper.Require should be initialized")
	}
}

func TestStepValid(t *testing.T) {
	tests := []struct {
		step *api.Step
		name string
	}{
		{
			name: "valid task step",
			step: &api.Step{
				ID:   "test-task",
				Name: "Test Task",
				Type: api.StepTypeTask,
				Task: &api.TaskConfig{
					Handler: "http://localhost/transform",
				},
			},
		},
		{
			name: "valid script step with Lua",
			step: &api.Step{
				ID:   "test-lua",
				Name: "Test Lua",
				Type: api.StepTypeScript,
				Script: &api.ScriptConfig{
					Language: api.LangLua,
					Script:   "return {result = 42}",
				},
			},
		},
		{
			name: "valid script step with Ale",
			step: &api.Step{
				ID:   "test-ale",
				Name: "Test Ale",
				Type: api.StepTypeScript,
				Script: &api.ScriptConfig{
					Language: api.LangAle,
					Script:   "(+ 1 2)",
				},
			},
		},
		{
			name: "valid loop step",
			step: &api.Step{
				ID:   "test-loop",
				Name: "Test Loop",
				Type: api.StepTypeLoop,
				Loop: &api.LoopStep{
					Type:     api.LoopTypeFor,
					Iterable: "items",
					Body: []*api.Step{{
						ID:   "body",
						Name: "Body",
						Type: api.StepTypeTask,
						Task: &api.TaskConfig{Handler: "http://test"},
					}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(t)
			w.StepValid(tt.step)
		})
	}
}

func TestStepInvalid(t *testing.T) {
	tests := []struct {
		step                 *api.Step
		name                 string
		expectedErrorContain string
	}{
		{
			name: "missing ID",
			step: &api.Step{
				Name: "Test",
				Type: api.StepTypeTask,
				Task: &api.TaskConfig{Handler: "http://test"},
			},
			expectedErrorContain: "ID",
		},
		{
			name: "task step missing TaskConfig",
			step: &api.Step{
				ID:   "test-id",
				Name: "Test",
				Type: api.StepTypeTask,
			},
			expectedErrorContain: "task",
		},
		{
			name: "task step missing handler",
			step: &api.Step{
				ID:   "test-id",
				Name: "Test",
				Type: api.StepTypeTask,
				Task: &api.TaskConfig{},
			},
			expectedErrorContain: "handler",
		},
		{
			name: "script step missing ScriptConfig",
			step: &api.Step{
				ID:   "test-id",
				Name: "Test",
				Type: api.StepTypeScript,
			},
			expectedErrorContain: "script",
		},
		{
			name: "script step missing source",
			step: &api.Step{
				ID:   "test-id",
				Name: "Test",
				Type: api.StepTypeScript,
				Script: &api.ScriptConfig{
					Language: api.LangLua,
				},
			},
			expectedErrorContain: "script",
		},
		{
			name: "loop step missing LoopStep",
			step: &api.Step{
				ID:   "test-id",
				Name: "Test",
				Type: api.StepTypeLoop,
			},
			expectedErrorContain: "loop",
		},
		{
			name: "invalid step type",
			step: &api.Step{
				ID:   "test-id",
				Name: "Test",
				Type: "invalid",
			},
			expectedErrorContain: "invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(t)
			w.StepInvalid(tt.step, tt.expectedErrorContain)
		})
	}
}

func TestMachineValid(t *testing.T) {
	w := New(t)
	w.MachineValid(&api.StateMachineConfig{
		InitialState: "pending",
		States: map[api.Status][]*api.Transition{
			"pending": {{To: "done", Trigger: "finish"}},
			"done":    {},
		},
	})
}

func TestMachineInvalid(t *testing.T) {
	tests := []struct {
		machine              *api.StateMachineConfig
		name                 string
		expectedErrorContain string
	}{
		{
			name: "missing initial state",
			machine: &api.StateMachineConfig{
				States: map[api.Status][]*api.Transition{
					"pending": {},
				},
			},
			expectedErrorContain: "initial state",
		},
		{
			name: "no states",
			machine: &api.StateMachineConfig{
				InitialState: "pending",
			},
			expectedErrorContain: "at least one state",
		},
		{
			name: "initial state not among states",
			machine: &api.StateMachineConfig{
				InitialState: "missing",
				States: map[api.Status][]*api.Transition{
					"pending": {},
				},
			},
			expectedErrorContain: "not among states",
		},
		{
			name: "transition target unknown",
			machine: &api.StateMachineConfig{
				InitialState: "pending",
				States: map[api.Status][]*api.Transition{
					"pending": {{To: "nowhere", Trigger: "go"}},
				},
			},
			expectedErrorContain: "not among states",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(t)
			w.MachineInvalid(tt.machine, tt.expectedErrorContain)
		})
	}
}

func TestResultOK(t *testing.T) {
	w := New(t)
	w.ResultOK(api.OK(&api.WorkflowState{ID: "state-1"}))
}

func TestResultFailed(t *testing.T) {
	w := New(t)
	w.ResultFailed(
		api.Failed(api.ErrCodeConflict, "version conflict"),
		api.ErrCodeConflict,
	)
}

func TestStateHasVariables(t *testing.T) {
	tests := []struct {
		getter  *mockGetter
		name    string
		stateID api.StateID
		names   []api.Name
	}{
		{
			name: "has all required names",
			getter: &mockGetter{
				vars: map[api.StateID]map[api.Name]any{
					"state-1": {
						"key1": "value1",
						"key2": "value2",
					},
				},
			},
			stateID: "state-1",
			names:   []api.Name{"key1", "key2"},
		},
		{
			name: "has single name",
			getter: &mockGetter{
				vars: map[api.StateID]map[api.Name]any{
					"state-1": {
						"key1": "value1",
					},
				},
			},
			stateID: "state-1",
			names:   []api.Name{"key1"},
		},
		{
			name: "empty names list",
			getter: &mockGetter{
				vars: map[api.StateID]map[api.Name]any{
					"state-1": {},
				},
			},
			stateID: "state-1",
			names:   []api.Name{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(t)
			ctx := context.Background()
			w.StateHasVariables(ctx, tt.getter, tt.stateID, tt.names...)
		})
	}
}

func TestStateVariableEquals(t *testing.T) {
	tests := []struct {
		getter   *mockGetter
		expected any
		name     string
		stateID  api.StateID
		key      api.Name
	}{
		{
			name: "string value matches",
			getter: &mockGetter{
				vars: map[api.StateID]map[api.Name]any{
					"state-1": {
						"name": "test",
					},
				},
			},
			stateID:  "state-1",
			key:      "name",
			expected: "test",
		},
		{
			name: "integer value matches",
			getter: &mockGetter{
				vars: map[api.StateID]map[api.Name]any{
					"state-1": {
						"count": 42,
					},
				},
			},
			stateID:  "state-1",
			key:      "count",
			expected: 42,
		},
		{
			name: "boolean value matches",
			getter: &mockGetter{
				vars: map[api.StateID]map[api.Name]any{
					"state-1": {
						"active": true,
					},
				},
			},
			stateID:  "state-1",
			key:      "active",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(t)
			ctx := context.Background()
			w.StateVariableEquals(
				ctx, tt.getter, tt.stateID, tt.key, tt.expected,
			)
		})
	}
}

func TestConfigValid(t *testing.T) {
	w := New(t)
	w.ConfigValid(config.NewDefaultConfig())
}

func TestConfigInvalid(t *testing.T) {
	tests := []struct {
		mutate   func(*config.Config)
		name     string
		contains string
	}{
		{
			name: "invalid port zero",
			mutate: func(cfg *config.Config) {
				cfg.APIPort = 0
			},
			contains: "port",
		},
		{
			name: "invalid port too large",
			mutate: func(cfg *config.Config) {
				cfg.APIPort = 65536
			},
			contains: "port",
		},
		{
			name: "invalid step timeout",
			mutate: func(cfg *config.Config) {
				cfg.StepTimeout = 0
			},
			contains: "timeout",
		},
		{
			name: "invalid loop iterations",
			mutate: func(cfg *config.Config) {
				cfg.Loop.MaxIterations = 0
			},
			contains: "iterations",
		},
		{
			name: "invalid history retain",
			mutate: func(cfg *config.Config) {
				cfg.History.Retain = 1
			},
			contains: "retain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tt.mutate(cfg)

			w := New(t)
			w.ConfigInvalid(cfg, tt.contains)
		})
	}
}

func TestEventually(t *testing.T) {
	tests := []struct {
		condition func() bool
		name      string
		timeout   time.Duration
	}{
		{
			name: "condition passes immediately",
			condition: func() bool {
				return true
			},
			timeout: 1 * time.Second,
		},
		{
			name: "condition passes after retries",
			condition: func() func() bool {
				attempts := 0
				return func() bool {
					attempts++
					return attempts >= 3
				}
			}(),
			timeout: 1 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(t)
			w.Eventually(tt.condition, tt.timeout, "condition should pass")
		})
	}
}

func TestEventuallyWithError(t *testing.T) {
	tests := []struct {
		condition func() error
		name      string
		timeout   time.Duration
	}{
		{
			name: "condition succeeds immediately",
			condition: func() error {
				return nil
			},
			timeout: 1 * time.Second,
		},
		{
			name: "condition succeeds after retries",
			condition: func() func() error {
				attempts := 0
				return func() error {
					attempts++
					if attempts >= 3 {
						return nil
					}
					return errors.New("not ready yet")
				}
			}(),
			timeout: 1 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(t)
			w.EventuallyWithError(
				tt.condition, tt.timeout, "condition should succeed",
			)
		})
	}
}
