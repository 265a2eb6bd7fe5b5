package helpers

import (
	"github.com/google/uuid"

	"github.com/kode4food/paisley/pkg/api"
)

// NewTestStep creates a basic task step for testing with a static handler
// argument
func NewTestStep() *api.Step {
	return &api.Step{
		ID:   api.StepID("test-step-" + uuid.New().String()[:8]),
		Name: "Test Step",
		Type: api.StepTypeTask,
		Task: &api.TaskConfig{
			Handler: "http://localhost:8080/transform",
			Args: api.Variables{
				"mode": "test",
			},
		},
	}
}

// NewTaskStep creates a minimal task step with the specified ID
func NewTaskStep(id api.StepID) *api.Step {
	return &api.Step{
		ID:   id,
		Name: "Test Step",
		Type: api.StepTypeTask,
		Task: &api.TaskConfig{
			Handler: "http://test:8080",
		},
	}
}

// NewScriptStep creates a script step with the specified language and code
func NewScriptStep(
	id api.StepID, language api.ScriptLanguage, script string,
) *api.Step {
	return &api.Step{
		ID:   id,
		Name: "Script Step",
		Type: api.StepTypeScript,
		Script: &api.ScriptConfig{
			Language: language,
			Script:   script,
		},
	}
}

// NewLoopStep wraps a loop configuration in a body step so loops can nest
func NewLoopStep(id api.StepID, loop *api.LoopStep) *api.Step {
	return &api.Step{
		ID:   id,
		Name: "Loop Step",
		Type: api.StepTypeLoop,
		Loop: loop,
	}
}

// NewForLoop creates a for-loop over the named iterable with the given body
func NewForLoop(id api.LoopID, iterable string, body ...*api.Step) *api.LoopStep {
	return &api.LoopStep{
		ID:       id,
		Name:     "Test For Loop",
		Type:     api.LoopTypeFor,
		Iterable: iterable,
		Body:     body,
	}
}

// NewWhileLoop creates a while-loop with the given condition expression and
// iteration ceiling. The condition uses the default script language
func NewWhileLoop(
	id api.LoopID, condition string, maxIterations int, body ...*api.Step,
) *api.LoopStep {
	return &api.LoopStep{
		ID:   id,
		Name: "Test While Loop",
		Type: api.LoopTypeWhile,
		Condition: &api.Condition{
			Expression: condition,
		},
		MaxIterations: maxIterations,
		Body:          body,
	}
}
