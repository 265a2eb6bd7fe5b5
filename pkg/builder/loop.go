package builder

import (
	"time"

	"github.com/kode4food/paisley/pkg/api"
)

// Loop is a builder for loop step configurations
type Loop struct {
	loop api.LoopStep
}

// ForEach creates a for-loop builder over the named iterable. The iterable
// may be a plain variable name or a dotted path into nested values
func ForEach(id api.LoopID, iterable string) *Loop {
	return &Loop{
		loop: api.LoopStep{
			ID:       id,
			Type:     api.LoopTypeFor,
			Iterable: iterable,
		},
	}
}

// While creates a while-loop builder re-evaluating the condition
// expression in the default script language
func While(id api.LoopID, condition string) *Loop {
	return &Loop{
		loop: api.LoopStep{
			ID:        id,
			Type:      api.LoopTypeWhile,
			Condition: &api.Condition{Expression: condition},
		},
	}
}

// WithName sets the loop's display name
func (l *Loop) WithName(name api.Name) *Loop {
	res := *l
	res.loop.Name = name
	return &res
}

// WithBindings names the variables bound for each iteration in place of
// the defaults
func (l *Loop) WithBindings(item, index api.Name) *Loop {
	res := *l
	res.loop.ItemVar = item
	res.loop.IndexVar = index
	return &res
}

// WithBody appends steps to the loop body
func (l *Loop) WithBody(steps ...*api.Step) *Loop {
	res := *l
	res.loop.Body = append(
		append([]*api.Step{}, l.loop.Body...), steps...,
	)
	return &res
}

// WithTask appends a task step delegating to the handler URL
func (l *Loop) WithTask(id api.StepID, handler string) *Loop {
	return l.WithBody(&api.Step{
		ID:   id,
		Type: api.StepTypeTask,
		Task: &api.TaskConfig{Handler: handler},
	})
}

// WithScript appends an in-process script step
func (l *Loop) WithScript(
	id api.StepID, language api.ScriptLanguage, script string,
) *Loop {
	return l.WithBody(&api.Step{
		ID:   id,
		Type: api.StepTypeScript,
		Script: &api.ScriptConfig{
			Language: language,
			Script:   script,
		},
	})
}

// WithNested appends a nested loop step
func (l *Loop) WithNested(id api.StepID, nested *Loop) *Loop {
	return l.WithBody(&api.Step{
		ID:   id,
		Type: api.StepTypeLoop,
		Loop: nested.Build(),
	})
}

// WithBreak stops the loop after any iteration where the expression holds
func (l *Loop) WithBreak(expression string) *Loop {
	res := *l
	res.loop.BreakCondition = &api.Condition{Expression: expression}
	return &res
}

// WithContinue skips iterations where the expression holds
func (l *Loop) WithContinue(expression string) *Loop {
	res := *l
	res.loop.ContinueCondition = &api.Condition{Expression: expression}
	return &res
}

// WithRetry sets the replay policy for failed iterations
func (l *Loop) WithRetry(policy *api.RetryPolicy) *Loop {
	res := *l
	res.loop.Retry = policy
	return &res
}

// WithMaxIterations caps the number of iterations
func (l *Loop) WithMaxIterations(n int) *Loop {
	res := *l
	res.loop.MaxIterations = n
	return &res
}

// WithTimeout bounds the loop's total runtime
func (l *Loop) WithTimeout(d time.Duration) *Loop {
	res := *l
	res.loop.TimeoutMs = d.Milliseconds()
	return &res
}

// Build assembles the loop step configuration
func (l *Loop) Build() *api.LoopStep {
	res := l.loop
	res.Body = append([]*api.Step{}, l.loop.Body...)
	return &res
}
