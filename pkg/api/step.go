package api

import (
	"fmt"
	"slices"

	"github.com/kode4food/paisley/pkg/util"
)

type (
	// StepType discriminates the body step variants
	StepType string

	// LoopType discriminates the loop archetypes
	LoopType string

	// BackoffType selects the delay growth curve of a retry policy
	BackoffType string

	// ScriptLanguage names an expression language understood by the script
	// registry. Conditions and script steps share the same set
	ScriptLanguage string

	// Step is one entry in a loop body. Task steps are delegated to the
	// external step executor; script steps run in-process; loop steps
	// recurse into the loop engine
	Step struct {
		Task   *TaskConfig   `json:"task,omitempty"`
		Script *ScriptConfig `json:"script,omitempty"`
		Loop   *LoopStep     `json:"loop,omitempty"`
		ID     StepID        `json:"id"`
		Name   Name          `json:"name"`
		Type   StepType      `json:"type"`
	}

	// TaskConfig carries the opaque payload handed to the step executor
	TaskConfig struct {
		Args    Variables `json:"args,omitempty"`
		Handler string    `json:"handler"`
	}

	// ScriptConfig carries an in-process script step. Args names the
	// variables passed to the script; when empty, every variable in scope
	// is passed
	ScriptConfig struct {
		Language ScriptLanguage `json:"language,omitempty"`
		Script   string         `json:"script"`
		Args     []Name         `json:"args,omitempty"`
	}

	// LoopStep configures one loop execution. For-loops iterate a bound
	// collection addressed by Iterable; while-loops re-evaluate Condition
	// under a mandatory MaxIterations ceiling
	LoopStep struct {
		Condition         *Condition   `json:"condition,omitempty"`
		BreakCondition    *Condition   `json:"break_condition,omitempty"`
		ContinueCondition *Condition   `json:"continue_condition,omitempty"`
		Retry             *RetryPolicy `json:"retry,omitempty"`
		Body              []*Step      `json:"body"`
		ID                LoopID       `json:"id"`
		Name              Name         `json:"name"`
		Type              LoopType     `json:"type"`
		Iterable          string       `json:"iterable,omitempty"`
		ItemVar           Name         `json:"item_var,omitempty"`
		IndexVar          Name         `json:"index_var,omitempty"`
		MaxIterations     int          `json:"max_iterations,omitempty"`
		TimeoutMs         int64        `json:"timeout_ms,omitempty"`
	}

	// RetryPolicy bounds the replay of a failed iteration
	RetryPolicy struct {
		BackoffType BackoffType `json:"backoff_type,omitempty"`
		MaxAttempts int         `json:"max_attempts"`
		DelayMs     int64       `json:"delay_ms,omitempty"`
		MaxDelayMs  int64       `json:"max_delay_ms,omitempty"`
	}
)

const (
	StepTypeTask   StepType = "task"
	StepTypeScript StepType = "script"
	StepTypeLoop   StepType = "loop"

	LoopTypeFor   LoopType = "for"
	LoopTypeWhile LoopType = "while"

	BackoffTypeFixed       BackoffType = "fixed"
	BackoffTypeLinear      BackoffType = "linear"
	BackoffTypeExponential BackoffType = "exponential"

	LangAle   ScriptLanguage = "ale"
	LangLua   ScriptLanguage = "lua"
	LangJPath ScriptLanguage = "jpath"

	// DefaultScriptLanguage applies when a script or condition names no
	// language
	DefaultScriptLanguage = LangLua
)

// DefaultItemVar and DefaultIndexVar are bound for for-loop iterations when
// the loop step names no iterator variables
const (
	DefaultItemVar  Name = "currentItem"
	DefaultIndexVar Name = "index"
)

const (
	Second int64 = 1000
	Minute       = Second * 60
	Hour         = Minute * 60
	Day          = Hour * 24
)

var (
	validStepTypes = util.SetOf(
		StepTypeTask,
		StepTypeScript,
		StepTypeLoop,
	)

	validLoopTypes = util.SetOf(
		LoopTypeFor,
		LoopTypeWhile,
	)

	validBackoffTypes = util.SetOf(
		BackoffTypeFixed,
		BackoffTypeLinear,
		BackoffTypeExponential,
	)
)

// Validate checks the structural integrity of a body step
func (s *Step) Validate() []*FieldError {
	var errs []*FieldError
	if s.ID == "" {
		errs = append(errs, NewFieldError("id", "step ID is required"))
	}
	if !validStepTypes.Contains(s.Type) {
		errs = append(errs, NewFieldError(
			"type", fmt.Sprintf("invalid step type %q", s.Type),
		))
		return errs
	}
	switch s.Type {
	case StepTypeTask:
		if s.Task == nil {
			errs = append(errs, NewFieldError(
				"task", "task configuration is required",
			))
		} else if s.Task.Handler == "" {
			errs = append(errs, NewFieldError(
				"task.handler", "task handler is required",
			))
		}
	case StepTypeScript:
		if s.Script == nil {
			errs = append(errs, NewFieldError(
				"script", "script configuration is required",
			))
		} else if s.Script.Script == "" {
			errs = append(errs, NewFieldError(
				"script.script", "script source is required",
			))
		}
	case StepTypeLoop:
		if s.Loop == nil {
			errs = append(errs, NewFieldError(
				"loop", "loop configuration is required",
			))
		} else {
			errs = append(errs, s.Loop.Validate()...)
		}
	}
	return errs
}

// Validate checks the structural integrity of a loop step, collecting every
// problem found
func (l *LoopStep) Validate() []*FieldError {
	var errs []*FieldError

	if !validLoopTypes.Contains(l.Type) {
		errs = append(errs, NewFieldError(
			"type", fmt.Sprintf("invalid loop type %q", l.Type),
		))
		return errs
	}

	switch l.Type {
	case LoopTypeFor:
		if l.Iterable == "" {
			errs = append(errs, NewFieldError(
				"iterable", "for-loop requires an iterable reference",
			))
		}
		if l.Condition != nil {
			errs = append(errs, NewFieldError(
				"condition", "for-loop cannot carry a loop condition",
			))
		}
	case LoopTypeWhile:
		if l.Condition == nil || l.Condition.Expression == "" {
			errs = append(errs, NewFieldError(
				"condition", "while-loop requires a loop condition",
			))
		}
		if l.Iterable != "" {
			errs = append(errs, NewFieldError(
				"iterable", "while-loop cannot carry an iterable reference",
			))
		}
		if l.MaxIterations <= 0 {
			errs = append(errs, NewFieldError(
				"max_iterations",
				"while-loop requires a positive max iterations bound",
			))
		}
	}

	if l.MaxIterations < 0 {
		errs = append(errs, NewFieldError(
			"max_iterations", "max iterations cannot be negative",
		))
	}
	if l.TimeoutMs < 0 {
		errs = append(errs, NewFieldError(
			"timeout_ms", "timeout cannot be negative",
		))
	}
	if len(l.Body) == 0 {
		errs = append(errs, NewFieldError("body", "loop body is empty"))
	}
	for i, step := range l.Body {
		if step == nil {
			errs = append(errs, NewFieldError(
				fmt.Sprintf("body[%d]", i), "body step is nil",
			))
			continue
		}
		for _, fe := range step.Validate() {
			errs = append(errs, NewFieldError(
				fmt.Sprintf("body[%d].%s", i, fe.Field), fe.Message,
			))
		}
	}
	if l.Retry != nil {
		errs = append(errs, l.Retry.Validate()...)
	}
	return errs
}

// Validate checks the bounds of a retry policy
func (r *RetryPolicy) Validate() []*FieldError {
	var errs []*FieldError
	if r.MaxAttempts < 0 {
		errs = append(errs, NewFieldError(
			"retry.max_attempts", "max attempts cannot be negative",
		))
	}
	if r.DelayMs < 0 {
		errs = append(errs, NewFieldError(
			"retry.delay_ms", "delay cannot be negative",
		))
	}
	if r.MaxDelayMs != 0 && r.MaxDelayMs < r.DelayMs {
		errs = append(errs, NewFieldError(
			"retry.max_delay_ms", "max delay must be >= delay",
		))
	}
	if r.BackoffType != "" && !validBackoffTypes.Contains(r.BackoffType) {
		errs = append(errs, NewFieldError(
			"retry.backoff_type",
			fmt.Sprintf("invalid backoff type %q", r.BackoffType),
		))
	}
	return errs
}

// ItemBinding returns the iterator variable name, applying the default
func (l *LoopStep) ItemBinding() Name {
	if l.ItemVar != "" {
		return l.ItemVar
	}
	return DefaultItemVar
}

// IndexBinding returns the index variable name, applying the default
func (l *LoopStep) IndexBinding() Name {
	if l.IndexVar != "" {
		return l.IndexVar
	}
	return DefaultIndexVar
}

// EffectiveLanguage returns the script's language, applying the default
func (c *ScriptConfig) EffectiveLanguage() ScriptLanguage {
	if c.Language == "" {
		return DefaultScriptLanguage
	}
	return c.Language
}

// SortedArgNames returns the script's argument names in sorted order. When
// the config names no args, the sorted names of the variables in scope are
// used instead
func (c *ScriptConfig) SortedArgNames(vars Variables) []string {
	if len(c.Args) > 0 {
		res := make([]string, len(c.Args))
		for i, name := range c.Args {
			res[i] = string(name)
		}
		slices.Sort(res)
		return res
	}
	res := make([]string, 0, len(vars))
	for name := range vars {
		res = append(res, string(name))
	}
	slices.Sort(res)
	return res
}
