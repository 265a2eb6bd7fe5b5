package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

type (
	// Status names a state within a workflow state machine
	Status string

	// Trigger names the event that causes a transition
	Trigger Name

	// StateMachineConfig defines the permitted status transitions for a
	// workflow. Configs registered with the machine catalog carry an ID;
	// configs supplied inline may omit it. A config is immutable once
	// validated
	StateMachineConfig struct {
		States       map[Status][]*Transition `json:"states"`
		ID           MachineID                `json:"id,omitempty"`
		Name         Name                     `json:"name,omitempty"`
		InitialState Status                   `json:"initial_state"`
	}

	// Transition is one permitted status change, gated by a trigger and
	// zero or more guard conditions
	Transition struct {
		To         Status       `json:"to"`
		Trigger    Trigger      `json:"trigger"`
		Conditions []*Condition `json:"conditions,omitempty"`
	}

	// Condition is a boolean expression evaluated against a variable
	// snapshot
	Condition struct {
		Language   ScriptLanguage `json:"language,omitempty"`
		Expression string         `json:"expression"`
	}

	// ConditionResult reports a condition evaluation along with the
	// literal expression and the operand values it saw
	ConditionResult struct {
		Operands   Variables `json:"operands,omitempty"`
		Expression string    `json:"expression"`
		Result     bool      `json:"result"`
	}

	// TransitionContext carries the trigger and metadata of a requested
	// transition
	TransitionContext struct {
		Timestamp time.Time `json:"timestamp,omitzero"`
		Metadata  Metadata  `json:"metadata,omitempty"`
		Trigger   Trigger   `json:"trigger"`
	}

	// TransitionRecord is one accepted transition in a state's execution
	// history
	TransitionRecord struct {
		At      time.Time `json:"at"`
		From    Status    `json:"from"`
		To      Status    `json:"to"`
		Trigger Trigger   `json:"trigger"`
		Version int64     `json:"version"`
	}
)

// Triggers reserved for engine-driven mutations
const (
	TriggerRestore  Trigger = "restore"
	TriggerRollback Trigger = "rollback"
)

const (
	FieldInitialState = "initial_state"
	FieldStates       = "states"
	FieldTransitionTo = "to"
	FieldTrigger      = "trigger"
	FieldExpression   = "expression"
)

// Validate checks the structural integrity of the state machine
// configuration, collecting every problem found rather than stopping at the
// first
func (c *StateMachineConfig) Validate() []*FieldError {
	var errs []*FieldError

	if c.InitialState == "" {
		errs = append(errs, NewFieldError(
			FieldInitialState, "initial state is required",
		))
	}
	if len(c.States) == 0 {
		errs = append(errs, NewFieldError(
			FieldStates, "at least one state is required",
		))
		return errs
	}

	if c.InitialState != "" {
		if _, ok := c.States[c.InitialState]; !ok {
			errs = append(errs, NewFieldError(
				FieldInitialState,
				fmt.Sprintf("initial state %q is not among states",
					c.InitialState),
			))
		}
	}

	for _, status := range c.StatusNames() {
		errs = append(errs, c.validateTransitions(status)...)
	}
	return errs
}

func (c *StateMachineConfig) validateTransitions(
	status Status,
) []*FieldError {
	var errs []*FieldError
	for i, tr := range c.States[status] {
		field := fmt.Sprintf("states.%s[%d]", status, i)
		if tr == nil {
			errs = append(errs, NewFieldError(field, "transition is nil"))
			continue
		}
		if tr.To == "" {
			errs = append(errs, NewFieldError(
				field+"."+FieldTransitionTo, "transition target is required",
			))
		} else if _, ok := c.States[tr.To]; !ok {
			errs = append(errs, NewFieldError(
				field+"."+FieldTransitionTo,
				fmt.Sprintf("transition target %q is not among states",
					tr.To),
			))
		}
		if tr.Trigger == "" {
			errs = append(errs, NewFieldError(
				field+"."+FieldTrigger, "transition trigger is required",
			))
		}
		for j, cond := range tr.Conditions {
			if cond == nil || cond.Expression == "" {
				errs = append(errs, NewFieldError(
					fmt.Sprintf("%s.conditions[%d].%s",
						field, j, FieldExpression),
					"condition expression is required",
				))
			}
		}
	}
	return errs
}

// StatusNames returns the sorted status names of the configuration
func (c *StateMachineConfig) StatusNames() []Status {
	names := make([]Status, 0, len(c.States))
	for status := range c.States {
		names = append(names, status)
	}
	slices.Sort(names)
	return names
}

// IsTerminal returns true if the status has no outgoing transitions
func (c *StateMachineConfig) IsTerminal(status Status) bool {
	trs, ok := c.States[status]
	return ok && len(trs) == 0
}

// EffectiveLanguage returns the condition's language, applying the default
func (c *Condition) EffectiveLanguage() ScriptLanguage {
	if c.Language == "" {
		return DefaultScriptLanguage
	}
	return c.Language
}

// Equal compares two machine configurations structurally. Registration uses
// it to treat identical re-registrations as idempotent
func (c *StateMachineConfig) Equal(other *StateMachineConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	left, err := json.Marshal(c)
	if err != nil {
		return false
	}
	right, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}
