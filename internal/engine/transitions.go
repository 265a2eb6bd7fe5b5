package engine

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/kode4food/paisley/internal/engine/script"
	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/log"
)

type (
	// TransitionValidator decides whether a requested status change is
	// permitted by a state's machine and its guard conditions
	TransitionValidator struct {
		scripts *script.Registry
	}

	// TransitionDecision is the outcome of validating one requested
	// transition, including per-condition diagnostics gathered on the way
	TransitionDecision struct {
		Transition *api.Transition
		Reason     string
		Results    []*api.ConditionResult
		Allowed    bool
	}
)

var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// NewTransitionValidator creates a validator that evaluates guard
// conditions through the given script registry
func NewTransitionValidator(scripts *script.Registry) *TransitionValidator {
	return &TransitionValidator{scripts: scripts}
}

// Validate checks the requested status change against the machine's
// transition table. Candidates are tried in declaration order and the
// first transition whose conditions all pass wins. Diagnostics for every
// evaluated condition are reported either way
func (v *TransitionValidator) Validate(
	machine *api.StateMachineConfig, from, to api.Status,
	trigger api.Trigger, vars api.Variables,
) *TransitionDecision {
	trs, ok := machine.States[from]
	if !ok {
		return &TransitionDecision{
			Reason: fmt.Sprintf("status %q is not part of the machine", from),
		}
	}

	candidates := make([]*api.Transition, 0, len(trs))
	for _, tr := range trs {
		if tr.To != to {
			continue
		}
		if trigger != "" && tr.Trigger != trigger {
			continue
		}
		candidates = append(candidates, tr)
	}
	if len(candidates) == 0 {
		return &TransitionDecision{
			Reason: noTransitionReason(from, to, trigger),
		}
	}

	d := &TransitionDecision{}
	for _, tr := range candidates {
		results, pass := v.evaluateConditions(tr, vars)
		d.Results = append(d.Results, results...)
		if pass {
			d.Transition = tr
			d.Allowed = true
			return d
		}
	}
	d.Reason = fmt.Sprintf(
		"guard conditions rejected transition from %q to %q", from, to,
	)
	return d
}

// evaluateConditions runs a transition's guards in order, stopping at the
// first failure. A guard that errors fails closed
func (v *TransitionValidator) evaluateConditions(
	tr *api.Transition, vars api.Variables,
) ([]*api.ConditionResult, bool) {
	results := make([]*api.ConditionResult, 0, len(tr.Conditions))
	for _, cond := range tr.Conditions {
		ok, err := v.scripts.EvaluateCondition(cond, vars)
		if err != nil {
			slog.Warn("Condition evaluation failed",
				slog.String("expression", cond.Expression),
				log.Error(err))
			ok = false
		}
		results = append(results, &api.ConditionResult{
			Operands:   conditionOperands(cond.Expression, vars),
			Expression: cond.Expression,
			Result:     ok,
		})
		if !ok {
			return results, false
		}
	}
	return results, true
}

// conditionOperands collects the values of the scope variables an
// expression mentions. The lexical scan is language-agnostic; only names
// actually bound in the scope are reported
func conditionOperands(expr string, vars api.Variables) api.Variables {
	var res api.Variables
	for _, tok := range identPattern.FindAllString(expr, -1) {
		name := api.Name(tok)
		if val, ok := vars[name]; ok {
			res = res.Set(name, val)
		}
	}
	return res
}

func noTransitionReason(from, to api.Status, trigger api.Trigger) string {
	if trigger != "" {
		return fmt.Sprintf("no transition from %q to %q for trigger %q",
			from, to, trigger)
	}
	return fmt.Sprintf("no transition from %q to %q", from, to)
}
