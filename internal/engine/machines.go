package engine

import (
	"context"
	"fmt"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
)

// RegisterMachine validates a machine configuration and records it in the
// catalog. Re-registering an identical configuration is a no-op; a changed
// configuration under the same ID replaces the old one
func (e *Engine) RegisterMachine(
	ctx context.Context, m *api.StateMachineConfig,
) ([]*api.FieldError, error) {
	if errs := e.validateMachine(m); len(errs) > 0 {
		return errs, nil
	}

	cmd := func(st *api.EngineState, ag *EngineAggregator) error {
		if existing, ok := st.Machines[m.ID]; ok {
			if existing.Equal(m) {
				return nil
			}
			return events.Raise(ag, api.EventMachineUpdated,
				api.MachineUpdatedEvent{Machine: m})
		}
		return events.Raise(ag, api.EventMachineRegistered,
			api.MachineRegisteredEvent{Machine: m})
	}

	if _, err := e.execEngine(ctx, cmd); err != nil {
		return nil, err
	}
	return nil, nil
}

// GetMachine retrieves a machine configuration from the catalog
func (e *Engine) GetMachine(
	ctx context.Context, id api.MachineID,
) (*api.StateMachineConfig, error) {
	st, err := e.GetEngineState(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := st.Machines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMachineNotFound, id)
	}
	return m, nil
}

// ListMachines returns the catalog's machine configurations sorted by ID
func (e *Engine) ListMachines(
	ctx context.Context,
) ([]*api.StateMachineConfig, error) {
	st, err := e.GetEngineState(ctx)
	if err != nil {
		return nil, err
	}

	ids := st.MachineIDs()
	res := make([]*api.StateMachineConfig, len(ids))
	for i, id := range ids {
		res[i] = st.Machines[id]
	}
	return res, nil
}

// RemoveMachine removes a machine configuration from the catalog. States
// initialized from it keep their embedded copy and are unaffected
func (e *Engine) RemoveMachine(ctx context.Context, id api.MachineID) error {
	cmd := func(st *api.EngineState, ag *EngineAggregator) error {
		if _, ok := st.Machines[id]; !ok {
			return fmt.Errorf("%w: %s", ErrMachineNotFound, id)
		}
		return events.Raise(ag, api.EventMachineRemoved,
			api.MachineRemovedEvent{MachineID: id})
	}
	_, err := e.execEngine(ctx, cmd)
	return err
}

func (e *Engine) validateMachine(
	m *api.StateMachineConfig,
) []*api.FieldError {
	var errs []*api.FieldError
	if m.ID == "" {
		errs = append(errs, api.NewFieldError(
			"id", "machine ID is required",
		))
	}
	errs = append(errs, m.Validate()...)
	if len(errs) > 0 {
		return errs
	}
	return e.validateConditions(m)
}

// validateConditions compiles every guard condition that can be checked
// ahead of time. Ale expressions resolve scope symbols at evaluation time,
// so only their structure is validated here
func (e *Engine) validateConditions(
	m *api.StateMachineConfig,
) []*api.FieldError {
	var errs []*api.FieldError
	for _, status := range m.StatusNames() {
		for i, tr := range m.States[status] {
			for j, cond := range tr.Conditions {
				if err := e.compileCheck(cond); err != nil {
					errs = append(errs, api.NewFieldError(
						fmt.Sprintf("states.%s[%d].conditions[%d].%s",
							status, i, j, api.FieldExpression),
						err.Error(),
					))
				}
			}
		}
	}
	return errs
}

func (e *Engine) compileCheck(cond *api.Condition) error {
	lang := cond.EffectiveLanguage()
	if lang == api.LangAle {
		return nil
	}
	env, err := e.scripts.Get(lang)
	if err != nil {
		return err
	}
	_, err = env.CompileCondition(cond.Expression, nil)
	return err
}
