package builder

import (
	"github.com/kode4food/paisley/pkg/api"
)

// Machine is a builder for state machine configurations
type Machine struct {
	id      api.MachineID
	name    api.Name
	initial api.Status
	states  map[api.Status][]*api.Transition
}

// NewMachine creates a new machine builder with the specified ID
func NewMachine(id api.MachineID) *Machine {
	return &Machine{
		id:     id,
		states: map[api.Status][]*api.Transition{},
	}
}

// WithName sets the machine's display name
func (m *Machine) WithName(name api.Name) *Machine {
	res := *m
	res.name = name
	return &res
}

// WithInitialState sets the status newly initialized states start in. The
// status is registered even when it has no outbound transitions
func (m *Machine) WithInitialState(status api.Status) *Machine {
	res := m.withStatus(status)
	res.initial = status
	return res
}

// WithState registers a status with no outbound transitions. Statuses
// named by WithTransition are registered implicitly; this is only needed
// for terminal statuses nothing transitions out of
func (m *Machine) WithState(status api.Status) *Machine {
	return m.withStatus(status)
}

// WithTransition permits a status change under the given trigger
func (m *Machine) WithTransition(
	from, to api.Status, trigger api.Trigger,
) *Machine {
	return m.addTransition(from, &api.Transition{
		To:      to,
		Trigger: trigger,
	})
}

// WithGuardedTransition permits a status change gated by the condition
// expressions, evaluated in the default script language
func (m *Machine) WithGuardedTransition(
	from, to api.Status, trigger api.Trigger, expressions ...string,
) *Machine {
	conditions := make([]*api.Condition, len(expressions))
	for i, expr := range expressions {
		conditions[i] = &api.Condition{Expression: expr}
	}
	return m.addTransition(from, &api.Transition{
		To:         to,
		Trigger:    trigger,
		Conditions: conditions,
	})
}

// Build assembles the machine configuration
func (m *Machine) Build() *api.StateMachineConfig {
	states := make(map[api.Status][]*api.Transition, len(m.states))
	for status, ts := range m.states {
		states[status] = append([]*api.Transition{}, ts...)
	}
	return &api.StateMachineConfig{
		ID:           m.id,
		Name:         m.name,
		InitialState: m.initial,
		States:       states,
	}
}

func (m *Machine) withStatus(status api.Status) *Machine {
	res := *m
	res.states = cloneStates(m.states)
	if _, ok := res.states[status]; !ok {
		res.states[status] = []*api.Transition{}
	}
	return &res
}

func (m *Machine) addTransition(
	from api.Status, t *api.Transition,
) *Machine {
	res := *m
	res.states = cloneStates(m.states)
	res.states[from] = append(
		append([]*api.Transition{}, res.states[from]...), t,
	)
	if _, ok := res.states[t.To]; !ok {
		res.states[t.To] = []*api.Transition{}
	}
	return &res
}

func cloneStates(
	states map[api.Status][]*api.Transition,
) map[api.Status][]*api.Transition {
	res := make(map[api.Status][]*api.Transition, len(states))
	for status, ts := range states {
		res[status] = ts
	}
	return res
}
