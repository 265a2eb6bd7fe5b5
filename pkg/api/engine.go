package api

import (
	"maps"
	"slices"
	"time"
)

type (
	// EngineState is the singleton aggregate the engine keeps for itself.
	// It holds the machine catalog, tracks which workflow states are live,
	// and carries the digests that back state listings
	EngineState struct {
		LastUpdated time.Time                         `json:"last_updated"`
		Machines    map[MachineID]*StateMachineConfig `json:"machines"`
		Active      map[StateID]*ActiveState          `json:"active"`
		Deactivated []*DeactivatedState               `json:"deactivated"`
		Archiving   map[StateID]time.Time             `json:"archiving"`
		Digests     map[StateID]*StateDigest          `json:"digests"`
	}

	// ActiveState tracks a live workflow state
	ActiveState struct {
		StartedAt  time.Time  `json:"started_at"`
		LastActive time.Time  `json:"last_active"`
		WorkflowID WorkflowID `json:"workflow_id,omitempty"`
	}

	// DeactivatedState tracks a workflow state that reached a terminal
	// status. Entries stay ordered by deactivation time and feed archive
	// candidate selection
	DeactivatedState struct {
		DeactivatedAt time.Time  `json:"deactivated_at"`
		StateID       StateID    `json:"state_id"`
		WorkflowID    WorkflowID `json:"workflow_id,omitempty"`
	}
)

// SetMachine returns a new EngineState with the machine recorded in the
// catalog
func (es *EngineState) SetMachine(m *StateMachineConfig) *EngineState {
	res := *es
	res.Machines = maps.Clone(es.Machines)
	if res.Machines == nil {
		res.Machines = map[MachineID]*StateMachineConfig{}
	}
	res.Machines[m.ID] = m
	return &res
}

// RemoveMachine returns a new EngineState without the named machine
func (es *EngineState) RemoveMachine(id MachineID) *EngineState {
	res := *es
	res.Machines = maps.Clone(es.Machines)
	delete(res.Machines, id)
	return &res
}

// MachineIDs returns the sorted identifiers of the catalog's machines
func (es *EngineState) MachineIDs() []MachineID {
	ids := make([]MachineID, 0, len(es.Machines))
	for id := range es.Machines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SetActive returns a new EngineState with the state tracked as live
func (es *EngineState) SetActive(id StateID, a *ActiveState) *EngineState {
	res := *es
	res.Active = maps.Clone(es.Active)
	if res.Active == nil {
		res.Active = map[StateID]*ActiveState{}
	}
	res.Active[id] = a
	return &res
}

// TouchActive returns a new EngineState with the state's activity
// timestamp refreshed. No-op when the state is not tracked as live
func (es *EngineState) TouchActive(id StateID, t time.Time) *EngineState {
	active, ok := es.Active[id]
	if !ok {
		return es
	}
	touched := *active
	touched.LastActive = t
	return es.SetActive(id, &touched)
}

// DeleteActive returns a new EngineState with the state no longer live
func (es *EngineState) DeleteActive(id StateID) *EngineState {
	res := *es
	res.Active = maps.Clone(es.Active)
	delete(res.Active, id)
	return &res
}

// AddDeactivated returns a new EngineState with the state appended to the
// deactivated list. An existing entry for the same state is replaced
func (es *EngineState) AddDeactivated(d *DeactivatedState) *EngineState {
	res := *es
	res.Deactivated = make([]*DeactivatedState, 0, len(es.Deactivated)+1)
	for _, entry := range es.Deactivated {
		if entry.StateID != d.StateID {
			res.Deactivated = append(res.Deactivated, entry)
		}
	}
	res.Deactivated = append(res.Deactivated, d)
	return &res
}

// RemoveDeactivated returns a new EngineState without the named state in
// the deactivated list
func (es *EngineState) RemoveDeactivated(id StateID) *EngineState {
	res := *es
	res.Deactivated = slices.DeleteFunc(
		slices.Clone(es.Deactivated),
		func(d *DeactivatedState) bool { return d.StateID == id },
	)
	return &res
}

// AddArchiving returns a new EngineState with the state marked as having
// an archive export in flight
func (es *EngineState) AddArchiving(id StateID, t time.Time) *EngineState {
	res := *es
	res.Archiving = maps.Clone(es.Archiving)
	if res.Archiving == nil {
		res.Archiving = map[StateID]time.Time{}
	}
	res.Archiving[id] = t
	return &res
}

// RemoveArchiving returns a new EngineState with the in-flight archive
// mark cleared
func (es *EngineState) RemoveArchiving(id StateID) *EngineState {
	res := *es
	res.Archiving = maps.Clone(es.Archiving)
	delete(res.Archiving, id)
	return &res
}

// SetDigest returns a new EngineState with the state's listing digest set
func (es *EngineState) SetDigest(id StateID, d *StateDigest) *EngineState {
	res := *es
	res.Digests = maps.Clone(es.Digests)
	if res.Digests == nil {
		res.Digests = map[StateID]*StateDigest{}
	}
	res.Digests[id] = d
	return &res
}

// DeleteDigest returns a new EngineState without the state's digest
func (es *EngineState) DeleteDigest(id StateID) *EngineState {
	res := *es
	res.Digests = maps.Clone(es.Digests)
	delete(res.Digests, id)
	return &res
}

// SetLastUpdated returns a new EngineState with the update timestamp set
func (es *EngineState) SetLastUpdated(t time.Time) *EngineState {
	res := *es
	res.LastUpdated = t
	return &res
}

// IsActive returns true if the state is tracked as live
func (es *EngineState) IsActive(id StateID) bool {
	_, ok := es.Active[id]
	return ok
}
