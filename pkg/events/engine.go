package events

import (
	"time"

	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
)

const EnginePrefix = "engine"

var (
	// EngineKey is the aggregate ID of the engine's singleton record
	EngineKey = timebox.NewAggregateID(EnginePrefix)

	// EngineAppliers contains the event applier functions for the machine
	// catalog, activity tracking, and listing digests
	EngineAppliers = makeEngineAppliers()
)

// NewEngineState creates an empty engine state with initialized maps for
// the machine catalog, activity tracking, and listing digests
func NewEngineState() *api.EngineState {
	return &api.EngineState{
		Machines:    map[api.MachineID]*api.StateMachineConfig{},
		Active:      map[api.StateID]*api.ActiveState{},
		Deactivated: []*api.DeactivatedState{},
		Archiving:   map[api.StateID]time.Time{},
		Digests:     map[api.StateID]*api.StateDigest{},
	}
}

// IsEngineEvent returns true if the event is for the engine aggregate
func IsEngineEvent(ev *timebox.Event) bool {
	return len(ev.AggregateID) >= 1 && ev.AggregateID[0] == EnginePrefix
}

func makeEngineAppliers() timebox.Appliers[*api.EngineState] {
	return MakeAppliers(map[api.EventType]timebox.Applier[*api.EngineState]{
		api.EventMachineRegistered:  timebox.MakeApplier(machineRegistered),
		api.EventMachineUpdated:     timebox.MakeApplier(machineUpdated),
		api.EventMachineRemoved:     timebox.MakeApplier(machineRemoved),
		api.EventStateActivated:     timebox.MakeApplier(stateActivated),
		api.EventStateDigestUpdated: timebox.MakeApplier(stateDigestUpdated),
		api.EventStateDeactivated:   timebox.MakeApplier(stateDeactivated),
		api.EventStateArchiving:     timebox.MakeApplier(stateArchiving),
		api.EventStateArchived:      timebox.MakeApplier(stateArchived),
	})
}

func machineRegistered(
	st *api.EngineState, ev *timebox.Event, data api.MachineRegisteredEvent,
) *api.EngineState {
	return st.
		SetMachine(data.Machine).
		SetLastUpdated(ev.Timestamp)
}

func machineUpdated(
	st *api.EngineState, ev *timebox.Event, data api.MachineUpdatedEvent,
) *api.EngineState {
	return st.
		SetMachine(data.Machine).
		SetLastUpdated(ev.Timestamp)
}

func machineRemoved(
	st *api.EngineState, ev *timebox.Event, data api.MachineRemovedEvent,
) *api.EngineState {
	return st.
		RemoveMachine(data.MachineID).
		SetLastUpdated(ev.Timestamp)
}

func stateActivated(
	st *api.EngineState, ev *timebox.Event, data api.StateActivatedEvent,
) *api.EngineState {
	digest := &api.StateDigest{
		CreatedAt:  ev.Timestamp,
		UpdatedAt:  ev.Timestamp,
		Labels:     data.Labels,
		ID:         data.StateID,
		WorkflowID: data.WorkflowID,
		Status:     data.Status,
	}

	// Reactivation keeps the original creation time and labels
	if existing, ok := st.Digests[data.StateID]; ok {
		digest.CreatedAt = existing.CreatedAt
		if len(digest.Labels) == 0 {
			digest.Labels = existing.Labels
		}
		if digest.WorkflowID == "" {
			digest.WorkflowID = existing.WorkflowID
		}
	}

	return st.
		RemoveDeactivated(data.StateID).
		RemoveArchiving(data.StateID).
		SetActive(data.StateID, &api.ActiveState{
			StartedAt:  ev.Timestamp,
			LastActive: ev.Timestamp,
			WorkflowID: digest.WorkflowID,
		}).
		SetDigest(data.StateID, digest).
		SetLastUpdated(ev.Timestamp)
}

func stateDigestUpdated(
	st *api.EngineState, ev *timebox.Event, data api.StateDigestUpdatedEvent,
) *api.EngineState {
	digest := &api.StateDigest{
		CreatedAt: ev.Timestamp,
		UpdatedAt: ev.Timestamp,
		ID:        data.StateID,
		Status:    data.Status,
		Terminal:  data.Terminal,
	}

	if existing, ok := st.Digests[data.StateID]; ok {
		digest.CreatedAt = existing.CreatedAt
		digest.Labels = existing.Labels
		digest.WorkflowID = existing.WorkflowID
	} else if active, ok := st.Active[data.StateID]; ok {
		digest.CreatedAt = active.StartedAt
		digest.WorkflowID = active.WorkflowID
	}

	return st.
		TouchActive(data.StateID, ev.Timestamp).
		SetDigest(data.StateID, digest).
		SetLastUpdated(ev.Timestamp)
}

func stateDeactivated(
	st *api.EngineState, ev *timebox.Event, data api.StateDeactivatedEvent,
) *api.EngineState {
	workflowID := data.WorkflowID
	if active, ok := st.Active[data.StateID]; ok && workflowID == "" {
		workflowID = active.WorkflowID
	}
	return st.
		DeleteActive(data.StateID).
		AddDeactivated(&api.DeactivatedState{
			DeactivatedAt: ev.Timestamp,
			StateID:       data.StateID,
			WorkflowID:    workflowID,
		}).
		SetLastUpdated(ev.Timestamp)
}

func stateArchiving(
	st *api.EngineState, ev *timebox.Event, data api.StateArchivingEvent,
) *api.EngineState {
	return st.
		RemoveDeactivated(data.StateID).
		AddArchiving(data.StateID, ev.Timestamp).
		SetLastUpdated(ev.Timestamp)
}

func stateArchived(
	st *api.EngineState, ev *timebox.Event, data api.StateArchivedEvent,
) *api.EngineState {
	return st.
		RemoveArchiving(data.StateID).
		DeleteDigest(data.StateID).
		SetLastUpdated(ev.Timestamp)
}
