package events

import (
	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
)

const StatePrefix = "state"

// StateAppliers contains the event applier functions for workflow state
// events. Mutating events carry the version the engine assigned; rejection
// and diagnostic events append to the stream without touching the record
var StateAppliers = makeStateAppliers()

// NewWorkflowState creates an empty workflow state record
func NewWorkflowState() *api.WorkflowState {
	return &api.WorkflowState{
		Variables: api.Variables{},
	}
}

// StateKey returns the aggregate ID for a workflow state
func StateKey[T ~string](stateID T) timebox.AggregateID {
	return timebox.NewAggregateID(StatePrefix, timebox.ID(stateID))
}

// IsStateEvent returns true if the event belongs to a state aggregate
func IsStateEvent(ev *timebox.Event) bool {
	return len(ev.AggregateID) >= 2 && ev.AggregateID[0] == StatePrefix
}

// ParseStateID extracts the state identifier from a state aggregate event
func ParseStateID(ev *timebox.Event) (api.StateID, bool) {
	if !IsStateEvent(ev) {
		return "", false
	}
	return api.StateID(ev.AggregateID[1]), true
}

func makeStateAppliers() timebox.Appliers[*api.WorkflowState] {
	return MakeAppliers(
		map[api.EventType]timebox.Applier[*api.WorkflowState]{
			api.EventStateInitialized:    timebox.MakeApplier(stateInitialized),
			api.EventTransitionCompleted: timebox.MakeApplier(transitionCompleted),
			api.EventTransitionRejected:  auditOnly[*api.WorkflowState],
			api.EventConditionsEvaluated: auditOnly[*api.WorkflowState],
			api.EventVariablesUpdated:    timebox.MakeApplier(variablesUpdated),
			api.EventVariablesMerged:     timebox.MakeApplier(variablesMerged),
			api.EventConflictDetected:    auditOnly[*api.WorkflowState],
			api.EventSnapshotCreated:     timebox.MakeApplier(snapshotCreated),
			api.EventSnapshotArchived:    timebox.MakeApplier(snapshotArchived),
			api.EventSnapshotRestored:    timebox.MakeApplier(snapshotRestored),
			api.EventRollbackCompleted:   timebox.MakeApplier(rollbackCompleted),
			api.EventHistoryCompacted:    timebox.MakeApplier(historyCompacted),
		},
	)
}

func stateInitialized(
	_ *api.WorkflowState, ev *timebox.Event, data api.StateInitializedEvent,
) *api.WorkflowState {
	vars := data.Variables
	if vars == nil {
		vars = api.Variables{}
	}
	return &api.WorkflowState{
		CreatedAt:  ev.Timestamp,
		UpdatedAt:  ev.Timestamp,
		Variables:  vars,
		Metadata:   data.Metadata,
		Labels:     data.Labels,
		Machine:    data.Machine,
		ID:         data.StateID,
		WorkflowID: data.WorkflowID,
		MachineRef: data.MachineRef,
		Status:     data.Status,
		Version:    data.Version,
	}
}

func transitionCompleted(
	st *api.WorkflowState, ev *timebox.Event,
	data api.TransitionCompletedEvent,
) *api.WorkflowState {
	return st.
		SetStatus(data.To).
		AppendHistory(&api.TransitionRecord{
			At:      ev.Timestamp,
			From:    data.From,
			To:      data.To,
			Trigger: data.Trigger,
			Version: data.Version,
		}).
		SetVersion(data.Version).
		SetUpdatedAt(ev.Timestamp)
}

func variablesUpdated(
	st *api.WorkflowState, ev *timebox.Event, data api.VariablesUpdatedEvent,
) *api.WorkflowState {
	return st.
		SetVariables(st.Variables.Apply(data.Updates)).
		SetVersion(data.Version).
		SetUpdatedAt(ev.Timestamp)
}

func variablesMerged(
	st *api.WorkflowState, ev *timebox.Event, data api.VariablesMergedEvent,
) *api.WorkflowState {
	return st.
		SetVariables(data.Merged).
		SetVersion(data.Version).
		SetUpdatedAt(ev.Timestamp)
}

func snapshotCreated(
	st *api.WorkflowState, ev *timebox.Event, data api.SnapshotCreatedEvent,
) *api.WorkflowState {
	if data.Snapshot == nil {
		return st
	}
	return st.
		SetSnapshot(data.Snapshot).
		SetUpdatedAt(ev.Timestamp)
}

func snapshotArchived(
	st *api.WorkflowState, ev *timebox.Event, data api.SnapshotArchivedEvent,
) *api.WorkflowState {
	snap, ok := st.Snapshots[data.SnapshotID]
	if !ok {
		return st
	}
	return st.
		SetSnapshot(snap.Archive(data.Ref)).
		SetUpdatedAt(ev.Timestamp)
}

func snapshotRestored(
	st *api.WorkflowState, ev *timebox.Event, data api.SnapshotRestoredEvent,
) *api.WorkflowState {
	return st.
		SetStatus(data.Status).
		SetVariables(data.Variables).
		SetCurrentStep(data.CurrentStep).
		AppendHistory(&api.TransitionRecord{
			At:      ev.Timestamp,
			From:    data.FromStatus,
			To:      data.Status,
			Trigger: api.TriggerRestore,
			Version: data.Version,
		}).
		SetVersion(data.Version).
		SetUpdatedAt(ev.Timestamp)
}

func rollbackCompleted(
	st *api.WorkflowState, ev *timebox.Event, data api.RollbackCompletedEvent,
) *api.WorkflowState {
	return st.
		SetStatus(data.Status).
		SetVariables(data.Variables).
		SetCurrentStep(data.CurrentStep).
		AppendHistory(&api.TransitionRecord{
			At:      ev.Timestamp,
			From:    data.FromStatus,
			To:      data.Status,
			Trigger: api.TriggerRollback,
			Version: data.Version,
		}).
		SetVersion(data.Version).
		SetUpdatedAt(ev.Timestamp)
}

func historyCompacted(
	st *api.WorkflowState, ev *timebox.Event, data api.HistoryCompactedEvent,
) *api.WorkflowState {
	if data.Retained >= len(st.History) {
		return st
	}
	recs := st.History[len(st.History)-data.Retained:]
	return st.
		SetHistory(recs).
		SetUpdatedAt(ev.Timestamp)
}
