package api

import (
	"maps"
	"slices"
	"time"
)

type (
	// WorkflowState is the versioned runtime record of one workflow
	// execution. It is mutated only through the engine; every accepted
	// mutation strictly increments Version
	WorkflowState struct {
		CreatedAt   time.Time                     `json:"created_at"`
		UpdatedAt   time.Time                     `json:"updated_at"`
		Variables   Variables                     `json:"variables"`
		Metadata    Metadata                      `json:"metadata,omitempty"`
		Labels      Labels                        `json:"labels,omitempty"`
		Machine     *StateMachineConfig           `json:"machine"`
		Snapshots   map[SnapshotID]*StateSnapshot `json:"snapshots,omitempty"`
		History     []*TransitionRecord           `json:"execution_history,omitempty"`
		ID          StateID                       `json:"id"`
		WorkflowID  WorkflowID                    `json:"workflow_id"`
		MachineRef  MachineID                     `json:"machine_ref,omitempty"`
		Status      Status                        `json:"status"`
		CurrentStep int                           `json:"current_step"`
		Version     int64                         `json:"version"`
	}

	// StateSnapshot is a persisted point-in-time copy of a WorkflowState.
	// Archived snapshots hold their content in blob storage under Ref
	// rather than inline; Checksum fingerprints the captured variables so
	// externally stored content can be verified on restore
	StateSnapshot struct {
		CreatedAt  time.Time      `json:"created_at"`
		State      *WorkflowState `json:"state,omitempty"`
		Metadata   Metadata       `json:"metadata,omitempty"`
		ID         SnapshotID     `json:"id"`
		StateID    StateID        `json:"state_id"`
		WorkflowID WorkflowID     `json:"workflow_id"`
		Ref        string         `json:"ref,omitempty"`
		Checksum   string         `json:"checksum,omitempty"`
		Version    int64          `json:"version"`
		Archived   bool           `json:"archived,omitempty"`
	}
)

// Archive returns a copy of the snapshot with its content evicted in favor
// of the blob reference
func (s *StateSnapshot) Archive(ref string) *StateSnapshot {
	res := *s
	res.State = nil
	res.Ref = ref
	res.Archived = true
	return &res
}

// SetStatus returns a new WorkflowState with the updated status
func (st *WorkflowState) SetStatus(s Status) *WorkflowState {
	res := *st
	res.Status = s
	return &res
}

// SetVariable returns a new WorkflowState with the specified variable set
func (st *WorkflowState) SetVariable(name Name, value any) *WorkflowState {
	res := *st
	res.Variables = st.Variables.Set(name, value)
	return &res
}

// SetVariables returns a new WorkflowState with the variable set replaced
func (st *WorkflowState) SetVariables(vars Variables) *WorkflowState {
	res := *st
	res.Variables = maps.Clone(vars)
	return &res
}

// SetCurrentStep returns a new WorkflowState with the step cursor set
func (st *WorkflowState) SetCurrentStep(step int) *WorkflowState {
	res := *st
	res.CurrentStep = step
	return &res
}

// SetVersion returns a new WorkflowState with the version counter set
func (st *WorkflowState) SetVersion(v int64) *WorkflowState {
	res := *st
	res.Version = v
	return &res
}

// SetUpdatedAt returns a new WorkflowState with the update timestamp set
func (st *WorkflowState) SetUpdatedAt(t time.Time) *WorkflowState {
	res := *st
	res.UpdatedAt = t
	return &res
}

// SetSnapshot returns a new WorkflowState with the snapshot recorded
func (st *WorkflowState) SetSnapshot(s *StateSnapshot) *WorkflowState {
	res := *st
	res.Snapshots = maps.Clone(st.Snapshots)
	if res.Snapshots == nil {
		res.Snapshots = map[SnapshotID]*StateSnapshot{}
	}
	res.Snapshots[s.ID] = s
	return &res
}

// RemoveSnapshot returns a new WorkflowState without the named snapshot
func (st *WorkflowState) RemoveSnapshot(id SnapshotID) *WorkflowState {
	res := *st
	res.Snapshots = maps.Clone(st.Snapshots)
	delete(res.Snapshots, id)
	return &res
}

// SetHistory returns a new WorkflowState with the execution history replaced
func (st *WorkflowState) SetHistory(recs []*TransitionRecord) *WorkflowState {
	res := *st
	res.History = slices.Clone(recs)
	return &res
}

// AppendHistory returns a new WorkflowState with the transition record
// appended to its execution history
func (st *WorkflowState) AppendHistory(rec *TransitionRecord) *WorkflowState {
	res := *st
	res.History = append(slices.Clip(slices.Clone(st.History)), rec)
	return &res
}

// Clone returns a copy of the state whose maps and history are detached from
// the original
func (st *WorkflowState) Clone() *WorkflowState {
	res := *st
	res.Variables = maps.Clone(st.Variables)
	res.Metadata = maps.Clone(st.Metadata)
	res.Labels = maps.Clone(st.Labels)
	res.Snapshots = maps.Clone(st.Snapshots)
	res.History = slices.Clone(st.History)
	return &res
}

// LastTransition returns the most recent transition record, or nil if no
// transition has been accepted yet
func (st *WorkflowState) LastTransition() *TransitionRecord {
	if len(st.History) == 0 {
		return nil
	}
	return st.History[len(st.History)-1]
}

// IsTerminal returns true if the state's current status has no outgoing
// transitions in its machine
func (st *WorkflowState) IsTerminal() bool {
	return st.Machine != nil && st.Machine.IsTerminal(st.Status)
}
