package api

type (
	// EventType identifies the kind of an emitted event. Observability is
	// one-way: nothing an observer does can affect the operation that
	// emitted the event
	EventType string

	// StateInitializedEvent reports a freshly created workflow state
	StateInitializedEvent struct {
		Variables  Variables           `json:"variables,omitempty"`
		Metadata   Metadata            `json:"metadata,omitempty"`
		Labels     Labels              `json:"labels,omitempty"`
		Machine    *StateMachineConfig `json:"machine"`
		StateID    StateID             `json:"state_id"`
		WorkflowID WorkflowID          `json:"workflow_id"`
		MachineRef MachineID           `json:"machine_ref,omitempty"`
		Status     Status              `json:"status"`
		Version    int64               `json:"version"`
	}

	// TransitionCompletedEvent reports an accepted state transition.
	// Terminal marks transitions into a terminal status
	TransitionCompletedEvent struct {
		Context  *TransitionContext `json:"context,omitempty"`
		From     Status             `json:"from"`
		To       Status             `json:"to"`
		Trigger  Trigger            `json:"trigger,omitempty"`
		Version  int64              `json:"version"`
		Terminal bool               `json:"terminal,omitempty"`
	}

	// TransitionRejectedEvent reports a transition that validation refused.
	// The state record is unchanged
	TransitionRejectedEvent struct {
		From    Status  `json:"from"`
		To      Status  `json:"to"`
		Trigger Trigger `json:"trigger,omitempty"`
		Reason  string  `json:"reason"`
	}

	// ConditionsEvaluatedEvent reports the guard diagnostics gathered while
	// validating a transition
	ConditionsEvaluatedEvent struct {
		Results []*ConditionResult `json:"results"`
		From    Status             `json:"from"`
		To      Status             `json:"to"`
		Passed  bool               `json:"passed"`
	}

	// VariablesUpdatedEvent reports a variable update. Updates carries the
	// applied patch; Changed lists the names whose values changed
	VariablesUpdatedEvent struct {
		Updates Variables `json:"updates"`
		Changed []Name    `json:"changed,omitempty"`
		Version int64     `json:"version"`
	}

	// VariablesMergedEvent reports a merge of concurrent variable sets.
	// Merged is the resolved variable set after policy application
	VariablesMergedEvent struct {
		Merged    Variables `json:"merged"`
		Changed   []Name    `json:"changed,omitempty"`
		Conflicts []Name    `json:"conflicts,omitempty"`
		Policy    string    `json:"policy"`
		Sources   int       `json:"sources"`
		Version   int64     `json:"version"`
	}

	// ConflictDetectedEvent reports an optimistic concurrency rejection.
	// The state record is unchanged
	ConflictDetectedEvent struct {
		Op              string `json:"op"`
		ExpectedVersion int64  `json:"expected_version"`
		ActualVersion   int64  `json:"actual_version"`
	}

	// SnapshotCreatedEvent reports a new snapshot of a state
	SnapshotCreatedEvent struct {
		Snapshot *StateSnapshot `json:"snapshot"`
	}

	// SnapshotArchivedEvent reports a snapshot whose content moved to blob
	// storage
	SnapshotArchivedEvent struct {
		SnapshotID SnapshotID `json:"snapshot_id"`
		Ref        string     `json:"ref"`
	}

	// SnapshotRestoredEvent reports a state restored from a snapshot. The
	// restored content is applied at a fresh version
	SnapshotRestoredEvent struct {
		Variables   Variables  `json:"variables"`
		SnapshotID  SnapshotID `json:"snapshot_id"`
		Status      Status     `json:"status"`
		FromStatus  Status     `json:"from_status"`
		CurrentStep int        `json:"current_step"`
		FromVersion int64      `json:"from_version"`
		Version     int64      `json:"version"`
		Terminal    bool       `json:"terminal,omitempty"`
	}

	// RollbackCompletedEvent reports a state rolled back to an earlier
	// point in its own history. From and To name history versions; Version
	// is the fresh version the rollback itself created
	RollbackCompletedEvent struct {
		Variables   Variables `json:"variables"`
		Strategy    string    `json:"strategy"`
		Status      Status    `json:"status"`
		FromStatus  Status    `json:"from_status"`
		CurrentStep int       `json:"current_step"`
		From        int64     `json:"from"`
		To          int64     `json:"to"`
		Version     int64     `json:"version"`
		Terminal    bool      `json:"terminal,omitempty"`
	}

	// HistoryCompactedEvent reports trimmed transition history
	HistoryCompactedEvent struct {
		Removed  int `json:"removed"`
		Retained int `json:"retained"`
	}

	// MachineRegisteredEvent reports a machine configuration added to the
	// catalog
	MachineRegisteredEvent struct {
		Machine *StateMachineConfig `json:"machine"`
	}

	// MachineUpdatedEvent reports a machine configuration replaced in the
	// catalog
	MachineUpdatedEvent struct {
		Machine *StateMachineConfig `json:"machine"`
	}

	// MachineRemovedEvent reports a machine configuration removed from the
	// catalog
	MachineRemovedEvent struct {
		MachineID MachineID `json:"machine_id"`
	}

	// StateActivatedEvent reports a workflow state the engine now tracks
	// as live. It seeds the listing digest
	StateActivatedEvent struct {
		Labels     Labels     `json:"labels,omitempty"`
		StateID    StateID    `json:"state_id"`
		WorkflowID WorkflowID `json:"workflow_id,omitempty"`
		Status     Status     `json:"status"`
	}

	// StateDigestUpdatedEvent refreshes the listing digest after a state
	// changed status
	StateDigestUpdatedEvent struct {
		StateID  StateID `json:"state_id"`
		Status   Status  `json:"status"`
		Terminal bool    `json:"terminal,omitempty"`
	}

	// StateDeactivatedEvent reports a workflow state that reached a
	// terminal status. Deactivated states are archive candidates
	StateDeactivatedEvent struct {
		StateID    StateID    `json:"state_id"`
		WorkflowID WorkflowID `json:"workflow_id,omitempty"`
	}

	// StateArchivingEvent reports a state selected for export to blob
	// storage
	StateArchivingEvent struct {
		StateID StateID `json:"state_id"`
	}

	// StateArchivedEvent reports a state whose event log was exported to
	// blob storage and evicted from hot storage
	StateArchivedEvent struct {
		StateID StateID `json:"state_id"`
		Ref     string  `json:"ref"`
	}

	// LoopStartedEvent reports the beginning of a loop execution
	LoopStartedEvent struct {
		Variables     Variables `json:"variables,omitempty"`
		Loop          *LoopStep `json:"loop"`
		LoopID        LoopID    `json:"loop_id"`
		StateID       StateID   `json:"state_id,omitempty"`
		Planned       int       `json:"planned,omitempty"`
		MaxIterations int       `json:"max_iterations,omitempty"`
	}

	// IterationCompletedEvent reports one concluded iteration of a running
	// loop, successful or not
	IterationCompletedEvent struct {
		Result *IterationResult `json:"result"`
	}

	// IterationRetriedEvent reports a failed iteration about to be
	// replayed from its original bindings
	IterationRetriedEvent struct {
		Error   string `json:"error"`
		Index   int    `json:"index"`
		Attempt int    `json:"attempt"`
		DelayMs int64  `json:"delay_ms"`
	}

	// BreakTriggeredEvent reports a break condition ending a loop early
	BreakTriggeredEvent struct {
		Condition string `json:"condition"`
		Index     int    `json:"index"`
	}

	// ContinueTriggeredEvent reports a continue condition skipping an
	// iteration
	ContinueTriggeredEvent struct {
		Condition string `json:"condition"`
		Index     int    `json:"index"`
	}

	// LoopCompletedEvent reports a finished loop along with its metrics
	// and final variable scope
	LoopCompletedEvent struct {
		Variables            Variables         `json:"variables,omitempty"`
		Metrics              *LoopMetrics      `json:"metrics,omitempty"`
		Error                string            `json:"error,omitempty"`
		Reason               TerminationReason `json:"reason,omitempty"`
		Success              bool              `json:"success"`
		EarlyTermination     bool              `json:"early_termination,omitempty"`
		PartialResults       bool              `json:"partial_results,omitempty"`
		MaxIterationsReached bool              `json:"max_iterations_reached,omitempty"`
	}

	// LoopSafetyTriggeredEvent reports a loop stopped by a safety bound
	// before its natural end
	LoopSafetyTriggeredEvent struct {
		Bound      string `json:"bound"`
		Iterations int    `json:"iterations"`
		Limit      int    `json:"limit,omitempty"`
		ElapsedMs  int64  `json:"elapsed_ms,omitempty"`
	}
)

const (
	EventStateInitialized     EventType = "state.initialized"
	EventTransitionCompleted  EventType = "state.transition.completed"
	EventTransitionRejected   EventType = "state.transition.rejected"
	EventConditionsEvaluated  EventType = "state.conditions.evaluated"
	EventVariablesUpdated     EventType = "state.variables.updated"
	EventVariablesMerged      EventType = "state.variables.merged"
	EventConflictDetected     EventType = "state.conflict"
	EventSnapshotCreated      EventType = "state.snapshot.created"
	EventSnapshotArchived     EventType = "state.snapshot.archived"
	EventSnapshotRestored     EventType = "state.snapshot.restored"
	EventRollbackCompleted    EventType = "state.rollback.completed"
	EventHistoryCompacted     EventType = "state.history.compacted"
	EventMachineRegistered    EventType = "machine.registered"
	EventMachineUpdated       EventType = "machine.updated"
	EventMachineRemoved       EventType = "machine.removed"
	EventStateActivated       EventType = "state.activated"
	EventStateDigestUpdated   EventType = "state.digest.updated"
	EventStateDeactivated     EventType = "state.deactivated"
	EventStateArchiving       EventType = "state.archiving"
	EventStateArchived        EventType = "state.archived"
	EventLoopStarted          EventType = "loop.started"
	EventLoopIterationDone    EventType = "loop.iteration.completed"
	EventLoopIterationRetried EventType = "loop.iteration.retried"
	EventLoopBreakTriggered   EventType = "loop.break.triggered"
	EventLoopContinueTrig     EventType = "loop.continue.triggered"
	EventLoopCompleted        EventType = "loop.completed"
	EventLoopSafetyTriggered  EventType = "loop.safety.triggered"
)
