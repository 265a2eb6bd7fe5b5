package api

type (
	// InitializeRequest creates a new workflow state. The machine comes
	// either inline or by catalog reference; exactly one must be supplied
	InitializeRequest struct {
		Machine    *StateMachineConfig `json:"machine,omitempty"`
		Variables  Variables           `json:"variables,omitempty"`
		Metadata   Metadata            `json:"metadata,omitempty"`
		Labels     Labels              `json:"labels,omitempty"`
		WorkflowID WorkflowID          `json:"workflow_id"`
		MachineRef MachineID           `json:"machine_ref,omitempty"`
	}

	// TransitionRequest asks for a state transition. ExpectedVersion of zero
	// skips the optimistic concurrency check
	TransitionRequest struct {
		Context         *TransitionContext `json:"context,omitempty"`
		To              Status             `json:"to"`
		ExpectedVersion int64              `json:"expected_version,omitempty"`
	}

	// UpdateVariablesRequest replaces or extends state variables
	UpdateVariablesRequest struct {
		Variables       Variables `json:"variables"`
		ExpectedVersion int64     `json:"expected_version,omitempty"`
	}

	// MergeRequest folds variable sets from concurrent branches into the
	// state under the named conflict policy
	MergeRequest struct {
		Sources         []Variables `json:"sources"`
		Policy          string      `json:"policy,omitempty"`
		ExpectedVersion int64       `json:"expected_version,omitempty"`
	}

	// SnapshotRequest captures the current state, optionally archiving the
	// snapshot to the configured bucket
	SnapshotRequest struct {
		Metadata Metadata `json:"metadata,omitempty"`
		Archive  bool     `json:"archive,omitempty"`
	}

	// RestoreRequest reinstates a snapshot's content as a new version
	RestoreRequest struct {
		SnapshotID SnapshotID `json:"snapshot_id"`
	}

	// RollbackRequest rewinds a state under the named strategy
	RollbackRequest struct {
		Strategy string `json:"strategy,omitempty"`
	}

	// CompactRequest trims transition history down to Retain entries
	CompactRequest struct {
		Retain int `json:"retain"`
	}

	// LoopRequest executes a loop against a state's variables. StateID is
	// optional; without it the loop runs over the request variables alone
	LoopRequest struct {
		Loop      *LoopStep `json:"loop"`
		Variables Variables `json:"variables,omitempty"`
		StateID   StateID   `json:"state_id,omitempty"`
	}

	// TaskRequest is the body POSTed to a task step handler
	TaskRequest struct {
		Args     Variables `json:"args"`
		Metadata Metadata  `json:"metadata,omitempty"`
	}

	// TaskResult is the body a task step handler returns
	TaskResult struct {
		Outputs Variables `json:"outputs,omitempty"`
		Error   string    `json:"error,omitempty"`
		Success bool      `json:"success"`
	}

	// StatesListResponse contains state digests for listing
	StatesListResponse struct {
		States []*StateDigest `json:"states"`
		Count  int            `json:"count"`
	}

	// LoopsListResponse contains loop digests for listing
	LoopsListResponse struct {
		Loops []*LoopDigest `json:"loops"`
		Count int           `json:"count"`
	}

	// MachinesListResponse contains the machine catalog for listing
	MachinesListResponse struct {
		Machines []*StateMachineConfig `json:"machines"`
		Count    int                   `json:"count"`
	}

	// ErrorResponse is the uniform HTTP error body
	ErrorResponse struct {
		Error string    `json:"error"`
		Code  ErrorCode `json:"code,omitempty"`
	}

	// HealthResponse is the body of the service health endpoint
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
	}
)
