package api

import "time"

type (
	// StateDigest is the compact listing form of a workflow state
	StateDigest struct {
		CreatedAt  time.Time  `json:"created_at"`
		UpdatedAt  time.Time  `json:"updated_at"`
		Labels     Labels     `json:"labels,omitempty"`
		ID         StateID    `json:"id"`
		WorkflowID WorkflowID `json:"workflow_id"`
		Status     Status     `json:"status"`
		Terminal   bool       `json:"terminal,omitempty"`
	}

	// LoopDigest is the compact listing form of a loop execution
	LoopDigest struct {
		StartedAt  time.Time         `json:"started_at"`
		FinishedAt time.Time         `json:"finished_at,omitzero"`
		ID         LoopID            `json:"id"`
		StateID    StateID           `json:"state_id,omitempty"`
		Status     LoopStatus        `json:"status"`
		Reason     TerminationReason `json:"reason,omitempty"`
		Iterations int               `json:"iterations"`
	}
)

// Digest reduces a workflow state to its listing form
func (st *WorkflowState) Digest() *StateDigest {
	return &StateDigest{
		CreatedAt:  st.CreatedAt,
		UpdatedAt:  st.UpdatedAt,
		Labels:     st.Labels,
		ID:         st.ID,
		WorkflowID: st.WorkflowID,
		Status:     st.Status,
		Terminal:   st.IsTerminal(),
	}
}

// Digest reduces a loop state to its listing form
func (ls *LoopState) Digest() *LoopDigest {
	return &LoopDigest{
		StartedAt:  ls.StartedAt,
		FinishedAt: ls.FinishedAt,
		ID:         ls.ID,
		StateID:    ls.StateID,
		Status:     ls.Status,
		Reason:     ls.Reason,
		Iterations: len(ls.Iterations),
	}
}
