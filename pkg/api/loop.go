package api

import (
	"slices"
	"time"
)

type (
	// LoopStatus tracks the lifecycle of a loop execution record
	LoopStatus string

	// TerminationReason records why a loop stopped iterating
	TerminationReason string

	// IterationResult captures the outcome of a single loop iteration,
	// including any retries it took to get there
	IterationResult struct {
		StartedAt  time.Time `json:"started_at"`
		FinishedAt time.Time `json:"finished_at"`
		Bindings   Variables `json:"bindings,omitempty"`
		Output     Variables `json:"output,omitempty"`
		Error      string    `json:"error,omitempty"`
		Index      int       `json:"index"`
		Attempts   int       `json:"attempts"`
		Success    bool      `json:"success"`
		Skipped    bool      `json:"skipped"`
	}

	// LoopMetrics aggregates the numbers a finished loop reports.
	// Per-iteration figures cover iterations that actually ran; skips are
	// counted but contribute no timing
	LoopMetrics struct {
		Iterations  int           `json:"iterations"`
		Succeeded   int           `json:"succeeded"`
		Failed      int           `json:"failed"`
		Skipped     int           `json:"skipped"`
		Retries     int           `json:"retries"`
		Elapsed     time.Duration `json:"elapsed"`
		PerIterAvg  time.Duration `json:"per_iteration_avg"`
		PerIterMin  time.Duration `json:"per_iteration_min"`
		PerIterMax  time.Duration `json:"per_iteration_max"`
		Throughput  float64       `json:"throughput_per_sec"`
		ConditionNs int64         `json:"condition_ns,omitempty"`
	}

	// LoopExecutionResult is the uniform outcome of a loop execution.
	// Success is true when the loop ran to a sanctioned stop, including an
	// early break. Safety terminations report PartialResults with the
	// iterations completed before the bound was hit
	LoopExecutionResult struct {
		StartedAt            time.Time          `json:"started_at"`
		FinishedAt           time.Time          `json:"finished_at"`
		Variables            Variables          `json:"variables,omitempty"`
		Iterations           []*IterationResult `json:"iterations,omitempty"`
		Metrics              *LoopMetrics       `json:"metrics,omitempty"`
		LoopID               LoopID             `json:"loop_id"`
		StateID              StateID            `json:"state_id,omitempty"`
		Reason               TerminationReason  `json:"reason,omitempty"`
		Error                string             `json:"error,omitempty"`
		Errors               []*FieldError      `json:"errors,omitempty"`
		Success              bool               `json:"success"`
		EarlyTermination     bool               `json:"early_termination"`
		PartialResults       bool               `json:"partial_results"`
		MaxIterationsReached bool               `json:"max_iterations_reached"`
	}

	// LoopState is the persisted record of one loop execution. It is
	// folded from the loop's event stream and backs loop status queries
	LoopState struct {
		StartedAt  time.Time          `json:"started_at"`
		FinishedAt time.Time          `json:"finished_at,omitzero"`
		Variables  Variables          `json:"variables,omitempty"`
		Loop       *LoopStep          `json:"loop,omitempty"`
		Iterations []*IterationResult `json:"iterations,omitempty"`
		Metrics    *LoopMetrics       `json:"metrics,omitempty"`
		ID         LoopID             `json:"id"`
		StateID    StateID            `json:"state_id,omitempty"`
		Status     LoopStatus         `json:"status"`
		Reason     TerminationReason  `json:"reason,omitempty"`
		Error      string             `json:"error,omitempty"`
		Planned    int                `json:"planned,omitempty"`
	}
)

const (
	LoopStatusRunning   LoopStatus = "running"
	LoopStatusCompleted LoopStatus = "completed"
	LoopStatusFailed    LoopStatus = "failed"
)

const (
	TerminationBreak         TerminationReason = "break"
	TerminationMaxIterations TerminationReason = "max_iterations"
	TerminationTimeout       TerminationReason = "timeout"
	TerminationError         TerminationReason = "error"
)

// Completed reports how many iterations actually ran, excluding skips
func (m *LoopMetrics) Completed() int {
	return m.Succeeded + m.Failed
}

// SetStatus returns a new LoopState with the updated status
func (ls *LoopState) SetStatus(s LoopStatus) *LoopState {
	res := *ls
	res.Status = s
	return &res
}

// SetVariables returns a new LoopState with the variable scope replaced
func (ls *LoopState) SetVariables(vars Variables) *LoopState {
	res := *ls
	res.Variables = vars.Clone()
	return &res
}

// SetMetrics returns a new LoopState with the metrics set
func (ls *LoopState) SetMetrics(m *LoopMetrics) *LoopState {
	res := *ls
	res.Metrics = m
	return &res
}

// SetReason returns a new LoopState with the termination reason set
func (ls *LoopState) SetReason(r TerminationReason) *LoopState {
	res := *ls
	res.Reason = r
	return &res
}

// SetError returns a new LoopState with the error message set
func (ls *LoopState) SetError(msg string) *LoopState {
	res := *ls
	res.Error = msg
	return &res
}

// SetFinishedAt returns a new LoopState with the finish timestamp set
func (ls *LoopState) SetFinishedAt(t time.Time) *LoopState {
	res := *ls
	res.FinishedAt = t
	return &res
}

// AppendIteration returns a new LoopState with the iteration result
// appended
func (ls *LoopState) AppendIteration(r *IterationResult) *LoopState {
	res := *ls
	res.Iterations = append(slices.Clip(slices.Clone(ls.Iterations)), r)
	return &res
}

// IsFinished returns true once the loop has reached a terminal status
func (ls *LoopState) IsFinished() bool {
	return ls.Status == LoopStatusCompleted || ls.Status == LoopStatusFailed
}

// Result assembles the uniform execution result from the folded record
func (ls *LoopState) Result() *LoopExecutionResult {
	res := &LoopExecutionResult{
		StartedAt:  ls.StartedAt,
		FinishedAt: ls.FinishedAt,
		Variables:  ls.Variables,
		Iterations: ls.Iterations,
		Metrics:    ls.Metrics,
		LoopID:     ls.ID,
		StateID:    ls.StateID,
		Reason:     ls.Reason,
		Error:      ls.Error,
		Success:    ls.Status == LoopStatusCompleted,
	}
	switch ls.Reason {
	case TerminationBreak:
		res.EarlyTermination = true
	case TerminationMaxIterations:
		res.MaxIterationsReached = true
		res.PartialResults = len(ls.Iterations) > 0
	case TerminationTimeout:
		res.PartialResults = len(ls.Iterations) > 0
	}
	return res
}
