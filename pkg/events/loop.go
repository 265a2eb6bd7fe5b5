package events

import (
	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
)

const LoopPrefix = "loop"

// LoopAppliers contains the event applier functions for loop execution
// events. Retry, break, and continue events are audit records; the
// iteration and completion events carry everything the fold needs
var LoopAppliers = makeLoopAppliers()

// NewLoopState creates an empty loop execution record
func NewLoopState() *api.LoopState {
	return &api.LoopState{
		Variables: api.Variables{},
	}
}

// LoopKey returns the aggregate ID for a loop execution
func LoopKey[T ~string](loopID T) timebox.AggregateID {
	return timebox.NewAggregateID(LoopPrefix, timebox.ID(loopID))
}

// IsLoopEvent returns true if the event belongs to a loop aggregate
func IsLoopEvent(ev *timebox.Event) bool {
	return len(ev.AggregateID) >= 2 && ev.AggregateID[0] == LoopPrefix
}

// ParseLoopID extracts the loop identifier from a loop aggregate event
func ParseLoopID(ev *timebox.Event) (api.LoopID, bool) {
	if !IsLoopEvent(ev) {
		return "", false
	}
	return api.LoopID(ev.AggregateID[1]), true
}

func makeLoopAppliers() timebox.Appliers[*api.LoopState] {
	return MakeAppliers(map[api.EventType]timebox.Applier[*api.LoopState]{
		api.EventLoopStarted:          timebox.MakeApplier(loopStarted),
		api.EventLoopIterationDone:    timebox.MakeApplier(iterationCompleted),
		api.EventLoopIterationRetried: auditOnly[*api.LoopState],
		api.EventLoopBreakTriggered:   auditOnly[*api.LoopState],
		api.EventLoopContinueTrig:     auditOnly[*api.LoopState],
		api.EventLoopSafetyTriggered:  auditOnly[*api.LoopState],
		api.EventLoopCompleted:        timebox.MakeApplier(loopCompleted),
	})
}

func loopStarted(
	_ *api.LoopState, ev *timebox.Event, data api.LoopStartedEvent,
) *api.LoopState {
	vars := data.Variables
	if vars == nil {
		vars = api.Variables{}
	}
	return &api.LoopState{
		StartedAt: ev.Timestamp,
		Variables: vars,
		Loop:      data.Loop,
		ID:        data.LoopID,
		StateID:   data.StateID,
		Status:    api.LoopStatusRunning,
		Planned:   data.Planned,
	}
}

func iterationCompleted(
	st *api.LoopState, _ *timebox.Event, data api.IterationCompletedEvent,
) *api.LoopState {
	if data.Result == nil {
		return st
	}
	return st.AppendIteration(data.Result)
}

func loopCompleted(
	st *api.LoopState, ev *timebox.Event, data api.LoopCompletedEvent,
) *api.LoopState {
	status := api.LoopStatusCompleted
	if !data.Success {
		status = api.LoopStatusFailed
	}
	res := st.
		SetStatus(status).
		SetMetrics(data.Metrics).
		SetReason(data.Reason).
		SetError(data.Error).
		SetFinishedAt(ev.Timestamp)
	if data.Variables != nil {
		res = res.SetVariables(data.Variables)
	}
	return res
}
