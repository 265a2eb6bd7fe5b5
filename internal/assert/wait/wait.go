package wait

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kode4food/caravan/topic"
	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/util"
)

type (
	Wait struct {
		t        *testing.T
		consumer topic.Consumer[*timebox.Event]
		timeout  time.Duration
	}

	Predicate[T any] func(T) bool

	EventFilter Predicate[*timebox.Event]

	stateEvent struct {
		StateID api.StateID `json:"state_id"`
	}
)

const DefaultTimeout = time.Second * 5

var engineFilter = EventFilter(func(ev *timebox.Event) bool {
	return events.IsEngineEvent(ev)
})

func On(t *testing.T, consumer topic.Consumer[*timebox.Event]) *Wait {
	return &Wait{
		t:        t,
		consumer: consumer,
		timeout:  DefaultTimeout,
	}
}

func (w *Wait) WithTimeout(timeout time.Duration) *Wait {
	res := *w
	res.timeout = timeout
	return &res
}

// ForEvents waits for matching events from the consumer
func (w *Wait) ForEvents(count int, filter EventFilter) {
	w.t.Helper()

	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	for seen := 0; seen < count; {
		select {
		case ev, ok := <-w.consumer.Receive():
			if !ok {
				w.t.Fatalf(
					"event consumer closed before receiving %d events", count,
				)
			}
			if !filter(ev) {
				continue
			}
			seen++
		case <-deadline.C:
			w.t.Fatalf("timeout waiting for %d events", count)
		}
	}
}

// ForEvent waits for a single matching event
func (w *Wait) ForEvent(filter EventFilter) {
	w.ForEvents(1, filter)
}

// And composes event filters and returns true when all match
func And(filters ...EventFilter) EventFilter {
	return func(ev *timebox.Event) bool {
		for _, filter := range filters {
			if !filter(ev) {
				return false
			}
		}
		return true
	}
}

// Type creates a filter for a single event type
func Type(eventType api.EventType) EventFilter {
	return Types(eventType)
}

// Types creates a filter for the given event types
func Types(eventTypes ...api.EventType) EventFilter {
	if len(eventTypes) == 0 {
		return func(*timebox.Event) bool { return false }
	}
	lookup := make(util.Set[timebox.EventType], len(eventTypes))
	for _, et := range eventTypes {
		lookup.Add(timebox.EventType(et))
	}
	return func(ev *timebox.Event) bool {
		return ev != nil && lookup.Contains(ev.Type)
	}
}

// EngineEvent matches engine aggregate events for the given types
func EngineEvent(eventTypes ...api.EventType) EventFilter {
	return And(engineFilter, Types(eventTypes...))
}

// StateInitialized matches initialization events for the provided states
func StateInitialized(ids ...api.StateID) EventFilter {
	return And(Type(api.EventStateInitialized), StateIDs(ids...))
}

// TransitionCompleted matches accepted transitions for the provided states
func TransitionCompleted(ids ...api.StateID) EventFilter {
	return And(Type(api.EventTransitionCompleted), StateAny(ids...))
}

// TransitionRejected matches refused transitions for the provided states
func TransitionRejected(ids ...api.StateID) EventFilter {
	return And(Type(api.EventTransitionRejected), StateAny(ids...))
}

// ConditionsEvaluated matches guard diagnostics for the provided states
func ConditionsEvaluated(ids ...api.StateID) EventFilter {
	return And(Type(api.EventConditionsEvaluated), StateAny(ids...))
}

// VariablesUpdated matches variable updates for the provided states
func VariablesUpdated(ids ...api.StateID) EventFilter {
	return And(Type(api.EventVariablesUpdated), StateAny(ids...))
}

// VariablesMerged matches variable merges for the provided states
func VariablesMerged(ids ...api.StateID) EventFilter {
	return And(Type(api.EventVariablesMerged), StateAny(ids...))
}

// ConflictDetected matches optimistic concurrency rejections for the
// provided states
func ConflictDetected(ids ...api.StateID) EventFilter {
	return And(Type(api.EventConflictDetected), StateAny(ids...))
}

// SnapshotCreated matches snapshot creation for the provided states
func SnapshotCreated(ids ...api.StateID) EventFilter {
	return And(Type(api.EventSnapshotCreated), StateAny(ids...))
}

// SnapshotRestored matches snapshot restoration for the provided states
func SnapshotRestored(ids ...api.StateID) EventFilter {
	return And(Type(api.EventSnapshotRestored), StateAny(ids...))
}

// RollbackCompleted matches rollbacks for the provided states
func RollbackCompleted(ids ...api.StateID) EventFilter {
	return And(Type(api.EventRollbackCompleted), StateAny(ids...))
}

// HistoryCompacted matches history compaction for the provided states
func HistoryCompacted(ids ...api.StateID) EventFilter {
	return And(Type(api.EventHistoryCompacted), StateAny(ids...))
}

// StateActivated matches digest activation for the provided states
func StateActivated(ids ...api.StateID) EventFilter {
	return And(engineFilter, Type(api.EventStateActivated), StateIDs(ids...))
}

// StateDigestUpdated matches digest refreshes for the provided states
func StateDigestUpdated(ids ...api.StateID) EventFilter {
	return And(
		engineFilter, Type(api.EventStateDigestUpdated), StateAny(ids...),
	)
}

// StateDeactivated matches digest deactivation for the provided states
func StateDeactivated(ids ...api.StateID) EventFilter {
	return And(
		engineFilter, Type(api.EventStateDeactivated), StateIDs(ids...),
	)
}

// StateArchived matches completed archive exports for the provided states
func StateArchived(ids ...api.StateID) EventFilter {
	return And(engineFilter, Type(api.EventStateArchived), StateIDs(ids...))
}

// LoopStarted matches loop start events for the provided loop IDs
func LoopStarted(ids ...api.LoopID) EventFilter {
	return And(Type(api.EventLoopStarted), LoopIDs(ids...))
}

// LoopCompleted matches loop terminal events for the provided loop IDs
func LoopCompleted(ids ...api.LoopID) EventFilter {
	return And(Type(api.EventLoopCompleted), LoopIDs(ids...))
}

// LoopSucceeded matches successful loop completions for the provided IDs
func LoopSucceeded(ids ...api.LoopID) EventFilter {
	return And(
		Type(api.EventLoopCompleted), LoopIDs(ids...),
		Unmarshal(func(data api.LoopCompletedEvent) bool {
			return data.Success
		}),
	)
}

// LoopFailed matches unsuccessful loop completions for the provided IDs
func LoopFailed(ids ...api.LoopID) EventFilter {
	return And(
		Type(api.EventLoopCompleted), LoopIDs(ids...),
		Unmarshal(func(data api.LoopCompletedEvent) bool {
			return !data.Success
		}),
	)
}

// IterationCompleted matches iteration completions for the provided IDs
func IterationCompleted(ids ...api.LoopID) EventFilter {
	return And(Type(api.EventLoopIterationDone), LoopAny(ids...))
}

// IterationRetried matches iteration retries for the provided IDs
func IterationRetried(ids ...api.LoopID) EventFilter {
	return And(Type(api.EventLoopIterationRetried), LoopAny(ids...))
}

// BreakTriggered matches break conditions for the provided loop IDs
func BreakTriggered(ids ...api.LoopID) EventFilter {
	return And(Type(api.EventLoopBreakTriggered), LoopAny(ids...))
}

// ContinueTriggered matches continue conditions for the provided loop IDs
func ContinueTriggered(ids ...api.LoopID) EventFilter {
	return And(Type(api.EventLoopContinueTrig), LoopAny(ids...))
}

// SafetyTriggered matches safety bound terminations for the provided IDs
func SafetyTriggered(ids ...api.LoopID) EventFilter {
	return And(Type(api.EventLoopSafetyTriggered), LoopAny(ids...))
}

// StateID matches events for the provided state ID
func StateID(id api.StateID) EventFilter {
	return StateIDs(id)
}

// StateIDs matches events for the provided state IDs, consuming each ID on
// its first match
func StateIDs(ids ...api.StateID) EventFilter {
	expected := make(util.Set[api.StateID], len(ids))
	for _, stateID := range ids {
		expected.Add(stateID)
	}
	return func(ev *timebox.Event) bool {
		id, ok := stateIDOf(ev)
		if !ok || !expected.Contains(id) {
			return false
		}
		expected.Remove(id)
		return true
	}
}

// StateAny matches events for the provided state IDs without consuming them
func StateAny(ids ...api.StateID) EventFilter {
	expected := make(util.Set[api.StateID], len(ids))
	for _, stateID := range ids {
		expected.Add(stateID)
	}
	return func(ev *timebox.Event) bool {
		id, ok := stateIDOf(ev)
		return ok && expected.Contains(id)
	}
}

// LoopID matches events for the provided loop ID
func LoopID(id api.LoopID) EventFilter {
	return LoopIDs(id)
}

// LoopIDs matches events for the provided loop IDs, consuming each ID on
// its first match
func LoopIDs(ids ...api.LoopID) EventFilter {
	expected := make(util.Set[api.LoopID], len(ids))
	for _, loopID := range ids {
		expected.Add(loopID)
	}
	return func(ev *timebox.Event) bool {
		id, ok := events.ParseLoopID(ev)
		if !ok || !expected.Contains(id) {
			return false
		}
		expected.Remove(id)
		return true
	}
}

// LoopAny matches events for the provided loop IDs without consuming them
func LoopAny(ids ...api.LoopID) EventFilter {
	expected := make(util.Set[api.LoopID], len(ids))
	for _, loopID := range ids {
		expected.Add(loopID)
	}
	return func(ev *timebox.Event) bool {
		id, ok := events.ParseLoopID(ev)
		return ok && expected.Contains(id)
	}
}

// Unmarshal creates a filter that unmarshals event data and applies pred
func Unmarshal[T any](pred Predicate[T]) EventFilter {
	return func(ev *timebox.Event) bool {
		var data T
		if json.Unmarshal(ev.Data, &data) != nil {
			return false
		}
		return pred(data)
	}
}

// State events carry their identity in the aggregate ID; engine digest
// events carry it in the payload
func stateIDOf(ev *timebox.Event) (api.StateID, bool) {
	if ev == nil {
		return "", false
	}
	if id, ok := events.ParseStateID(ev); ok {
		return id, true
	}
	var data stateEvent
	if json.Unmarshal(ev.Data, &data) != nil || data.StateID == "" {
		return "", false
	}
	return data.StateID, true
}
