package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kode4food/timebox"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
)

func makeLoopEvent(
	t *testing.T, id api.LoopID, et api.EventType, payload any,
) *timebox.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	assert.NoError(t, err)
	return &timebox.Event{
		Timestamp:   time.Now(),
		AggregateID: events.LoopKey(id),
		Type:        timebox.EventType(et),
		Data:        data,
	}
}

func applyLoop(
	t *testing.T, st *api.LoopState, ev *timebox.Event,
) *api.LoopState {
	t.Helper()
	applier, ok := events.LoopAppliers[ev.Type]
	assert.True(t, ok)
	return applier(st, ev)
}

func TestIsLoopEvent(t *testing.T) {
	loopEvent := &timebox.Event{
		AggregateID: events.LoopKey("loop-1"),
	}
	stateEvent := &timebox.Event{
		AggregateID: events.StateKey("state-1"),
	}

	assert.True(t, events.IsLoopEvent(loopEvent))
	assert.False(t, events.IsLoopEvent(stateEvent))

	id, ok := events.ParseLoopID(loopEvent)
	assert.True(t, ok)
	assert.Equal(t, api.LoopID("loop-1"), id)
}

func TestLoopStarted(t *testing.T) {
	loop := &api.LoopStep{
		ID:       "l1",
		Type:     api.LoopTypeFor,
		Iterable: "items",
		Body: []*api.Step{
			{ID: "s1", Type: api.StepTypeTask,
				Task: &api.TaskConfig{Handler: "noop"}},
		},
	}

	ev := makeLoopEvent(t, "loop-1", api.EventLoopStarted,
		api.LoopStartedEvent{
			Variables: api.Variables{"items": []any{1, 2}},
			Loop:      loop,
			LoopID:    "loop-1",
			StateID:   "state-1",
			Planned:   2,
		})

	st := applyLoop(t, events.NewLoopState(), ev)

	assert.Equal(t, api.LoopID("loop-1"), st.ID)
	assert.Equal(t, api.StateID("state-1"), st.StateID)
	assert.Equal(t, api.LoopStatusRunning, st.Status)
	assert.Equal(t, 2, st.Planned)
	assert.NotNil(t, st.Loop)
	assert.True(t, st.StartedAt.Equal(ev.Timestamp))
	assert.False(t, st.IsFinished())
}

func TestIterationCompleted(t *testing.T) {
	st := &api.LoopState{
		ID:     "loop-1",
		Status: api.LoopStatusRunning,
	}

	ev := makeLoopEvent(t, "loop-1", api.EventLoopIterationDone,
		api.IterationCompletedEvent{
			Result: &api.IterationResult{
				Index:    0,
				Attempts: 2,
				Success:  true,
				Output:   api.Variables{"processed": true},
			},
		})

	res := applyLoop(t, st, ev)

	assert.Len(t, res.Iterations, 1)
	assert.Equal(t, 2, res.Iterations[0].Attempts)
	assert.True(t, res.Iterations[0].Success)
	assert.Empty(t, st.Iterations)
}

func TestIterationRetriedIsAudit(t *testing.T) {
	st := &api.LoopState{
		ID:     "loop-1",
		Status: api.LoopStatusRunning,
	}

	ev := makeLoopEvent(t, "loop-1", api.EventLoopIterationRetried,
		api.IterationRetriedEvent{
			Error:   "handler unavailable",
			Index:   1,
			Attempt: 1,
			DelayMs: 100,
		})

	res := applyLoop(t, st, ev)
	assert.Same(t, st, res)
}

func TestLoopCompleted(t *testing.T) {
	st := &api.LoopState{
		ID:     "loop-1",
		Status: api.LoopStatusRunning,
		Iterations: []*api.IterationResult{
			{Index: 0, Success: true},
			{Index: 1, Success: true},
		},
	}

	ev := makeLoopEvent(t, "loop-1", api.EventLoopCompleted,
		api.LoopCompletedEvent{
			Variables: api.Variables{"total": float64(2)},
			Metrics:   &api.LoopMetrics{Iterations: 2, Succeeded: 2},
			Reason:    api.TerminationBreak,
			Success:   true,
		})

	res := applyLoop(t, st, ev)

	assert.Equal(t, api.LoopStatusCompleted, res.Status)
	assert.Equal(t, api.TerminationBreak, res.Reason)
	assert.Equal(t, float64(2), res.Variables["total"])
	assert.True(t, res.IsFinished())
	assert.True(t, res.FinishedAt.Equal(ev.Timestamp))

	result := res.Result()
	assert.True(t, result.Success)
	assert.True(t, result.EarlyTermination)
	assert.Equal(t, 2, result.Metrics.Completed())
}

func TestLoopCompletedFailure(t *testing.T) {
	st := &api.LoopState{
		ID:     "loop-1",
		Status: api.LoopStatusRunning,
		Iterations: []*api.IterationResult{
			{Index: 0, Success: true},
		},
	}

	ev := makeLoopEvent(t, "loop-1", api.EventLoopCompleted,
		api.LoopCompletedEvent{
			Metrics: &api.LoopMetrics{Iterations: 1, Succeeded: 1},
			Reason:  api.TerminationTimeout,
			Error:   "loop timed out after 50ms",
		})

	res := applyLoop(t, st, ev)

	assert.Equal(t, api.LoopStatusFailed, res.Status)

	result := res.Result()
	assert.False(t, result.Success)
	assert.True(t, result.PartialResults)
	assert.Len(t, result.Iterations, 1)
}
