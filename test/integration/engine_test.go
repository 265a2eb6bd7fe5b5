package integration_test

import (
	"context"
	"testing"

	testify "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/internal/assert/helpers"
	"github.com/kode4food/paisley/internal/assert/wait"
	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/pkg/api"
)

// eventIndex locates an event type in a persisted stream, or -1
func eventIndex(evs []*timebox.Event, et api.EventType) int {
	for i, ev := range evs {
		if ev.Type == timebox.EventType(et) {
			return i
		}
	}
	return -1
}

// TestWorkflowLifecycle drives one workflow record through its whole
// life: a cataloged machine, initialization by reference, transitions,
// variable updates, a loop run against the state, completion, and
// archival
func TestWorkflowLifecycle(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		ctx := context.Background()
		eng := env.Engine

		consumer := env.EventHub.NewConsumer()
		defer consumer.Close()

		machine := helpers.NewTestMachine()
		require.NoError(t, eng.RegisterMachine(ctx, machine))

		res, err := eng.InitializeState(ctx, &api.InitializeRequest{
			WorkflowID: "wf-lifecycle",
			MachineRef: machine.ID,
			Variables:  api.Variables{"items": []any{10, 20, 30}},
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		id := res.State.ID
		testify.Equal(t, api.Status("pending"), res.State.Status)
		testify.Equal(t, int64(1), res.State.Version)

		res, err = eng.TransitionState(ctx, id, &api.TransitionRequest{
			To:              "active",
			ExpectedVersion: 1,
			Context:         &api.TransitionContext{Trigger: "start"},
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		testify.Equal(t, int64(2), res.State.Version)

		// both lifecycle events land on the hub in order
		wait.On(t, consumer).ForEvent(wait.StateInitialized(id))
		wait.On(t, consumer).ForEvent(wait.TransitionCompleted(id))

		env.MockExec.SetResponse("accumulate", api.Variables{"seen": true})
		loopRes, err := eng.ExecuteLoop(ctx, &api.LoopRequest{
			StateID: id,
			Loop: helpers.NewForLoop("lifecycle-loop", "items",
				helpers.NewTaskStep("accumulate")),
		})
		require.NoError(t, err)
		require.True(t, loopRes.Success)
		testify.Equal(t, 3, loopRes.Metrics.Iterations)
		testify.Equal(t, 3, env.MockExec.InvocationCount("accumulate"))
		wait.On(t, consumer).ForEvent(wait.LoopCompleted(loopRes.LoopID))

		// loop scope changes flow back into the state record
		st, err := eng.GetState(ctx, id)
		require.NoError(t, err)
		testify.Equal(t, true, st.Variables["seen"])

		res, err = eng.TransitionState(ctx, id, &api.TransitionRequest{
			To:      "completed",
			Context: &api.TransitionContext{Trigger: "finish"},
		})
		require.NoError(t, err)
		require.True(t, res.Success)

		history, err := eng.GetHistory(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		testify.Equal(t, api.Status("active"), history[0].To)
		testify.Equal(t, api.Status("completed"), history[1].To)

		require.NoError(t, eng.ArchiveState(ctx, id))
		es, err := eng.GetEngineState(ctx)
		require.NoError(t, err)
		testify.Contains(t, es.Archiving, id)

		evs, err := env.StateEvents(id)
		require.NoError(t, err)
		testify.Equal(t, 0, eventIndex(evs, api.EventStateInitialized))
		testify.Positive(t, eventIndex(evs, api.EventTransitionCompleted))

		loopEvs, err := env.LoopEvents(loopRes.LoopID)
		require.NoError(t, err)
		started := eventIndex(loopEvs, api.EventLoopStarted)
		completed := eventIndex(loopEvs, api.EventLoopCompleted)
		testify.Equal(t, 0, started)
		testify.Equal(t, len(loopEvs)-1, completed)
	})
}

// TestConcurrentBranchMerge folds variable sets from two branches into one
// record, exercising both merge policies and the optimistic version check
func TestConcurrentBranchMerge(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		res, err := eng.InitializeState(ctx, &api.InitializeRequest{
			WorkflowID: "wf-merge",
			Machine:    helpers.NewTestMachine(),
			Variables:  api.Variables{"base": "unchanged"},
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		id := res.State.ID

		res, err = eng.MergeVariables(ctx, id, &api.MergeRequest{
			Sources: []api.Variables{
				{"branch": "a", "a_only": 1},
				{"branch": "b", "b_only": 2},
			},
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		testify.Contains(t, res.Conflicts, api.Name("branch"))
		testify.Equal(t, "b", res.State.Variables["branch"])
		testify.Equal(t, "unchanged", res.State.Variables["base"])

		res, err = eng.MergeVariables(ctx, id, &api.MergeRequest{
			Policy:  engine.MergePolicyStrict,
			Sources: []api.Variables{{"branch": "c"}, {"branch": "d"}},
		})
		require.NoError(t, err)
		testify.False(t, res.Success)
		testify.Equal(t, api.ErrCodeConflict, res.Code)

		// stale writers are refused without touching the record
		res, err = eng.UpdateVariables(ctx, id, &api.UpdateVariablesRequest{
			Variables:       api.Variables{"base": "clobbered"},
			ExpectedVersion: 1,
		})
		require.NoError(t, err)
		testify.False(t, res.Success)
		testify.Equal(t, api.ErrCodeConflict, res.Code)

		st, err := eng.GetState(ctx, id)
		require.NoError(t, err)
		testify.Equal(t, "unchanged", st.Variables["base"])
	})
}

// TestSnapshotAndRollback captures a snapshot mid-flight, keeps mutating
// the record, then recovers it both ways: snapshot restore and last-stable
// rollback
func TestSnapshotAndRollback(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		res, err := eng.InitializeState(ctx, &api.InitializeRequest{
			WorkflowID: "wf-rescue",
			Machine:    helpers.NewTestMachine(),
			Variables:  api.Variables{"phase": "initial"},
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		id := res.State.ID

		res, err = eng.TransitionState(ctx, id, &api.TransitionRequest{
			To:      "active",
			Context: &api.TransitionContext{Trigger: "start"},
		})
		require.NoError(t, err)
		require.True(t, res.Success)

		res, err = eng.CreateSnapshot(ctx, id, &api.SnapshotRequest{
			Metadata: api.Metadata{"checkpoint": "pre-work"},
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		require.Len(t, res.State.Snapshots, 1)
		var snapID api.SnapshotID
		for sid := range res.State.Snapshots {
			snapID = sid
		}

		res, err = eng.UpdateVariables(ctx, id, &api.UpdateVariablesRequest{
			Variables: api.Variables{"phase": "mutated"},
		})
		require.NoError(t, err)
		require.True(t, res.Success)

		res, err = eng.RestoreSnapshot(ctx, id, &api.RestoreRequest{
			SnapshotID: snapID,
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		testify.Equal(t, "initial", res.State.Variables["phase"])
		testify.Equal(t, api.Status("active"), res.State.Status)

		// rollback rewinds past the most recent accepted transition
		res, err = eng.TransitionState(ctx, id, &api.TransitionRequest{
			To:      "failed",
			Context: &api.TransitionContext{Trigger: "fail"},
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		failedAt := res.State.Version

		res, err = eng.RollbackState(ctx, id, &api.RollbackRequest{})
		require.NoError(t, err)
		require.True(t, res.Success)
		testify.Equal(t, failedAt, res.RolledBackFrom)
		testify.Equal(t, failedAt-1, res.RolledBackTo)
		testify.Equal(t, api.Status("active"), res.State.Status)

		// restore and rollback append history records of their own
		history, err := eng.GetHistory(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 4)
		testify.Equal(t, api.TriggerRestore, history[1].Trigger)
		testify.Equal(t, api.Status("failed"), history[2].To)
		testify.Equal(t, api.TriggerRollback, history[3].Trigger)

		compacted, err := eng.CompactHistory(ctx, id, &api.CompactRequest{
			Retain: 1,
		})
		require.NoError(t, err)
		testify.Equal(t, 3, compacted.Removed)
		testify.Equal(t, 1, compacted.Retained)

		history, err = eng.GetHistory(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 1)
		testify.Equal(t, api.TriggerRollback, history[0].Trigger)
	})
}

// TestRestartPreservesCatalogAndStates simulates a process restart and
// checks that the machine catalog and in-flight state records come back
func TestRestartPreservesCatalogAndStates(t *testing.T) {
	helpers.WithStartedEnv(t, func(env *helpers.TestEngineEnv) {
		ctx := context.Background()

		machine := helpers.NewTestMachine()
		require.NoError(t, env.Engine.RegisterMachine(ctx, machine))

		res, err := env.Engine.InitializeState(ctx, &api.InitializeRequest{
			WorkflowID: "wf-restart",
			MachineRef: machine.ID,
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		id := res.State.ID

		res, err = env.Engine.TransitionState(ctx, id,
			&api.TransitionRequest{
				To:      "active",
				Context: &api.TransitionContext{Trigger: "start"},
			})
		require.NoError(t, err)
		require.True(t, res.Success)

		restarted := env.NewEngineInstance(t)
		require.NoError(t, restarted.Start())
		defer func() { _ = restarted.Stop() }()

		got, err := restarted.GetMachine(ctx, machine.ID)
		require.NoError(t, err)
		testify.Equal(t, machine.InitialState, got.InitialState)

		st, err := restarted.GetState(ctx, id)
		require.NoError(t, err)
		testify.Equal(t, api.Status("active"), st.Status)
		testify.Equal(t, int64(2), st.Version)

		// the record picks up where it left off on the new instance
		res, err = restarted.TransitionState(ctx, id,
			&api.TransitionRequest{
				To:      "completed",
				Context: &api.TransitionContext{Trigger: "finish"},
			})
		require.NoError(t, err)
		require.True(t, res.Success)
		testify.Equal(t, int64(3), res.State.Version)
	})
}
