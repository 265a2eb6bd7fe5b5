package engine_test

import (
	"context"
	"testing"

	testify "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/internal/assert/helpers"
	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/pkg/api"
)

func runLoop(
	t *testing.T, eng *engine.Engine, req *api.LoopRequest,
) *api.LoopExecutionResult {
	t.Helper()
	res, err := eng.ExecuteLoop(context.Background(), req)
	require.NoError(t, err)
	return res
}

func loopEvents(
	t *testing.T, env *helpers.TestEngineEnv, id api.LoopID,
) []*timebox.Event {
	t.Helper()
	evs, err := env.LoopEvents(id)
	testify.NoError(t, err)
	return evs
}

func countEvents(evs []*timebox.Event, et api.EventType) int {
	count := 0
	for _, ev := range evs {
		if ev.Type == timebox.EventType(et) {
			count++
		}
	}
	return count
}

func TestExecuteForLoop(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		loop := helpers.NewForLoop(
			"loop-for", "items", helpers.NewTaskStep("body"),
		)
		res := runLoop(t, env.Engine, &api.LoopRequest{
			Loop:      loop,
			Variables: api.Variables{"items": []any{10, 20, 30}},
		})

		testify.True(t, res.Success)
		testify.Equal(t, api.LoopID("loop-for"), res.LoopID)
		testify.Len(t, res.Iterations, 3)
		testify.Equal(t, 3, res.Metrics.Iterations)
		testify.Equal(t, 3, res.Metrics.Succeeded)
		testify.Zero(t, res.Metrics.Failed)

		testify.Positive(t, res.Metrics.Elapsed)
		testify.Positive(t, res.Metrics.Throughput)
		testify.LessOrEqual(t, res.Metrics.PerIterMin, res.Metrics.PerIterAvg)
		testify.LessOrEqual(t, res.Metrics.PerIterAvg, res.Metrics.PerIterMax)

		args := env.MockExec.AllArgs("body")
		require.Len(t, args, 3)
		for i, a := range args {
			testify.Equal(t, i, a[api.DefaultIndexVar])
			testify.Equal(t, (i+1)*10, a[api.DefaultItemVar])
		}

		evs := loopEvents(t, env, res.LoopID)
		testify.Equal(t, 1, countEvents(evs, api.EventLoopStarted))
		testify.Equal(t, 3, countEvents(evs, api.EventLoopIterationDone))
		testify.Equal(t, 1, countEvents(evs, api.EventLoopCompleted))
	})
}

func TestForLoopCustomBindings(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		loop := helpers.NewForLoop(
			"loop-bind", "rows", helpers.NewTaskStep("body"),
		)
		loop.ItemVar = "row"
		loop.IndexVar = "pos"

		res := runLoop(t, env.Engine, &api.LoopRequest{
			Loop:      loop,
			Variables: api.Variables{"rows": []any{"a", "b"}},
		})
		testify.True(t, res.Success)

		args := env.MockExec.AllArgs("body")
		require.Len(t, args, 2)
		testify.Equal(t, "a", args[0][api.Name("row")])
		testify.Equal(t, 0, args[0][api.Name("pos")])
		testify.Equal(t, "b", args[1][api.Name("row")])
		testify.Equal(t, 1, args[1][api.Name("pos")])
	})
}

func TestForLoopNestedIterable(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		loop := helpers.NewForLoop(
			"loop-path", "batch.items", helpers.NewTaskStep("body"),
		)
		res := runLoop(t, eng, &api.LoopRequest{
			Loop: loop,
			Variables: api.Variables{
				"batch": map[string]any{"items": []any{1, 2}},
			},
		})
		testify.True(t, res.Success)
		testify.Len(t, res.Iterations, 2)
	})
}

func TestForLoopMissingIterable(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		loop := helpers.NewForLoop(
			"loop-missing", "nowhere", helpers.NewTaskStep("body"),
		)
		res := runLoop(t, eng, &api.LoopRequest{Loop: loop})

		testify.False(t, res.Success)
		require.NotEmpty(t, res.Errors)
		testify.Equal(t, "iterable", res.Errors[0].Field)
	})
}

func TestForLoopIterableNotCollection(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		loop := helpers.NewForLoop(
			"loop-scalar", "items", helpers.NewTaskStep("body"),
		)
		res := runLoop(t, eng, &api.LoopRequest{
			Loop:      loop,
			Variables: api.Variables{"items": 42},
		})

		testify.False(t, res.Success)
		require.NotEmpty(t, res.Errors)
		testify.Equal(t, "iterable", res.Errors[0].Field)
	})
}

func TestExecuteLoopNilConfig(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		res := runLoop(t, eng, &api.LoopRequest{})
		testify.False(t, res.Success)
		testify.NotEmpty(t, res.Errors)
	})
}

func TestExecuteLoopInvalidConfig(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		res := runLoop(t, eng, &api.LoopRequest{
			Loop: &api.LoopStep{ID: "loop-bad", Type: "sideways"},
		})
		testify.False(t, res.Success)
		testify.NotEmpty(t, res.Errors)
	})
}

func TestWhileLoop(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		loop := helpers.NewWhileLoop(
			"loop-while", "index < 3", 10, helpers.NewTaskStep("body"),
		)
		res := runLoop(t, env.Engine, &api.LoopRequest{Loop: loop})

		testify.True(t, res.Success)
		testify.Len(t, res.Iterations, 3)
		testify.False(t, res.MaxIterationsReached)
		testify.Equal(t, 3, env.MockExec.InvocationCount("body"))
	})
}

func TestWhileLoopMaxIterations(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		loop := helpers.NewWhileLoop(
			"loop-runaway", "true", 4, helpers.NewTaskStep("body"),
		)
		res := runLoop(t, env.Engine, &api.LoopRequest{Loop: loop})

		testify.False(t, res.Success)
		testify.Equal(t, api.TerminationMaxIterations, res.Reason)
		testify.True(t, res.MaxIterationsReached)
		testify.True(t, res.PartialResults)
		testify.Len(t, res.Iterations, 4)

		evs := loopEvents(t, env, res.LoopID)
		testify.Equal(t, 1, countEvents(evs, api.EventLoopSafetyTriggered))
	})
}

func TestWhileLoopTimeout(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		loop := helpers.NewWhileLoop(
			"loop-slow", "true", 1_000_000, helpers.NewTaskStep("body"),
		)
		loop.TimeoutMs = 1

		res := runLoop(t, eng, &api.LoopRequest{Loop: loop})
		testify.False(t, res.Success)
		testify.Equal(t, api.TerminationTimeout, res.Reason)
		testify.False(t, res.MaxIterationsReached)
	})
}

func TestLoopBreakCondition(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		loop := helpers.NewForLoop(
			"loop-break", "items", helpers.NewTaskStep("body"),
		)
		loop.BreakCondition = &api.Condition{Expression: "index >= 1"}

		res := runLoop(t, env.Engine, &api.LoopRequest{
			Loop:      loop,
			Variables: api.Variables{"items": []any{1, 2, 3, 4, 5}},
		})

		testify.True(t, res.Success)
		testify.True(t, res.EarlyTermination)
		testify.Equal(t, api.TerminationBreak, res.Reason)
		testify.Len(t, res.Iterations, 2)
		testify.Equal(t, 2, env.MockExec.InvocationCount("body"))

		evs := loopEvents(t, env, res.LoopID)
		testify.Equal(t, 1, countEvents(evs, api.EventLoopBreakTriggered))
	})
}

func TestLoopContinueCondition(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		loop := helpers.NewForLoop(
			"loop-skip", "items", helpers.NewTaskStep("body"),
		)
		loop.ContinueCondition = &api.Condition{Expression: "index == 1"}

		res := runLoop(t, env.Engine, &api.LoopRequest{
			Loop:      loop,
			Variables: api.Variables{"items": []any{1, 2, 3}},
		})

		testify.True(t, res.Success)
		testify.Len(t, res.Iterations, 3)
		testify.Equal(t, 1, res.Metrics.Skipped)
		testify.Equal(t, 2, res.Metrics.Succeeded)
		testify.Equal(t, 2, env.MockExec.InvocationCount("body"))

		testify.True(t, res.Iterations[1].Skipped)
		testify.False(t, res.Iterations[1].Success)

		evs := loopEvents(t, env, res.LoopID)
		testify.Equal(t, 1, countEvents(evs, api.EventLoopContinueTrig))
	})
}

func TestLoopConditionError(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		loop := helpers.NewWhileLoop(
			"loop-broken", "no_such_fn()", 10, helpers.NewTaskStep("body"),
		)
		res := runLoop(t, eng, &api.LoopRequest{Loop: loop})

		testify.False(t, res.Success)
		testify.Equal(t, api.TerminationError, res.Reason)
		testify.NotEmpty(t, res.Error)
	})
}

func TestLoopVariablesFlowBackToState(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		ctx := context.Background()
		eng := env.Engine
		st := initTestState(t, eng, helpers.NewTestMachine(), api.Variables{
			"items": []any{1, 2},
		})

		env.MockExec.SetResponse("body", api.Variables{"total": 42})
		loop := helpers.NewForLoop(
			"loop-state", "items", helpers.NewTaskStep("body"),
		)
		res := runLoop(t, eng, &api.LoopRequest{
			Loop:    loop,
			StateID: st.ID,
		})
		testify.True(t, res.Success)
		testify.EqualValues(t, 42, res.Variables[api.Name("total")])

		after, err := eng.GetState(ctx, st.ID)
		require.NoError(t, err)
		testify.EqualValues(t, 42, after.Variables[api.Name("total")])
	})
}

func TestExecuteLoopStateNotFound(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		loop := helpers.NewForLoop(
			"loop-nostate", "items", helpers.NewTaskStep("body"),
		)
		_, err := eng.ExecuteLoop(context.Background(), &api.LoopRequest{
			Loop:      loop,
			StateID:   "missing",
			Variables: api.Variables{"items": []any{1}},
		})
		testify.ErrorIs(t, err, engine.ErrStateNotFound)
	})
}

func TestExecuteLoopGeneratesID(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		loop := helpers.NewForLoop("", "items", helpers.NewTaskStep("body"))
		res := runLoop(t, eng, &api.LoopRequest{
			Loop:      loop,
			Variables: api.Variables{"items": []any{1}},
		})
		testify.True(t, res.Success)
		testify.NotEmpty(t, res.LoopID)
	})
}

func TestRerunFinishedLoopID(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		loop := helpers.NewForLoop(
			"loop-rerun", "items", helpers.NewTaskStep("body"),
		)
		req := &api.LoopRequest{
			Loop:      loop,
			Variables: api.Variables{"items": []any{1}},
		}
		first := runLoop(t, eng, req)
		testify.True(t, first.Success)

		second := runLoop(t, eng, req)
		testify.True(t, second.Success)
	})
}

func TestNestedLoops(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		inner := helpers.NewForLoop(
			"inner", string(api.DefaultItemVar), helpers.NewTaskStep("leaf"),
		)
		outer := helpers.NewForLoop(
			"loop-outer", "batches", helpers.NewLoopStep("nested", inner),
		)
		res := runLoop(t, env.Engine, &api.LoopRequest{
			Loop: outer,
			Variables: api.Variables{
				"batches": []any{[]any{1, 2}, []any{3, 4}},
			},
		})

		testify.True(t, res.Success)
		testify.Len(t, res.Iterations, 2)
		testify.Equal(t, 4, env.MockExec.InvocationCount("leaf"))
	})
}

func TestNestedLoopScopeIsolation(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		env.MockExec.SetResponse("leaf", api.Variables{"inner_out": 1})

		inner := helpers.NewForLoop(
			"inner", string(api.DefaultItemVar), helpers.NewTaskStep("leaf"),
		)
		outer := helpers.NewForLoop(
			"loop-isolated", "batches", helpers.NewLoopStep("nested", inner),
		)
		res := runLoop(t, env.Engine, &api.LoopRequest{
			Loop:      outer,
			Variables: api.Variables{"batches": []any{[]any{1}}},
		})

		testify.True(t, res.Success)
		testify.EqualValues(t, 1, res.Variables[api.Name("inner_out")])

		// iterator bindings never leak into the surviving scope
		testify.NotContains(t, res.Variables, api.DefaultItemVar)
		testify.NotContains(t, res.Variables, api.DefaultIndexVar)
	})
}

func TestNestedLoopFailurePropagates(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		env.MockExec.SetError("leaf", context.DeadlineExceeded)

		inner := helpers.NewForLoop(
			"inner", string(api.DefaultItemVar), helpers.NewTaskStep("leaf"),
		)
		inner.Retry = &api.RetryPolicy{MaxAttempts: 1}
		outer := helpers.NewForLoop(
			"loop-cascade", "batches", helpers.NewLoopStep("nested", inner),
		)
		outer.Retry = &api.RetryPolicy{MaxAttempts: 1}

		res := runLoop(t, env.Engine, &api.LoopRequest{
			Loop:      outer,
			Variables: api.Variables{"batches": []any{[]any{1}}},
		})

		testify.False(t, res.Success)
		testify.Equal(t, api.TerminationError, res.Reason)
		testify.Contains(t, res.Error, "nested loop")
	})
}
