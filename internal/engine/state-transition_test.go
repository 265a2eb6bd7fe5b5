package engine_test

import (
	"context"
	"encoding/json"
	"testing"

	testify "github.com/stretchr/testify/assert"

	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/internal/assert/helpers"
	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/pkg/api"
)

func initTestState(
	t *testing.T, eng *engine.Engine, m *api.StateMachineConfig,
	vars api.Variables,
) *api.WorkflowState {
	t.Helper()
	res, err := eng.InitializeState(context.Background(),
		&api.InitializeRequest{
			WorkflowID: "wf-test",
			Machine:    m,
			Variables:  vars,
		})
	testify.NoError(t, err)
	testify.True(t, res.Success)
	return res.State
}

func stateEvents(
	t *testing.T, env *helpers.TestEngineEnv, id api.StateID,
) []*timebox.Event {
	t.Helper()
	evs, err := env.StateEvents(id)
	testify.NoError(t, err)
	return evs
}

func findEvent(evs []*timebox.Event, et api.EventType) *timebox.Event {
	for _, ev := range evs {
		if ev.Type == timebox.EventType(et) {
			return ev
		}
	}
	return nil
}

func triggered(tr api.Trigger) *api.TransitionContext {
	return &api.TransitionContext{Trigger: tr}
}

func TestTransitionState(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:      "active",
			Context: triggered("start"),
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)
		testify.Equal(t, api.Status("active"), res.State.Status)
		testify.Equal(t, int64(2), res.State.Version)

		testify.Len(t, res.State.History, 1)
		rec := res.State.History[0]
		testify.Equal(t, api.Status("pending"), rec.From)
		testify.Equal(t, api.Status("active"), rec.To)
		testify.Equal(t, api.Trigger("start"), rec.Trigger)
		testify.Equal(t, int64(2), rec.Version)
		testify.False(t, rec.At.IsZero())
	})
}

func TestTransitionRejected(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		ctx := context.Background()
		eng := env.Engine
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:      "completed",
			Context: triggered("finish"),
		})
		testify.NoError(t, err)
		testify.False(t, res.Success)
		testify.Equal(t, api.ErrCodeTransitionRejected, res.Code)
		testify.NotEmpty(t, res.Error)

		// the record is untouched but the rejection is still audited
		after, err := eng.GetState(ctx, st.ID)
		testify.NoError(t, err)
		testify.Equal(t, api.Status("pending"), after.Status)
		testify.Equal(t, int64(1), after.Version)
		testify.Empty(t, after.History)

		ev := findEvent(
			stateEvents(t, env, st.ID), api.EventTransitionRejected,
		)
		testify.NotNil(t, ev)

		var rejected api.TransitionRejectedEvent
		testify.NoError(t, json.Unmarshal(ev.Data, &rejected))
		testify.Equal(t, api.Status("pending"), rejected.From)
		testify.Equal(t, api.Status("completed"), rejected.To)
		testify.NotEmpty(t, rejected.Reason)
	})
}

func TestTransitionTriggerMismatch(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:      "active",
			Context: triggered("fail"),
		})
		testify.NoError(t, err)
		testify.False(t, res.Success)
		testify.Equal(t, api.ErrCodeTransitionRejected, res.Code)

		after, err := eng.GetState(ctx, st.ID)
		testify.NoError(t, err)
		testify.Equal(t, int64(1), after.Version)
	})
}

func TestTransitionGuardPasses(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		ctx := context.Background()
		eng := env.Engine
		m := helpers.NewGuardedMachine("count >= 3")
		st := initTestState(t, eng, m, api.Variables{"count": 5})

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:      "active",
			Context: triggered("start"),
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)

		res, err = eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:      "completed",
			Context: triggered("finish"),
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)
		testify.Equal(t, api.Status("completed"), res.State.Status)

		ev := findEvent(
			stateEvents(t, env, st.ID), api.EventConditionsEvaluated,
		)
		testify.NotNil(t, ev)

		var evaluated api.ConditionsEvaluatedEvent
		testify.NoError(t, json.Unmarshal(ev.Data, &evaluated))
		testify.True(t, evaluated.Passed)
		testify.Len(t, evaluated.Results, 1)
		testify.Equal(t, "count >= 3", evaluated.Results[0].Expression)
		testify.True(t, evaluated.Results[0].Result)
		testify.Equal(t, 5, evaluated.Results[0].Operands.GetInt("count", -1))
	})
}

func TestTransitionGuardFails(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		ctx := context.Background()
		eng := env.Engine
		m := helpers.NewGuardedMachine("count >= 3")
		st := initTestState(t, eng, m, api.Variables{"count": 1})

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:      "active",
			Context: triggered("start"),
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)

		res, err = eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:      "completed",
			Context: triggered("finish"),
		})
		testify.NoError(t, err)
		testify.False(t, res.Success)
		testify.Equal(t, api.ErrCodeTransitionRejected, res.Code)

		after, err := eng.GetState(ctx, st.ID)
		testify.NoError(t, err)
		testify.Equal(t, api.Status("active"), after.Status)

		ev := findEvent(
			stateEvents(t, env, st.ID), api.EventConditionsEvaluated,
		)
		testify.NotNil(t, ev)

		var evaluated api.ConditionsEvaluatedEvent
		testify.NoError(t, json.Unmarshal(ev.Data, &evaluated))
		testify.False(t, evaluated.Passed)
		testify.Len(t, evaluated.Results, 1)
		testify.False(t, evaluated.Results[0].Result)
		testify.Equal(t, 1, evaluated.Results[0].Operands.GetInt("count", -1))
	})
}

func TestTransitionVersionMatch(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:              "active",
			Context:         triggered("start"),
			ExpectedVersion: st.Version,
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)
		testify.Equal(t, int64(2), res.State.Version)
	})
}

func TestTransitionVersionConflict(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		ctx := context.Background()
		eng := env.Engine
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:              "active",
			Context:         triggered("start"),
			ExpectedVersion: 7,
		})
		testify.NoError(t, err)
		testify.False(t, res.Success)
		testify.Equal(t, api.ErrCodeConflict, res.Code)
		testify.Contains(t, res.Error, "expected 7, found 1")

		after, err := eng.GetState(ctx, st.ID)
		testify.NoError(t, err)
		testify.Equal(t, api.Status("pending"), after.Status)
		testify.Equal(t, int64(1), after.Version)

		ev := findEvent(
			stateEvents(t, env, st.ID), api.EventConflictDetected,
		)
		testify.NotNil(t, ev)

		var conflict api.ConflictDetectedEvent
		testify.NoError(t, json.Unmarshal(ev.Data, &conflict))
		testify.Equal(t, "transition", conflict.Op)
		testify.Equal(t, int64(7), conflict.ExpectedVersion)
		testify.Equal(t, int64(1), conflict.ActualVersion)
	})
}

func TestTransitionStaleWriter(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:              "active",
			Context:         triggered("start"),
			ExpectedVersion: 1,
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)

		// second writer still holds version 1
		res, err = eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:              "failed",
			Context:         triggered("fail"),
			ExpectedVersion: 1,
		})
		testify.NoError(t, err)
		testify.False(t, res.Success)
		testify.Equal(t, api.ErrCodeConflict, res.Code)

		after, err := eng.GetState(ctx, st.ID)
		testify.NoError(t, err)
		testify.Equal(t, api.Status("active"), after.Status)
		testify.Equal(t, int64(2), after.Version)
	})
}

func TestTransitionTerminal(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		for _, step := range []struct {
			to      api.Status
			trigger api.Trigger
		}{
			{"active", "start"},
			{"completed", "finish"},
		} {
			res, err := eng.TransitionState(ctx, st.ID,
				&api.TransitionRequest{
					To:      step.to,
					Context: triggered(step.trigger),
				})
			testify.NoError(t, err)
			testify.True(t, res.Success)
		}

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:      "active",
			Context: triggered("retry"),
		})
		testify.NoError(t, err)
		testify.False(t, res.Success)
		testify.Equal(t, api.ErrCodeTransitionRejected, res.Code)
	})
}

func TestTransitionNotFound(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		_, err := eng.TransitionState(context.Background(), "state-missing",
			&api.TransitionRequest{To: "active"})
		testify.ErrorIs(t, err, engine.ErrStateNotFound)
	})
}
