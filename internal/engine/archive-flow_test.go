package engine_test

import (
	"context"
	"testing"

	testify "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/paisley/internal/assert/helpers"
	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/pkg/api"
)

func completeTestState(
	t *testing.T, eng *engine.Engine, st *api.WorkflowState,
) {
	t.Helper()
	ctx := context.Background()

	res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
		To:      "active",
		Context: triggered("start"),
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
		To:      "completed",
		Context: triggered("finish"),
	})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestArchiveStateNotTerminal(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		err := eng.ArchiveState(context.Background(), st.ID)
		testify.ErrorIs(t, err, engine.ErrStateNotTerminal)
	})
}

func TestArchiveStateNotFound(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		err := eng.ArchiveState(context.Background(), "missing")
		testify.ErrorIs(t, err, engine.ErrStateNotFound)
	})
}

func TestArchiveStateTerminal(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)
		completeTestState(t, eng, st)

		require.NoError(t, eng.ArchiveState(ctx, st.ID))

		es, err := eng.GetEngineState(ctx)
		require.NoError(t, err)
		testify.Contains(t, es.Archiving, st.ID)
	})
}

func TestMarkStateArchived(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)
		completeTestState(t, eng, st)
		require.NoError(t, eng.ArchiveState(ctx, st.ID))

		err := eng.MarkStateArchived(ctx, st.ID, "archive/state/"+string(st.ID))
		require.NoError(t, err)

		es, err := eng.GetEngineState(ctx)
		require.NoError(t, err)
		testify.NotContains(t, es.Archiving, st.ID)
		testify.NotContains(t, es.Digests, st.ID)
	})
}
