package engine_test

import (
	"context"
	"testing"

	testify "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/paisley/internal/assert/helpers"
	"github.com/kode4food/paisley/internal/config"
	"github.com/kode4food/paisley/internal/engine"
)

func TestNewEngineMissingDependencies(t *testing.T) {
	cfg := config.NewDefaultConfig()

	_, err := engine.New(cfg, engine.Dependencies{})
	require.Error(t, err)
	testify.ErrorIs(t, err, engine.ErrMissingDependency)
	testify.Contains(t, err.Error(), "engine store")
}

func TestEngineStartStop(t *testing.T) {
	helpers.WithStartedEngine(t, func(eng *engine.Engine) {
		testify.False(t, eng.Now().IsZero())
	})
}

func TestEngineStateEmpty(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()

		es, err := eng.GetEngineState(ctx)
		require.NoError(t, err)
		testify.Empty(t, es.Active)
		testify.Empty(t, es.Machines)

		states, err := eng.ListStates(ctx)
		require.NoError(t, err)
		testify.Zero(t, states.Count)

		loops, err := eng.ListLoops(ctx)
		require.NoError(t, err)
		testify.Zero(t, loops.Count)
	})
}

func TestEngineStateSeq(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()

		_, seq, err := eng.GetEngineStateSeq(ctx)
		require.NoError(t, err)
		testify.Zero(t, seq)

		st := initTestState(t, eng, helpers.NewTestMachine(), nil)
		testify.NotEmpty(t, st.ID)

		_, seq, err = eng.GetEngineStateSeq(ctx)
		require.NoError(t, err)
		testify.Positive(t, seq)
	})
}
