package engine_test

import (
	"context"
	"testing"

	testify "github.com/stretchr/testify/assert"

	"github.com/kode4food/paisley/internal/assert/helpers"
	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/pkg/api"
)

func TestCreateSnapshot(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(),
			api.Variables{"x": 1})

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:      "active",
			Context: triggered("start"),
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)

		res, err = eng.CreateSnapshot(ctx, st.ID, &api.SnapshotRequest{})
		testify.NoError(t, err)
		testify.True(t, res.Success)

		// taking a snapshot is not a state mutation
		testify.Equal(t, int64(2), res.State.Version)
		testify.Len(t, res.State.Snapshots, 1)

		for _, snap := range res.State.Snapshots {
			testify.Equal(t, st.ID, snap.StateID)
			testify.Equal(t, int64(2), snap.Version)
			testify.False(t, snap.Archived)
			testify.NotNil(t, snap.State)
			testify.Equal(t, api.Status("active"), snap.State.Status)
			testify.Nil(t, snap.State.Snapshots)

			// content is fingerprinted for verification on restore
			testify.Len(t, snap.Checksum, 64)
			sum, err := snap.State.Variables.HashKey()
			testify.NoError(t, err)
			testify.Equal(t, sum, snap.Checksum)
		}
	})
}

func TestCreateSnapshotMetadata(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		res, err := eng.CreateSnapshot(ctx, st.ID, &api.SnapshotRequest{
			Metadata: api.Metadata{"reason": "before-upgrade"},
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)

		for _, snap := range res.State.Snapshots {
			testify.Equal(t, "before-upgrade", snap.Metadata["reason"])
		}
	})
}

func TestCreateSnapshotNotFound(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		_, err := eng.CreateSnapshot(context.Background(), "state-missing",
			&api.SnapshotRequest{})
		testify.ErrorIs(t, err, engine.ErrStateNotFound)
	})
}

func TestRestoreSnapshot(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(),
			api.Variables{"count": 1})

		res, err := eng.TransitionState(ctx, st.ID, &api.TransitionRequest{
			To:      "active",
			Context: triggered("start"),
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)

		res, err = eng.CreateSnapshot(ctx, st.ID, &api.SnapshotRequest{})
		testify.NoError(t, err)
		testify.True(t, res.Success)

		var snapID api.SnapshotID
		for id := range res.State.Snapshots {
			snapID = id
		}

		res, err = eng.UpdateVariables(ctx, st.ID,
			&api.UpdateVariablesRequest{
				Variables: api.Variables{"count": 5},
			})
		testify.NoError(t, err)
		testify.True(t, res.Success)
		testify.Equal(t, int64(3), res.State.Version)

		res, err = eng.RestoreSnapshot(ctx, st.ID, &api.RestoreRequest{
			SnapshotID: snapID,
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)
		testify.Equal(t, int64(4), res.State.Version)
		testify.Equal(t, api.Status("active"), res.State.Status)
		testify.Equal(t, 1, res.State.Variables.GetInt("count", -1))

		// history is preserved; the restore lands on top of it
		testify.Len(t, res.State.History, 2)
		rec := res.State.History[1]
		testify.Equal(t, api.TriggerRestore, rec.Trigger)
		testify.Equal(t, int64(4), rec.Version)
	})
}

func TestRestoreSnapshotUnknown(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		_, err := eng.RestoreSnapshot(context.Background(), st.ID,
			&api.RestoreRequest{SnapshotID: "snap-missing"})
		testify.ErrorIs(t, err, engine.ErrSnapshotNotFound)
	})
}

func TestSnapshotArchive(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		ctx := context.Background()
		eng := env.Engine
		st := initTestState(t, eng, helpers.NewTestMachine(),
			api.Variables{"payload": "heavy"})

		res, err := eng.CreateSnapshot(ctx, st.ID, &api.SnapshotRequest{
			Archive: true,
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)
		testify.Len(t, res.State.Snapshots, 1)

		for _, snap := range res.State.Snapshots {
			testify.True(t, snap.Archived)
			testify.NotEmpty(t, snap.Ref)
			testify.Nil(t, snap.State)

			stored, err := env.Archive.GetSnapshot(ctx, snap.Ref)
			testify.NoError(t, err)
			testify.NotNil(t, stored.State)
			testify.Equal(t, "heavy",
				stored.State.Variables.GetString("payload", ""))

			// the bucket copy still matches the recorded fingerprint
			sum, err := stored.State.Variables.HashKey()
			testify.NoError(t, err)
			testify.Equal(t, sum, snap.Checksum)
		}
	})
}

func TestSnapshotArchiveNotConfigured(t *testing.T) {
	helpers.WithTestEnv(t, func(env *helpers.TestEngineEnv) {
		eng := env.NewEngineWithoutArchive(t)
		st := initTestState(t, eng, helpers.NewTestMachine(), nil)

		res, err := eng.CreateSnapshot(context.Background(), st.ID,
			&api.SnapshotRequest{Archive: true})
		testify.NoError(t, err)
		testify.False(t, res.Success)
		testify.Equal(t, api.ErrCodeConfiguration, res.Code)
		testify.Contains(t, res.Error, "no archive bucket")
	})
}

func TestRestoreArchivedSnapshot(t *testing.T) {
	helpers.WithEngine(t, func(eng *engine.Engine) {
		ctx := context.Background()
		st := initTestState(t, eng, helpers.NewTestMachine(),
			api.Variables{"count": 1})

		res, err := eng.CreateSnapshot(ctx, st.ID, &api.SnapshotRequest{
			Archive: true,
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)

		var snapID api.SnapshotID
		for id := range res.State.Snapshots {
			snapID = id
		}

		res, err = eng.UpdateVariables(ctx, st.ID,
			&api.UpdateVariablesRequest{
				Variables: api.Variables{"count": 9},
			})
		testify.NoError(t, err)
		testify.True(t, res.Success)

		res, err = eng.RestoreSnapshot(ctx, st.ID, &api.RestoreRequest{
			SnapshotID: snapID,
		})
		testify.NoError(t, err)
		testify.True(t, res.Success)
		testify.Equal(t, 1, res.State.Variables.GetInt("count", -1))
	})
}
