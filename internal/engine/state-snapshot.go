package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/log"
)

// CreateSnapshot captures a point-in-time copy of a state record. With
// Archive set the snapshot content is exported to the configured bucket
// and evicted from the record, leaving only the blob reference behind
func (e *Engine) CreateSnapshot(
	ctx context.Context, id api.StateID, req *api.SnapshotRequest,
) (*api.StateResult, error) {
	if req.Archive && e.archive == nil {
		return api.Failed(api.ErrCodeConfiguration,
			"no archive bucket is configured"), nil
	}

	var snap *api.StateSnapshot
	st, err := e.execState(ctx, id,
		func(st *api.WorkflowState, ag *StateAggregator) error {
			if st.ID == "" {
				return fmt.Errorf("%w: %s", ErrStateNotFound, id)
			}

			// Snapshot content does not nest previously taken snapshots
			content := st.Clone()
			content.Snapshots = nil

			sum, err := content.Variables.HashKey()
			if err != nil {
				return err
			}
			snap = &api.StateSnapshot{
				CreatedAt:  e.clock(),
				State:      content,
				Metadata:   req.Metadata,
				ID:         api.NewSnapshotID(),
				StateID:    st.ID,
				WorkflowID: st.WorkflowID,
				Checksum:   sum,
				Version:    st.Version,
			}
			return events.Raise(ag, api.EventSnapshotCreated,
				api.SnapshotCreatedEvent{Snapshot: snap})
		},
	)
	if err != nil {
		return nil, err
	}

	if req.Archive {
		if st, err = e.archiveSnapshot(ctx, id, snap); err != nil {
			return nil, err
		}
	}
	return api.OK(st), nil
}

// RestoreSnapshot reinstates a snapshot's variables, status, and step
// cursor as a fresh version of the record. History is preserved; the
// restore lands on top of it rather than rewinding it
func (e *Engine) RestoreSnapshot(
	ctx context.Context, id api.StateID, req *api.RestoreRequest,
) (*api.StateResult, error) {
	st, err := e.GetState(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, ok := st.Snapshots[req.SnapshotID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, req.SnapshotID)
	}

	content := snap.State
	if snap.Archived {
		if e.archive == nil {
			return api.Failed(api.ErrCodeConfiguration,
				"no archive bucket is configured"), nil
		}
		stored, err := e.archive.GetSnapshot(ctx, snap.Ref)
		if err != nil {
			return nil, err
		}
		content = stored.State
	}
	if content == nil {
		return nil, fmt.Errorf("%w: %s has no content",
			ErrSnapshotNotFound, req.SnapshotID)
	}
	if snap.Checksum != "" {
		sum, err := content.Variables.HashKey()
		if err != nil {
			return nil, err
		}
		if sum != snap.Checksum {
			return api.Failed(api.ErrCodePersistence,
				"snapshot content failed checksum verification"), nil
		}
	}

	restored, err := e.execState(ctx, id,
		func(st *api.WorkflowState, ag *StateAggregator) error {
			if st.ID == "" {
				return fmt.Errorf("%w: %s", ErrStateNotFound, id)
			}
			if _, ok := st.Snapshots[req.SnapshotID]; !ok {
				return fmt.Errorf("%w: %s",
					ErrSnapshotNotFound, req.SnapshotID)
			}

			terminal := st.Machine != nil &&
				st.Machine.IsTerminal(content.Status)
			return events.Raise(ag, api.EventSnapshotRestored,
				api.SnapshotRestoredEvent{
					Variables:   content.Variables,
					SnapshotID:  req.SnapshotID,
					Status:      content.Status,
					FromStatus:  st.Status,
					CurrentStep: content.CurrentStep,
					FromVersion: st.Version,
					Version:     st.Version + 1,
					Terminal:    terminal,
				})
		},
	)
	if err != nil {
		return nil, err
	}

	slog.Info("Snapshot restored",
		log.StateID(id),
		slog.String("snapshot_id", string(req.SnapshotID)),
		log.Status(restored.Status))
	return api.OK(restored), nil
}

// archiveSnapshot exports snapshot content to the bucket and marks the
// record archived once the export has landed
func (e *Engine) archiveSnapshot(
	ctx context.Context, id api.StateID, snap *api.StateSnapshot,
) (*api.WorkflowState, error) {
	ref, err := e.archive.PutSnapshot(ctx, snap)
	if err != nil {
		return nil, err
	}
	return e.execState(ctx, id,
		func(st *api.WorkflowState, ag *StateAggregator) error {
			return events.Raise(ag, api.EventSnapshotArchived,
				api.SnapshotArchivedEvent{
					SnapshotID: snap.ID,
					Ref:        ref,
				})
		},
	)
}
