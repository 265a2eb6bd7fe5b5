package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/log"
)

const compactionTimeout = 10 * time.Second

// GetHistory returns a state's transition history, oldest first
func (e *Engine) GetHistory(
	ctx context.Context, id api.StateID,
) ([]*api.TransitionRecord, error) {
	st, err := e.GetState(ctx, id)
	if err != nil {
		return nil, err
	}
	return st.History, nil
}

// CompactHistory trims a state's transition history down to a retained
// tail. The event stream itself is untouched; compaction only bounds the
// folded record
func (e *Engine) CompactHistory(
	ctx context.Context, id api.StateID, req *api.CompactRequest,
) (*api.CompactionResult, error) {
	retain := req.Retain
	if retain <= 0 {
		retain = e.config.History.Retain
	}

	var removed, kept int
	_, err := e.execState(ctx, id,
		func(st *api.WorkflowState, ag *StateAggregator) error {
			if st.ID == "" {
				return fmt.Errorf("%w: %s", ErrStateNotFound, id)
			}

			kept = min(retain, len(st.History))
			removed = len(st.History) - kept
			if removed <= 0 {
				return nil
			}
			return events.Raise(ag, api.EventHistoryCompacted,
				api.HistoryCompactedEvent{
					Removed:  removed,
					Retained: kept,
				})
		},
	)
	if err != nil {
		return nil, err
	}

	if removed > 0 {
		slog.Info("History compacted",
			log.StateID(id),
			slog.Int("removed", removed),
			slog.Int("retained", kept))
	}
	return &api.CompactionResult{
		StateID:  id,
		Removed:  removed,
		Retained: kept,
	}, nil
}

// scheduleCompaction debounces a compaction pass for a state whose history
// has outgrown the configured bound. Rescheduling the same state replaces
// its pending task
func (e *Engine) scheduleCompaction(st *api.WorkflowState) {
	limit := e.config.History.MaxEntries
	if limit <= 0 || len(st.History) <= limit {
		return
	}

	id := st.ID
	e.scheduler.ScheduleAfter(
		e.ctx, compactionPath(id), e.config.History.CompactDelay,
		func() error {
			ctx, cancel := context.WithTimeout(e.ctx, compactionTimeout)
			defer cancel()
			_, err := e.CompactHistory(ctx, id, &api.CompactRequest{
				Retain: e.config.History.Retain,
			})
			return err
		},
	)
}

func compactionPath(id api.StateID) []string {
	return []string{"compact", string(id)}
}
