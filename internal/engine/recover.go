package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/log"
)

// RecoverStates reconciles the engine's bookkeeping with the state store
// after a restart. Live states are verified against their records, loops a
// previous process left running are marked interrupted, and oversized
// histories get their compaction rescheduled
func (e *Engine) RecoverStates(ctx context.Context) error {
	es, err := e.GetEngineState(ctx)
	if err != nil {
		return fmt.Errorf("failed to get engine state: %w", err)
	}

	if err := e.recoverActive(ctx, es); err != nil {
		return err
	}
	return e.recoverLoops(ctx)
}

func (e *Engine) recoverActive(
	ctx context.Context, es *api.EngineState,
) error {
	if len(es.Active) == 0 {
		slog.Info("No active states to recover")
		return nil
	}

	slog.Info("Recovering active states",
		slog.Int("count", len(es.Active)))

	for id := range es.Active {
		if err := e.recoverState(ctx, id); err != nil {
			slog.Error("Failed to recover state",
				log.StateID(id),
				log.Error(err))
		}
	}
	return nil
}

func (e *Engine) recoverState(ctx context.Context, id api.StateID) error {
	st, err := e.GetState(ctx, id)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return e.releaseOrphan(ctx, id)
		}
		return err
	}

	if st.Machine.IsTerminal(st.Status) {
		// the record reached a terminal status but the deactivation was
		// never booked
		return e.trackStateActivity(id, st.Status, true)
	}

	e.scheduleCompaction(st)
	return nil
}

// releaseOrphan drops a live entry whose state record no longer exists
func (e *Engine) releaseOrphan(ctx context.Context, id api.StateID) error {
	slog.Warn("Releasing state with no record", log.StateID(id))
	_, err := e.execEngine(ctx,
		func(st *api.EngineState, ag *EngineAggregator) error {
			if !st.IsActive(id) {
				return nil
			}
			return events.Raise(ag, api.EventStateDeactivated,
				api.StateDeactivatedEvent{StateID: id})
		},
	)
	return err
}

// recoverLoops marks loop records stuck in running status as interrupted.
// A record can only be running here if the process that drove it is gone
func (e *Engine) recoverLoops(ctx context.Context) error {
	ids, err := e.loopExec.GetStore().ListAggregates(
		ctx, events.LoopKey("*"),
	)
	if err != nil {
		return err
	}

	interrupted := 0
	for _, id := range ids {
		if len(id) < 2 || id[0] != events.LoopPrefix {
			continue
		}
		loopID := api.LoopID(id[1])
		if _, live := e.loops.Load(loopID); live {
			continue
		}

		st, err := e.foldLoop(ctx, loopID)
		if err != nil {
			slog.Error("Failed to load loop record",
				log.LoopID(loopID),
				log.Error(err))
			continue
		}
		if st.ID == "" || st.IsFinished() {
			continue
		}

		if err := e.interruptLoop(ctx, loopID); err != nil {
			slog.Error("Failed to interrupt loop",
				log.LoopID(loopID),
				log.Error(err))
			continue
		}
		interrupted++
	}

	if interrupted > 0 {
		slog.Info("Interrupted loops marked failed",
			slog.Int("count", interrupted))
	}
	return nil
}

func (e *Engine) interruptLoop(ctx context.Context, id api.LoopID) error {
	_, err := e.execLoop(ctx, id,
		func(st *api.LoopState, ag *LoopAggregator) error {
			if st.IsFinished() {
				return nil
			}
			return events.Raise(ag, api.EventLoopCompleted,
				api.LoopCompletedEvent{
					Error:  "interrupted by engine restart",
					Reason: api.TerminationError,
				})
		},
	)
	return err
}
