package engine

import (
	"context"

	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
)

// GetEngineState retrieves the engine's own record: the machine catalog,
// activity tracking, and the listing digests
func (e *Engine) GetEngineState(
	ctx context.Context,
) (*api.EngineState, error) {
	return e.execEngine(ctx,
		func(st *api.EngineState, ag *EngineAggregator) error {
			return nil
		},
	)
}

// GetEngineStateSeq retrieves the engine record and its next event sequence
func (e *Engine) GetEngineStateSeq(
	ctx context.Context,
) (*api.EngineState, int64, error) {
	var seq int64
	st, err := e.execEngine(ctx,
		func(_ *api.EngineState, ag *EngineAggregator) error {
			seq = ag.NextSequence()
			return nil
		},
	)
	return st, seq, err
}

func (e *Engine) raiseEngineEvent(
	ctx context.Context, typ api.EventType, data any,
) error {
	_, err := e.execEngine(ctx,
		func(st *api.EngineState, ag *EngineAggregator) error {
			return events.Raise(ag, typ, data)
		},
	)
	return err
}

func (e *Engine) execEngine(
	ctx context.Context, cmd timebox.Command[*api.EngineState],
) (*api.EngineState, error) {
	return e.engineExec.Exec(ctx, events.EngineKey, cmd)
}

func (e *Engine) execState(
	ctx context.Context, id api.StateID, cmd timebox.Command[*api.WorkflowState],
) (*api.WorkflowState, error) {
	return e.stateExec.Exec(ctx, events.StateKey(id), cmd)
}

func (e *Engine) execLoop(
	ctx context.Context, id api.LoopID, cmd timebox.Command[*api.LoopState],
) (*api.LoopState, error) {
	return e.loopExec.Exec(ctx, events.LoopKey(id), cmd)
}
