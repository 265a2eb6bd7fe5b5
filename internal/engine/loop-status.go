package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
)

// GetLoopState retrieves the persisted record of a loop execution
func (e *Engine) GetLoopState(
	ctx context.Context, id api.LoopID,
) (*api.LoopState, error) {
	st, err := e.foldLoop(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	return st, nil
}

// GetLoopStateSeq retrieves a loop record and its next event sequence
func (e *Engine) GetLoopStateSeq(
	ctx context.Context, id api.LoopID,
) (*api.LoopState, int64, error) {
	var seq int64
	st, err := e.execLoop(ctx, id,
		func(_ *api.LoopState, ag *LoopAggregator) error {
			seq = ag.NextSequence()
			return nil
		},
	)
	if err != nil {
		return nil, 0, err
	}
	if st.ID == "" {
		return nil, 0, fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	return st, seq, nil
}

// GetLoopResult retrieves the uniform execution result of a recorded loop
func (e *Engine) GetLoopResult(
	ctx context.Context, id api.LoopID,
) (*api.LoopExecutionResult, error) {
	st, err := e.GetLoopState(ctx, id)
	if err != nil {
		return nil, err
	}
	return st.Result(), nil
}

// ListLoops returns digests of all recorded loop executions, newest first
func (e *Engine) ListLoops(
	ctx context.Context,
) (*api.LoopsListResponse, error) {
	ids, err := e.loopExec.GetStore().ListAggregates(
		ctx, events.LoopKey("*"),
	)
	if err != nil {
		return nil, err
	}

	digests := make([]*api.LoopDigest, 0, len(ids))
	for _, id := range ids {
		if digest := e.buildLoopDigest(ctx, id); digest != nil {
			digests = append(digests, digest)
		}
	}

	slices.SortFunc(digests, func(l, r *api.LoopDigest) int {
		if c := r.StartedAt.Compare(l.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(l.ID, r.ID)
	})
	return &api.LoopsListResponse{
		Loops: digests,
		Count: len(digests),
	}, nil
}

func (e *Engine) buildLoopDigest(
	ctx context.Context, id timebox.AggregateID,
) *api.LoopDigest {
	if len(id) < 2 || id[0] != events.LoopPrefix {
		return nil
	}
	st, err := e.GetLoopState(ctx, api.LoopID(id[1]))
	if err != nil {
		return nil
	}
	return st.Digest()
}
