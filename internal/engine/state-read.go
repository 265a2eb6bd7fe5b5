package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/kode4food/paisley/pkg/api"
)

// GetState retrieves a workflow state record
func (e *Engine) GetState(
	ctx context.Context, id api.StateID,
) (*api.WorkflowState, error) {
	st, err := e.execState(ctx, id,
		func(st *api.WorkflowState, ag *StateAggregator) error {
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	if st.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, id)
	}
	return st, nil
}

// GetStateSeq retrieves a state record and its next event sequence
func (e *Engine) GetStateSeq(
	ctx context.Context, id api.StateID,
) (*api.WorkflowState, int64, error) {
	var seq int64
	st, err := e.execState(ctx, id,
		func(_ *api.WorkflowState, ag *StateAggregator) error {
			seq = ag.NextSequence()
			return nil
		},
	)
	if err != nil {
		return nil, 0, err
	}
	if st.ID == "" {
		return nil, 0, fmt.Errorf("%w: %s", ErrStateNotFound, id)
	}
	return st, seq, nil
}

// GetVariable reads a single variable from a state's scope. The second
// return reports whether the name is bound at all
func (e *Engine) GetVariable(
	ctx context.Context, id api.StateID, name api.Name,
) (any, bool, error) {
	st, err := e.GetState(ctx, id)
	if err != nil {
		return nil, false, err
	}
	val, ok := st.Variables[name]
	return val, ok, nil
}

// GetStateDigest returns the listing digest for a state, folding the full
// record only when the engine carries no digest for it
func (e *Engine) GetStateDigest(
	ctx context.Context, id api.StateID,
) (*api.StateDigest, error) {
	es, err := e.GetEngineState(ctx)
	if err != nil {
		return nil, err
	}
	if d, ok := es.Digests[id]; ok {
		return d, nil
	}

	st, err := e.GetState(ctx, id)
	if err != nil {
		return nil, err
	}
	return st.Digest(), nil
}

// ListStates returns the digests of all tracked states ordered by creation
// time
func (e *Engine) ListStates(
	ctx context.Context,
) (*api.StatesListResponse, error) {
	es, err := e.GetEngineState(ctx)
	if err != nil {
		return nil, err
	}

	digests := make([]*api.StateDigest, 0, len(es.Digests))
	for _, d := range es.Digests {
		digests = append(digests, d)
	}
	slices.SortFunc(digests, func(a, b *api.StateDigest) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return &api.StatesListResponse{
		States: digests,
		Count:  len(digests),
	}, nil
}
