package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/log"
)

// StrategyLastStable rewinds to the version immediately preceding the
// current one, whatever kind of mutation produced the current version
const StrategyLastStable = "last_stable"

// RollbackState rewinds a record under the requested strategy. The rewound
// content lands as a fresh version; history is appended to, never erased
func (e *Engine) RollbackState(
	ctx context.Context, id api.StateID, req *api.RollbackRequest,
) (*api.StateResult, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyLastStable
	}
	if strategy != StrategyLastStable {
		return api.Invalid([]*api.FieldError{api.NewFieldError(
			"strategy",
			fmt.Sprintf("invalid rollback strategy %q", strategy),
		)}), nil
	}

	st, err := e.GetState(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Version <= initialVersion {
		return api.Failed(api.ErrCodeNotFound,
			"no stable point to roll back to"), nil
	}
	target := st.Version - 1

	stable, err := e.replayToVersion(ctx, id, target)
	if err != nil {
		return nil, err
	}

	rolled, err := e.execState(ctx, id,
		func(st *api.WorkflowState, ag *StateAggregator) error {
			if st.ID == "" {
				return fmt.Errorf("%w: %s", ErrStateNotFound, id)
			}

			terminal := st.Machine != nil &&
				st.Machine.IsTerminal(stable.Status)
			return events.Raise(ag, api.EventRollbackCompleted,
				api.RollbackCompletedEvent{
					Variables:   stable.Variables,
					Strategy:    strategy,
					Status:      stable.Status,
					FromStatus:  st.Status,
					CurrentStep: stable.CurrentStep,
					From:        st.Version,
					To:          target,
					Version:     st.Version + 1,
					Terminal:    terminal,
				})
		},
	)
	if err != nil {
		return nil, err
	}

	slog.Info("State rolled back",
		log.StateID(id),
		slog.Int64("from_version", st.Version),
		slog.Int64("to_version", target),
		log.Status(rolled.Status))

	out := api.OK(rolled)
	out.RolledBackFrom = st.Version
	out.RolledBackTo = target
	return out, nil
}

// replayToVersion reconstructs the record as it stood at the given version
// by folding the state's event stream from the beginning. Events that do
// not advance the version fold into whichever version they landed on
func (e *Engine) replayToVersion(
	ctx context.Context, id api.StateID, version int64,
) (*api.WorkflowState, error) {
	evs, err := e.stateExec.GetStore().GetEvents(ctx, events.StateKey(id), 0)
	if err != nil {
		return nil, err
	}

	st := events.NewWorkflowState()
	stable := st
	for _, ev := range evs {
		applier, ok := events.StateAppliers[ev.Type]
		if !ok {
			continue
		}
		st = applier(st, ev)
		if st.Version <= version {
			stable = st
		}
	}
	if stable.ID == "" {
		return nil, fmt.Errorf("%w: %s has no version %d",
			ErrStateNotFound, id, version)
	}
	return stable, nil
}
