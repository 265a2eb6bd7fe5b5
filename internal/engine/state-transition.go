package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/log"
)

// TransitionState applies a requested status change to a state record. The
// request is checked against the record's version, then against the
// machine's transition table and guard conditions. Rejections leave the
// record untouched and are reported in the result rather than as errors
func (e *Engine) TransitionState(
	ctx context.Context, id api.StateID, req *api.TransitionRequest,
) (*api.StateResult, error) {
	var res *api.StateResult
	trigger := requestTrigger(req.Context)

	st, err := e.execState(ctx, id,
		func(st *api.WorkflowState, ag *StateAggregator) error {
			if st.ID == "" {
				return fmt.Errorf("%w: %s", ErrStateNotFound, id)
			}

			conflict, err := versionConflict(
				st, ag, "transition", req.ExpectedVersion,
			)
			if err != nil || conflict != nil {
				res = conflict
				return err
			}

			d := e.validator.Validate(
				st.Machine, st.Status, req.To, trigger, st.Variables,
			)
			if len(d.Results) > 0 {
				err := events.Raise(ag, api.EventConditionsEvaluated,
					api.ConditionsEvaluatedEvent{
						Results: d.Results,
						From:    st.Status,
						To:      req.To,
						Passed:  d.Allowed,
					})
				if err != nil {
					return err
				}
			}

			if !d.Allowed {
				err := events.Raise(ag, api.EventTransitionRejected,
					api.TransitionRejectedEvent{
						From:    st.Status,
						To:      req.To,
						Trigger: trigger,
						Reason:  d.Reason,
					})
				if err != nil {
					return err
				}
				res = api.Failed(api.ErrCodeTransitionRejected, d.Reason)
				return nil
			}

			return events.Raise(ag, api.EventTransitionCompleted,
				api.TransitionCompletedEvent{
					Context:  req.Context,
					From:     st.Status,
					To:       req.To,
					Trigger:  d.Transition.Trigger,
					Version:  st.Version + 1,
					Terminal: st.Machine.IsTerminal(req.To),
				})
		},
	)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}

	slog.Info("State transitioned",
		log.StateID(id),
		log.Status(st.Status),
		slog.Int64("version", st.Version))

	e.scheduleCompaction(st)
	return api.OK(st), nil
}

// versionConflict raises a conflict audit record when the expected version
// does not match the record. A zero expected version skips the check
func versionConflict(
	st *api.WorkflowState, ag *StateAggregator, op string, expected int64,
) (*api.StateResult, error) {
	if expected == 0 || expected == st.Version {
		return nil, nil
	}

	err := events.Raise(ag, api.EventConflictDetected,
		api.ConflictDetectedEvent{
			Op:              op,
			ExpectedVersion: expected,
			ActualVersion:   st.Version,
		})
	if err != nil {
		return nil, err
	}
	return api.Failed(api.ErrCodeConflict, fmt.Sprintf(
		"version conflict: expected %d, found %d", expected, st.Version,
	)), nil
}

func requestTrigger(tc *api.TransitionContext) api.Trigger {
	if tc == nil {
		return ""
	}
	return tc.Trigger
}
