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

type (
	// loopExecution carries one loop run from start to finish. Nested
	// loops recurse into child executions that seed from the parent's
	// iteration scope
	loopExecution struct {
		engine    *Engine
		loop      *api.LoopStep
		scope     api.Variables
		results   []*api.IterationResult
		startedAt time.Time
		deadline  time.Time
		outerEnd  time.Time
		id        api.LoopID
		stateID   api.StateID
		parent    api.LoopID
		maxIter   int
		index     int
		condNs    int64
	}

	// loopRun marks a loop execution live in this process
	loopRun struct {
		StartedAt time.Time
	}

	loopOutcome struct {
		err     error
		reason  api.TerminationReason
		success bool
	}
)

// ExecuteLoop runs a loop to completion and reports the outcome. With a
// StateID the scope starts from the state's variables overlaid with the
// request variables, and scope changes flow back into the state when the
// loop succeeds
func (e *Engine) ExecuteLoop(
	ctx context.Context, req *api.LoopRequest,
) (*api.LoopExecutionResult, error) {
	if req.Loop == nil {
		return invalidLoop("", []*api.FieldError{api.NewFieldError(
			"loop", "loop configuration is required",
		)}), nil
	}
	if errs := req.Loop.Validate(); len(errs) > 0 {
		return invalidLoop(req.Loop.ID, errs), nil
	}

	scope, base, err := e.loopScope(ctx, req)
	if err != nil {
		return nil, err
	}

	id := req.Loop.ID
	if id == "" {
		id = api.NewLoopID()
	} else {
		existing, err := e.foldLoop(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing.ID != "" && !existing.IsFinished() {
			return nil, fmt.Errorf("%w: %s", ErrLoopExists, id)
		}
	}

	if !e.trackLoop(id) {
		return nil, fmt.Errorf("%w: %s", ErrLoopExists, id)
	}
	defer e.untrackLoop(id)

	e.wg.Add(1)
	defer e.wg.Done()

	run := newLoopExecution(e, id, req.Loop, scope, req.StateID)
	res, err := run.execute(ctx)
	if err != nil {
		return nil, err
	}

	if req.StateID != "" && res.Success {
		if err := e.applyLoopVariables(
			ctx, req.StateID, base, res.Variables,
		); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func newLoopExecution(
	e *Engine, id api.LoopID, loop *api.LoopStep, scope api.Variables,
	stateID api.StateID,
) *loopExecution {
	return &loopExecution{
		engine:  e,
		loop:    loop,
		scope:   scope,
		id:      id,
		stateID: stateID,
	}
}

func (x *loopExecution) execute(
	ctx context.Context,
) (*api.LoopExecutionResult, error) {
	x.startedAt = x.engine.clock()
	x.maxIter = x.maxIterations()
	x.deadline = x.startedAt.Add(x.timeout())
	if !x.outerEnd.IsZero() && x.outerEnd.Before(x.deadline) {
		x.deadline = x.outerEnd
	}

	items, planned, fe := x.plan()
	if fe != nil {
		return invalidLoop(x.id, []*api.FieldError{fe}), nil
	}

	if err := x.raiseStarted(ctx, planned); err != nil {
		return nil, err
	}

	slog.Info("Loop started",
		log.LoopID(x.id),
		slog.String("loop_type", string(x.loop.Type)),
		slog.Int("planned", planned))

	return x.finish(x.run(ctx, items))
}

// run drives the iterations. Safety bounds are checked ahead of the loop
// condition so a runaway condition cannot dodge them
func (x *loopExecution) run(ctx context.Context, items []any) loopOutcome {
	for index := 0; ; index++ {
		x.index = index

		if x.loop.Type == api.LoopTypeFor && index >= len(items) {
			return loopOutcome{success: true}
		}
		if index >= x.maxIter {
			x.raiseSafety(ctx, api.TerminationMaxIterations, index)
			return loopOutcome{reason: api.TerminationMaxIterations}
		}
		if !x.engine.clock().Before(x.deadline) {
			x.raiseSafety(ctx, api.TerminationTimeout, index)
			return loopOutcome{reason: api.TerminationTimeout}
		}
		if err := ctx.Err(); err != nil {
			return loopOutcome{reason: api.TerminationError, err: err}
		}

		bindings := x.bindings(items, index)

		if x.loop.Type == api.LoopTypeWhile {
			ok, err := x.evaluateCondition(x.loop.Condition, bindings)
			if err != nil {
				return loopOutcome{reason: api.TerminationError, err: err}
			}
			if !ok {
				return loopOutcome{success: true}
			}
		}

		skip, err := x.evaluateControl(x.loop.ContinueCondition, bindings)
		if err != nil {
			return loopOutcome{reason: api.TerminationError, err: err}
		}
		if skip {
			if err := x.recordSkip(ctx, index, bindings); err != nil {
				return loopOutcome{reason: api.TerminationError, err: err}
			}
			continue
		}

		res := x.runIteration(ctx, index, bindings)
		if err := x.record(ctx, res); err != nil {
			return loopOutcome{reason: api.TerminationError, err: err}
		}
		if !res.Success {
			if !x.engine.clock().Before(x.deadline) {
				x.raiseSafety(ctx, api.TerminationTimeout, index+1)
				return loopOutcome{reason: api.TerminationTimeout}
			}
			return loopOutcome{
				reason: api.TerminationError,
				err:    fmt.Errorf("iteration %d: %s", index, res.Error),
			}
		}

		brk, err := x.evaluateControl(
			x.loop.BreakCondition, x.bindings(items, index),
		)
		if err != nil {
			return loopOutcome{reason: api.TerminationError, err: err}
		}
		if brk {
			if err := x.raiseBreak(ctx, index); err != nil {
				return loopOutcome{reason: api.TerminationError, err: err}
			}
			return loopOutcome{reason: api.TerminationBreak, success: true}
		}
	}
}

// finish records the loop's completion. The terminal event is raised on a
// fresh context so an expired request cannot leave the record unfinished
func (x *loopExecution) finish(
	o loopOutcome,
) (*api.LoopExecutionResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev := api.LoopCompletedEvent{
		Variables: x.scope,
		Metrics:   x.metrics(),
		Reason:    o.reason,
		Success:   o.success,
	}
	if o.err != nil {
		ev.Error = o.err.Error()
	}
	switch o.reason {
	case api.TerminationBreak:
		ev.EarlyTermination = true
	case api.TerminationMaxIterations:
		ev.MaxIterationsReached = true
		ev.PartialResults = len(x.results) > 0
	case api.TerminationTimeout:
		ev.PartialResults = len(x.results) > 0
	}

	st, err := x.engine.execLoop(ctx, x.id,
		func(_ *api.LoopState, ag *LoopAggregator) error {
			return events.Raise(ag, api.EventLoopCompleted, ev)
		},
	)
	if err != nil {
		return nil, err
	}

	slog.Info("Loop finished",
		log.LoopID(x.id),
		slog.Bool("success", o.success),
		slog.String("reason", string(o.reason)),
		slog.Int("iterations", len(x.results)))
	return st.Result(), nil
}

func (e *Engine) loopScope(
	ctx context.Context, req *api.LoopRequest,
) (api.Variables, api.Variables, error) {
	if req.StateID == "" {
		return req.Variables.Clone(), nil, nil
	}
	st, err := e.GetState(ctx, req.StateID)
	if err != nil {
		return nil, nil, err
	}
	return st.Variables.Apply(req.Variables).Clone(), st.Variables, nil
}

// applyLoopVariables folds the loop's variable changes back into its
// state record through the regular update path
func (e *Engine) applyLoopVariables(
	ctx context.Context, id api.StateID, before, after api.Variables,
) error {
	updates := changedVars(before, after)
	if len(updates) == 0 {
		return nil
	}
	_, err := e.UpdateVariables(ctx, id, &api.UpdateVariablesRequest{
		Variables: updates,
	})
	return err
}

func (e *Engine) foldLoop(
	ctx context.Context, id api.LoopID,
) (*api.LoopState, error) {
	return e.execLoop(ctx, id,
		func(_ *api.LoopState, _ *LoopAggregator) error {
			return nil
		},
	)
}

func (e *Engine) trackLoop(id api.LoopID) bool {
	_, loaded := e.loops.LoadOrStore(id, &loopRun{StartedAt: e.clock()})
	return !loaded
}

func (e *Engine) untrackLoop(id api.LoopID) {
	e.loops.Delete(id)
}

func invalidLoop(
	id api.LoopID, errs []*api.FieldError,
) *api.LoopExecutionResult {
	return &api.LoopExecutionResult{
		LoopID: id,
		Error:  "loop configuration is invalid",
		Errors: errs,
	}
}
