package engine

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/kode4food/paisley/pkg/api"
)

// runIteration executes the loop body for one iteration, replaying it from
// the same bindings when the retry policy permits. Outputs merge into the
// loop scope only after the iteration succeeds
func (x *loopExecution) runIteration(
	ctx context.Context, index int, bindings api.Variables,
) *api.IterationResult {
	res := &api.IterationResult{
		StartedAt: x.engine.clock(),
		Bindings:  bindings,
		Index:     index,
	}

	policy := x.engine.effectiveRetry(x.loop)
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := x.waitRetry(
				ctx, policy, attempt, index, lastErr,
			); err != nil {
				lastErr = err
				break
			}
		}
		res.Attempts = attempt + 1

		output, err := x.runBody(ctx, bindings)
		if err == nil {
			res.Output = output
			res.Success = true
			x.scope = x.scope.Apply(output)
			break
		}
		lastErr = err
	}

	if !res.Success && lastErr != nil {
		res.Error = lastErr.Error()
	}
	res.FinishedAt = x.engine.clock()
	return res
}

// waitRetry records the upcoming replay and sleeps out the backoff delay.
// The wait never extends past the loop deadline
func (x *loopExecution) waitRetry(
	ctx context.Context, policy *api.RetryPolicy, prior, index int,
	cause error,
) error {
	delay := retryDelay(policy, prior-1)
	if err := x.raiseLoopEvent(
		ctx, api.EventLoopIterationRetried, api.IterationRetriedEvent{
			Error:   cause.Error(),
			Index:   index,
			Attempt: prior + 1,
			DelayMs: delay.Milliseconds(),
		},
	); err != nil {
		return err
	}

	remaining := x.deadline.Sub(x.engine.clock())
	if remaining <= 0 {
		return context.DeadlineExceeded
	}
	if delay > remaining {
		delay = remaining
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// runBody executes the body steps in order against the iteration bindings.
// Each step sees the outputs of the steps before it; the merged outputs
// come back only when every step succeeds
func (x *loopExecution) runBody(
	ctx context.Context, bindings api.Variables,
) (api.Variables, error) {
	scope := bindings
	outputs := api.Variables{}
	for _, step := range x.loop.Body {
		out, err := x.runStep(ctx, step, scope)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.ID, err)
		}
		scope = scope.Apply(out)
		outputs = outputs.Apply(out)
	}
	return outputs, nil
}

func (x *loopExecution) runStep(
	ctx context.Context, step *api.Step, scope api.Variables,
) (api.Variables, error) {
	switch step.Type {
	case api.StepTypeTask:
		return x.runTask(ctx, step, scope)
	case api.StepTypeScript:
		return x.engine.scripts.ExecuteScript(step.Script, scope)
	case api.StepTypeLoop:
		return x.runNested(ctx, step.Loop, scope)
	}
	return nil, fmt.Errorf("unsupported step type: %s", step.Type)
}

func (x *loopExecution) runTask(
	ctx context.Context, step *api.Step, scope api.Variables,
) (api.Variables, error) {
	tctx, cancel := context.WithTimeout(ctx, x.engine.stepTimeout())
	defer cancel()
	return x.engine.stepExec.Invoke(tctx, step, scope, x.stepMeta(step))
}

func (x *loopExecution) stepMeta(step *api.Step) api.Metadata {
	meta := api.Metadata{
		api.MetaLoopID:    string(x.id),
		api.MetaStepID:    string(step.ID),
		api.MetaIteration: x.index,
	}
	if x.stateID != "" {
		meta[api.MetaStateID] = string(x.stateID)
	}
	if x.parent != "" {
		meta[api.MetaParentLoopID] = string(x.parent)
	}
	return meta
}

// runNested recurses into a child loop whose scope seeds from the parent
// iteration. The child keeps its own execution record; only the variables
// it changed flow back into the parent
func (x *loopExecution) runNested(
	ctx context.Context, loop *api.LoopStep, scope api.Variables,
) (api.Variables, error) {
	id := api.NewLoopID()
	if !x.engine.trackLoop(id) {
		return nil, fmt.Errorf("%w: %s", ErrLoopExists, id)
	}
	defer x.engine.untrackLoop(id)

	child := newLoopExecution(x.engine, id, loop, scope.Clone(), x.stateID)
	child.parent = x.id
	child.outerEnd = x.deadline

	res, err := child.execute(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf(
			"nested loop %s: %s", id, res.Errors[0].Message,
		)
	}
	if !res.Success {
		if res.Error != "" {
			return nil, fmt.Errorf("nested loop %s: %s", id, res.Error)
		}
		return nil, fmt.Errorf(
			"nested loop %s: stopped by %s", id, res.Reason,
		)
	}
	return changedVars(scope, res.Variables), nil
}

// changedVars extracts the names whose values differ between two scopes,
// including names only the second one binds
func changedVars(before, after api.Variables) api.Variables {
	res := api.Variables{}
	for name, val := range after {
		prev, ok := before[name]
		if !ok || !reflect.DeepEqual(prev, val) {
			res[name] = val
		}
	}
	return res
}
