package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/log"
)

// plan resolves the for-loop collection from the scope. While-loops have
// nothing to plan
func (x *loopExecution) plan() ([]any, int, *api.FieldError) {
	if x.loop.Type != api.LoopTypeFor {
		return nil, 0, nil
	}
	name := api.Name(x.loop.Iterable)
	if _, ok := x.scope[name]; ok {
		items := x.scope.GetSlice(name)
		if items == nil {
			return nil, 0, api.NewFieldError("iterable", fmt.Sprintf(
				"%q is not a collection", x.loop.Iterable,
			))
		}
		return items, len(items), nil
	}
	val, ok := x.nestedIterable()
	if !ok {
		return nil, 0, api.NewFieldError("iterable", fmt.Sprintf(
			"%q is not bound in scope", x.loop.Iterable,
		))
	}
	items, ok := val.([]any)
	if !ok {
		return nil, 0, api.NewFieldError("iterable", fmt.Sprintf(
			"%q is not a collection", x.loop.Iterable,
		))
	}
	return items, len(items), nil
}

// nestedIterable walks the iterable reference into nested scope values as
// a gjson path. Plain names never reach this; they bind directly
func (x *loopExecution) nestedIterable() (any, bool) {
	encoded, err := json.Marshal(x.scope)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(encoded, x.loop.Iterable)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// bindings overlays the iterator variables onto the current scope. The
// result is a fresh map, so body outputs never leak in through it
func (x *loopExecution) bindings(items []any, index int) api.Variables {
	res := x.scope.Set(x.loop.IndexBinding(), index)
	if x.loop.Type == api.LoopTypeFor {
		res = res.Set(x.loop.ItemBinding(), items[index])
	}
	return res
}

func (x *loopExecution) maxIterations() int {
	if x.loop.MaxIterations > 0 {
		return x.loop.MaxIterations
	}
	return x.engine.config.Loop.MaxIterations
}

func (x *loopExecution) timeout() time.Duration {
	ms := x.loop.TimeoutMs
	if ms <= 0 {
		ms = x.engine.config.Loop.TimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (e *Engine) stepTimeout() time.Duration {
	return time.Duration(e.config.StepTimeout) * time.Millisecond
}

func (x *loopExecution) evaluateCondition(
	cond *api.Condition, vars api.Variables,
) (bool, error) {
	start := time.Now()
	ok, err := x.engine.scripts.EvaluateCondition(cond, vars)
	x.condNs += time.Since(start).Nanoseconds()
	return ok, err
}

// evaluateControl handles break and continue conditions. An absent
// condition never fires
func (x *loopExecution) evaluateControl(
	cond *api.Condition, vars api.Variables,
) (bool, error) {
	if cond == nil || cond.Expression == "" {
		return false, nil
	}
	return x.evaluateCondition(cond, vars)
}

func (x *loopExecution) record(
	ctx context.Context, res *api.IterationResult,
) error {
	x.results = append(x.results, res)
	return x.raiseLoopEvent(
		ctx, api.EventLoopIterationDone, api.IterationCompletedEvent{
			Result: res,
		},
	)
}

func (x *loopExecution) recordSkip(
	ctx context.Context, index int, bindings api.Variables,
) error {
	if err := x.raiseLoopEvent(
		ctx, api.EventLoopContinueTrig, api.ContinueTriggeredEvent{
			Condition: x.loop.ContinueCondition.Expression,
			Index:     index,
		},
	); err != nil {
		return err
	}
	now := x.engine.clock()
	return x.record(ctx, &api.IterationResult{
		StartedAt:  now,
		FinishedAt: now,
		Bindings:   bindings,
		Index:      index,
		Skipped:    true,
	})
}

func (x *loopExecution) raiseStarted(
	ctx context.Context, planned int,
) error {
	return x.raiseLoopEvent(
		ctx, api.EventLoopStarted, api.LoopStartedEvent{
			Variables:     x.scope,
			Loop:          x.loop,
			LoopID:        x.id,
			StateID:       x.stateID,
			Planned:       planned,
			MaxIterations: x.maxIter,
		},
	)
}

func (x *loopExecution) raiseBreak(ctx context.Context, index int) error {
	return x.raiseLoopEvent(
		ctx, api.EventLoopBreakTriggered, api.BreakTriggeredEvent{
			Condition: x.loop.BreakCondition.Expression,
			Index:     index,
		},
	)
}

// raiseSafety records a safety stop. Failing to record it is logged and
// swallowed; the completion event still carries the outcome
func (x *loopExecution) raiseSafety(
	ctx context.Context, bound api.TerminationReason, iterations int,
) {
	limit := 0
	if bound == api.TerminationMaxIterations {
		limit = x.maxIter
	}
	err := x.raiseLoopEvent(
		ctx, api.EventLoopSafetyTriggered, api.LoopSafetyTriggeredEvent{
			Bound:      string(bound),
			Iterations: iterations,
			Limit:      limit,
			ElapsedMs:  x.engine.clock().Sub(x.startedAt).Milliseconds(),
		},
	)
	if err != nil {
		slog.Error("Failed to record loop safety stop",
			log.LoopID(x.id),
			log.Error(err))
	}
	slog.Warn("Loop stopped by safety bound",
		log.LoopID(x.id),
		slog.String("bound", string(bound)),
		slog.Int("iterations", iterations))
}

func (x *loopExecution) raiseLoopEvent(
	ctx context.Context, typ api.EventType, data any,
) error {
	_, err := x.engine.execLoop(ctx, x.id,
		func(_ *api.LoopState, ag *LoopAggregator) error {
			return events.Raise(ag, typ, data)
		},
	)
	return err
}

func (x *loopExecution) metrics() *api.LoopMetrics {
	m := &api.LoopMetrics{
		Iterations:  len(x.results),
		Elapsed:     x.engine.clock().Sub(x.startedAt),
		ConditionNs: x.condNs,
	}
	var total time.Duration
	for _, r := range x.results {
		switch {
		case r.Skipped:
			m.Skipped++
			continue
		case r.Success:
			m.Succeeded++
		default:
			m.Failed++
		}
		if r.Attempts > 1 {
			m.Retries += r.Attempts - 1
		}
		dur := r.FinishedAt.Sub(r.StartedAt)
		if dur > m.PerIterMax {
			m.PerIterMax = dur
		}
		if m.Completed() == 1 || dur < m.PerIterMin {
			m.PerIterMin = dur
		}
		total += dur
	}
	if n := m.Completed(); n > 0 {
		m.PerIterAvg = total / time.Duration(n)
		if secs := m.Elapsed.Seconds(); secs > 0 {
			m.Throughput = float64(n) / secs
		}
	}
	return m
}
