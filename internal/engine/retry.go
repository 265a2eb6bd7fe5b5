package engine

import (
	"math"
	"time"

	"github.com/kode4food/paisley/pkg/api"
)

type backoffCalculator func(baseDelayMs int64, attempt int) int64

var backoffCalculators = map[api.BackoffType]backoffCalculator{
	api.BackoffTypeFixed: func(base int64, _ int) int64 {
		return base
	},
	api.BackoffTypeLinear: func(base int64, attempt int) int64 {
		return base * int64(attempt+1)
	},
	api.BackoffTypeExponential: func(base int64, attempt int) int64 {
		multiplier := math.Pow(2, float64(attempt))
		return int64(float64(base) * multiplier)
	},
}

// retryDelay computes the pause before replaying a failed iteration.
// Attempt counts completed tries, starting at zero for the first replay
func retryDelay(policy *api.RetryPolicy, attempt int) time.Duration {
	calculator, ok := backoffCalculators[policy.BackoffType]
	if !ok {
		calculator = backoffCalculators[api.BackoffTypeFixed]
	}

	delayMs := calculator(policy.DelayMs, attempt)
	if policy.MaxDelayMs > 0 && delayMs > policy.MaxDelayMs {
		delayMs = policy.MaxDelayMs
	}
	return time.Duration(delayMs) * time.Millisecond
}

// effectiveRetry returns the loop's retry policy, falling back to the
// engine-wide policy when the loop declares none. MaxAttempts counts
// total tries; anything below one try makes no sense
func (e *Engine) effectiveRetry(loop *api.LoopStep) *api.RetryPolicy {
	policy := loop.Retry
	if policy == nil {
		policy = &e.config.Retry
	}
	if policy.MaxAttempts < 1 {
		res := *policy
		res.MaxAttempts = 1
		return &res
	}
	return policy
}
