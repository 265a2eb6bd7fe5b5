// Package metrics records engine activity as Prometheus metrics. A
// Listener folds the event hub's stream into a private registry that the
// server exposes at /metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "paisley"

var (
	// transitionsTotal counts transition requests by outcome
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total state transition requests by outcome",
		},
		[]string{"outcome"}, // outcome: completed, rejected
	)

	// conflictsTotal counts optimistic concurrency rejections
	conflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_conflicts_total",
			Help:      "Total version conflicts rejected by the engine",
		},
	)

	// statesActive gauges the states the engine currently tracks as live
	statesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "states_active",
			Help:      "Number of workflow states currently active",
		},
	)

	// statesInitializedTotal counts freshly created state records
	statesInitializedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "states_initialized_total",
			Help:      "Total workflow state records created",
		},
	)

	// snapshotsTotal counts snapshot operations by kind
	snapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Total snapshot operations by kind",
		},
		[]string{"op"}, // op: created, restored, archived
	)

	// rollbacksTotal counts completed state rollbacks
	rollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Total completed state rollbacks",
		},
	)

	// compactionsTotal counts history compaction passes
	compactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_compactions_total",
			Help:      "Total history compaction passes",
		},
	)

	// compactedEntriesTotal counts transition records trimmed by compaction
	compactedEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_compacted_entries_total",
			Help:      "Total transition records removed by compaction",
		},
	)

	// loopsActive gauges loop executions currently running
	loopsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loops_active",
			Help:      "Number of loop executions currently running",
		},
	)

	// loopsTotal counts finished loops by termination reason
	loopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loops_total",
			Help:      "Total finished loop executions by termination reason",
		},
		[]string{"reason"},
	)

	// loopDuration is a histogram of total loop execution duration
	loopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loop_duration_seconds",
			Help:      "Histogram of total loop execution duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// iterationsTotal counts concluded loop iterations by status
	iterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_iterations_total",
			Help:      "Total concluded loop iterations by status",
		},
		[]string{"status"}, // status: success, error, skipped
	)

	// iterationDuration is a histogram of single iteration duration
	iterationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loop_iteration_duration_seconds",
			Help:      "Histogram of single loop iteration duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// retriesTotal counts iteration retry attempts
	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_retries_total",
			Help:      "Total loop iteration retry attempts",
		},
	)

	// safetyStopsTotal counts loops stopped by a safety bound
	safetyStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_safety_stops_total",
			Help:      "Total loops stopped by a safety bound",
		},
		[]string{"bound"}, // bound: max_iterations, timeout
	)

	allMetrics = []prometheus.Collector{
		transitionsTotal,
		conflictsTotal,
		statesActive,
		statesInitializedTotal,
		snapshotsTotal,
		rollbacksTotal,
		compactionsTotal,
		compactedEntriesTotal,
		loopsActive,
		loopsTotal,
		loopDuration,
		iterationsTotal,
		iterationDuration,
		retriesTotal,
		safetyStopsTotal,
	}
)

// RecordTransition records a transition request outcome
func RecordTransition(outcome string) {
	transitionsTotal.WithLabelValues(outcome).Inc()
}

// RecordConflict records an optimistic concurrency rejection
func RecordConflict() {
	conflictsTotal.Inc()
}

// RecordStateInitialized records a freshly created state record
func RecordStateInitialized() {
	statesInitializedTotal.Inc()
}

// RecordStateActivated records a state the engine now tracks as live
func RecordStateActivated() {
	statesActive.Inc()
}

// RecordStateDeactivated records a state that reached a terminal status
func RecordStateDeactivated() {
	statesActive.Dec()
}

// RecordSnapshot records a snapshot operation
func RecordSnapshot(op string) {
	snapshotsTotal.WithLabelValues(op).Inc()
}

// RecordRollback records a completed state rollback
func RecordRollback() {
	rollbacksTotal.Inc()
}

// RecordCompaction records a history compaction pass
func RecordCompaction(removed int) {
	compactionsTotal.Inc()
	if removed > 0 {
		compactedEntriesTotal.Add(float64(removed))
	}
}

// RecordLoopStarted records a loop execution beginning
func RecordLoopStarted() {
	loopsActive.Inc()
}

// RecordLoopCompleted records a finished loop
func RecordLoopCompleted(reason string, durationSeconds float64) {
	loopsActive.Dec()
	loopsTotal.WithLabelValues(reason).Inc()
	if durationSeconds > 0 {
		loopDuration.Observe(durationSeconds)
	}
}

// RecordIteration records a concluded loop iteration
func RecordIteration(status string, durationSeconds float64) {
	iterationsTotal.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		iterationDuration.Observe(durationSeconds)
	}
}

// RecordRetry records an iteration retry attempt
func RecordRetry() {
	retriesTotal.Inc()
}

// RecordSafetyStop records a loop stopped by a safety bound
func RecordSafetyStop(bound string) {
	safetyStopsTotal.WithLabelValues(bound).Inc()
}
