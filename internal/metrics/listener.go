package metrics

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kode4food/caravan/topic"
	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/log"
)

// Listener folds the event hub's stream into the Prometheus collectors.
// Observation is one-way; nothing here can affect the operations that
// emitted the events
type Listener struct {
	hub      timebox.EventHub
	consumer topic.Consumer[*timebox.Event]
	ctx      context.Context
	cancel   context.CancelFunc
}

const (
	outcomeCompleted = "completed"
	outcomeRejected  = "rejected"

	statusSuccess = "success"
	statusError   = "error"
	statusSkipped = "skipped"
)

// NewListener creates a metrics listener attached to the event hub
func NewListener(hub timebox.EventHub) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		hub:      hub,
		consumer: hub.NewConsumer(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins consuming events from the hub
func (l *Listener) Start() {
	go l.eventLoop()
}

// Stop shuts the listener down
func (l *Listener) Stop() {
	l.cancel()
	l.consumer.Close()
}

func (l *Listener) eventLoop() {
	for {
		select {
		case <-l.ctx.Done():
			return

		case ev, ok := <-l.consumer.Receive():
			if !ok {
				return
			}
			l.handle(ev)
		}
	}
}

func (l *Listener) handle(ev *timebox.Event) {
	switch api.EventType(ev.Type) {
	case api.EventStateInitialized:
		RecordStateInitialized()
	case api.EventTransitionCompleted:
		RecordTransition(outcomeCompleted)
	case api.EventTransitionRejected:
		RecordTransition(outcomeRejected)
	case api.EventConflictDetected:
		RecordConflict()
	case api.EventStateActivated:
		RecordStateActivated()
	case api.EventStateDeactivated:
		RecordStateDeactivated()
	case api.EventSnapshotCreated:
		RecordSnapshot("created")
	case api.EventSnapshotRestored:
		RecordSnapshot("restored")
	case api.EventSnapshotArchived:
		RecordSnapshot("archived")
	case api.EventRollbackCompleted:
		RecordRollback()
	case api.EventHistoryCompacted:
		l.handleHistoryCompacted(ev)
	case api.EventLoopStarted:
		RecordLoopStarted()
	case api.EventLoopCompleted:
		l.handleLoopCompleted(ev)
	case api.EventLoopIterationDone:
		l.handleIterationDone(ev)
	case api.EventLoopIterationRetried:
		RecordRetry()
	case api.EventLoopSafetyTriggered:
		l.handleSafetyTriggered(ev)
	default:
		// not every event carries a metric
	}
}

func (l *Listener) handleHistoryCompacted(ev *timebox.Event) {
	var data api.HistoryCompactedEvent
	if !l.decode(ev, &data) {
		return
	}
	RecordCompaction(data.Removed)
}

func (l *Listener) handleLoopCompleted(ev *timebox.Event) {
	var data api.LoopCompletedEvent
	if !l.decode(ev, &data) {
		return
	}
	reason := string(data.Reason)
	if reason == "" {
		reason = outcomeCompleted
	}
	var seconds float64
	if data.Metrics != nil {
		seconds = data.Metrics.Elapsed.Seconds()
	}
	RecordLoopCompleted(reason, seconds)
}

func (l *Listener) handleIterationDone(ev *timebox.Event) {
	var data api.IterationCompletedEvent
	if !l.decode(ev, &data) {
		return
	}
	res := data.Result
	if res == nil {
		return
	}

	status := statusError
	switch {
	case res.Skipped:
		status = statusSkipped
	case res.Success:
		status = statusSuccess
	}
	RecordIteration(status, res.FinishedAt.Sub(res.StartedAt).Seconds())
}

func (l *Listener) handleSafetyTriggered(ev *timebox.Event) {
	var data api.LoopSafetyTriggeredEvent
	if !l.decode(ev, &data) {
		return
	}
	RecordSafetyStop(data.Bound)
}

func (l *Listener) decode(ev *timebox.Event, into any) bool {
	if err := json.Unmarshal(ev.Data, into); err != nil {
		slog.Error("Failed to unmarshal event", log.Error(err))
		return false
	}
	return true
}
