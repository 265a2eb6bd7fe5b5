package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kode4food/caravan/topic"
	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/internal/archive"
	"github.com/kode4food/paisley/internal/config"
	"github.com/kode4food/paisley/internal/engine/event"
	"github.com/kode4food/paisley/internal/engine/scheduler"
	"github.com/kode4food/paisley/internal/engine/script"
	"github.com/kode4food/paisley/internal/executor"
	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
)

type (
	// Engine is the core workflow state engine. It owns the machine
	// catalog, the versioned workflow state records, and the loop
	// executions layered on top of them
	Engine struct {
		stepExec   executor.StepExecutor
		ctx        context.Context
		cancel     context.CancelFunc
		consumer   EventConsumer
		engineExec *EngineExecutor
		stateExec  *StateExecutor
		loopExec   *LoopExecutor
		config     *config.Config
		scripts    *script.Registry
		validator  *TransitionValidator
		scheduler  *scheduler.Scheduler
		queue      *event.Queue
		archive    *archive.Store
		clock      scheduler.Clock
		handler    timebox.Handler
		loops      sync.Map // map[api.LoopID]*loopRun
		wg         sync.WaitGroup
	}

	// Dependencies carries the stores and services the engine is built
	// on. Archive is optional; the remaining fields are required
	Dependencies struct {
		EngineStore *timebox.Store
		StateStore  *timebox.Store
		StepExec    executor.StepExecutor
		Hub         timebox.EventHub
		Archive     *archive.Store
	}

	// EventConsumer consumes events from the event hub
	EventConsumer = topic.Consumer[*timebox.Event]

	// EngineExecutor manages engine state persistence and event sourcing
	EngineExecutor = timebox.Executor[*api.EngineState]

	// EngineAggregator aggregates engine state from events
	EngineAggregator = timebox.Aggregator[*api.EngineState]

	// StateExecutor manages workflow state persistence and event sourcing
	StateExecutor = timebox.Executor[*api.WorkflowState]

	// StateAggregator aggregates workflow state from events
	StateAggregator = timebox.Aggregator[*api.WorkflowState]

	// LoopExecutor manages loop execution persistence and event sourcing
	LoopExecutor = timebox.Executor[*api.LoopState]

	// LoopAggregator aggregates loop execution state from events
	LoopAggregator = timebox.Aggregator[*api.LoopState]
)

const eventBatchSize = 32

var (
	ErrShutdownTimeout   = errors.New("shutdown timeout exceeded")
	ErrStateNotFound     = errors.New("state not found")
	ErrMachineNotFound   = errors.New("machine not found")
	ErrLoopNotFound      = errors.New("loop not found")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrLoopExists        = errors.New("loop execution exists")
	ErrRecoverStates     = errors.New("failed to recover states")
	ErrMissingDependency = errors.New("missing engine dependency")
)

// New creates a workflow state engine from the provided configuration and
// dependencies
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		engineExec: timebox.NewExecutor(
			deps.EngineStore, events.NewEngineState, events.EngineAppliers,
		),
		stateExec: timebox.NewExecutor(
			deps.StateStore, events.NewWorkflowState, events.StateAppliers,
		),
		loopExec: timebox.NewExecutor(
			deps.StateStore, events.NewLoopState, events.LoopAppliers,
		),
		stepExec: deps.StepExec,
		archive:  deps.Archive,
		config:   cfg,
		ctx:      ctx,
		cancel:   cancel,
		consumer: deps.Hub.NewConsumer(),
		scripts:  script.NewRegistry(),
		clock:    time.Now,
	}
	e.validator = NewTransitionValidator(e.scripts)
	e.scheduler = scheduler.New(e.clock, scheduler.NewTimer)
	e.queue = event.NewQueue(e.handleEventBatch, eventBatchSize)
	e.handler = e.createEventHandler()
	return e, nil
}

func (d Dependencies) validate() error {
	switch {
	case d.EngineStore == nil:
		return fmt.Errorf("%w: engine store", ErrMissingDependency)
	case d.StateStore == nil:
		return fmt.Errorf("%w: state store", ErrMissingDependency)
	case d.StepExec == nil:
		return fmt.Errorf("%w: step executor", ErrMissingDependency)
	case d.Hub == nil:
		return fmt.Errorf("%w: event hub", ErrMissingDependency)
	}
	return nil
}

func (e *Engine) createEventHandler() timebox.Handler {
	return events.MakeDispatcher(map[api.EventType]timebox.Handler{
		api.EventStateInitialized: timebox.MakeHandler(
			e.handleStateInitialized,
		),
		api.EventTransitionCompleted: timebox.MakeHandler(
			e.handleTransitionCompleted,
		),
		api.EventSnapshotRestored: timebox.MakeHandler(
			e.handleSnapshotRestored,
		),
		api.EventRollbackCompleted: timebox.MakeHandler(
			e.handleRollbackCompleted,
		),
	})
}

func (e *Engine) eventLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return

		case ev, ok := <-e.consumer.Receive():
			if !ok {
				return
			}
			e.routeEvent(ev)
		}
	}
}

// routeEvent feeds workflow state events into the bookkeeping queue. The
// queue serializes them so activity and digest folds observe mutations in
// publication order
func (e *Engine) routeEvent(ev *timebox.Event) {
	if !events.IsStateEvent(ev) {
		return
	}
	e.queue.Enqueue(ev)
}

func (e *Engine) handleEventBatch(batch []*timebox.Event) error {
	for _, ev := range batch {
		if err := e.handler(ev); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleStateInitialized(
	ev *timebox.Event, data api.StateInitializedEvent,
) error {
	id, ok := events.ParseStateID(ev)
	if !ok {
		return nil
	}
	return e.raiseEngineEvent(context.Background(), api.EventStateActivated,
		api.StateActivatedEvent{
			Labels:     data.Labels,
			StateID:    id,
			WorkflowID: data.WorkflowID,
			Status:     data.Status,
		})
}

func (e *Engine) handleTransitionCompleted(
	ev *timebox.Event, data api.TransitionCompletedEvent,
) error {
	id, ok := events.ParseStateID(ev)
	if !ok {
		return nil
	}
	return e.trackStateActivity(id, data.To, data.Terminal)
}

func (e *Engine) handleSnapshotRestored(
	ev *timebox.Event, data api.SnapshotRestoredEvent,
) error {
	id, ok := events.ParseStateID(ev)
	if !ok {
		return nil
	}
	return e.trackStateActivity(id, data.Status, data.Terminal)
}

func (e *Engine) handleRollbackCompleted(
	ev *timebox.Event, data api.RollbackCompletedEvent,
) error {
	id, ok := events.ParseStateID(ev)
	if !ok {
		return nil
	}
	return e.trackStateActivity(id, data.Status, data.Terminal)
}

// trackStateActivity folds a status change into the engine's activity and
// digest records. States that left a terminal status are reactivated;
// states that reached one become archive candidates
func (e *Engine) trackStateActivity(
	id api.StateID, status api.Status, terminal bool,
) error {
	cmd := func(st *api.EngineState, ag *EngineAggregator) error {
		if !st.IsActive(id) && !terminal {
			err := events.Raise(ag, api.EventStateActivated,
				api.StateActivatedEvent{StateID: id, Status: status})
			if err != nil {
				return err
			}
		}

		err := events.Raise(ag, api.EventStateDigestUpdated,
			api.StateDigestUpdatedEvent{
				StateID:  id,
				Status:   status,
				Terminal: terminal,
			})
		if err != nil {
			return err
		}

		if terminal && st.IsActive(id) {
			return events.Raise(ag, api.EventStateDeactivated,
				api.StateDeactivatedEvent{StateID: id})
		}
		return nil
	}
	_, err := e.engineExec.Exec(context.Background(), events.EngineKey, cmd)
	return err
}
