package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/events"
	"github.com/kode4food/paisley/pkg/log"
)

const initialVersion = 1

// InitializeState creates a new workflow state record from the requested
// machine, variables, and metadata. The machine comes either inline or by
// catalog reference; the created record starts at the machine's initial
// status
func (e *Engine) InitializeState(
	ctx context.Context, req *api.InitializeRequest,
) (*api.StateResult, error) {
	machine, errs, err := e.resolveMachine(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(errs) == 0 && req.WorkflowID == "" {
		errs = append(errs, api.NewFieldError(
			"workflow_id", "workflow ID is required",
		))
	}
	if len(errs) == 0 {
		errs = machine.Validate()
	}
	if len(errs) == 0 {
		errs = e.validateConditions(machine)
	}
	if len(errs) > 0 {
		return api.Invalid(errs), nil
	}

	id := api.NewStateID()
	st, err := e.execState(ctx, id,
		func(st *api.WorkflowState, ag *StateAggregator) error {
			return events.Raise(ag, api.EventStateInitialized,
				api.StateInitializedEvent{
					Variables:  req.Variables,
					Metadata:   req.Metadata,
					Labels:     req.Labels,
					Machine:    machine,
					StateID:    id,
					WorkflowID: req.WorkflowID,
					MachineRef: req.MachineRef,
					Status:     machine.InitialState,
					Version:    initialVersion,
				})
		},
	)
	if err != nil {
		return nil, err
	}

	slog.Info("State initialized",
		log.StateID(id),
		log.WorkflowID(req.WorkflowID),
		log.Status(machine.InitialState))
	return api.OK(st), nil
}

func (e *Engine) resolveMachine(
	ctx context.Context, req *api.InitializeRequest,
) (*api.StateMachineConfig, []*api.FieldError, error) {
	switch {
	case req.Machine != nil && req.MachineRef != "":
		return nil, []*api.FieldError{api.NewFieldError(
			"machine", "machine and machine_ref are mutually exclusive",
		)}, nil

	case req.Machine != nil:
		return req.Machine, nil, nil

	case req.MachineRef != "":
		m, err := e.GetMachine(ctx, req.MachineRef)
		if errors.Is(err, ErrMachineNotFound) {
			return nil, []*api.FieldError{api.NewFieldError(
				"machine_ref", err.Error(),
			)}, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return m, nil, nil

	default:
		return nil, []*api.FieldError{api.NewFieldError(
			"machine", "a machine or machine_ref is required",
		)}, nil
	}
}
