package helpers

import (
	"github.com/google/uuid"

	"github.com/kode4food/paisley/pkg/api"
)

// NewTestMachine creates a state machine configuration with a pending,
// active, completed, and failed lifecycle. Completed is terminal
func NewTestMachine() *api.StateMachineConfig {
	return &api.StateMachineConfig{
		ID:           api.MachineID("test-machine-" + uuid.New().String()[:8]),
		Name:         "Test Machine",
		InitialState: "pending",
		States: map[api.Status][]*api.Transition{
			"pending": {
				{To: "active", Trigger: "start"},
			},
			"active": {
				{To: "completed", Trigger: "finish"},
				{To: "failed", Trigger: "fail"},
			},
			"completed": {},
			"failed": {
				{To: "active", Trigger: "retry"},
			},
		},
	}
}

// NewGuardedMachine creates a test machine whose finish transition is gated
// by the given condition expression
func NewGuardedMachine(expression string) *api.StateMachineConfig {
	m := NewTestMachine()
	m.States["active"] = []*api.Transition{
		{
			To:      "completed",
			Trigger: "finish",
			Conditions: []*api.Condition{
				{Expression: expression},
			},
		},
		{To: "failed", Trigger: "fail"},
	}
	return m
}
