package builder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/paisley/pkg/api"
	"github.com/kode4food/paisley/pkg/builder"
)

func TestMachineBuilder(t *testing.T) {
	m := builder.NewMachine("orders").
		WithName("Order Lifecycle").
		WithInitialState("pending").
		WithTransition("pending", "active", "start").
		WithTransition("active", "completed", "finish").
		WithTransition("active", "failed", "fail").
		Build()

	assert.Equal(t, api.MachineID("orders"), m.ID)
	assert.Equal(t, api.Name("Order Lifecycle"), m.Name)
	assert.Equal(t, api.Status("pending"), m.InitialState)

	require.Len(t, m.States["active"], 2)
	assert.Equal(t, api.Status("completed"), m.States["active"][0].To)
	assert.Equal(t, api.Trigger("finish"), m.States["active"][0].Trigger)

	// target statuses are registered even without outbound transitions
	assert.Contains(t, m.States, api.Status("completed"))
	assert.Contains(t, m.States, api.Status("failed"))
	assert.Empty(t, m.States["completed"])
}

func TestMachineBuilderValid(t *testing.T) {
	m := builder.NewMachine("orders").
		WithInitialState("pending").
		WithTransition("pending", "done", "finish").
		Build()

	assert.Empty(t, m.Validate())
}

func TestMachineGuardedTransition(t *testing.T) {
	m := builder.NewMachine("gated").
		WithInitialState("pending").
		WithGuardedTransition(
			"pending", "active", "start", "amount > 0", "approved",
		).
		Build()

	require.Len(t, m.States["pending"], 1)
	conds := m.States["pending"][0].Conditions
	require.Len(t, conds, 2)
	assert.Equal(t, "amount > 0", conds[0].Expression)
	assert.Equal(t, "approved", conds[1].Expression)
}

func TestMachineBuilderImmutable(t *testing.T) {
	base := builder.NewMachine("base").WithInitialState("pending")
	withMore := base.WithTransition("pending", "active", "start")

	assert.Empty(t, base.Build().States["pending"])
	assert.Len(t, withMore.Build().States["pending"], 1)
}

func TestMachineExplicitState(t *testing.T) {
	m := builder.NewMachine("islands").
		WithInitialState("pending").
		WithState("parked").
		Build()

	assert.Contains(t, m.States, api.Status("parked"))
}
