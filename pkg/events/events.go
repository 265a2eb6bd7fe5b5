// Package events defines the aggregates of the workflow state engine and
// the applier functions that fold their event streams into state
package events

import (
	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
)

func MakeAppliers[T any](
	app map[api.EventType]timebox.Applier[T],
) timebox.Appliers[T] {
	res := map[timebox.EventType]timebox.Applier[T]{}
	for et, fn := range app {
		res[timebox.EventType(et)] = fn
	}
	return res
}

func MakeDispatcher(
	handlers map[api.EventType]timebox.Handler,
) timebox.Handler {
	res := map[timebox.EventType]timebox.Handler{}
	for et, fn := range handlers {
		res[timebox.EventType(et)] = fn
	}
	return timebox.MakeDispatcher(res)
}

// auditOnly is an applier for events that record what happened without
// changing the folded state. Rejections and diagnostics land in the stream
// for observers and replay, nothing more
func auditOnly[T any](st T, _ *timebox.Event) T {
	return st
}
