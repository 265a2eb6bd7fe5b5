package events

import (
	"github.com/kode4food/timebox"

	"github.com/kode4food/paisley/pkg/api"
)

// EventFilter is a predicate over hub events used by observers to select
// the subset of the stream they care about
type EventFilter func(*timebox.Event) bool

// FilterEvents matches events whose type is one of the given types
func FilterEvents(eventTypes ...timebox.EventType) EventFilter {
	lookup := map[timebox.EventType]bool{}
	for _, et := range eventTypes {
		lookup[et] = true
	}
	return func(ev *timebox.Event) bool {
		return lookup[ev.Type]
	}
}

// FilterTypes matches events whose type is one of the given API types
func FilterTypes(eventTypes ...api.EventType) EventFilter {
	res := make([]timebox.EventType, len(eventTypes))
	for i, et := range eventTypes {
		res[i] = timebox.EventType(et)
	}
	return FilterEvents(res...)
}

// FilterAggregate matches events whose aggregate ID starts with the given
// prefix. A one-element prefix selects every aggregate of that kind
func FilterAggregate(prefix timebox.AggregateID) EventFilter {
	return func(ev *timebox.Event) bool {
		if len(ev.AggregateID) < len(prefix) {
			return false
		}
		for i, p := range prefix {
			if ev.AggregateID[i] != p {
				return false
			}
		}
		return true
	}
}

// FilterState matches events belonging to a single workflow state
func FilterState(id api.StateID) EventFilter {
	return FilterAggregate(StateKey(id))
}

// FilterLoop matches events belonging to a single loop execution
func FilterLoop(id api.LoopID) EventFilter {
	return FilterAggregate(LoopKey(id))
}

// AndFilters composes filters and matches when all of them match
func AndFilters(filters ...EventFilter) EventFilter {
	return func(ev *timebox.Event) bool {
		for _, filter := range filters {
			if !filter(ev) {
				return false
			}
		}
		return true
	}
}

// OrFilters composes filters and matches when any of them matches
func OrFilters(filters ...EventFilter) EventFilter {
	return func(ev *timebox.Event) bool {
		for _, filter := range filters {
			if filter(ev) {
				return true
			}
		}
		return false
	}
}
