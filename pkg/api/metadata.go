package api

import "maps"

type (
	// Metadata contains additional context attached to transitions,
	// snapshots, and emitted events
	Metadata map[string]any

	// Labels are string key/value pairs attached to a workflow state for
	// listing and selection
	Labels map[string]string
)

const (
	MetaReason  = "reason"
	MetaCreator = "creator"
	MetaSource  = "source"

	MetaStateID   = "state_id"
	MetaLoopID    = "loop_id"
	MetaStepID    = "step_id"
	MetaIteration = "iteration"

	MetaParentLoopID = "parent_loop_id"
)

// Apply will merge the keys/values of the other metadata set into this one
func (m Metadata) Apply(other Metadata) Metadata {
	if len(other) == 0 {
		return m
	}
	res := maps.Clone(m)
	if res == nil {
		res = Metadata{}
	}
	maps.Copy(res, other)
	return res
}

// GetMetaString retrieves a string-typed metadata value by key
func GetMetaString[T ~string](meta Metadata, key string) (T, bool) {
	var zero T
	val, ok := meta[key]
	if !ok {
		return zero, false
	}

	switch v := val.(type) {
	case T:
		if v == "" {
			return zero, false
		}
		return v, true
	case string:
		if v == "" {
			return zero, false
		}
		return T(v), true
	default:
		return zero, false
	}
}
