package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type (
	// WorkflowID identifies a workflow definition
	WorkflowID string

	// StateID is a unique identifier for a workflow state record
	StateID string

	// SnapshotID is a unique identifier for a state snapshot
	SnapshotID string

	// LoopID is a unique identifier for a loop execution
	LoopID string

	// StepID is a unique identifier for a body step
	StepID string

	// MachineID identifies a machine configuration in the catalog
	MachineID string
)

// InvalidIDChars matches characters not permitted in identifiers. Valid
// characters are: letters, digits, underscore, dot, hyphen, plus, space
var InvalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-+ ]`)

// NewStateID mints a unique state record identifier
func NewStateID() StateID {
	return StateID("state-" + uuid.NewString())
}

// NewSnapshotID mints a unique snapshot identifier
func NewSnapshotID() SnapshotID {
	return SnapshotID("snap-" + uuid.NewString())
}

// NewLoopID mints a unique loop execution identifier
func NewLoopID() LoopID {
	return LoopID("loop-" + uuid.NewString())
}

// SanitizeID lowercases an ID, removes invalid characters, replaces spaces
// with hyphens, and trims leading and trailing hyphens
func SanitizeID[T ~string](id T) T {
	lower := strings.ToLower(string(id))
	sanitized := InvalidIDChars.ReplaceAllString(lower, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	return T(strings.Trim(sanitized, "-"))
}
