package api

import "fmt"

type (
	// ErrorCode classifies why an operation did not succeed
	ErrorCode string

	// FieldError ties a validation failure to the configuration field that
	// caused it
	FieldError struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}

	// StateResult is the uniform outcome of a state operation. Success is
	// false for rejected, conflicted, or invalid requests; the remaining
	// fields describe what happened either way
	StateResult struct {
		State          *WorkflowState `json:"state,omitempty"`
		Error          string         `json:"error,omitempty"`
		Code           ErrorCode      `json:"code,omitempty"`
		Errors         []*FieldError  `json:"errors,omitempty"`
		Changed        []Name         `json:"changed,omitempty"`
		Conflicts      []Name         `json:"conflicts,omitempty"`
		RolledBackFrom int64          `json:"rolled_back_from,omitempty"`
		RolledBackTo   int64          `json:"rolled_back_to,omitempty"`
		Success        bool           `json:"success"`
	}

	// CompactionResult reports the effect of a history compaction pass
	CompactionResult struct {
		StateID  StateID `json:"state_id"`
		Removed  int     `json:"removed"`
		Retained int     `json:"retained"`
	}
)

const (
	ErrCodeConfiguration      ErrorCode = "configuration"
	ErrCodeTransitionRejected ErrorCode = "transition_rejected"
	ErrCodeConflict           ErrorCode = "conflict"
	ErrCodePersistence        ErrorCode = "persistence"
	ErrCodeNotFound           ErrorCode = "not_found"
)

// NewFieldError creates a FieldError for the given field path
func NewFieldError(field, message string) *FieldError {
	return &FieldError{
		Field:   field,
		Message: message,
	}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// OK wraps a state in a successful result
func OK(s *WorkflowState) *StateResult {
	return &StateResult{
		Success: true,
		State:   s,
	}
}

// Failed creates an unsuccessful result with a classification and message
func Failed(code ErrorCode, msg string) *StateResult {
	return &StateResult{
		Code:  code,
		Error: msg,
	}
}

// Invalid creates an unsuccessful configuration result carrying the field
// errors that rejected the request
func Invalid(errs []*FieldError) *StateResult {
	return &StateResult{
		Code:   ErrCodeConfiguration,
		Error:  "configuration is invalid",
		Errors: errs,
	}
}
