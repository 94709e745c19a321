package memory

import "fmt"

// Code is a stable machine-readable error category, grouped by origin.
type Code string

const (
	CodeValidation    Code = "validation"
	CodeWorkingMemory Code = "working_memory"
	CodeBuffer        Code = "buffer"
	CodeConsolidation Code = "consolidation"
	CodeState         Code = "state"
	CodeStorage       Code = "storage"
)

// Error carries the category, failing operation, and session context so
// callers can decide whether and what to retry. Validation and buffer
// configuration errors are never retryable without fixing the input.
type Error struct {
	Code      Code
	Op        string
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("memory %s [%s] session %s: %v", e.Op, e.Code, e.SessionID, e.Err)
	}
	return fmt.Sprintf("memory %s [%s]: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
