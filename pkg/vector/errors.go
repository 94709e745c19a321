package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("vector: record not found")

	// ErrCapacity indicates an upsert batch would exceed index capacity.
	// Nothing from the batch is written.
	ErrCapacity = errors.New("vector: index at capacity")

	// ErrDimensionMismatch indicates a vector whose length differs from
	// the configured dimension. Vectors are never truncated or padded.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")

	// ErrMissingID indicates a record without an id in an upsert batch.
	ErrMissingID = errors.New("vector: record id is required")

	// ErrBadQuery indicates a malformed search query.
	ErrBadQuery = errors.New("vector: invalid query")

	// ErrBadFilter indicates a malformed metadata filter.
	ErrBadFilter = errors.New("vector: invalid metadata filter")
)

// OpError carries the failing operation and record id alongside the cause
// so callers can retry with corrected input.
type OpError struct {
	Op       string
	RecordID string
	Err      error
}

func (e *OpError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("vector %s %s: %v", e.Op, e.RecordID, e.Err)
	}
	return fmt.Sprintf("vector %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
