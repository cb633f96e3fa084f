package models

import (
	"errors"
	"fmt"
)

// Allocation failure taxonomy. Every failure is returned to the caller as a
// distinguishable error; none are recovered silently. The engine itself only
// recovers from version conflicts (bounded retry) and from partial equipment
// reservation failure (compensating release).
var (
	ErrNotFound         = errors.New("request not found")
	ErrInvalidState     = errors.New("request is not in an allocatable state")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrOverAllocation   = errors.New("allocation exceeds remaining quantity")
	ErrDuplicateItemID  = errors.New("duplicate item id")
	ErrAlreadyAllocated = errors.New("item is already allocated")
	ErrUnknownItem      = errors.New("item is not a registered equipment unit")
	ErrContention       = errors.New("allocation retries exhausted, try again")

	ErrVersionConflict = errors.New("version conflict")
	ErrNotAllocated    = errors.New("item is not allocated")
	ErrLineNotFound    = errors.New("resource line not found")
)

// LineError wraps a taxonomy error with the experiment/line that caused it,
// so a rejected attempt reports which line to correct, not just that the
// allocation failed.
type LineError struct {
	ExperimentID string
	LineID       string
	Err          error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %s in experiment %s: %v", e.LineID, e.ExperimentID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ItemError wraps a taxonomy error with the offending physical item ID.
type ItemError struct {
	ItemID string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %v", e.ItemID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
