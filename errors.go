package ov2680

import (
	"errors"
	"fmt"
)

// ErrChipMismatch is returned by Identify when the ID registers do not read back 0x2680.
var ErrChipMismatch = errors.New("unexpected chip id")

// BusError reports a burst that still failed after all retries.
type BusError struct {
	Addr     uint16
	Count    int
	Attempts int
	Err      error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus write of %d byte(s) at 0x%04X failed after %d attempt(s): %s", e.Count, e.Addr, e.Attempts, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// DecodeError reports a malformed register program. It is never retried.
type DecodeError struct {
	Index  int
	Op     RegisterOp
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Op.Kind == 0 {
		return fmt.Sprintf("invalid register program at entry %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid register program at entry %d (%s): %s", e.Index, e.Op, e.Reason)
}

// RangeError reports a control value rejected before any bus activity.
type RangeError struct {
	Control string
	Value   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid %s value %d, must be > 0", e.Control, e.Value)
}

// StateError reports an operation that is not valid in the current streaming state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}
