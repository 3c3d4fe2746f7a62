package status

import "fmt"

// DecodeError means a scalar on the wire did not have the expected shape.
type DecodeError struct {
	Kind  string
	Value string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %q: %v", e.Kind, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnknownTriBoolError is returned when in_maintenance carries an out-of-band code.
type UnknownTriBoolError struct {
	Value uint8
}

func (e *UnknownTriBoolError) Error() string {
	return fmt.Sprintf("in_maintenance has unknown value %d", e.Value)
}

// InvariantViolationError is returned for field combinations that match no machine state.
type InvariantViolationError struct {
	Running       bool
	Reserved      bool
	InMaintenance TriBool
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant does not hold: running (%t) reserved (%t) in_maintenance (%s)",
		e.Running, e.Reserved, e.InMaintenance)
}
