package engine

import "fmt"

// ValidationError reports a malformed sample or threshold. The frame is
// dropped; no accumulator is touched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid sample: " + e.Reason
}

// StateError reports an operation attempted in an invalid lifecycle
// state. Callers treat it as a silent no-op since frame delivery cannot
// be perfectly synchronized with control commands.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not valid in state %s", e.Op, e.State)
}
