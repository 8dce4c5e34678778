package sdpbridge

import (
	"fmt"
)

// TypeError is returned when a value does not have the expected shape, e.g. a
// codec capability without clock rate or a malformed SDP attribute.
type TypeError struct {
	message string
}

func NewTypeError(format string, args ...interface{}) error {
	return TypeError{
		message: fmt.Sprintf(format, args...),
	}
}

func (e TypeError) Error() string {
	return "TypeError:" + e.message
}

// ValidationError is returned when the RTP capabilities extracted from a SDP
// are structurally invalid. Err holds the underlying cause.
type ValidationError struct {
	// Operation is the name of the failed operation.
	Operation string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cannot validate SDP, error: %s", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
