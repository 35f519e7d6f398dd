// internal/scanner/errors.go
package scanner

import (
	"errors"
	"fmt"
)

// ErrNoBaudRate is returned when no candidate rate produced a usable response
var ErrNoBaudRate = errors.New("no baud rate produced a usable response")

// StateError indicates a session operation called from the wrong state
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s in state %s", e.Op, e.State)
}

// ChainOverrunError indicates that the forward chain did not end within the
// number of systems the scanner reported.
type ChainOverrunError struct {
	Count int
	Index int
}

func (e *ChainOverrunError) Error() string {
	return fmt.Sprintf("system list does not terminate: %d systems reported, next index %d", e.Count, e.Index)
}

// RecordFormatError indicates a payload that could not be decoded
type RecordFormatError struct {
	Command string
	Payload []string
	Err     error
}

func (e *RecordFormatError) Error() string {
	return fmt.Sprintf("malformed %s payload %q: %v", e.Command, e.Payload, e.Err)
}

func (e *RecordFormatError) Unwrap() error { return e.Err }
