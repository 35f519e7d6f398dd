// internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is matched by every *TimeoutError
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrIncompleteFrame is returned with a partial frame when the stream
	// ends before a terminator arrives
	ErrIncompleteFrame = errors.New("stream ended before frame terminator")

	// ErrPortClosed is returned for I/O on a closed port
	ErrPortClosed = errors.New("port is closed")
)

// ProtocolMismatchError indicates that a response did not echo the command
// that solicited it.
type ProtocolMismatchError struct {
	Expected string
	Actual   string
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("command response mismatch: expected %s but was %s", e.Expected, e.Actual)
}

// TimeoutError indicates that a bounded wait elapsed with no frame.
type TimeoutError struct {
	Command string
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("timed out waiting for response: %v", e.Err)
	}
	return fmt.Sprintf("timed out waiting for %s response: %v", e.Command, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// DeviceRejectedError carries a non-OK status returned by the device
// for a mode change command.
type DeviceRejectedError struct {
	Command string
	Status  string
}

func (e *DeviceRejectedError) Error() string {
	return fmt.Sprintf("device rejected %s: %s", e.Command, e.Status)
}

// TransportError wraps a failure of the underlying stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
