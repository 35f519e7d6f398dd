// internal/protocol/engine.go
package protocol

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Command is a request name plus its ordered arguments
type Command struct {
	Name string
	Args []string
}

// NewCommand creates a command
func NewCommand(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// String serializes the command as comma-joined fields
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + FieldSeparator + strings.Join(c.Args, FieldSeparator)
}

// BaseCommand returns the text before the first field separator
func BaseCommand(commandLine string) string {
	base, _, _ := strings.Cut(commandLine, FieldSeparator)
	return base
}

// Send writes commandLine, waits for one frame and returns its payload.
//
// The first field of the response must echo the base command; otherwise a
// *ProtocolMismatchError is returned and no payload. Only one command is in
// flight per port at a time.
func Send(ctx context.Context, port *Port, commandLine string) ([]string, error) {
	base := BaseCommand(commandLine)

	port.cmdMu.Lock()
	defer port.cmdMu.Unlock()

	if err := port.WriteLine(ctx, commandLine); err != nil {
		return nil, err
	}

	response, err := port.ReadLine(ctx)
	if err != nil {
		var timeoutErr *TimeoutError
		switch {
		case errors.As(err, &timeoutErr):
			return nil, &TimeoutError{Command: base, Err: timeoutErr.Err}
		case errors.Is(err, ErrIncompleteFrame):
			// A truncated frame is validated like any other and usually
			// fails the echo check below.
			port.logger.Debug("Incomplete frame received",
				zap.String("command", base),
				zap.Strings("fields", response),
			)
		default:
			return nil, err
		}
	}

	if response[0] != base {
		port.recordError()
		return nil, &ProtocolMismatchError{Expected: base, Actual: response[0]}
	}

	return response[1:], nil
}

// SendCommand serializes cmd and sends it
func SendCommand(ctx context.Context, port *Port, cmd Command) ([]string, error) {
	return Send(ctx, port, cmd.String())
}
