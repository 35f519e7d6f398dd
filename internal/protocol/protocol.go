// internal/protocol/protocol.go
package protocol

import (
	"context"
	"io"
	"time"
)

const (
	// Terminator ends every frame in both directions
	Terminator = '\r'

	// FieldSeparator splits a frame into fields
	FieldSeparator = ","
)

// Stream is the raw duplex byte stream to a scanner
type Stream interface {
	io.ReadWriteCloser
}

// Drainer is implemented by streams that can wait for pending output
// to leave the wire (go.bug.st/serial ports do).
type Drainer interface {
	Drain() error
}

// Opener opens a Stream configured at the given link speed.
// A fresh stream is opened for every baud rate that is tried.
type Opener interface {
	Open(ctx context.Context, baudRate int) (Stream, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context, baudRate int) (Stream, error)

// Open calls f(ctx, baudRate)
func (f OpenerFunc) Open(ctx context.Context, baudRate int) (Stream, error) {
	return f(ctx, baudRate)
}

// ProtocolStats provides line-level statistics for one open port
type ProtocolStats struct {
	BytesWritten  int64     `json:"bytes_written"`
	BytesRead     int64     `json:"bytes_read"`
	FramesWritten int64     `json:"frames_written"`
	FramesRead    int64     `json:"frames_read"`
	ErrorCount    int64     `json:"error_count"`
	LastActivity  time.Time `json:"last_activity"`
	IsConnected   bool      `json:"is_connected"`
}
