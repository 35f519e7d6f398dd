// internal/protocol/port.go
package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	readBufferSize      = 256
	DefaultCloseTimeout = 2 * time.Second
)

// PortOption configures a Port
type PortOption func(*Port)

// WithCloseTimeout bounds how long Close waits for the read pump to settle
func WithCloseTimeout(timeout time.Duration) PortOption {
	return func(p *Port) {
		if timeout > 0 {
			p.closeTimeout = timeout
		}
	}
}

// Port frames a raw Stream into CR-terminated, comma-separated lines.
//
// A single pump goroutine reads the stream and hands decoded chunks to
// ReadLine. Abandoning a ReadLine on ctx expiry leaves any late bytes queued
// for the next call; nothing in flight is unwound.
type Port struct {
	stream       Stream
	baudRate     int
	logger       *zap.Logger
	closeTimeout time.Duration

	chunks   chan []byte
	stop     chan struct{}
	pumpDone chan struct{}
	pumpErr  error

	// pending and eof are owned by ReadLine under readMu
	pending []byte
	eof     bool

	cmdMu   sync.Mutex
	readMu  sync.Mutex
	writeMu sync.Mutex

	statsMu sync.Mutex
	stats   ProtocolStats

	closeOnce sync.Once
	closeErr  error
}

// OpenPort opens a stream at baudRate and starts framing it
func OpenPort(ctx context.Context, opener Opener, baudRate int, logger *zap.Logger, opts ...PortOption) (*Port, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	stream, err := opener.Open(ctx, baudRate)
	if err != nil {
		return nil, &TransportError{Op: "open", Err: err}
	}

	p := &Port{
		stream:       stream,
		baudRate:     baudRate,
		logger:       logger.With(zap.Int("baud_rate", baudRate)),
		closeTimeout: DefaultCloseTimeout,
		chunks:       make(chan []byte, 16),
		stop:         make(chan struct{}),
		pumpDone:     make(chan struct{}),
		stats: ProtocolStats{
			IsConnected:  true,
			LastActivity: time.Now(),
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.pump()

	p.logger.Debug("Port opened")
	return p, nil
}

// BaudRate returns the link speed the port was opened at
func (p *Port) BaudRate() int {
	return p.baudRate
}

// Stats returns a snapshot of the port statistics
func (p *Port) Stats() ProtocolStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// WriteLine writes text followed by the frame terminator
func (p *Port) WriteLine(ctx context.Context, text string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.isClosed() {
		return ErrPortClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	frame := make([]byte, 0, len(text)+1)
	frame = append(frame, text...)
	frame = append(frame, Terminator)

	n, err := p.stream.Write(frame)
	if err != nil {
		p.recordError()
		p.logger.Error("Port write failed", zap.Error(err))
		return &TransportError{Op: "write", Err: err}
	}
	if n != len(frame) {
		p.recordError()
		return &TransportError{Op: "write", Err: fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(frame))}
	}

	p.statsMu.Lock()
	p.stats.BytesWritten += int64(n)
	p.stats.FramesWritten++
	p.stats.LastActivity = time.Now()
	p.statsMu.Unlock()

	p.logger.Debug("Frame written", zap.String("frame", text))
	return nil
}

// ReadLine returns the fields of the next frame.
//
// If the stream ends before a terminator, the partial frame is returned
// together with ErrIncompleteFrame (or a *TransportError if the stream
// failed). If ctx ends first a *TimeoutError is returned.
func (p *Port) ReadLine(ctx context.Context) ([]string, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	if p.isClosed() {
		return nil, ErrPortClosed
	}

	for {
		if i := bytes.IndexByte(p.pending, Terminator); i >= 0 {
			line := string(p.pending[:i])
			p.pending = append([]byte(nil), p.pending[i+1:]...)
			p.recordFrame()
			p.logger.Debug("Frame read", zap.String("frame", line))
			return SplitFields(line), nil
		}

		if p.eof {
			return p.takePartial()
		}

		select {
		case chunk, ok := <-p.chunks:
			if !ok {
				if p.isClosed() {
					return nil, ErrPortClosed
				}
				p.eof = true
				continue
			}
			p.pending = append(p.pending, chunk...)
		case <-ctx.Done():
			return nil, &TimeoutError{Err: ctx.Err()}
		case <-p.stop:
			return nil, ErrPortClosed
		}
	}
}

// Close cancels the read side, drains and closes the stream and waits for
// the read pump to settle. Every step is attempted even when an earlier one
// fails.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		var err error

		close(p.stop)

		if d, ok := p.stream.(Drainer); ok {
			if derr := d.Drain(); derr != nil {
				err = multierr.Append(err, &TransportError{Op: "drain", Err: derr})
			}
		}

		if cerr := p.stream.Close(); cerr != nil {
			err = multierr.Append(err, &TransportError{Op: "close", Err: cerr})
		}

		select {
		case <-p.pumpDone:
		case <-time.After(p.closeTimeout):
			p.logger.Warn("Read pump did not settle before close timeout",
				zap.Duration("timeout", p.closeTimeout),
			)
		}

		p.statsMu.Lock()
		p.stats.IsConnected = false
		p.statsMu.Unlock()

		if err != nil {
			p.logger.Error("Port closed with errors", zap.Error(err))
		} else {
			p.logger.Debug("Port closed")
		}
		p.closeErr = err
	})
	return p.closeErr
}

// pump copies stream bytes into chunks until the stream ends or the port is closed
func (p *Port) pump() {
	defer close(p.pumpDone)
	defer close(p.chunks)

	buf := make([]byte, readBufferSize)
	for {
		n, err := p.stream.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			p.statsMu.Lock()
			p.stats.BytesRead += int64(n)
			p.statsMu.Unlock()

			select {
			case p.chunks <- chunk:
			case <-p.stop:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !p.isClosed() {
				p.pumpErr = err
			}
			return
		}
	}
}

func (p *Port) takePartial() ([]string, error) {
	line := string(p.pending)
	p.pending = nil

	if p.pumpErr != nil {
		p.recordError()
		return SplitFields(line), &TransportError{Op: "read", Err: p.pumpErr}
	}
	return SplitFields(line), ErrIncompleteFrame
}

func (p *Port) isClosed() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

func (p *Port) recordFrame() {
	p.statsMu.Lock()
	p.stats.FramesRead++
	p.stats.LastActivity = time.Now()
	p.statsMu.Unlock()
}

func (p *Port) recordError() {
	p.statsMu.Lock()
	p.stats.ErrorCount++
	p.statsMu.Unlock()
}

// SplitFields decodes a frame body into its comma-separated fields.
// Invalid UTF-8 (common at a wrong link speed) is replaced, not rejected.
func SplitFields(line string) []string {
	return strings.Split(strings.ToValidUTF8(line, "�"), FieldSeparator)
}
