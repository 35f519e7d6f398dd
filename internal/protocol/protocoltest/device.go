// Package protocoltest provides an in-memory, scriptable byte stream device
// for exercising line-framed protocols without serial hardware.
package protocoltest

import (
	"context"
	"io"
	"strings"
	"sync"

	"scanner-service/internal/protocol"
)

// Hangup, returned by a Handler, ends the stream after the queued output
const Hangup = "\x00hangup"

// Handler answers one received line (terminator stripped) with raw output
// chunks. Chunks are delivered verbatim, so they must carry their own
// terminators.
type Handler func(baudRate int, line string) []string

// Device is a protocol.Opener whose streams are driven by a Handler
type Device struct {
	Handler Handler

	// OpenErr, if set, is consulted before every open
	OpenErr func(baudRate int) error
	// CloseErr is returned by every stream Close
	CloseErr error
	// DrainErr is returned by every stream Drain
	DrainErr error

	mu      sync.Mutex
	opens   []int
	closes  int
	lines   []string
	streams []*Stream
}

// NewDevice creates a device answering with handler
func NewDevice(handler Handler) *Device {
	return &Device{Handler: handler}
}

// Open implements protocol.Opener
func (d *Device) Open(ctx context.Context, baudRate int) (protocol.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.opens = append(d.opens, baudRate)
	if d.OpenErr != nil {
		if err := d.OpenErr(baudRate); err != nil {
			return nil, err
		}
	}

	s := &Stream{
		dev:    d,
		baud:   baudRate,
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
	d.streams = append(d.streams, s)
	return s, nil
}

// Opens returns the baud rates of every open attempt, in order
func (d *Device) Opens() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.opens...)
}

// Closes returns how many streams have been closed
func (d *Device) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Lines returns every line received across all streams
func (d *Device) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

// CountCommands counts received lines whose base command is name
func (d *Device) CountCommands(name string) int {
	n := 0
	for _, line := range d.Lines() {
		if protocol.BaseCommand(line) == name {
			n++
		}
	}
	return n
}

// Last returns the most recently opened stream
func (d *Device) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

func (d *Device) receive(baud int, line string) []string {
	d.mu.Lock()
	d.lines = append(d.lines, line)
	handler := d.Handler
	d.mu.Unlock()

	if handler == nil {
		return nil
	}
	return handler(baud, line)
}

// Stream is one open connection to a Device
type Stream struct {
	dev  *Device
	baud int

	mu      sync.Mutex
	lineBuf []byte
	hungUp  bool

	readMu  sync.Mutex
	pending []byte

	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// Read implements io.Reader; it blocks until output is queued, the stream
// hangs up, or it is closed
func (s *Stream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if len(s.pending) == 0 {
		select {
		case chunk, ok := <-s.out:
			if !ok {
				return 0, io.EOF
			}
			s.pending = chunk
		case <-s.closed:
			return 0, io.EOF
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Write implements io.Writer; every CR-terminated line is handed to the Handler
func (s *Stream) Write(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	s.mu.Lock()
	s.lineBuf = append(s.lineBuf, p...)
	var lines []string
	for {
		i := strings.IndexByte(string(s.lineBuf), protocol.Terminator)
		if i < 0 {
			break
		}
		lines = append(lines, string(s.lineBuf[:i]))
		s.lineBuf = s.lineBuf[i+1:]
	}
	s.mu.Unlock()

	for _, line := range lines {
		for _, chunk := range s.dev.receive(s.baud, line) {
			s.Feed(chunk)
		}
	}
	return len(p), nil
}

// Feed queues raw output as if the device had sent it unprompted
func (s *Stream) Feed(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hungUp {
		return
	}
	if chunk == Hangup {
		s.hungUp = true
		close(s.out)
		return
	}
	select {
	case s.out <- []byte(chunk):
	case <-s.closed:
	}
}

// Drain implements protocol.Drainer
func (s *Stream) Drain() error {
	return s.dev.DrainErr
}

// Close implements io.Closer and unblocks a pending Read
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.dev.mu.Lock()
		s.dev.closes++
		s.dev.mu.Unlock()
	})
	return s.dev.CloseErr
}

// BaudRate returns the rate the stream was opened at
func (s *Stream) BaudRate() int {
	return s.baud
}
