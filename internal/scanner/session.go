// internal/scanner/session.go
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"scanner-service/internal/protocol"
)

const DefaultCommandTimeout = 2 * time.Second

// LogSink receives human readable progress lines
type LogSink func(line string)

// DiscardSink drops every line
func DiscardSink(string) {}

// State is a session protocol state
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateModelQueried
	StateProgrammingMode
	StateEnumeratingSystems
	StateExitedProgramming
	StateClosed
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:               "IDLE",
	StateConnecting:         "CONNECTING",
	StateModelQueried:       "MODEL_QUERIED",
	StateProgrammingMode:    "PROGRAMMING_MODE",
	StateEnumeratingSystems: "ENUMERATING_SYSTEMS",
	StateExitedProgramming:  "EXITED_PROGRAMMING",
	StateClosed:             "CLOSED",
	StateFailed:             "FAILED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports whether no further transitions are possible
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// SessionConfig configures one session
type SessionConfig struct {
	BaudRate       int
	CommandTimeout time.Duration
	CloseTimeout   time.Duration
}

// Inventory summarizes an enumeration pass
type Inventory struct {
	MemoryUsed  decimal.Decimal `json:"memory_used"`
	SystemCount int             `json:"system_count"`
	Visited     int             `json:"visited"`
}

// Session drives one scanner through a programming mode read.
// It owns its port: the port lives exactly as long as the session.
type Session struct {
	opener protocol.Opener
	config SessionConfig
	logger *zap.Logger
	sink   LogSink

	mu    sync.RWMutex
	state State
	port  *protocol.Port
	model string
	err   error
	// programming is set while PRG is accepted and EPG has not been sent
	programming bool
}

// NewSession creates an idle session
func NewSession(opener protocol.Opener, config SessionConfig, logger *zap.Logger, sink LogSink) *Session {
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = DiscardSink
	}

	return &Session{
		opener: opener,
		config: config,
		logger: logger.With(zap.Int("baud_rate", config.BaudRate)),
		sink:   sink,
		state:  StateIdle,
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Model returns the model reported by MDL
func (s *Session) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// Err returns the error that moved the session to StateFailed
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// BaudRate returns the negotiated link speed
func (s *Session) BaudRate() int {
	return s.config.BaudRate
}

// Connect opens the port and queries the model
func (s *Session) Connect(ctx context.Context) error {
	if err := s.expect("connect", StateIdle); err != nil {
		return err
	}
	s.setState(StateConnecting)

	port, err := protocol.OpenPort(ctx, s.opener, s.config.BaudRate, s.logger,
		protocol.WithCloseTimeout(s.config.CloseTimeout))
	if err != nil {
		return s.fail(fmt.Errorf("failed to open port: %w", err))
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	payload, err := s.send(ctx, protocol.NewCommand(CmdModel))
	if err != nil {
		return err
	}

	model := firstField(payload)
	s.mu.Lock()
	s.model = model
	s.state = StateModelQueried
	s.mu.Unlock()

	s.logger.Info("Scanner model queried", zap.String("model", model))
	s.sink(fmt.Sprintf("Model: %s", model))
	return nil
}

// EnterProgramming switches the scanner into programming mode. A non-OK
// status fails the session with a *protocol.DeviceRejectedError; the port is
// left open for the caller to close.
func (s *Session) EnterProgramming(ctx context.Context) error {
	if err := s.expect("enter programming mode", StateModelQueried); err != nil {
		return err
	}

	if err := s.modeChange(ctx, CmdEnterProgramming); err != nil {
		if status, ok := rejectedStatus(err); ok {
			s.sink(fmt.Sprintf("Error: Failed to enter programming mode: %s", status))
		}
		return err
	}

	s.mu.Lock()
	s.state = StateProgrammingMode
	s.programming = true
	s.mu.Unlock()
	s.sink("Entered programming mode.")
	s.sink("")
	return nil
}

// EnumerateSystems walks the system list from its head and passes each
// record to emit. The walk is bounded by the count the scanner reports.
func (s *Session) EnumerateSystems(ctx context.Context, emit func(SystemRecord) error) (*Inventory, error) {
	if err := s.expect("enumerate systems", StateProgrammingMode); err != nil {
		return nil, err
	}
	s.setState(StateEnumeratingSystems)

	inventory := &Inventory{}

	payload, err := s.send(ctx, protocol.NewCommand(CmdMemoryUsed))
	if err != nil {
		return nil, err
	}
	memory := firstField(payload)
	if used, perr := decimal.NewFromString(strings.TrimSpace(memory)); perr == nil {
		inventory.MemoryUsed = used
	} else {
		s.logger.Warn("Unparseable memory usage", zap.String("value", memory))
	}
	s.sink(fmt.Sprintf("Memory used: %s%%", memory))

	payload, err = s.send(ctx, protocol.NewCommand(CmdSystemCount))
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(firstField(payload)))
	if err != nil || count < 0 {
		return nil, s.fail(&RecordFormatError{Command: CmdSystemCount, Payload: payload, Err: fmt.Errorf("invalid system count")})
	}
	inventory.SystemCount = count
	s.sink(fmt.Sprintf("%d systems detected.", count))

	if count == 0 {
		return inventory, nil
	}

	index, err := s.sendIndex(ctx, protocol.NewCommand(CmdSystemHead))
	if err != nil {
		return nil, err
	}

	for index != EndOfList {
		if inventory.Visited >= count {
			return nil, s.fail(&ChainOverrunError{Count: count, Index: index})
		}

		payload, err := s.send(ctx, protocol.NewCommand(CmdSystemInfo, strconv.Itoa(index)))
		if err != nil {
			return nil, err
		}

		record, err := ParseSystemRecord(index, payload)
		if err != nil {
			return nil, s.fail(err)
		}

		s.logger.Debug("System record read",
			zap.Int("index", index),
			zap.String("name", record.Name),
		)
		s.sink(fmt.Sprintf("Found system: %s", record.Name))

		if emit != nil {
			if err := emit(record); err != nil {
				return nil, s.fail(fmt.Errorf("system %d rejected by caller: %w", index, err))
			}
		}
		inventory.Visited++

		index, err = s.sendIndex(ctx, protocol.NewCommand(CmdForward, strconv.Itoa(index)))
		if err != nil {
			return nil, err
		}
	}

	return inventory, nil
}

// ExitProgramming leaves programming mode
func (s *Session) ExitProgramming(ctx context.Context) error {
	if err := s.expect("exit programming mode", StateProgrammingMode, StateEnumeratingSystems); err != nil {
		return err
	}
	s.leaveProgramming()

	if err := s.modeChange(ctx, CmdExitProgramming); err != nil {
		if status, ok := rejectedStatus(err); ok {
			s.sink(fmt.Sprintf("Error: Failed to exit programming mode: %s", status))
		}
		return err
	}

	s.setState(StateExitedProgramming)
	s.sink("Exited programming mode.")
	return nil
}

// AbortProgramming sends a best-effort EPG after a failure inside
// programming mode. It ignores the state guard, runs even when ctx is done
// (bounded by the command timeout) and leaves a failed session failed. It is
// a no-op unless PRG was accepted and EPG not yet sent.
func (s *Session) AbortProgramming(ctx context.Context) error {
	if !s.leaveProgramming() {
		return nil
	}

	s.mu.RLock()
	port := s.port
	s.mu.RUnlock()
	if port == nil {
		return protocol.ErrPortClosed
	}

	cmdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CommandTimeout)
	defer cancel()

	payload, err := protocol.SendCommand(cmdCtx, port, protocol.NewCommand(CmdExitProgramming))
	if err != nil {
		return fmt.Errorf("%s failed: %w", CmdExitProgramming, err)
	}
	if status := firstField(payload); status != StatusOK {
		return &protocol.DeviceRejectedError{Command: CmdExitProgramming, Status: status}
	}

	s.logger.Info("Left programming mode after failure")
	return nil
}

// leaveProgramming clears the programming flag and reports whether it was set
func (s *Session) leaveProgramming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.programming
	s.programming = false
	return was
}

// Close releases the port. It is safe to call in any state and more than
// once. A failed session stays failed; a close failure after a clean exit
// fails the session.
func (s *Session) Close() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()

	if port == nil {
		return nil
	}

	err := port.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil && s.state != StateFailed:
		s.state = StateFailed
		s.err = err
	case s.state == StateExitedProgramming:
		s.state = StateClosed
	}
	return err
}

// PortStats returns statistics of the open port, if any
func (s *Session) PortStats() (protocol.ProtocolStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.port == nil {
		return protocol.ProtocolStats{}, false
	}
	return s.port.Stats(), true
}

// send runs one command under the command timeout and fails the session on error
func (s *Session) send(ctx context.Context, cmd protocol.Command) ([]string, error) {
	s.mu.RLock()
	port := s.port
	s.mu.RUnlock()
	if port == nil {
		return nil, s.fail(protocol.ErrPortClosed)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, s.config.CommandTimeout)
	defer cancel()

	payload, err := protocol.SendCommand(cmdCtx, port, cmd)
	if err != nil {
		return nil, s.fail(fmt.Errorf("%s failed: %w", cmd.Name, err))
	}
	return payload, nil
}

// sendIndex runs a command whose reply is a single record index
func (s *Session) sendIndex(ctx context.Context, cmd protocol.Command) (int, error) {
	payload, err := s.send(ctx, cmd)
	if err != nil {
		return 0, err
	}

	index, err := parseIndex(firstField(payload))
	if err != nil {
		return 0, s.fail(&RecordFormatError{Command: cmd.Name, Payload: payload, Err: err})
	}
	return index, nil
}

// modeChange sends PRG or EPG and checks for OK
func (s *Session) modeChange(ctx context.Context, command string) error {
	payload, err := s.send(ctx, protocol.NewCommand(command))
	if err != nil {
		return err
	}

	if status := firstField(payload); status != StatusOK {
		return s.fail(&protocol.DeviceRejectedError{Command: command, Status: status})
	}
	return nil
}

func (s *Session) expect(op string, allowed ...State) error {
	state := s.State()
	for _, a := range allowed {
		if state == a {
			return nil
		}
	}
	return &StateError{Op: op, State: state}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// fail moves the session to StateFailed and returns err
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.state != StateFailed {
		s.logger.Error("Session failed",
			zap.String("state", s.state.String()),
			zap.Error(err),
		)
		s.state = StateFailed
		s.err = err
	}
	s.mu.Unlock()
	return err
}

func firstField(payload []string) string {
	if len(payload) == 0 {
		return ""
	}
	return payload[0]
}

// rejectedStatus returns the device status carried by a rejection
func rejectedStatus(err error) (string, bool) {
	var rejected *protocol.DeviceRejectedError
	if errors.As(err, &rejected) {
		return rejected.Status, true
	}
	return "", false
}

func isRejected(err error) bool {
	_, ok := rejectedStatus(err)
	return ok
}
