// Package scannertest simulates a scanner that speaks the programming
// protocol, for use with protocoltest.Device.
package scannertest

import (
	"strconv"
	"strings"
	"sync"

	"scanner-service/internal/protocol"
	"scanner-service/internal/protocol/protocoltest"
)

// System is one entry in the simulated system list
type System struct {
	Name string
	Type string
	Rev  int
	Fwd  int
}

// Scanner answers protocol commands from an in-memory system list
type Scanner struct {
	Model    string
	BaudRate int

	// ErrProbes is how many MDL probes at BaudRate are answered with ERR first
	ErrProbes int
	// Noise, if set, answers MDL instead of the echo
	Noise string
	// WrongRateReply is sent for any line at another rate; empty means silence
	WrongRateReply string

	ProgramStatus string
	ExitStatus    string
	MemoryUsed    string

	Head    int
	Systems map[int]System
	// Count overrides the SCT reply when non-negative
	Count int

	// TruncateOn cuts the reply to this base command and hangs up
	TruncateOn string

	mu     sync.Mutex
	probes int
}

// New returns a healthy scanner at baudRate with no systems
func New(model string, baudRate int) *Scanner {
	return &Scanner{
		Model:         model,
		BaudRate:      baudRate,
		ProgramStatus: "OK",
		ExitStatus:    "OK",
		MemoryUsed:    "12",
		Systems:       map[int]System{},
		Count:         -1,
	}
}

// WithChain installs systems linked in the given index order
func (s *Scanner) WithChain(indices ...int) *Scanner {
	s.Systems = make(map[int]System, len(indices))
	s.Head = 0
	for i, idx := range indices {
		sys := System{Name: "System " + strconv.Itoa(idx), Type: "CNV"}
		if i > 0 {
			sys.Rev = indices[i-1]
		}
		if i < len(indices)-1 {
			sys.Fwd = indices[i+1]
		}
		s.Systems[idx] = sys
	}
	if len(indices) > 0 {
		s.Head = indices[0]
	}
	return s
}

// Device wraps the scanner in an openable device
func (s *Scanner) Device() *protocoltest.Device {
	return protocoltest.NewDevice(s.Handle)
}

// Probes returns how many MDL commands arrived at the right rate
func (s *Scanner) Probes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probes
}

// Handle implements protocoltest.Handler
func (s *Scanner) Handle(baudRate int, line string) []string {
	if baudRate != s.BaudRate {
		if s.WrongRateReply == "" {
			return nil
		}
		return []string{s.WrongRateReply}
	}

	fields := strings.Split(line, protocol.FieldSeparator)
	base := fields[0]

	var payload []string
	switch base {
	case "MDL":
		s.mu.Lock()
		s.probes++
		probe := s.probes
		s.mu.Unlock()
		if probe <= s.ErrProbes {
			return []string{"ERR\r"}
		}
		if s.Noise != "" {
			return []string{s.Noise + "\r"}
		}
		payload = []string{s.Model}
	case "PRG":
		payload = []string{s.ProgramStatus}
	case "EPG":
		payload = []string{s.ExitStatus}
	case "MEM":
		payload = []string{s.MemoryUsed}
	case "SCT":
		count := s.Count
		if count < 0 {
			count = len(s.Systems)
		}
		payload = []string{strconv.Itoa(count)}
	case "SIH":
		payload = []string{strconv.Itoa(s.Head)}
	case "SIN":
		sys, idx, ok := s.lookup(fields)
		if !ok {
			return []string{"ERR\r"}
		}
		payload = []string{
			sys.Type, sys.Name, "1", "2", "0", "", "2", "0", "0",
			strconv.Itoa(sys.Rev), strconv.Itoa(sys.Fwd),
			strconv.Itoa(idx * 100), strconv.Itoa(idx*100 + 1), "0",
		}
	case "FWD":
		sys, _, ok := s.lookup(fields)
		if !ok {
			return []string{"ERR\r"}
		}
		payload = []string{strconv.Itoa(sys.Fwd)}
	default:
		return []string{"ERR\r"}
	}

	reply := base + protocol.FieldSeparator + strings.Join(payload, protocol.FieldSeparator)
	if base == s.TruncateOn {
		return []string{reply[:len(reply)/2], protocoltest.Hangup}
	}
	return []string{reply + "\r"}
}

func (s *Scanner) lookup(fields []string) (System, int, bool) {
	if len(fields) < 2 {
		return System{}, 0, false
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil {
		return System{}, 0, false
	}
	sys, ok := s.Systems[idx]
	return sys, idx, ok
}
