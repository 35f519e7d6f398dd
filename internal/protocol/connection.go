// internal/protocol/connection.go
package protocol

import "time"

// SerialConfig represents serial line settings for a scanner port.
// BaudRate is not part of it: the rate is chosen per Open call.
type SerialConfig struct {
	Port     string        `json:"port"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`
}

// DefaultSerialConfig returns 8N1 settings for portName
func DefaultSerialConfig(portName string) *SerialConfig {
	return &SerialConfig{
		Port:     portName,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  5 * time.Second,
	}
}
