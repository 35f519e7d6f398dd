// internal/protocol/factory.go
package protocol

import (
	"fmt"

	"go.bug.st/serial"
)

// StandardBaudRates lists the link speeds accepted for scanner ports,
// highest first, which is also the default detection order.
var StandardBaudRates = []int{115200, 57600, 38400, 19200, 9600, 4800}

// ValidateBaudRate reports whether rate is one of the standard rates
func ValidateBaudRate(rate int) error {
	for _, validRate := range StandardBaudRates {
		if rate == validRate {
			return nil
		}
	}
	return fmt.Errorf("invalid baud rate: %d", rate)
}

// ValidateSerialConfig validates serial line settings
func ValidateSerialConfig(config *SerialConfig) error {
	if config.Port == "" {
		return fmt.Errorf("serial port is required")
	}

	switch config.DataBits {
	case 5, 6, 7, 8:
	default:
		return fmt.Errorf("invalid data bits: %d", config.DataBits)
	}

	switch config.StopBits {
	case 1, 2:
	default:
		return fmt.Errorf("invalid stop bits: %d", config.StopBits)
	}

	switch config.Parity {
	case "", "none", "odd", "even":
	default:
		return fmt.Errorf("invalid parity: %s", config.Parity)
	}

	return nil
}

// ParseParity maps a config parity name to the serial setting
func ParseParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	default:
		return serial.NoParity
	}
}

// ParseStopBits maps a config stop bit count to the serial setting
func ParseStopBits(stopBits int) serial.StopBits {
	if stopBits == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}
