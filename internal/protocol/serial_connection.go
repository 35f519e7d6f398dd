// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// overridable in tests
var (
	openSerial        = func(name string, mode *serial.Mode) (serial.Port, error) { return serial.Open(name, mode) }
	getDetailedPorts  = enumerator.GetDetailedPortsList
	getSimplePortList = serial.GetPortsList
)

// SerialOpener opens go.bug.st/serial ports for a fixed device path
type SerialOpener struct {
	config *SerialConfig
	logger *zap.Logger
}

// NewSerialOpener creates an opener for the configured port
func NewSerialOpener(config *SerialConfig, logger *zap.Logger) (*SerialOpener, error) {
	if config.Port == "" {
		return nil, fmt.Errorf("serial port is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SerialOpener{
		config: config,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
	}, nil
}

// Open opens the serial port at baudRate
func (so *SerialOpener) Open(ctx context.Context, baudRate int) (Stream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	so.logger.Info("Opening serial port", zap.Int("baud_rate", baudRate))

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: so.config.DataBits,
		StopBits: ParseStopBits(so.config.StopBits),
		Parity:   ParseParity(so.config.Parity),
	}

	port, err := openSerial(so.config.Port, mode)
	if err != nil {
		so.logger.Error("Failed to open serial port", zap.Error(err))
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	// The pump goroutine relies on a blocking Read that returns when the port closes
	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	so.logger.Info("Serial port opened successfully", zap.Int("baud_rate", baudRate))
	return port, nil
}

// PortName returns the OS device path
func (so *SerialOpener) PortName() string {
	return so.config.Port
}

// PortInfo describes one serial port on the host
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VendorID     string `json:"vendor_id,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
	Vendor       string `json:"vendor,omitempty"`
	// LikelyScanner is set when the USB vendor builds scanners
	LikelyScanner bool `json:"likely_scanner"`
}

// ListPorts enumerates serial ports, with USB details when the platform provides them
func ListPorts() ([]PortInfo, error) {
	details, err := getDetailedPorts()
	if err == nil {
		ports := make([]PortInfo, 0, len(details))
		for _, d := range details {
			info := PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VendorID:     d.VID,
				ProductID:    d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			}
			if vendor, ok := LookupVendor(d.VID); d.IsUSB && ok {
				info.Vendor = vendor.Name
				info.LikelyScanner = vendor.Scanner
			}
			ports = append(ports, info)
		}
		return ports, nil
	}

	names, err := getSimplePortList()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(names))
	for _, name := range names {
		ports = append(ports, PortInfo{Name: name})
	}
	return ports, nil
}
