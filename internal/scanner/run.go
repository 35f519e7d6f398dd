// internal/scanner/run.go
package scanner

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"scanner-service/internal/protocol"
)

// Report summarizes one driven session
type Report struct {
	BaudRate    int                 `json:"baud_rate"`
	Model       string              `json:"model"`
	MemoryUsed  decimal.NullDecimal `json:"memory_used"`
	SystemCount int                 `json:"system_count"`
	Systems     int                 `json:"systems"`
	State       State               `json:"state"`
	// PortStats is the line traffic seen before the port was closed
	PortStats *protocol.ProtocolStats `json:"port_stats,omitempty"`
}

// Run connects, reads every system record and leaves programming mode.
// Programming mode is left even when enumeration fails, and the port is
// always closed on return. An EPG failure on that path is reported like a
// close failure. A close failure is reported to the
// sink and logger but never replaces the error that ended the session.
func Run(ctx context.Context, opener protocol.Opener, config SessionConfig, logger *zap.Logger, sink LogSink, emit func(SystemRecord) error) (report *Report, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = DiscardSink
	}

	session := NewSession(opener, config, logger, sink)
	report = &Report{BaudRate: config.BaudRate}

	defer func() {
		if stats, ok := session.PortStats(); ok {
			report.PortStats = &stats
		}
		cerr := session.Close()
		switch {
		case cerr != nil:
			logger.Warn("Failed to close port", zap.Error(cerr))
			sink(fmt.Sprintf("Error: Failed to close port: %v", cerr))
			if err == nil {
				err = fmt.Errorf("failed to close port: %w", cerr)
			}
		case err == nil:
			sink("Disconnected.")
		}
		report.State = session.State()
	}()

	sink("Connecting...")

	if err = session.Connect(ctx); err != nil {
		sink(fmt.Sprintf("Error: %v", err))
		return report, err
	}
	report.Model = session.Model()

	if err = session.EnterProgramming(ctx); err != nil {
		if !isRejected(err) {
			sink(fmt.Sprintf("Error: %v", err))
		}
		return report, err
	}

	inventory, err := session.EnumerateSystems(ctx, func(record SystemRecord) error {
		report.Systems++
		if emit != nil {
			return emit(record)
		}
		return nil
	})
	if err != nil {
		sink(fmt.Sprintf("Error: %v", err))
		if aerr := session.AbortProgramming(ctx); aerr != nil {
			logger.Warn("Failed to leave programming mode", zap.Error(aerr))
			sink(fmt.Sprintf("Error: Failed to exit programming mode: %v", aerr))
		} else {
			sink("Exited programming mode.")
		}
		return report, err
	}
	report.MemoryUsed = decimal.NewNullDecimal(inventory.MemoryUsed)
	report.SystemCount = inventory.SystemCount

	if err = session.ExitProgramming(ctx); err != nil {
		if !isRejected(err) {
			sink(fmt.Sprintf("Error: %v", err))
		}
		return report, err
	}

	return report, nil
}
