package scanner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scanner-service/internal/protocol"
	"scanner-service/internal/scanner"
	"scanner-service/internal/scanner/scannertest"
)

func TestRunFullSession(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600).WithChain(5, 7)
	dev := sc.Device()
	rec := &recorder{}

	var names []string
	report, err := scanner.Run(context.Background(), dev, testSessionConfig(9600), zap.NewNop(), rec.sink,
		func(r scanner.SystemRecord) error {
			names = append(names, r.Name)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Connecting...",
		"Model: BC125AT",
		"Entered programming mode.",
		"",
		"Memory used: 12%",
		"2 systems detected.",
		"Found system: System 5",
		"Found system: System 7",
		"Exited programming mode.",
		"Disconnected.",
	}, rec.lines)

	assert.Equal(t, []string{"System 5", "System 7"}, names)
	assert.Equal(t, "BC125AT", report.Model)
	assert.Equal(t, 9600, report.BaudRate)
	assert.Equal(t, 2, report.SystemCount)
	assert.Equal(t, 2, report.Systems)
	assert.Equal(t, scanner.StateClosed, report.State)
	assert.True(t, report.MemoryUsed.Valid)
	require.NotNil(t, report.PortStats)
	assert.Positive(t, report.PortStats.FramesRead)
	assert.Equal(t, 1, dev.Closes())
}

func TestRunProgramRejectedStillCloses(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600)
	sc.ProgramStatus = "NG"
	dev := sc.Device()
	rec := &recorder{}

	report, err := scanner.Run(context.Background(), dev, testSessionConfig(9600), zap.NewNop(), rec.sink, nil)

	var rejected *protocol.DeviceRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, scanner.StateFailed, report.State)
	assert.Equal(t, 1, dev.Closes())

	assert.Equal(t, []string{
		"Connecting...",
		"Model: BC125AT",
		"Error: Failed to enter programming mode: NG",
	}, rec.lines)
	assert.Zero(t, dev.CountCommands(scanner.CmdMemoryUsed))
}

func TestRunCloseFailureDoesNotMaskError(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600)
	sc.ProgramStatus = "NG"
	dev := sc.Device()
	dev.CloseErr = errors.New("handle already released")
	rec := &recorder{}

	report, err := scanner.Run(context.Background(), dev, testSessionConfig(9600), zap.NewNop(), rec.sink, nil)

	var rejected *protocol.DeviceRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.NotErrorIs(t, err, dev.CloseErr)
	assert.Equal(t, scanner.StateFailed, report.State)
	require.NotEmpty(t, rec.lines)
	assert.Contains(t, rec.lines[len(rec.lines)-1], "Error: Failed to close port")
}

func TestRunCloseFailureAfterCleanExit(t *testing.T) {
	dev := scannertest.New("BC125AT", 9600).Device()
	dev.CloseErr = errors.New("handle already released")
	rec := &recorder{}

	report, err := scanner.Run(context.Background(), dev, testSessionConfig(9600), zap.NewNop(), rec.sink, nil)
	require.ErrorIs(t, err, dev.CloseErr)
	assert.Equal(t, scanner.StateFailed, report.State)
	assert.NotContains(t, rec.lines, "Disconnected.")
	assert.Contains(t, rec.lines, "Exited programming mode.")
}

func TestRunOpenFailure(t *testing.T) {
	dev := scannertest.New("BC125AT", 9600).Device()
	dev.OpenErr = func(int) error { return errors.New("no such device") }
	rec := &recorder{}

	report, err := scanner.Run(context.Background(), dev, testSessionConfig(9600), zap.NewNop(), rec.sink, nil)

	var transportErr *protocol.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "open", transportErr.Op)
	assert.Equal(t, scanner.StateFailed, report.State)
	assert.Zero(t, dev.Closes())
	assert.Equal(t, "Connecting...", rec.lines[0])
}

func TestRunEmitErrorAbortsEnumeration(t *testing.T) {
	dev := scannertest.New("BC125AT", 9600).WithChain(1, 2, 3).Device()
	stop := errors.New("storage full")

	report, err := scanner.Run(context.Background(), dev, testSessionConfig(9600), zap.NewNop(), nil,
		func(scanner.SystemRecord) error { return stop })
	require.ErrorIs(t, err, stop)
	assert.Equal(t, scanner.StateFailed, report.State)
	assert.Equal(t, 1, dev.CountCommands(scanner.CmdSystemInfo))
	assert.Equal(t, 1, dev.CountCommands(scanner.CmdExitProgramming))
	assert.Equal(t, 1, dev.Closes())
}

func TestRunLeavesProgrammingModeWhenEnumerationFails(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600).WithChain(3, 1, 2)
	delete(sc.Systems, 1)
	dev := sc.Device()
	rec := &recorder{}

	report, err := scanner.Run(context.Background(), dev, testSessionConfig(9600), zap.NewNop(), rec.sink, nil)

	var mismatch *protocol.ProtocolMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, scanner.CmdSystemInfo, mismatch.Expected)
	assert.Equal(t, "ERR", mismatch.Actual)

	assert.Equal(t, []string{"MDL", "PRG", "MEM", "SCT", "SIH", "SIN,3", "FWD,3", "SIN,1", "EPG"}, dev.Lines())
	assert.Equal(t, 1, dev.CountCommands(scanner.CmdExitProgramming))
	assert.Equal(t, 1, dev.Closes())
	assert.Equal(t, scanner.StateFailed, report.State)
	assert.Equal(t, 1, report.Systems)
	assert.Equal(t, "Exited programming mode.", rec.lines[len(rec.lines)-1])
}

func TestRunExitFailureAfterEnumerationErrorIsSecondary(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600).WithChain(3, 1)
	delete(sc.Systems, 1)
	sc.ExitStatus = "NG"
	dev := sc.Device()
	rec := &recorder{}

	report, err := scanner.Run(context.Background(), dev, testSessionConfig(9600), zap.NewNop(), rec.sink, nil)

	var mismatch *protocol.ProtocolMismatchError
	require.ErrorAs(t, err, &mismatch)
	var rejected *protocol.DeviceRejectedError
	assert.False(t, errors.As(err, &rejected))

	assert.Equal(t, 1, dev.CountCommands(scanner.CmdExitProgramming))
	assert.Equal(t, 1, dev.Closes())
	assert.Equal(t, scanner.StateFailed, report.State)
	assert.Contains(t, rec.lines[len(rec.lines)-1], "Error: Failed to exit programming mode")
}
