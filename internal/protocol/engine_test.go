package protocol_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanner-service/internal/protocol"
	"scanner-service/internal/protocol/protocoltest"
)

// echoHandler answers every command with its base name and a fixed payload
func echoHandler(payload string) protocoltest.Handler {
	return func(_ int, line string) []string {
		return []string{protocol.BaseCommand(line) + "," + payload + "\r"}
	}
}

func TestBaseCommand(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"MDL", "MDL"},
		{"SIN,12", "SIN"},
		{"FWD,3,extra", "FWD"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, protocol.BaseCommand(tt.line), tt.line)
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "MDL", protocol.NewCommand("MDL").String())
	assert.Equal(t, "SIN,7", protocol.NewCommand("SIN", "7").String())
	assert.Equal(t, "XYZ,1,,3", protocol.NewCommand("XYZ", "1", "", "3").String())
}

func TestSendReturnsPayload(t *testing.T) {
	dev := protocoltest.NewDevice(echoHandler("OK"))
	port := openTestPort(t, dev)

	payload, err := protocol.Send(context.Background(), port, "PRG")
	require.NoError(t, err)
	assert.Equal(t, []string{"OK"}, payload)

	payload, err = protocol.SendCommand(context.Background(), port, protocol.NewCommand("FWD", "4"))
	require.NoError(t, err)
	assert.Equal(t, []string{"OK"}, payload)
	assert.Equal(t, []string{"PRG", "FWD,4"}, dev.Lines())
}

func TestSendRejectsMismatchedEcho(t *testing.T) {
	commands := []string{"MDL", "PRG", "MEM", "SCT", "SIH", "SIN,1", "FWD,1", "EPG"}

	for _, cmd := range commands {
		t.Run(cmd, func(t *testing.T) {
			dev := protocoltest.NewDevice(func(int, string) []string {
				return []string{"ERR\r"}
			})
			port := openTestPort(t, dev)

			payload, err := protocol.Send(context.Background(), port, cmd)
			assert.Nil(t, payload)

			var mismatch *protocol.ProtocolMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, protocol.BaseCommand(cmd), mismatch.Expected)
			assert.Equal(t, "ERR", mismatch.Actual)
		})
	}
}

func TestSendTruncatedResponse(t *testing.T) {
	dev := protocoltest.NewDevice(func(int, string) []string {
		return []string{"MD", protocoltest.Hangup}
	})
	port := openTestPort(t, dev)

	payload, err := protocol.Send(context.Background(), port, "MDL")
	assert.Nil(t, payload)

	var mismatch *protocol.ProtocolMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "MD", mismatch.Actual)
}

func TestSendTimeoutNamesCommand(t *testing.T) {
	dev := protocoltest.NewDevice(nil)
	port := openTestPort(t, dev)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := protocol.Send(ctx, port, "SIN,3")
	require.ErrorIs(t, err, protocol.ErrTimeout)

	var timeoutErr *protocol.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "SIN", timeoutErr.Command)
}

func TestSendWriteFailure(t *testing.T) {
	dev := protocoltest.NewDevice(echoHandler("OK"))
	port := openTestPort(t, dev)

	// Closing the stream underneath the port makes the next write fail
	require.NoError(t, dev.Last().Close())

	_, err := protocol.Send(context.Background(), port, "MDL")
	var transportErr *protocol.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "write", transportErr.Op)
	assert.True(t, errors.Is(err, transportErr.Err))
}
