package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scanner-service/internal/config"
	"scanner-service/internal/model"
	"scanner-service/internal/protocol"
	"scanner-service/internal/repository"
	"scanner-service/internal/scanner"
	"scanner-service/internal/scanner/scannertest"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []*model.SessionEvent
}

func (r *eventRecorder) Publish(event *model.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]model.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}

func testScannerConfig() *config.ScannerConfig {
	return &config.ScannerConfig{
		Port:               "/dev/ttyUSB0",
		CandidateBaudRates: []int{115200, 9600},
		DataBits:           8,
		StopBits:           1,
		Parity:             "none",
		ProbeTimeout:       30 * time.Millisecond,
		CommandTimeout:     100 * time.Millisecond,
		MaxResync:          2,
		CloseTimeout:       100 * time.Millisecond,
		SessionTimeout:     5 * time.Second,
	}
}

func newTestService(t *testing.T, opener protocol.Opener) (*ScannerService, repository.SessionRunRepository, *eventRecorder) {
	t.Helper()
	repo := repository.NewMemorySessionRunRepository(10)
	events := &eventRecorder{}
	factory := func(string) (protocol.Opener, error) { return opener, nil }
	return NewScannerService(repo, factory, events, testScannerConfig(), zap.NewNop()), repo, events
}

func TestRunSessionDetectsBaudRate(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600).WithChain(2, 4)
	dev := sc.Device()
	svc, repo, events := newTestService(t, dev)

	result, err := svc.RunSession(context.Background(), &SessionRequest{})
	require.NoError(t, err)

	require.Len(t, result.Systems, 2)
	assert.Equal(t, "System 2", result.Systems[0].Name)
	assert.Equal(t, "System 4", result.Systems[1].Name)

	assert.Equal(t, "Trying 115200 baud...", result.Log[0])
	assert.Contains(t, result.Log, "Detected 9600 baud.")
	assert.Equal(t, "Disconnected.", result.Log[len(result.Log)-1])

	run := result.Run
	assert.Equal(t, model.SessionRunStatusCompleted, run.Status)
	assert.Equal(t, 9600, run.BaudRate)
	assert.True(t, run.BaudDetected)
	assert.True(t, run.Trusted)
	assert.Equal(t, "BC125AT", run.Model)
	assert.Equal(t, 2, run.SystemCount)
	assert.Equal(t, 2, run.SystemsRead)
	assert.Equal(t, scanner.StateClosed.String(), run.State)
	assert.True(t, run.MemoryUsed.Valid)
	assert.Equal(t, "12", run.MemoryUsed.Decimal.String())
	assert.Nil(t, run.ErrorMessage)
	require.NotNil(t, run.CompletedAt)

	stored, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunStatusCompleted, stored.Status)

	rate, ok := svc.CachedBaudRate("/dev/ttyUSB0")
	assert.True(t, ok)
	assert.Equal(t, 9600, rate)

	types := events.types()
	require.NotEmpty(t, types)
	assert.Equal(t, model.EventSessionStarted, types[0])
	assert.Equal(t, model.EventSessionCompleted, types[len(types)-1])
	assert.Contains(t, types, model.EventBaudDetected)

	found := 0
	for _, typ := range types {
		if typ == model.EventSystemFound {
			found++
		}
	}
	assert.Equal(t, 2, found)
}

func TestRunSessionReusesCachedBaudRate(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600)
	dev := sc.Device()
	svc, _, _ := newTestService(t, dev)

	_, err := svc.RunSession(context.Background(), &SessionRequest{})
	require.NoError(t, err)
	result, err := svc.RunSession(context.Background(), &SessionRequest{})
	require.NoError(t, err)

	assert.Equal(t, []int{115200, 9600, 9600, 9600}, dev.Opens())
	assert.False(t, result.Run.BaudDetected)
	assert.Equal(t, 9600, result.Run.BaudRate)
}

func TestRunSessionFixedBaudRate(t *testing.T) {
	sc := scannertest.New("BCD396T", 57600)
	dev := sc.Device()
	svc, _, _ := newTestService(t, dev)

	result, err := svc.RunSession(context.Background(), &SessionRequest{Port: "COM4", BaudRate: 57600})
	require.NoError(t, err)

	assert.Equal(t, []int{57600}, dev.Opens())
	assert.Equal(t, "COM4", result.Run.Port)
	assert.Equal(t, "BCD396T", result.Run.Model)
	assert.Empty(t, result.Systems)
}

func TestRunSessionFailureIsRecorded(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600)
	sc.ProgramStatus = "NG"
	dev := sc.Device()
	svc, repo, events := newTestService(t, dev)

	_, err := svc.Detect(context.Background(), &DetectRequest{})
	require.NoError(t, err)

	result, err := svc.RunSession(context.Background(), &SessionRequest{})
	var rejected *protocol.DeviceRejectedError
	require.ErrorAs(t, err, &rejected)

	require.NotNil(t, result)
	run := result.Run
	assert.Equal(t, model.SessionRunStatusFailed, run.Status)
	assert.Equal(t, scanner.StateFailed.String(), run.State)
	require.NotNil(t, run.ErrorMessage)
	assert.False(t, run.MemoryUsed.Valid)
	assert.Contains(t, result.Log, "Error: Failed to enter programming mode: NG")

	stored, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunStatusFailed, stored.Status)

	_, ok := svc.CachedBaudRate("/dev/ttyUSB0")
	assert.False(t, ok)

	types := events.types()
	assert.Equal(t, model.EventSessionFailed, types[len(types)-1])
}

func TestRunSessionDetectionFailure(t *testing.T) {
	sc := scannertest.New("BC125AT", 4800)
	svc, repo, _ := newTestService(t, sc.Device())

	result, err := svc.RunSession(context.Background(), &SessionRequest{})
	require.ErrorIs(t, err, scanner.ErrNoBaudRate)
	assert.Equal(t, model.SessionRunStatusFailed, result.Run.Status)
	assert.Equal(t, scanner.StateFailed.String(), result.Run.State)

	page, err := svc.ListSessions(context.Background(), &repository.SessionRunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	stored, err := repo.GetByID(context.Background(), result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunStatusFailed, stored.Status)
}

func TestRunSessionRejectsBusyPort(t *testing.T) {
	svc, _, _ := newTestService(t, scannertest.New("BC125AT", 9600).Device())

	release, err := svc.acquire("/dev/ttyUSB0")
	require.NoError(t, err)

	_, err = svc.RunSession(context.Background(), &SessionRequest{})
	assert.ErrorIs(t, err, ErrPortBusy)
	_, err = svc.Detect(context.Background(), &DetectRequest{})
	assert.ErrorIs(t, err, ErrPortBusy)

	// other ports are unaffected
	_, err = svc.RunSession(context.Background(), &SessionRequest{Port: "/dev/ttyUSB1", BaudRate: 9600})
	assert.NoError(t, err)

	release()
	_, err = svc.RunSession(context.Background(), &SessionRequest{BaudRate: 9600})
	assert.NoError(t, err)
}

func TestRequestValidation(t *testing.T) {
	svc, _, _ := newTestService(t, scannertest.New("BC125AT", 9600).Device())
	svc.config.Port = ""

	var verr *ValidationError
	_, err := svc.RunSession(context.Background(), &SessionRequest{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "port", verr.Field)

	_, err = svc.RunSession(context.Background(), &SessionRequest{Port: "COM1", BaudRate: 1234})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "baud_rate", verr.Field)

	_, err = svc.Detect(context.Background(), &DetectRequest{Port: "COM1", Candidates: []int{9600, 7}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "candidates", verr.Field)
}

func TestDetectCachesResult(t *testing.T) {
	sc := scannertest.New("BC125XLT", 9600)
	svc, _, events := newTestService(t, sc.Device())

	detection, err := svc.Detect(context.Background(), &DetectRequest{Candidates: []int{9600}})
	require.NoError(t, err)
	assert.Equal(t, 9600, detection.BaudRate)
	assert.Equal(t, "BC125XLT", detection.Model())

	rate, ok := svc.CachedBaudRate("/dev/ttyUSB0")
	assert.True(t, ok)
	assert.Equal(t, 9600, rate)
	assert.Contains(t, events.types(), model.EventBaudDetected)
}

func TestOpenerFactoryFailure(t *testing.T) {
	repo := repository.NewMemorySessionRunRepository(10)
	factory := func(string) (protocol.Opener, error) { return nil, errors.New("no such port") }
	svc := NewScannerService(repo, factory, nil, testScannerConfig(), nil)

	result, err := svc.RunSession(context.Background(), &SessionRequest{BaudRate: 9600})
	require.ErrorContains(t, err, "no such port")
	assert.Equal(t, model.SessionRunStatusFailed, result.Run.Status)
}

func TestListSessionsPaging(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600)
	svc, _, _ := newTestService(t, sc.Device())

	for i := 0; i < 3; i++ {
		_, err := svc.RunSession(context.Background(), &SessionRequest{BaudRate: 9600})
		require.NoError(t, err)
	}

	page, err := svc.ListSessions(context.Background(), &repository.SessionRunFilter{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Sessions, 1)

	_, err = svc.GetSession(context.Background(), page.Sessions[0].ID)
	assert.NoError(t, err)
}
