package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"scanner-service/internal/config"
	"scanner-service/internal/handler"
	"scanner-service/internal/middleware"
	"scanner-service/internal/model"
	"scanner-service/internal/protocol"
	"scanner-service/internal/repository"
	"scanner-service/internal/scanner"
	"scanner-service/internal/scanner/scannertest"
	"scanner-service/internal/service"
	"scanner-service/internal/utils"
)

type apiResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Error     *utils.APIError `json:"error"`
	RequestID string          `json:"request_id"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newScannerRouter(t *testing.T, sc *scannertest.Scanner) *gin.Engine {
	t.Helper()
	return newScannerRouterWithLogger(t, sc, zap.NewNop())
}

func newScannerRouterWithLogger(t *testing.T, sc *scannertest.Scanner, logger *zap.Logger) *gin.Engine {
	t.Helper()

	cfg := &config.ScannerConfig{
		Port:               "/dev/ttyUSB0",
		CandidateBaudRates: []int{9600},
		DataBits:           8,
		StopBits:           1,
		Parity:             "none",
		ProbeTimeout:       30 * time.Millisecond,
		CommandTimeout:     100 * time.Millisecond,
		MaxResync:          2,
		CloseTimeout:       100 * time.Millisecond,
	}
	dev := sc.Device()
	factory := func(string) (protocol.Opener, error) { return dev, nil }
	svc := service.NewScannerService(repository.NewMemorySessionRunRepository(10), factory, nil, cfg, zap.NewNop())

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	handler.NewScannerHandler(svc, logger).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestRunSessionEndpoint(t *testing.T) {
	router := newScannerRouter(t, scannertest.New("BC125AT", 9600).WithChain(1, 3))

	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/sessions", `{"baud_rate": 9600}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)

	var result service.SessionResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Len(t, result.Systems, 2)
	assert.Equal(t, "System 1", result.Systems[0].Name)
	assert.Equal(t, 3, result.Systems[0].FwdIndex)
	assert.Equal(t, model.SessionRunStatusCompleted, result.Run.Status)
	assert.Equal(t, "CLOSED", result.Run.State)
	assert.Equal(t, "Disconnected.", result.Log[len(result.Log)-1])

	w, resp = doRequest(t, router, http.MethodGet, "/api/v1/sessions/"+result.Run.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var run model.SessionRun
	require.NoError(t, json.Unmarshal(resp.Data, &run))
	assert.Equal(t, result.Run.ID, run.ID)
	assert.Equal(t, "BC125AT", run.Model)
}

func TestRunSessionEndpointWithoutBody(t *testing.T) {
	router := newScannerRouter(t, scannertest.New("BC125AT", 9600))

	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result service.SessionResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.True(t, result.Run.BaudDetected)
	assert.Equal(t, 9600, result.Run.BaudRate)
}

func TestRunSessionEndpointRejected(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600)
	sc.ProgramStatus = "NG"
	router := newScannerRouter(t, sc)

	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/sessions", `{"baud_rate": 9600}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DEVICE_REJECTED", resp.Error.Code)

	var result service.SessionResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, model.SessionRunStatusFailed, result.Run.Status)
	assert.Contains(t, result.Log, "Error: Failed to enter programming mode: NG")
}

func TestRunSessionEndpointValidation(t *testing.T) {
	router := newScannerRouter(t, scannertest.New("BC125AT", 9600))

	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/sessions", `{"baud_rate": 1234}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	w, resp = doRequest(t, router, http.MethodPost, "/api/v1/sessions", `{"baud_rate": "fast"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
}

func TestDetectEndpoint(t *testing.T) {
	router := newScannerRouter(t, scannertest.New("BC125XLT", 9600))

	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/detect", `{"port": "COM3"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var detection scanner.Detection
	require.NoError(t, json.Unmarshal(resp.Data, &detection))
	assert.Equal(t, 9600, detection.BaudRate)
	assert.True(t, detection.Trusted)
	assert.Equal(t, []string{"BC125XLT"}, detection.Identity)
}

func TestDetectEndpointNoAnswer(t *testing.T) {
	router := newScannerRouter(t, scannertest.New("BC125XLT", 38400))

	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/detect", "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "DEVICE_TIMEOUT", resp.Error.Code)
}

func TestGetSessionEndpointErrors(t *testing.T) {
	router := newScannerRouter(t, scannertest.New("BC125AT", 9600))

	w, _ := doRequest(t, router, http.MethodGet, "/api/v1/sessions/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := doRequest(t, router, http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestListSessionsEndpoint(t *testing.T) {
	sc := scannertest.New("BC125AT", 9600)
	router := newScannerRouter(t, sc)

	for i := 0; i < 2; i++ {
		w, _ := doRequest(t, router, http.MethodPost, "/api/v1/sessions", `{"baud_rate": 9600}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, _ := doRequest(t, router, http.MethodPost, "/api/v1/sessions", `{"port": "COM9", "baud_rate": 9600}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := doRequest(t, router, http.MethodGet, "/api/v1/sessions?port=COM9", "")
	require.Equal(t, http.StatusOK, w.Code)

	var page service.SessionListResponse
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, "COM9", page.Sessions[0].Port)

	w, resp = doRequest(t, router, http.MethodGet, "/api/v1/sessions?status=COMPLETED&per_page=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Sessions, 2)
	assert.Equal(t, 2, page.TotalPages)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &service.ValidationError{Field: "port", Message: "required"}, http.StatusBadRequest},
		{"busy", fmt.Errorf("%w: COM1", service.ErrPortBusy), http.StatusConflict},
		{"not found", fmt.Errorf("get: %w", repository.ErrNotFound), http.StatusNotFound},
		{"rejected", fmt.Errorf("PRG failed: %w", &protocol.DeviceRejectedError{Command: "PRG", Status: "NG"}), http.StatusUnprocessableEntity},
		{"timeout", &protocol.TimeoutError{Command: "MDL", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"no baud", fmt.Errorf("%w (tried [9600])", scanner.ErrNoBaudRate), http.StatusGatewayTimeout},
		{"mismatch", &protocol.ProtocolMismatchError{Expected: "SIN", Actual: "FWD"}, http.StatusBadGateway},
		{"transport", &protocol.TransportError{Op: "open", Err: errors.New("no such file")}, http.StatusBadGateway},
		{"overrun", &scanner.ChainOverrunError{Count: 2, Index: 1}, http.StatusBadGateway},
		{"incomplete", protocol.ErrIncompleteFrame, http.StatusBadGateway},
		{"state", &scanner.StateError{Op: "exit programming mode", State: scanner.StateIdle}, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, handler.StatusForError(tt.err))
		})
	}
}

func TestDeviceFailuresAreLoggedWithRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	router := newScannerRouterWithLogger(t, scannertest.New("BC125AT", 115200), zap.New(core))

	w, resp := doRequest(t, router, http.MethodPost, "/api/v1/detect", "")
	require.Equal(t, http.StatusGatewayTimeout, w.Code)

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, resp.RequestID, fields["request_id"])
	assert.EqualValues(t, http.StatusGatewayTimeout, fields["status"])
	assert.Contains(t, fields, "error")
}
