package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scanner-service/internal/handler"
	"scanner-service/internal/model"
)

type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startLogStream(t *testing.T, origins []string) (*handler.EventBus, *handler.WebSocketHandler, *httptest.Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := handler.NewEventBus(zap.NewNop())
	ws := handler.NewWebSocketHandler(bus, origins, zap.NewNop())
	go bus.Start(ctx)
	go ws.Start(ctx)

	router := gin.New()
	ws.RegisterRoutes(router.Group("/ws"))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return bus, ws, server
}

func dialLogs(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/logs" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	frame := readFrame(t, conn)
	require.Equal(t, "connected", frame.Type)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func waitForClients(t *testing.T, ws *handler.WebSocketHandler, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ws.GetConnectionStats().TotalConnections == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogStreamDeliversSessionEvents(t *testing.T) {
	bus, ws, server := startLogStream(t, []string{"*"})
	conn := dialLogs(t, server, "")
	waitForClients(t, ws, 1)

	sessionID := uuid.New()
	bus.Publish(model.NewSessionEvent(model.EventSessionLog, sessionID, "COM3", model.JSONObject{"line": "Model: BC125AT"}))

	frame := readFrame(t, conn)
	assert.Equal(t, "session_event", frame.Type)

	var event model.SessionEvent
	require.NoError(t, json.Unmarshal(frame.Data, &event))
	assert.Equal(t, model.EventSessionLog, event.EventType)
	assert.Equal(t, sessionID, event.SessionID)
	assert.Equal(t, "Model: BC125AT", event.Data["line"])
}

func TestLogStreamFiltersByPort(t *testing.T) {
	bus, ws, server := startLogStream(t, []string{"*"})
	conn := dialLogs(t, server, "?port=COM4")
	waitForClients(t, ws, 1)

	bus.Publish(model.NewSessionEvent(model.EventSessionLog, uuid.New(), "COM3", model.JSONObject{"line": "other"}))
	bus.Publish(model.NewSessionEvent(model.EventSessionLog, uuid.New(), "COM4", model.JSONObject{"line": "mine"}))

	frame := readFrame(t, conn)
	var event model.SessionEvent
	require.NoError(t, json.Unmarshal(frame.Data, &event))
	assert.Equal(t, "COM4", event.Port)
	assert.Equal(t, "mine", event.Data["line"])
}

func TestLogStreamSubscriptions(t *testing.T) {
	bus, ws, server := startLogStream(t, []string{"*"})
	conn := dialLogs(t, server, "")
	waitForClients(t, ws, 1)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "subscribe",
		"data": map[string]interface{}{"event_types": []string{"SYSTEM_FOUND"}},
	}))
	assert.Equal(t, "subscription_confirmed", readFrame(t, conn).Type)

	bus.Publish(model.NewSessionEvent(model.EventSessionLog, uuid.New(), "COM3", nil))
	bus.Publish(model.NewSessionEvent(model.EventSystemFound, uuid.New(), "COM3", model.JSONObject{"name": "Police"}))

	frame := readFrame(t, conn)
	var event model.SessionEvent
	require.NoError(t, json.Unmarshal(frame.Data, &event))
	assert.Equal(t, model.EventSystemFound, event.EventType)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "reboot"}))
	assert.Equal(t, "error", readFrame(t, conn).Type)
}

func TestLogStreamRejectsBadSessionID(t *testing.T) {
	_, _, server := startLogStream(t, []string{"*"})

	resp, err := http.Get(server.URL + "/ws/logs?session_id=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogStreamChecksOrigin(t *testing.T) {
	_, _, server := startLogStream(t, []string{"http://allowed.example"})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/logs"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://allowed.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestEventBusFiltersByType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := handler.NewEventBus(nil)
	go bus.Start(ctx)

	found, stopFound := bus.Subscribe(model.EventSystemFound)
	all, stopAll := bus.Subscribe()
	defer stopAll()

	bus.Publish(model.NewSessionEvent(model.EventSessionLog, uuid.New(), "COM1", nil))
	bus.Publish(model.NewSessionEvent(model.EventSystemFound, uuid.New(), "COM1", nil))

	select {
	case event := <-found:
		assert.Equal(t, model.EventSystemFound, event.EventType)
	case <-time.After(time.Second):
		t.Fatal("no SYSTEM_FOUND event delivered")
	}

	for _, want := range []model.EventType{model.EventSessionLog, model.EventSystemFound} {
		select {
		case event := <-all:
			assert.Equal(t, want, event.EventType)
		case <-time.After(time.Second):
			t.Fatalf("no %s event delivered", want)
		}
	}

	stopFound()
	stopFound()
	_, open := <-found
	assert.False(t, open)
}
