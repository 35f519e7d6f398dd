package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scanner-service/internal/config"
	"scanner-service/internal/handler"
)

func newHealthRouter() *gin.Engine {
	cfg := &config.Config{App: config.AppConfig{Name: "scanner-service", Version: "1.2.0"}}
	router := gin.New()
	handler.NewHealthHandler(nil, nil, cfg, zap.NewNop()).RegisterRoutes(router)
	return router
}

func TestHealthCheckWithoutDatabase(t *testing.T) {
	router := newHealthRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "1.2.0", health.Version)
	assert.Equal(t, "disabled", health.Checks["database"].Status)
}

func TestProbesWithoutDatabase(t *testing.T) {
	router := newHealthRouter()

	tests := []struct {
		path string
		want int
	}{
		{"/live", http.StatusOK},
		{"/ready", http.StatusOK},
		{"/health/db", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
