package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"v850-service/internal/config"
	"v850-service/internal/handler"
	"v850-service/internal/middleware"
	"v850-service/internal/repository"
	"v850-service/internal/service"
)

func TestSetupRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	cfg := &config.Config{
		Server: config.ServerConfig{OpenAPIFile: "../../api/openapi.yaml"},
		App:    config.AppConfig{Name: "v850-service", Environment: "test"},
		USB:    config.USBConfig{TransferMode: config.TransferModeSimulator},
		Target: config.TargetConfig{OscillatorMHz: "5", BaudRate: 9600, OperationTimeout: time.Minute},
	}
	targets := service.NewTargetService(cfg, repository.NewMemorySessionRepository(0), nil, logger)
	bus := handler.NewEventBus(logger)
	ws := handler.NewWebSocketHandler(bus, nil, logger)

	r := NewRouter(cfg, logger, nil, targets, nil, ws).SetupRouter()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/live", http.StatusOK},
		{http.MethodGet, "/api/v1/sessions", http.StatusOK},
		{http.MethodGet, "/ws/stats", http.StatusOK},
		{http.MethodGet, OpenAPIPath, http.StatusOK},
		{http.MethodGet, "/docs", http.StatusMovedPermanently},
		{http.MethodGet, "/api/v1/discovery/scan", http.StatusNotFound},
		{http.MethodPost, "/api/v1/target/erase", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("missing request id header")
			}
		})
	}
}
