package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"v850-service/internal/utils"
)

func newEngine(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	r := gin.New()
	r.Use(RecoveryMiddleware(logger))
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(utils.NewServiceLogger(logger, "http-server")))
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetRequestID(c))
	})
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	return r, logs
}

func TestRequestID(t *testing.T) {
	r, _ := newEngine(t)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"generated", "", ""},
		{"propagated", "abc-123", "abc-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q, body %q", got, w.Body.String())
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("request id = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoggingAndRecovery(t *testing.T) {
	r, logs := newEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if logs.FilterMessage("Panic recovered").Len() != 1 {
		t.Error("panic was not logged")
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	entries := logs.FilterMessage("API request").All()
	if len(entries) == 0 {
		t.Fatal("request was not logged")
	}
	last := entries[len(entries)-1].ContextMap()
	if last["path"] != "/ok" || last["status_code"] != int64(http.StatusOK) {
		t.Errorf("log fields = %v", last)
	}
}
