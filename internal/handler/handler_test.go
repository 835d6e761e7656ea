package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"v850-service/internal/config"
	"v850-service/internal/device"
	"v850-service/internal/discovery"
	"v850-service/internal/frame"
	"v850-service/internal/repository"
	"v850-service/internal/sequencer"
	"v850-service/internal/service"
	"v850-service/internal/simulator"
	"v850-service/internal/transport"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "v850-service", Version: "test"},
		USB: config.USBConfig{
			TransferMode: config.TransferModeSimulator,
			BulkTimeout:  100 * time.Millisecond,
		},
		Target: config.TargetConfig{
			OscillatorMHz:    "5",
			BaudRate:         9600,
			ConfirmAttempts:  4,
			OperationTimeout: 5 * time.Second,
		},
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

// newTargetRouter serves the target and session handlers over simulated
// targets. prepare, when set, runs on each target before it is connected.
func newTargetRouter(t *testing.T, prepare func(*simulator.Target)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	svc := service.NewTargetService(testConfig(), repository.NewMemorySessionRepository(0), nil, logger,
		service.WithConnector(func(context.Context, device.Selector) (*device.Link, error) {
			target := simulator.New(logger)
			if prepare != nil {
				prepare(target)
			}
			return device.NewSimulatorLink(target), nil
		}),
		service.WithSequencerOptions(sequencer.WithSleep(noSleep)),
	)

	r := gin.New()
	api := r.Group("/api/v1")
	NewTargetHandler(svc, logger).RegisterRoutes(api)
	NewSessionHandler(svc, logger).RegisterRoutes(api)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v: %s", method, path, err, w.Body.String())
		}
	}
	return w, env
}

func TestTargetEndpoints(t *testing.T) {
	r := newTargetRouter(t, nil)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"bringup defaults", "/api/v1/target/bringup", "", http.StatusOK},
		{"bringup with params", "/api/v1/target/bringup", `{"oscillator_mhz":"4.91","baud_rate":115200}`, http.StatusOK},
		{"bringup bad oscillator", "/api/v1/target/bringup", `{"oscillator_mhz":"fast"}`, http.StatusBadRequest},
		{"bringup unencodable oscillator", "/api/v1/target/bringup", `{"oscillator_mhz":"4.9152"}`, http.StatusBadRequest},
		{"bringup malformed body", "/api/v1/target/bringup", `{`, http.StatusBadRequest},
		{"reset", "/api/v1/target/reset", "", http.StatusOK},
		{"signature", "/api/v1/target/signature", `{"port":""}`, http.StatusOK},
		{"oscillator", "/api/v1/target/oscillator", `{"oscillator_mhz":"8"}`, http.StatusOK},
		{"oscillator missing", "/api/v1/target/oscillator", `{}`, http.StatusBadRequest},
		{"baud rate", "/api/v1/target/baud-rate", `{"baud_rate":38400}`, http.StatusOK},
		{"baud rate missing", "/api/v1/target/baud-rate", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if env.Success != (tt.wantStatus == http.StatusOK) {
				t.Errorf("success = %v", env.Success)
			}
		})
	}
}

func TestTargetRejectionReturnsFailedSession(t *testing.T) {
	r := newTargetRouter(t, func(target *simulator.Target) {
		target.QueueStatus(frame.CmdReset, frame.StatusNACK)
	})

	w, env := do(t, r, http.MethodPost, "/api/v1/target/reset", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", w.Code, w.Body.String())
	}
	if env.Error == nil || env.Error.Code != "TARGET_ERROR" {
		t.Errorf("error = %+v", env.Error)
	}

	var session struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &session); err != nil {
		t.Fatal(err)
	}
	if session.Status != "FAILED" || session.ID == "" {
		t.Fatalf("session = %+v", session)
	}

	w, _ = do(t, r, http.MethodGet, "/api/v1/sessions/"+session.ID, "")
	if w.Code != http.StatusOK {
		t.Errorf("GET session status = %d", w.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	r := newTargetRouter(t, nil)
	for i := 0; i < 3; i++ {
		if w, _ := do(t, r, http.MethodPost, "/api/v1/target/reset", ""); w.Code != http.StatusOK {
			t.Fatalf("reset status = %d", w.Code)
		}
	}
	do(t, r, http.MethodPost, "/api/v1/target/signature", "")

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantTotal  int
		wantLen    int
	}{
		{"all", "", http.StatusOK, 4, 4},
		{"paged", "?per_page=2&page=2", http.StatusOK, 4, 2},
		{"by operation", "?operation=reset", http.StatusOK, 3, 3},
		{"by status", "?status=FAILED", http.StatusOK, 0, 0},
		{"bad operation", "?operation=ERASE", http.StatusBadRequest, 0, 0},
		{"bad page", "?page=zero", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, http.MethodGet, "/api/v1/sessions"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Code != http.StatusOK {
				return
			}
			var page struct {
				Sessions   []json.RawMessage `json:"sessions"`
				Pagination struct {
					Total int `json:"total"`
				} `json:"pagination"`
			}
			if err := json.Unmarshal(env.Data, &page); err != nil {
				t.Fatal(err)
			}
			if page.Pagination.Total != tt.wantTotal || len(page.Sessions) != tt.wantLen {
				t.Errorf("got %d of %d, want %d of %d", len(page.Sessions), page.Pagination.Total, tt.wantLen, tt.wantTotal)
			}
		})
	}

	if w, _ := do(t, r, http.MethodGet, "/api/v1/sessions/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/api/v1/sessions/00000000-0000-0000-0000-000000000001", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", w.Code)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &sequencer.ValidationError{Field: "baud_rate"}, http.StatusBadRequest},
		{"no bridge", fmt.Errorf("open: %w", device.ErrNotFound), http.StatusNotFound},
		{"no session", repository.ErrSessionNotFound, http.StatusNotFound},
		{"deadline", fmt.Errorf("waiting: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"silent target", &sequencer.ProtocolError{Operation: "RESET", Err: transport.ErrTimeout}, http.StatusGatewayTimeout},
		{"rejected", &sequencer.ProtocolError{Operation: "RESET", Status: frame.StatusNACK}, http.StatusBadGateway},
		{"other", errors.New("usb gone"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusForError(tt.err); got != tt.want {
				t.Errorf("StatusForError() = %d, want %d", got, tt.want)
			}
		})
	}
}

type fakeScanner struct {
	bridges []*discovery.DiscoveredBridge
}

func (f *fakeScanner) Scan(context.Context) ([]*discovery.DiscoveredBridge, error) {
	return f.bridges, nil
}
func (f *fakeScanner) GetScannerType() string { return discovery.ScannerSerial }
func (f *fakeScanner) IsAvailable() bool      { return true }

func TestDiscoveryEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	sm := discovery.NewScannerManager(logger)
	sm.RegisterScanner(&fakeScanner{bridges: []*discovery.DiscoveredBridge{
		{Scanner: discovery.ScannerSerial, Port: "/dev/ttyUSB0", Board: "V850ESJX3-STICK", Confidence: 0.95},
	}})
	svc := service.NewDiscoveryServiceWithManager(sm, testConfig(), logger)

	r := gin.New()
	NewDiscoveryHandler(svc, logger).RegisterRoutes(r.Group("/api/v1"))

	if w, _ := do(t, r, http.MethodGet, "/api/v1/discovery/last", ""); w.Code != http.StatusNotFound {
		t.Errorf("last before scan = %d, want 404", w.Code)
	}

	w, env := do(t, r, http.MethodGet, "/api/v1/discovery/scan?type=serial", "")
	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d: %s", w.Code, w.Body.String())
	}
	var result service.ScanResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Bridges) != 1 || result.Bridges[0].Port != "/dev/ttyUSB0" {
		t.Errorf("bridges = %+v", result.Bridges)
	}

	if w, _ := do(t, r, http.MethodGet, "/api/v1/discovery/last", ""); w.Code != http.StatusOK {
		t.Errorf("last after scan = %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/api/v1/discovery/scan?type=tcp", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unsupported type = %d, want 400", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/api/v1/discovery/scanners", ""); w.Code != http.StatusOK {
		t.Errorf("scanners = %d", w.Code)
	}
}

type fakeDB struct{ err error }

func (f fakeDB) Health(context.Context) error { return f.err }

func TestHealthEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		db         HealthChecker
		wantHealth int
		wantReady  int
	}{
		{"memory store", nil, http.StatusOK, http.StatusOK},
		{"database up", fakeDB{}, http.StatusOK, http.StatusOK},
		{"database down", fakeDB{err: errors.New("refused")}, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(nil, testConfig(), func() []string { return []string{"usb"} }, zaptest.NewLogger(t))
			h.db = tt.db
			r := gin.New()
			h.RegisterRoutes(r)

			if w, _ := do(t, r, http.MethodGet, "/health", ""); w.Code != tt.wantHealth {
				t.Errorf("/health = %d, want %d", w.Code, tt.wantHealth)
			}
			if w, _ := do(t, r, http.MethodGet, "/ready", ""); w.Code != tt.wantReady {
				t.Errorf("/ready = %d, want %d", w.Code, tt.wantReady)
			}
			if w, _ := do(t, r, http.MethodGet, "/live", ""); w.Code != http.StatusOK {
				t.Errorf("/live = %d", w.Code)
			}
		})
	}
}

// exampleBody builds a request body from the example tags of v's fields.
func exampleBody(t *testing.T, v interface{}) string {
	t.Helper()
	body := map[string]json.RawMessage{}
	typ := reflect.TypeOf(v)
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		example, ok := field.Tag.Lookup("example")
		if field.Anonymous || !ok {
			continue
		}
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if field.Type.Kind() == reflect.String {
			example = strconv.Quote(example)
		}
		body[name] = json.RawMessage(example)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func TestDocumentedExamplesAreAccepted(t *testing.T) {
	r := newTargetRouter(t, nil)

	tests := []struct {
		path    string
		request interface{}
	}{
		{"/api/v1/target/bringup", BringUpRequest{}},
		{"/api/v1/target/oscillator", OscillatorRequest{}},
		{"/api/v1/target/baud-rate", BaudRateRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			body := exampleBody(t, tt.request)
			if w, _ := do(t, r, http.MethodPost, tt.path, body); w.Code != http.StatusOK {
				t.Errorf("POST %s %s = %d: %s", tt.path, body, w.Code, w.Body.String())
			}
		})
	}
}
