package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/kitchenline/internal/core/domain"
	"github.com/vietddude/kitchenline/internal/infra/storage/memory"
	"github.com/vietddude/kitchenline/internal/infra/transport"
)

// =============================================================================
// Mocks
// =============================================================================

type stubConnectivity struct {
	state domain.ConnectivityState
}

func (s stubConnectivity) Current() domain.ConnectivityState { return s.state }

type stubQueue struct {
	count int
	err   error
}

func (s stubQueue) Len(ctx context.Context) (int, error) { return s.count, s.err }

type stubTransport struct {
	status transport.HealthStatus
}

func (s stubTransport) GetHealth() transport.HealthStatus { return s.status }

type downBackend struct {
	*memory.Storage
}

func (downBackend) Ping(ctx context.Context) error { return errors.New("connection refused") }

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	monitor := NewMonitor(
		stubConnectivity{domain.StateOnline},
		stubQueue{count: 0},
		stubTransport{transport.HealthStatus{ErrorRate: 0.1}},
		memory.NewStorage(),
	)

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s (%v)", report.SystemStatus, report.Problems)
	}
	if report.Connectivity != "online" {
		t.Errorf("expected online, got %s", report.Connectivity)
	}
}

func TestMonitor_Degraded(t *testing.T) {
	tests := []struct {
		name  string
		state domain.ConnectivityState
		count int
		rate  float64
	}{
		{"offline", domain.StateOffline, 0, 0},
		{"pending", domain.StateOnline, 3, 0},
		{"errors", domain.StateOnline, 0, 0.8},
	}

	for _, tt := range tests {
		monitor := NewMonitor(
			stubConnectivity{tt.state},
			stubQueue{count: tt.count},
			stubTransport{transport.HealthStatus{ErrorRate: tt.rate}},
			nil,
		)
		report := monitor.CheckHealth(context.Background())
		if report.SystemStatus != StatusDegraded {
			t.Errorf("%s: expected degraded, got %s", tt.name, report.SystemStatus)
		}
	}
}

func TestMonitor_Critical(t *testing.T) {
	tests := []struct {
		name    string
		queue   stubQueue
		backend *memory.Storage
		down    bool
	}{
		{"queue backlog", stubQueue{count: 1000}, nil, false},
		{"queue unreadable", stubQueue{err: errors.New("decode")}, nil, false},
		{"storage down", stubQueue{}, memory.NewStorage(), true},
	}

	for _, tt := range tests {
		var monitor *Monitor
		if tt.down {
			monitor = NewMonitor(stubConnectivity{domain.StateOnline}, tt.queue, nil, downBackend{tt.backend})
		} else {
			monitor = NewMonitor(stubConnectivity{domain.StateOnline}, tt.queue, nil, nil)
		}
		report := monitor.CheckHealth(context.Background())
		if report.SystemStatus != StatusCritical {
			t.Errorf("%s: expected critical, got %s", tt.name, report.SystemStatus)
		}
	}
}

func TestServer_Endpoints(t *testing.T) {
	monitor := NewMonitor(stubConnectivity{domain.StateOffline}, stubQueue{count: 2}, nil, nil)
	srv := NewServer(monitor, 0, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for degraded, got %d", rec.Code)
	}
	var body statusBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad health body: %v", err)
	}
	if body.Status != StatusDegraded || body.Connectivity != "offline" || body.PendingActions != 2 {
		t.Errorf("unexpected status body %+v", body)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	var report HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("bad detailed body: %v", err)
	}
	if report.PendingActions != 2 || report.Connectivity != "offline" {
		t.Errorf("unexpected report %+v", report)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected metrics endpoint, got %d", rec.Code)
	}
}

func TestServer_CriticalReturns503(t *testing.T) {
	monitor := NewMonitor(stubConnectivity{domain.StateOnline}, stubQueue{err: errors.New("boom")}, nil, nil)
	srv := NewServer(monitor, 0, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

type stubPending struct {
	actions []domain.PendingAction
	err     error
}

func (s stubPending) List(ctx context.Context) ([]domain.PendingAction, error) { return s.actions, s.err }

func TestServer_Pending(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pending := stubPending{actions: []domain.PendingAction{
		{ID: "a", Method: domain.MethodPost, Endpoint: "/orders", Body: []byte(`{"secret":1}`), EnqueuedAt: now.Add(-90 * time.Second)},
		{ID: "b", Method: domain.MethodPatch, Endpoint: "/orders/42", EnqueuedAt: now.Add(-10 * time.Second)},
		{ID: "c", Method: domain.MethodPost, Endpoint: "/orders", EnqueuedAt: now},
	}}
	monitor := NewMonitor(stubConnectivity{domain.StateOffline}, stubQueue{count: 3}, nil, nil)
	srv := NewServer(monitor, 0, pending)
	srv.now = func() time.Time { return now }

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/pending", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Error("request bodies must not be exposed")
	}

	var body pendingBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad pending body: %v", err)
	}
	if body.Count != 3 || body.OldestAgeSeconds != 90 {
		t.Errorf("unexpected summary %+v", body)
	}
	if body.ByMethod[domain.MethodPost] != 2 || body.ByMethod[domain.MethodPatch] != 1 {
		t.Errorf("unexpected method counts %v", body.ByMethod)
	}
	if len(body.Actions) != 3 || body.Actions[0].ID != "a" || body.Actions[2].ID != "c" {
		t.Errorf("actions should keep queue order: %+v", body.Actions)
	}
}

func TestServer_PendingErrors(t *testing.T) {
	monitor := NewMonitor(stubConnectivity{domain.StateOnline}, stubQueue{}, nil, nil)

	srv := NewServer(monitor, 0, stubPending{err: errors.New("storage down")})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/pending", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 on list failure, got %d", rec.Code)
	}

	srv = NewServer(monitor, 0, nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/pending", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a lister, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST, got %d", rec.Code)
	}
}
