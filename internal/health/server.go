package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/kitchenline/internal/core/domain"
)

// PendingLister exposes the queued writes. Bodies are never served.
type PendingLister interface {
	List(ctx context.Context) ([]domain.PendingAction, error)
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	monitor *Monitor
	pending PendingLister
	now     func() time.Time
	server  *http.Server
}

type statusBody struct {
	Status         SystemStatus `json:"status"`
	Connectivity   string       `json:"connectivity"`
	PendingActions int          `json:"pending_actions"`
}

type pendingItem struct {
	ID         string        `json:"id"`
	Method     domain.Method `json:"method"`
	Endpoint   string        `json:"endpoint"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

type pendingBody struct {
	Count            int                   `json:"count"`
	OldestAgeSeconds int64                 `json:"oldest_age_seconds"`
	ByMethod         map[domain.Method]int `json:"by_method"`
	Actions          []pendingItem         `json:"actions"`
}

// NewServer creates a new health server. /health/pending is only served
// when pending is non-nil.
func NewServer(monitor *Monitor, port int, pending PendingLister) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		pending: pending,
		now:     time.Now,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	if pending != nil {
		mux.HandleFunc("GET /health/pending", s.handlePending)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth answers 503 only when critical.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, statusBody{
		Status:         report.SystemStatus,
		Connectivity:   report.Connectivity,
		PendingActions: report.PendingActions,
	})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	actions, err := s.pending.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	body := pendingBody{
		Count:    len(actions),
		ByMethod: make(map[domain.Method]int),
		Actions:  make([]pendingItem, 0, len(actions)),
	}
	for _, a := range actions {
		body.ByMethod[a.Method]++
		body.Actions = append(body.Actions, pendingItem{
			ID:         a.ID,
			Method:     a.Method,
			Endpoint:   a.Endpoint,
			EnqueuedAt: a.EnqueuedAt,
		})
	}
	// FIFO: the head is the oldest.
	if len(actions) > 0 {
		body.OldestAgeSeconds = int64(s.now().Sub(actions[0].EnqueuedAt) / time.Second)
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
