package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/kitchenline/internal/core/domain"
	"github.com/vietddude/kitchenline/internal/infra/storage"
	"github.com/vietddude/kitchenline/internal/infra/transport"
)

// ConnectivityReader reports the last known connectivity state.
type ConnectivityReader interface {
	Current() domain.ConnectivityState
}

// QueueCounter reports how many writes await replay.
type QueueCounter interface {
	Len(ctx context.Context) (int, error)
}

// TransportHealth exposes transport statistics.
type TransportHealth interface {
	GetHealth() transport.HealthStatus
}

// Thresholds decide when a report turns degraded or critical.
type Thresholds struct {
	PendingDegraded    int
	PendingCritical    int
	TransportErrorRate float64
}

var DefaultThresholds = Thresholds{
	PendingDegraded:    1,
	PendingCritical:    500,
	TransportErrorRate: 0.5,
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	connectivity ConnectivityReader
	queue        QueueCounter
	transport    TransportHealth
	backend      storage.Backend
	thresholds   Thresholds
	lastCheck    time.Time
	lastReport   *HealthReport
	mu           sync.Mutex
}

// NewMonitor creates a new health monitor. transport and backend may be nil.
func NewMonitor(
	connectivity ConnectivityReader,
	queue QueueCounter,
	transport TransportHealth,
	backend storage.Backend,
) *Monitor {
	return &Monitor{
		connectivity: connectivity,
		queue:        queue,
		transport:    transport,
		backend:      backend,
		thresholds:   DefaultThresholds,
	}
}

// SetThresholds overrides DefaultThresholds.
func (m *Monitor) SetThresholds(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = t
	m.lastReport = nil
}

// CheckHealth builds a report. Results are reused for up to 10s.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < 10*time.Second {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Connectivity: m.connectivity.Current().String(),
		Storage:      "ok",
	}
	degrade := func(problem string) {
		report.Problems = append(report.Problems, problem)
		if report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}
	critical := func(problem string) {
		report.Problems = append(report.Problems, problem)
		report.SystemStatus = StatusCritical
	}

	// 1. Connectivity
	if !m.connectivity.Current().IsOnline() {
		degrade("api unreachable")
	}

	// 2. Storage
	if m.backend != nil {
		if err := storage.Ping(ctx, m.backend); err != nil {
			report.Storage = err.Error()
			critical("storage unreachable")
		}
	}

	// 3. Pending actions
	count, err := m.queue.Len(ctx)
	if err != nil {
		critical(fmt.Sprintf("pending queue unreadable: %v", err))
	} else {
		report.PendingActions = count
		switch {
		case count >= m.thresholds.PendingCritical:
			critical(fmt.Sprintf("%d pending actions", count))
		case count >= m.thresholds.PendingDegraded:
			degrade(fmt.Sprintf("%d pending actions", count))
		}
	}

	// 4. Transport error rate
	if m.transport != nil {
		h := m.transport.GetHealth()
		report.TransportErrorRate = h.ErrorRate
		report.TransportLatencyMs = h.Latency.Milliseconds()
		if h.ErrorRate > m.thresholds.TransportErrorRate {
			degrade(fmt.Sprintf("transport error rate %.2f", h.ErrorRate))
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
