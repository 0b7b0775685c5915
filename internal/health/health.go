// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus       SystemStatus `json:"system_status"`
	Connectivity       string       `json:"connectivity"`
	PendingActions     int          `json:"pending_actions"`
	TransportErrorRate float64      `json:"transport_error_rate"`
	TransportLatencyMs int64        `json:"transport_latency_ms"`
	Storage            string       `json:"storage"`
	Problems           []string     `json:"problems,omitempty"`
}
