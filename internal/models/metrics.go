package models

import "time"

// Metric record types produced by the request middleware and accepted over
// the admin API.
const (
	MetricRequest = "request"
	MetricGauge   = "gauge"
)

// MetricRecord is one buffered measurement. Request records carry Operation,
// Success and DurationMs; gauge records carry Name and Value.
type MetricRecord struct {
	Type       string    `json:"type"`
	Name       string    `json:"name,omitempty"`
	Value      float64   `json:"value,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	Success    bool      `json:"success,omitempty"`
	DurationMs float64   `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Health statuses reported by the health source.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
	// HealthUnreachable is synthesized when the health source cannot be
	// queried at all.
	HealthUnreachable = "unreachable"
)

// HealthStatus is a snapshot from the health-check source.
type HealthStatus struct {
	Status     string            `json:"status"`
	Subsystems map[string]string `json:"subsystems,omitempty"`
	CheckedAt  time.Time         `json:"checked_at"`
}
