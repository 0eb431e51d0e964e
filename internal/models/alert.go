package models

import (
	"time"

	"gorm.io/datatypes"
)

// Condition types understood by the alert evaluator.
const (
	ConditionMetric       = "metric"
	ConditionErrorRate    = "error_rate"
	ConditionResponseTime = "response_time"
	ConditionHealthCheck  = "health_check"
	ConditionCustom       = "custom"
)

// Comparators for alert conditions.
const (
	CompGT          = "gt"
	CompLT          = "lt"
	CompGTE         = "gte"
	CompLTE         = "lte"
	CompEQ          = "eq"
	CompContains    = "contains"
	CompNotContains = "not_contains"
)

// Alert severities, ordered least to most urgent.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Alert statuses. An alert only moves forward: active -> acknowledged -> resolved,
// with acknowledged optional.
const (
	AlertActive       = "active"
	AlertAcknowledged = "acknowledged"
	AlertResolved     = "resolved"
)

// AlertCondition is one clause of a threshold. Type selects which fields are
// meaningful: metric/error_rate/response_time compare a numeric aggregate
// against Threshold; health_check and custom compare a string against Expect.
type AlertCondition struct {
	Type       string `json:"type"`
	Comparator string `json:"comparator"`
	// Threshold is the numeric bound for metric, error_rate and response_time conditions.
	Threshold float64 `json:"threshold,omitempty"`
	// Expect is the expected value for eq/contains comparators on string-valued conditions.
	Expect string `json:"expect,omitempty"`
	// Field names the metric field a metric condition aggregates, or the
	// subsystem a health_check condition inspects (empty = overall status).
	Field string `json:"field,omitempty"`
	// WindowMinutes bounds how far back metric aggregation looks. 0 means 5 minutes.
	WindowMinutes int `json:"window_minutes,omitempty"`
}

// AlertThreshold is a registered alert rule. Conditions are AND-combined: the
// threshold fires only when every condition holds in the same evaluation pass.
type AlertThreshold struct {
	ID              string                               `gorm:"primaryKey" json:"id"`
	Name            string                               `gorm:"not null" json:"name"`
	Description     string                               `json:"description"`
	Severity        string                               `gorm:"not null;default:'warning'" json:"severity"`
	Enabled         bool                                 `gorm:"default:true" json:"enabled"`
	Conditions      datatypes.JSONSlice[AlertCondition]  `gorm:"type:jsonb" json:"conditions"`
	Channels        datatypes.JSONSlice[string]          `gorm:"type:jsonb" json:"channels"`
	CooldownMinutes int                                  `json:"cooldown_minutes"`
	CreatedAt       time.Time                            `json:"created_at"`
	UpdatedAt       time.Time                            `json:"updated_at"`
}

type Alert struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	ThresholdID    string     `gorm:"index" json:"threshold_id"`
	Severity       string     `gorm:"not null;default:'warning'" json:"severity"`
	Message        string     `gorm:"not null" json:"message"`
	Status         string     `gorm:"not null;default:'active'" json:"status"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SeverityRank maps a severity to its urgency for sorting. Unknown severities
// rank lowest.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 3
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// ValidSeverity reports whether s is one of the known severities.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// ValidComparator reports whether c is one of the known comparators.
func ValidComparator(c string) bool {
	switch c {
	case CompGT, CompLT, CompGTE, CompLTE, CompEQ, CompContains, CompNotContains:
		return true
	}
	return false
}
