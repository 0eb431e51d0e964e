package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetk3436/warden/internal/models"
)

// MetricsSource supplies buffered metric records to the alert evaluator.
type MetricsSource interface {
	Since(t time.Time) []models.MetricRecord
}

// HealthSource answers health_check conditions.
type HealthSource interface {
	Check(ctx context.Context) (models.HealthStatus, error)
}

const defaultConditionWindow = 5 * time.Minute

func conditionWindow(cond models.AlertCondition) time.Duration {
	if cond.WindowMinutes > 0 {
		return time.Duration(cond.WindowMinutes) * time.Minute
	}
	return defaultConditionWindow
}

// evalCondition evaluates one threshold clause. A condition over an empty
// sample set is false: no data never fires a numeric alert.
func (am *AlertManager) evalCondition(ctx context.Context, cond models.AlertCondition) (bool, error) {
	switch cond.Type {
	case models.ConditionMetric:
		mean, n := meanGauge(am.recentMetrics(cond), cond.Field)
		if n == 0 {
			return false, nil
		}
		return compareNumber(mean, cond), nil

	case models.ConditionErrorRate:
		failed, total := requestCounts(am.recentMetrics(cond))
		if total == 0 {
			return false, nil
		}
		rate := float64(failed) / float64(total) * 100
		return compareNumber(rate, cond), nil

	case models.ConditionResponseTime:
		mean, n := meanDuration(am.recentMetrics(cond))
		if n == 0 {
			return false, nil
		}
		return compareNumber(mean, cond), nil

	case models.ConditionHealthCheck:
		if am.health == nil {
			return evalHealthCondition(cond, models.HealthStatus{}, false), nil
		}
		status, err := am.health.Check(ctx)
		return evalHealthCondition(cond, status, err == nil), nil

	case models.ConditionCustom:
		// Extension point with no built-in semantics.
		return false, nil

	default:
		return false, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

func (am *AlertManager) recentMetrics(cond models.AlertCondition) []models.MetricRecord {
	if am.metrics == nil {
		return nil
	}
	return am.metrics.Since(am.now().Add(-conditionWindow(cond)))
}

// evalHealthCondition fails toward alerting: an unreachable health source is
// treated as status "unreachable", and additionally satisfies an explicit
// "eq unhealthy" expectation. Conditions expecting a healthy status stay
// false while the source is down.
func evalHealthCondition(cond models.AlertCondition, status models.HealthStatus, reachable bool) bool {
	actual := status.Status
	if cond.Field != "" {
		actual = status.Subsystems[cond.Field]
	}
	if !reachable {
		actual = models.HealthUnreachable
		if cond.Comparator == models.CompEQ && cond.Expect == models.HealthUnhealthy {
			return true
		}
	}
	return compareString(actual, cond)
}

func meanGauge(records []models.MetricRecord, field string) (float64, int) {
	var sum float64
	var n int
	for _, r := range records {
		if r.Type != models.MetricGauge || (field != "" && r.Name != field) {
			continue
		}
		sum += r.Value
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func requestCounts(records []models.MetricRecord) (failed, total int) {
	for _, r := range records {
		if r.Type != models.MetricRequest {
			continue
		}
		total++
		if !r.Success {
			failed++
		}
	}
	return failed, total
}

func meanDuration(records []models.MetricRecord) (float64, int) {
	var sum float64
	var n int
	for _, r := range records {
		if r.Type != models.MetricRequest {
			continue
		}
		sum += r.DurationMs
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// compareNumber applies the condition's comparator to a numeric actual.
// contains/not_contains operate on the decimal string representation.
func compareNumber(actual float64, cond models.AlertCondition) bool {
	switch cond.Comparator {
	case models.CompGT:
		return actual > cond.Threshold
	case models.CompLT:
		return actual < cond.Threshold
	case models.CompGTE:
		return actual >= cond.Threshold
	case models.CompLTE:
		return actual <= cond.Threshold
	case models.CompEQ:
		if cond.Expect != "" {
			expected, err := strconv.ParseFloat(cond.Expect, 64)
			return err == nil && actual == expected
		}
		return actual == cond.Threshold
	case models.CompContains:
		return strings.Contains(formatNumber(actual), cond.Expect)
	case models.CompNotContains:
		return !strings.Contains(formatNumber(actual), cond.Expect)
	default:
		return false
	}
}

// compareString applies the condition's comparator to a string actual.
// Ordering comparators only apply when both sides parse as numbers.
func compareString(actual string, cond models.AlertCondition) bool {
	switch cond.Comparator {
	case models.CompEQ:
		return actual == cond.Expect
	case models.CompContains:
		return strings.Contains(actual, cond.Expect)
	case models.CompNotContains:
		return !strings.Contains(actual, cond.Expect)
	case models.CompGT, models.CompLT, models.CompGTE, models.CompLTE:
		n, err := strconv.ParseFloat(actual, 64)
		if err != nil {
			return false
		}
		return compareNumber(n, cond)
	default:
		return false
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
