package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ahmetk3436/warden/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	mu      sync.Mutex
	records []models.MetricRecord
}

func (f *fakeMetrics) Since(time.Time) []models.MetricRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.MetricRecord, len(f.records))
	copy(out, f.records)
	return out
}

func (f *fakeMetrics) set(records ...models.MetricRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

type fakeHealth struct {
	status models.HealthStatus
	err    error
}

func (f *fakeHealth) Check(context.Context) (models.HealthStatus, error) {
	return f.status, f.err
}

type fakeChannel struct {
	mu   sync.Mutex
	name string
	fail bool
	sent []models.Alert
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, alert models.Alert) error {
	if f.fail {
		return fmt.Errorf("channel %s unreachable", f.name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, alert)
	return nil
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func errorRateThreshold(id string, cooldownMinutes int) models.AlertThreshold {
	return models.AlertThreshold{
		ID:       id,
		Name:     id,
		Severity: models.SeverityError,
		Enabled:  true,
		Conditions: []models.AlertCondition{
			{Type: models.ConditionErrorRate, Comparator: models.CompGT, Threshold: 50, WindowMinutes: 5},
		},
		Channels:        []string{"fake"},
		CooldownMinutes: cooldownMinutes,
	}
}

func failingRequests() []models.MetricRecord {
	return []models.MetricRecord{
		{Type: models.MetricRequest, Success: false, DurationMs: 50, Timestamp: time.Now()},
		{Type: models.MetricRequest, Success: false, DurationMs: 50, Timestamp: time.Now()},
		{Type: models.MetricRequest, Success: true, DurationMs: 50, Timestamp: time.Now()},
	}
}

func TestThresholdRequiresAllConditions(t *testing.T) {
	metrics := &fakeMetrics{}
	am := NewAlertManager(nil, metrics, nil)

	threshold := models.AlertThreshold{
		ID:       "combo",
		Name:     "combo",
		Severity: models.SeverityWarning,
		Enabled:  true,
		Conditions: []models.AlertCondition{
			{Type: models.ConditionErrorRate, Comparator: models.CompGT, Threshold: 50},
			{Type: models.ConditionResponseTime, Comparator: models.CompGT, Threshold: 1000},
		},
	}
	require.NoError(t, am.AddThreshold(threshold))

	// Error rate over 50% but responses fast: only one condition holds.
	metrics.set(
		models.MetricRecord{Type: models.MetricRequest, Success: false, DurationMs: 10},
		models.MetricRecord{Type: models.MetricRequest, Success: false, DurationMs: 10},
	)
	am.EvaluateAll()
	require.Empty(t, am.ActiveAlerts())

	// Slow but all succeeding: again only one condition.
	metrics.set(
		models.MetricRecord{Type: models.MetricRequest, Success: true, DurationMs: 5000},
		models.MetricRecord{Type: models.MetricRequest, Success: true, DurationMs: 5000},
	)
	am.EvaluateAll()
	require.Empty(t, am.ActiveAlerts())

	// Both at once.
	metrics.set(
		models.MetricRecord{Type: models.MetricRequest, Success: false, DurationMs: 5000},
		models.MetricRecord{Type: models.MetricRequest, Success: false, DurationMs: 5000},
	)
	am.EvaluateAll()

	active := am.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, "combo", active[0].ThresholdID)
	assert.Equal(t, models.SeverityWarning, active[0].Severity)
	assert.Equal(t, models.AlertActive, active[0].Status)
}

func TestCooldownSuppressesRetrigger(t *testing.T) {
	metrics := &fakeMetrics{}
	metrics.set(failingRequests()...)

	am := NewAlertManager(nil, metrics, nil)
	now := time.Now()
	am.now = func() time.Time { return now }

	require.NoError(t, am.AddThreshold(errorRateThreshold("flappy", 15)))

	am.EvaluateAll()
	require.Len(t, am.History(0, ""), 1)

	// Conditions still true, but the threshold is cooling down.
	am.EvaluateAll()
	am.EvaluateAll()
	require.Len(t, am.History(0, ""), 1)

	// Cooldown elapsed: it may fire again.
	now = now.Add(16 * time.Minute)
	am.EvaluateAll()
	require.Len(t, am.History(0, ""), 2)
}

func TestRemoveThresholdClearsCooldown(t *testing.T) {
	metrics := &fakeMetrics{}
	metrics.set(failingRequests()...)

	am := NewAlertManager(nil, metrics, nil)
	require.NoError(t, am.AddThreshold(errorRateThreshold("rm", 60)))

	am.EvaluateAll()
	require.Len(t, am.History(0, ""), 1)

	require.True(t, am.RemoveThreshold("rm"))
	require.False(t, am.RemoveThreshold("rm"))

	// Re-registering starts from a clean slate, no inherited cooldown.
	require.NoError(t, am.AddThreshold(errorRateThreshold("rm", 60)))
	am.EvaluateAll()
	require.Len(t, am.History(0, ""), 2)
}

func TestAlertLifecycle(t *testing.T) {
	am := NewAlertManager(nil, nil, nil)

	alert, err := am.TriggerTestAlert(models.SeverityCritical)
	require.NoError(t, err)
	require.Len(t, am.ActiveAlerts(), 1)

	t.Run("acknowledge", func(t *testing.T) {
		require.True(t, am.AcknowledgeAlert(alert.ID, "ops"))
		require.False(t, am.AcknowledgeAlert(alert.ID, "ops"), "second acknowledge must fail")

		active := am.ActiveAlerts()
		require.Len(t, active, 1)
		assert.Equal(t, models.AlertAcknowledged, active[0].Status)
		assert.Equal(t, "ops", active[0].AcknowledgedBy)
		assert.NotNil(t, active[0].AcknowledgedAt)
	})

	t.Run("resolve", func(t *testing.T) {
		require.True(t, am.ResolveAlert(alert.ID))
		require.False(t, am.ResolveAlert(alert.ID))
		require.Empty(t, am.ActiveAlerts())

		history := am.History(0, models.AlertResolved)
		require.Len(t, history, 1)
		assert.NotNil(t, history[0].ResolvedAt)
	})

	t.Run("resolve directly from active", func(t *testing.T) {
		second, err := am.TriggerTestAlert(models.SeverityInfo)
		require.NoError(t, err)
		require.True(t, am.ResolveAlert(second.ID), "acknowledged state is optional")
	})

	t.Run("unknown ids are no-ops", func(t *testing.T) {
		require.False(t, am.AcknowledgeAlert("alert_0_missing", "ops"))
		require.False(t, am.ResolveAlert("alert_0_missing"))
	})
}

func TestDispatchFailureDoesNotBlockOtherChannels(t *testing.T) {
	metrics := &fakeMetrics{}
	metrics.set(failingRequests()...)

	am := NewAlertManager(nil, metrics, nil)
	broken := &fakeChannel{name: "broken", fail: true}
	working := &fakeChannel{name: "working"}
	am.RegisterChannel(broken)
	am.RegisterChannel(working)

	threshold := errorRateThreshold("multi", 0)
	threshold.Channels = []string{"broken", "working", "missing"}
	require.NoError(t, am.AddThreshold(threshold))

	am.EvaluateAll()
	am.dispatchWG.Wait()

	require.Equal(t, 1, working.sentCount())
	require.Len(t, am.ActiveAlerts(), 1, "dispatch failure must not roll back the alert")
}

func TestTriggerTestAlertReachesAllChannels(t *testing.T) {
	am := NewAlertManager(nil, nil, nil)
	a := &fakeChannel{name: "a"}
	b := &fakeChannel{name: "b"}
	am.RegisterChannel(a)
	am.RegisterChannel(b)

	_, err := am.TriggerTestAlert(models.SeverityWarning)
	require.NoError(t, err)
	am.dispatchWG.Wait()

	require.Equal(t, 1, a.sentCount())
	require.Equal(t, 1, b.sentCount())

	_, err = am.TriggerTestAlert("catastrophic")
	require.Error(t, err)
}

func TestHealthConditionFailsTowardAlerting(t *testing.T) {
	health := &fakeHealth{err: fmt.Errorf("connection refused")}
	am := NewAlertManager(nil, nil, health)

	require.NoError(t, am.AddThreshold(models.AlertThreshold{
		ID:       "health",
		Name:     "health",
		Severity: models.SeverityCritical,
		Enabled:  true,
		Conditions: []models.AlertCondition{
			{Type: models.ConditionHealthCheck, Comparator: models.CompEQ, Expect: models.HealthUnhealthy},
		},
	}))

	am.EvaluateAll()
	require.Len(t, am.ActiveAlerts(), 1, "unreachable health source must alert")

	// A healthy answer clears the way for no further triggers.
	am2 := NewAlertManager(nil, nil, &fakeHealth{status: models.HealthStatus{Status: models.HealthHealthy}})
	require.NoError(t, am2.AddThreshold(models.AlertThreshold{
		ID:       "health",
		Name:     "health",
		Severity: models.SeverityCritical,
		Enabled:  true,
		Conditions: []models.AlertCondition{
			{Type: models.ConditionHealthCheck, Comparator: models.CompEQ, Expect: models.HealthUnhealthy},
		},
	}))
	am2.EvaluateAll()
	require.Empty(t, am2.ActiveAlerts())
}

func TestDisabledThresholdIsSkipped(t *testing.T) {
	metrics := &fakeMetrics{}
	metrics.set(failingRequests()...)

	am := NewAlertManager(nil, metrics, nil)
	threshold := errorRateThreshold("off", 0)
	threshold.Enabled = false
	require.NoError(t, am.AddThreshold(threshold))

	am.EvaluateAll()
	require.Empty(t, am.ActiveAlerts())
}

func TestThresholdValidation(t *testing.T) {
	am := NewAlertManager(nil, nil, nil)

	require.Error(t, am.AddThreshold(models.AlertThreshold{Name: "no id", Severity: models.SeverityInfo}))
	require.Error(t, am.AddThreshold(models.AlertThreshold{ID: "x", Name: "x", Severity: "fatal"}))
	require.Error(t, am.AddThreshold(models.AlertThreshold{
		ID: "x", Name: "x", Severity: models.SeverityInfo,
		Conditions: []models.AlertCondition{{Type: "disk_teleport", Comparator: models.CompGT}},
	}))
	require.Error(t, am.AddThreshold(models.AlertThreshold{
		ID: "x", Name: "x", Severity: models.SeverityInfo,
		Conditions: []models.AlertCondition{{Type: models.ConditionMetric, Comparator: "between"}},
	}))

	require.NoError(t, am.AddThreshold(errorRateThreshold("ok", 0)))
	require.Error(t, am.AddThreshold(errorRateThreshold("ok", 0)), "duplicate id")

	require.Error(t, am.UpdateThreshold(errorRateThreshold("ghost", 0)), "unknown id on update")
}

func TestSubscribeReceivesTriggeredAlerts(t *testing.T) {
	am := NewAlertManager(nil, nil, nil)
	feed, cancel := am.Subscribe()
	defer cancel()

	sent, err := am.TriggerTestAlert(models.SeverityInfo)
	require.NoError(t, err)

	select {
	case got := <-feed:
		require.Equal(t, sent.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected alert on subscription feed")
	}
}

func TestHistoryLimitBoundsMemory(t *testing.T) {
	am := NewAlertManager(nil, nil, nil, WithHistoryLimit(5))

	for i := 0; i < 12; i++ {
		_, err := am.TriggerTestAlert(models.SeverityInfo)
		require.NoError(t, err)
	}

	require.Len(t, am.History(0, ""), 5)
}
