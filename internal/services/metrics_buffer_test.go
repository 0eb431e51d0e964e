package services

import (
	"testing"
	"time"

	"github.com/ahmetk3436/warden/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsBufferSince(t *testing.T) {
	b := NewMetricsBuffer(100)
	base := time.Now()
	b.now = func() time.Time { return base }

	b.Record(models.MetricRecord{Type: models.MetricGauge, Name: "old", Timestamp: base.Add(-10 * time.Minute)})
	b.Record(models.MetricRecord{Type: models.MetricGauge, Name: "recent", Timestamp: base.Add(-time.Minute)})
	b.Record(models.MetricRecord{Type: models.MetricGauge, Name: "now", Timestamp: base})

	got := b.Since(base.Add(-5 * time.Minute))
	require.Len(t, got, 2)
	assert.Equal(t, "recent", got[0].Name)
	assert.Equal(t, "now", got[1].Name)

	require.Len(t, b.Since(base.Add(time.Minute)), 0)
	require.Len(t, b.Since(base.Add(-time.Hour)), 3)
}

func TestMetricsBufferFillsTimestamp(t *testing.T) {
	b := NewMetricsBuffer(10)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	b.RecordRequest("GET /api/health", true, 12.5)
	b.RecordGauge("queue_depth", 7)

	records := b.Since(time.Time{})
	require.Len(t, records, 2)
	assert.Equal(t, fixed, records[0].Timestamp)
	assert.Equal(t, models.MetricRequest, records[0].Type)
	assert.Equal(t, models.MetricGauge, records[1].Type)
	assert.Equal(t, float64(7), records[1].Value)
}

func TestMetricsBufferSinceWithOutOfOrderTimestamps(t *testing.T) {
	b := NewMetricsBuffer(100)
	base := time.Now()

	// Pushed records carry caller-supplied timestamps and may arrive out of
	// order; a stale record behind a fresh one must still be filtered out.
	b.Record(models.MetricRecord{Type: models.MetricGauge, Name: "fresh", Value: 1, Timestamp: base})
	b.Record(models.MetricRecord{Type: models.MetricGauge, Name: "stale", Value: 2, Timestamp: base.Add(-time.Hour)})
	b.Record(models.MetricRecord{Type: models.MetricGauge, Name: "fresh-too", Value: 3, Timestamp: base.Add(-time.Minute)})

	got := b.Since(base.Add(-5 * time.Minute))
	require.Len(t, got, 2)
	assert.Equal(t, "fresh", got[0].Name)
	assert.Equal(t, "fresh-too", got[1].Name)
}

func TestMetricsBufferBounded(t *testing.T) {
	b := NewMetricsBuffer(50)

	for i := 0; i < 200; i++ {
		b.RecordGauge("g", float64(i))
	}

	require.Equal(t, 50, b.Len())

	// Oldest records were dropped, newest kept.
	records := b.Since(time.Time{})
	assert.Equal(t, float64(150), records[0].Value)
	assert.Equal(t, float64(199), records[len(records)-1].Value)
}
