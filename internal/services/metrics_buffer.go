package services

import (
	"sync"
	"time"

	"github.com/ahmetk3436/warden/internal/models"
)

// MetricsBuffer is a bounded in-memory window of recent metric records. It is
// the MetricsSource the alert manager aggregates over; the request middleware
// and the admin API both feed it. When full, the oldest records are dropped.
type MetricsBuffer struct {
	mu      sync.Mutex
	records []models.MetricRecord
	max     int
	now     func() time.Time
}

func NewMetricsBuffer(max int) *MetricsBuffer {
	if max <= 0 {
		max = 10000
	}
	return &MetricsBuffer{
		records: make([]models.MetricRecord, 0, max),
		max:     max,
		now:     time.Now,
	}
}

func (b *MetricsBuffer) Record(r models.MetricRecord) {
	if r.Timestamp.IsZero() {
		r.Timestamp = b.now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, r)
	if len(b.records) > b.max {
		b.records = b.records[len(b.records)-b.max:]
	}
}

// RecordRequest buffers one request outcome for error_rate and response_time
// conditions.
func (b *MetricsBuffer) RecordRequest(operation string, success bool, durationMs float64) {
	b.Record(models.MetricRecord{
		Type:       models.MetricRequest,
		Operation:  operation,
		Success:    success,
		DurationMs: durationMs,
	})
}

// RecordGauge buffers one named measurement for metric conditions.
func (b *MetricsBuffer) RecordGauge(name string, value float64) {
	b.Record(models.MetricRecord{
		Type:  models.MetricGauge,
		Name:  name,
		Value: value,
	})
}

// Since returns a copy of the records with Timestamp >= t, in insertion
// order. Records are filtered individually: pushed records may carry
// caller-supplied timestamps, so the buffer is not sorted by time.
func (b *MetricsBuffer) Since(t time.Time) []models.MetricRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.MetricRecord, 0, len(b.records))
	for _, r := range b.records {
		if !r.Timestamp.Before(t) {
			out = append(out, r)
		}
	}
	return out
}

func (b *MetricsBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}
