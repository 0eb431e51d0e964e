package handlers

import (
	"time"

	"github.com/ahmetk3436/warden/internal/models"
	"github.com/ahmetk3436/warden/internal/services"
	"github.com/gofiber/fiber/v2"
)

const Version = "1.2.0"

type SystemHandler struct {
	alerts    *services.AlertManager
	flags     *services.FlagManager
	limiter   services.Limiter
	metrics   *services.MetricsBuffer
	startedAt time.Time
}

func NewSystemHandler(alerts *services.AlertManager, flags *services.FlagManager, limiter services.Limiter, metrics *services.MetricsBuffer) *SystemHandler {
	return &SystemHandler{
		alerts:    alerts,
		flags:     flags,
		limiter:   limiter,
		metrics:   metrics,
		startedAt: time.Now(),
	}
}

func (h *SystemHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"version": Version,
		"uptime":  int(time.Since(h.startedAt).Seconds()),
	})
}

// Overview summarizes governance state for the dashboard.
func (h *SystemHandler) Overview(c *fiber.Ctx) error {
	active := h.alerts.ActiveAlerts()

	bySeverity := map[string]int{}
	for _, a := range active {
		bySeverity[a.Severity]++
	}

	overview := fiber.Map{
		"active_alerts":      len(active),
		"alerts_by_severity": bySeverity,
		"thresholds":         len(h.alerts.Thresholds()),
		"flags":              len(h.flags.Flags()),
		"metrics_buffered":   h.metrics.Len(),
	}
	// Only the in-memory store can report occupancy; Redis would need a SCAN.
	if mem, ok := h.limiter.(*services.RateLimiter); ok {
		overview["rate_limit_entries"] = mem.Len()
	}
	return c.JSON(overview)
}

// PushMetric accepts an external metric record into the buffer, for
// collaborators that cannot go through the request middleware.
func (h *SystemHandler) PushMetric(c *fiber.Ctx) error {
	var record models.MetricRecord
	if err := c.BodyParser(&record); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	switch record.Type {
	case models.MetricRequest, models.MetricGauge:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Metric type must be request or gauge",
		})
	}

	h.metrics.Record(record)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Metric recorded"})
}
