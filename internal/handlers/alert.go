package handlers

import (
	"strconv"

	"github.com/ahmetk3436/warden/internal/models"
	"github.com/ahmetk3436/warden/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AlertHandler struct {
	manager *services.AlertManager
}

func NewAlertHandler(manager *services.AlertManager) *AlertHandler {
	return &AlertHandler{manager: manager}
}

// ListThresholds returns all registered alert thresholds.
func (h *AlertHandler) ListThresholds(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"thresholds": h.manager.Thresholds()})
}

// CreateThreshold registers a new alert threshold.
func (h *AlertHandler) CreateThreshold(c *fiber.Ctx) error {
	var threshold models.AlertThreshold
	if err := c.BodyParser(&threshold); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	if threshold.Severity == "" {
		threshold.Severity = models.SeverityWarning
	}

	if err := h.manager.AddThreshold(threshold); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(threshold)
}

// UpdateThreshold replaces an existing threshold.
func (h *AlertHandler) UpdateThreshold(c *fiber.Ctx) error {
	var threshold models.AlertThreshold
	if err := c.BodyParser(&threshold); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}
	threshold.ID = c.Params("id")

	if err := h.manager.UpdateThreshold(threshold); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}

	return c.JSON(threshold)
}

// DeleteThreshold removes a threshold and its pending cooldown.
func (h *AlertHandler) DeleteThreshold(c *fiber.Ctx) error {
	if !h.manager.RemoveThreshold(c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Threshold not found",
		})
	}
	return c.JSON(fiber.Map{"message": "Threshold deleted"})
}

// ListAlerts returns alert history, optionally filtered by status.
func (h *AlertHandler) ListAlerts(c *fiber.Ctx) error {
	status := c.Query("status", "")
	limit, _ := strconv.Atoi(c.Query("limit", "200"))
	return c.JSON(fiber.Map{"alerts": h.manager.History(limit, status)})
}

// ActiveAlerts returns alerts not yet resolved.
func (h *AlertHandler) ActiveAlerts(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"alerts": h.manager.ActiveAlerts()})
}

// AcknowledgeAlert marks an active alert as acknowledged by the caller.
func (h *AlertHandler) AcknowledgeAlert(c *fiber.Ctx) error {
	actor, _ := c.Locals("username").(string)
	if !h.manager.AcknowledgeAlert(c.Params("id"), actor) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Alert not found or not active",
		})
	}
	return c.JSON(fiber.Map{"message": "Alert acknowledged"})
}

// ResolveAlert closes an alert.
func (h *AlertHandler) ResolveAlert(c *fiber.Ctx) error {
	if !h.manager.ResolveAlert(c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Alert not found",
		})
	}
	return c.JSON(fiber.Map{"message": "Alert resolved"})
}

// TriggerTestAlert fires a synthetic alert through every registered channel.
func (h *AlertHandler) TriggerTestAlert(c *fiber.Ctx) error {
	var req struct {
		Severity string `json:"severity"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}
	if req.Severity == "" {
		req.Severity = models.SeverityInfo
	}

	alert, err := h.manager.TriggerTestAlert(req.Severity)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(alert)
}
