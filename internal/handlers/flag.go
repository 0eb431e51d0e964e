package handlers

import (
	"github.com/ahmetk3436/warden/internal/models"
	"github.com/ahmetk3436/warden/internal/services"
	"github.com/gofiber/fiber/v2"
)

type FlagHandler struct {
	manager *services.FlagManager
}

func NewFlagHandler(manager *services.FlagManager) *FlagHandler {
	return &FlagHandler{manager: manager}
}

// ListFlags returns every flag definition.
func (h *FlagHandler) ListFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"flags": h.manager.Flags()})
}

// GetFlag returns one flag definition.
func (h *FlagHandler) GetFlag(c *fiber.Ctx) error {
	flag, ok := h.manager.Flag(c.Params("key"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Flag not found",
		})
	}
	return c.JSON(flag)
}

// UpsertFlag creates or replaces a flag definition.
func (h *FlagHandler) UpsertFlag(c *fiber.Ctx) error {
	var flag models.FeatureFlag
	if err := c.BodyParser(&flag); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}
	if key := c.Params("key"); key != "" {
		flag.Key = key
	}

	if err := h.manager.SetFlag(flag); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}
	return c.JSON(flag)
}

// DeleteFlag removes a flag definition.
func (h *FlagHandler) DeleteFlag(c *fiber.Ctx) error {
	if !h.manager.DeleteFlag(c.Params("key")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Flag not found",
		})
	}
	return c.JSON(fiber.Map{"message": "Flag deleted"})
}

// Evaluate returns the flag's outcome for the current user context.
func (h *FlagHandler) Evaluate(c *fiber.Ctx) error {
	key := c.Params("key")
	return c.JSON(fiber.Map{
		"key":     key,
		"enabled": h.manager.IsEnabled(key, false),
		"value":   h.manager.Value(key, nil),
	})
}

// SetOverride forces a flag to a fixed value, bypassing all gating.
func (h *FlagHandler) SetOverride(c *fiber.Ctx) error {
	var req struct {
		Value any `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	h.manager.SetOverride(c.Params("key"), req.Value)
	return c.JSON(fiber.Map{"message": "Override set"})
}

// ClearOverride removes a forced value.
func (h *FlagHandler) ClearOverride(c *fiber.Ctx) error {
	h.manager.ClearOverride(c.Params("key"))
	return c.JSON(fiber.Map{"message": "Override cleared"})
}

// SetUserContext replaces the ambient evaluation context.
func (h *FlagHandler) SetUserContext(c *fiber.Ctx) error {
	var ctx models.UserContext
	if err := c.BodyParser(&ctx); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	h.manager.SetUserContext(ctx)
	return c.JSON(fiber.Map{"message": "User context updated"})
}

// Export returns the full flag configuration bundle.
func (h *FlagHandler) Export(c *fiber.Ctx) error {
	return c.JSON(h.manager.Export())
}

// Import replaces the full flag configuration from a bundle.
func (h *FlagHandler) Import(c *fiber.Ctx) error {
	var cfg models.FlagConfig
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	if err := h.manager.Import(cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"message": "Configuration imported", "flags": len(cfg.Flags)})
}
