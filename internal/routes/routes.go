package routes

import (
	"time"

	"github.com/ahmetk3436/warden/internal/config"
	"github.com/ahmetk3436/warden/internal/handlers"
	"github.com/ahmetk3436/warden/internal/middleware"
	"github.com/ahmetk3436/warden/internal/services"
	"github.com/gofiber/fiber/v2"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	limiter services.Limiter,
	metrics *services.MetricsBuffer,
	authHandler *handlers.AuthHandler,
	alertHandler *handlers.AlertHandler,
	flagHandler *handlers.FlagHandler,
	systemHandler *handlers.SystemHandler,
	streamHandler *handlers.StreamHandler,
) {
	app.Use(middleware.RecordMetrics(metrics))
	app.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Limiter:     limiter,
		MaxRequests: cfg.RateLimitMax,
		Window:      time.Duration(cfg.RateLimitWindowMs) * time.Millisecond,
	}))

	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/api/health", systemHandler.Health)

	// ─── Auth ────────────────────────────────────────────────────────────
	app.Post("/api/auth/login", authHandler.Login)
	app.Post("/api/auth/refresh", authHandler.Refresh)

	// ─── Protected routes ────────────────────────────────────────────────
	api := app.Group("/api", middleware.JWTProtected(cfg.JWTSecret))

	// Auth (protected)
	api.Get("/auth/me", authHandler.Me)

	// Dashboard
	api.Get("/overview", systemHandler.Overview)

	// Alert thresholds
	api.Get("/thresholds", alertHandler.ListThresholds)
	api.Post("/thresholds", alertHandler.CreateThreshold)
	api.Put("/thresholds/:id", alertHandler.UpdateThreshold)
	api.Delete("/thresholds/:id", alertHandler.DeleteThreshold)

	// Alerts
	api.Get("/alerts", alertHandler.ListAlerts)
	api.Get("/alerts/active", alertHandler.ActiveAlerts)
	api.Post("/alerts/test", alertHandler.TriggerTestAlert)
	api.Post("/alerts/:id/acknowledge", alertHandler.AcknowledgeAlert)
	api.Post("/alerts/:id/resolve", alertHandler.ResolveAlert)

	// Alert stream (WebSocket)
	api.Use("/alerts/stream", streamHandler.UpgradeCheck())
	api.Get("/alerts/stream", streamHandler.HandleStream())

	// Feature flags
	api.Get("/flags", flagHandler.ListFlags)
	api.Get("/flags/export", flagHandler.Export)
	api.Post("/flags/import", flagHandler.Import)
	api.Put("/flags/context", flagHandler.SetUserContext)
	api.Get("/flags/:key", flagHandler.GetFlag)
	api.Put("/flags/:key", flagHandler.UpsertFlag)
	api.Delete("/flags/:key", flagHandler.DeleteFlag)
	api.Get("/flags/:key/evaluate", flagHandler.Evaluate)
	api.Put("/flags/:key/override", flagHandler.SetOverride)
	api.Delete("/flags/:key/override", flagHandler.ClearOverride)

	// Metrics intake
	api.Post("/metrics", systemHandler.PushMetric)
}
