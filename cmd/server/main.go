package main

import (
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ahmetk3436/warden/internal/config"
	"github.com/ahmetk3436/warden/internal/database"
	"github.com/ahmetk3436/warden/internal/handlers"
	"github.com/ahmetk3436/warden/internal/models"
	"github.com/ahmetk3436/warden/internal/routes"
	"github.com/ahmetk3436/warden/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	// JSON structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting Warden", "version", handlers.Version)

	// ─── Config ──────────────────────────────────────────────────────────
	cfg := config.Load()

	// ─── Database (optional) ─────────────────────────────────────────────
	var db *gorm.DB
	if cfg.DBHost != "" {
		var err error
		db, err = database.Connect(cfg)
		if err != nil {
			slog.Error("Database connection failed", "error", err)
			os.Exit(1)
		}
		if err := database.Migrate(db); err != nil {
			slog.Error("Database migration failed", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("DB_HOST not set, governance state is in-memory only")
	}

	// ─── Rate limiter ────────────────────────────────────────────────────
	memLimiter := services.NewRateLimiter(time.Duration(cfg.RateLimitCleanupMs) * time.Millisecond)

	var limiter services.Limiter = memLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter = services.NewRedisRateLimiter(rdb)
		slog.Info("Rate limiting via shared Redis counters", "addr", cfg.RedisAddr)
	} else {
		memLimiter.Start()
	}

	// ─── Metrics buffer ──────────────────────────────────────────────────
	metrics := services.NewMetricsBuffer(cfg.MetricsBufferSize)

	// ─── Health source ───────────────────────────────────────────────────
	var health services.HealthSource
	if cfg.HealthCheckURL != "" {
		health = services.NewHealthChecker(cfg.HealthCheckURL, 5*time.Second)
	}

	// ─── Alert manager ───────────────────────────────────────────────────
	alerts := services.NewAlertManager(db, metrics, health,
		services.WithEvalInterval(time.Duration(cfg.AlertEvalIntervalSecs)*time.Second),
		services.WithDispatchTimeout(time.Duration(cfg.AlertDispatchTimeoutMs)*time.Millisecond),
		services.WithHistoryLimit(cfg.AlertHistoryLimit),
	)

	alerts.RegisterChannel(services.LogChannel{})
	if cfg.WebhookURL != "" {
		alerts.RegisterChannel(services.NewWebhookChannel("webhook", cfg.WebhookURL))
	}
	if cfg.ChatWebhookURL != "" {
		alerts.RegisterChannel(services.NewChatChannel(cfg.ChatWebhookURL))
	}
	if cfg.SMTPHost != "" && cfg.SMTPFrom != "" && cfg.SMTPTo != "" {
		alerts.RegisterChannel(services.NewEmailChannel(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
			cfg.SMTPFrom, strings.Split(cfg.SMTPTo, ","),
		))
	}

	var natsConn *nats.Conn
	if cfg.NATSUrl != "" {
		var err error
		natsConn, err = nats.Connect(cfg.NATSUrl, nats.Name("warden"))
		if err != nil {
			slog.Error("NATS connection failed, channel disabled", "url", cfg.NATSUrl, "error", err)
		} else {
			alerts.RegisterChannel(services.NewNATSChannel(natsConn, cfg.NATSSubject))
		}
	}

	seedDefaultThresholds(alerts, cfg)
	if err := alerts.LoadFromDB(); err != nil {
		slog.Error("Failed to load thresholds", "error", err)
	}
	alerts.Start()

	// ─── Feature flags ───────────────────────────────────────────────────
	flags := services.NewFlagManager(db, cfg.Environment)
	if err := flags.LoadFromDB(); err != nil {
		slog.Error("Failed to load flags", "error", err)
	}
	flags.LoadFromEnv(os.Environ())

	// ─── Handlers ────────────────────────────────────────────────────────
	authHandler := handlers.NewAuthHandler(cfg)
	alertHandler := handlers.NewAlertHandler(alerts)
	flagHandler := handlers.NewFlagHandler(flags)
	systemHandler := handlers.NewSystemHandler(alerts, flags, limiter, metrics)
	streamHandler := handlers.NewStreamHandler(alerts)

	// ─── Fiber App ───────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      "warden v" + handlers.Version,
		ServerHeader: "warden",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal server error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": message,
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, PATCH, OPTIONS",
	}))

	app.Use(recover.New(recover.Config{
		EnableStackTrace: false,
	}))

	routes.Setup(app, cfg, limiter, metrics, authHandler, alertHandler, flagHandler, systemHandler, streamHandler)

	// ─── Graceful shutdown ───────────────────────────────────────────────
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("Shutting down")
		_ = app.Shutdown()
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("Server error", "error", err)
	}

	alerts.Stop()
	memLimiter.Stop()
	if natsConn != nil {
		natsConn.Close()
	}
	slog.Info("Warden stopped")
}

// seedDefaultThresholds registers the out-of-the-box alert rules. Stored
// thresholds with the same ids take precedence when the database loads.
func seedDefaultThresholds(alerts *services.AlertManager, cfg *config.Config) {
	channels := []string{"log"}
	if cfg.WebhookURL != "" {
		channels = append(channels, "webhook")
	}
	if cfg.ChatWebhookURL != "" {
		channels = append(channels, "chat")
	}

	defaults := []models.AlertThreshold{
		{
			ID:          "high-error-rate",
			Name:        "High error rate",
			Description: "More than 10% of requests failed over the last 5 minutes",
			Severity:    models.SeverityError,
			Enabled:     true,
			Conditions: []models.AlertCondition{
				{Type: models.ConditionErrorRate, Comparator: models.CompGT, Threshold: 10, WindowMinutes: 5},
			},
			Channels:        channels,
			CooldownMinutes: 15,
		},
		{
			ID:          "slow-responses",
			Name:        "Slow responses",
			Description: "Mean response time above 1500ms over the last 5 minutes",
			Severity:    models.SeverityWarning,
			Enabled:     true,
			Conditions: []models.AlertCondition{
				{Type: models.ConditionResponseTime, Comparator: models.CompGT, Threshold: 1500, WindowMinutes: 5},
			},
			Channels:        channels,
			CooldownMinutes: 15,
		},
	}

	if cfg.HealthCheckURL != "" {
		defaults = append(defaults, models.AlertThreshold{
			ID:          "backend-unhealthy",
			Name:        "Backend unhealthy",
			Description: "Health endpoint reports unhealthy or is unreachable",
			Severity:    models.SeverityCritical,
			Enabled:     true,
			Conditions: []models.AlertCondition{
				{Type: models.ConditionHealthCheck, Comparator: models.CompEQ, Expect: models.HealthUnhealthy},
			},
			Channels:        channels,
			CooldownMinutes: 30,
		})
	}

	for _, t := range defaults {
		if err := alerts.AddThreshold(t); err != nil {
			slog.Error("Failed to seed threshold", "id", t.ID, "error", err)
		}
	}
}
