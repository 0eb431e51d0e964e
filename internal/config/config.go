package config

import (
	"os"
	"strconv"
)

type Config struct {
	// Server
	Port        string
	Environment string // development, staging, production

	// Database (optional; warden runs fully in-memory without it)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Auth (single operator)
	AdminUsername string
	AdminPassword string // plaintext in env, bcrypt-hashed at startup
	JWTSecret     string

	// Rate limiting
	RateLimitMax       int // requests per window
	RateLimitWindowMs  int
	RateLimitCleanupMs int
	RedisAddr          string // optional shared counter store
	RedisPassword      string
	RedisDB            int

	// Alerting
	AlertEvalIntervalSecs  int
	AlertDispatchTimeoutMs int
	AlertHistoryLimit      int
	HealthCheckURL         string
	WebhookURL             string // generic JSON sink
	ChatWebhookURL         string // chat-style text sink
	NATSUrl                string
	NATSSubject            string

	// Email channel
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTo       string

	// Metrics buffer
	MetricsBufferSize int
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "warden"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "warden"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin"),
		JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),

		RateLimitMax:       getEnvInt("RATE_LIMIT_MAX", 60),
		RateLimitWindowMs:  getEnvInt("RATE_LIMIT_WINDOW_MS", 60000),
		RateLimitCleanupMs: getEnvInt("RATE_LIMIT_CLEANUP_MS", 300000),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),

		AlertEvalIntervalSecs:  getEnvInt("ALERT_EVAL_INTERVAL_SECS", 60),
		AlertDispatchTimeoutMs: getEnvInt("ALERT_DISPATCH_TIMEOUT_MS", 10000),
		AlertHistoryLimit:      getEnvInt("ALERT_HISTORY_LIMIT", 1000),
		HealthCheckURL:         getEnv("HEALTH_CHECK_URL", ""),
		WebhookURL:             getEnv("ALERT_WEBHOOK_URL", ""),
		ChatWebhookURL:         getEnv("ALERT_CHAT_WEBHOOK_URL", ""),
		NATSUrl:                getEnv("NATS_URL", ""),
		NATSSubject:            getEnv("NATS_ALERT_SUBJECT", "warden.alerts"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPTo:       getEnv("SMTP_TO", ""),

		MetricsBufferSize: getEnvInt("METRICS_BUFFER_SIZE", 10000),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
