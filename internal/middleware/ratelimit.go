package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/ahmetk3436/warden/internal/services"
	"github.com/gofiber/fiber/v2"
)

// KeyFunc derives the rate-limit identifier for a request.
type KeyFunc func(c *fiber.Ctx) string

// RateLimitConfig configures the rate-limit middleware for one route group.
type RateLimitConfig struct {
	Limiter     services.Limiter
	MaxRequests int
	Window      time.Duration
	// KeyFn defaults to client IP plus truncated User-Agent.
	KeyFn KeyFunc
}

// DefaultKeyFunc identifies a client by IP and the first 32 bytes of its
// User-Agent, enough to separate distinct clients behind a shared NAT without
// trusting a spoofable header alone.
func DefaultKeyFunc(c *fiber.Ctx) string {
	ua := c.Get("User-Agent")
	if len(ua) > 32 {
		ua = ua[:32]
	}
	return c.IP() + ":" + ua
}

// RateLimit enforces a fixed-window limit per client. Blocked requests get a
// 429 with Retry-After; allowed requests carry the X-RateLimit-* headers on
// the response. A failing shared store fails open: governance must not take
// the API down with it.
func RateLimit(cfg RateLimitConfig) fiber.Handler {
	keyFn := cfg.KeyFn
	if keyFn == nil {
		keyFn = DefaultKeyFunc
	}

	return func(c *fiber.Ctx) error {
		result, err := cfg.Limiter.Check(keyFn(c), cfg.MaxRequests, cfg.Window)
		if err != nil {
			slog.Error("Rate limit store unavailable, failing open", "error", err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(time.Until(result.ResetTime).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set("Retry-After", strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   true,
				"message": "Too many requests",
			})
		}

		return c.Next()
	}
}
