package middleware

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetk3436/warden/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenLimiter struct{}

func (brokenLimiter) Check(string, int, time.Duration) (services.RateLimitResult, error) {
	return services.RateLimitResult{}, fmt.Errorf("store down")
}

func newTestApp(cfg RateLimitConfig) *fiber.App {
	app := fiber.New()
	app.Use(RateLimit(cfg))
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return app
}

func TestRateLimitMiddlewareAllowsThenRejects(t *testing.T) {
	app := newTestApp(RateLimitConfig{
		Limiter:     services.NewRateLimiter(time.Minute),
		MaxRequests: 2,
		Window:      time.Minute,
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
		assert.Equal(t, fmt.Sprintf("%d", 1-i), resp.Header.Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestRateLimitMiddlewareSeparatesClients(t *testing.T) {
	app := newTestApp(RateLimitConfig{
		Limiter:     services.NewRateLimiter(time.Minute),
		MaxRequests: 1,
		Window:      time.Minute,
	})

	first := httptest.NewRequest("GET", "/ping", nil)
	first.Header.Set("User-Agent", "client-a")
	resp, err := app.Test(first)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	again := httptest.NewRequest("GET", "/ping", nil)
	again.Header.Set("User-Agent", "client-a")
	resp, err = app.Test(again)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	// A different user agent from the same IP is a different identifier.
	other := httptest.NewRequest("GET", "/ping", nil)
	other.Header.Set("User-Agent", "client-b")
	resp, err = app.Test(other)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRateLimitMiddlewareCustomKeyFunc(t *testing.T) {
	app := newTestApp(RateLimitConfig{
		Limiter:     services.NewRateLimiter(time.Minute),
		MaxRequests: 1,
		Window:      time.Minute,
		KeyFn: func(c *fiber.Ctx) string {
			return c.Get("X-API-Key")
		},
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-API-Key", "tenant-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	req2 := httptest.NewRequest("GET", "/ping", nil)
	req2.Header.Set("X-API-Key", "tenant-2")
	resp, err = app.Test(req2)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	app := newTestApp(RateLimitConfig{
		Limiter:     brokenLimiter{},
		MaxRequests: 1,
		Window:      time.Minute,
	})

	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestDefaultKeyFuncTruncatesUserAgent(t *testing.T) {
	app := fiber.New()
	var key string
	app.Get("/", func(c *fiber.Ctx) error {
		key = DefaultKeyFunc(c)
		return nil
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 something very long")
	_, err := app.Test(req)
	require.NoError(t, err)
	require.NotEmpty(t, key)
	assert.LessOrEqual(t, len(key), len("0.0.0.0:")+32+len("255.255.255.255"))
}
