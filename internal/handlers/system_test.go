package handlers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetk3436/warden/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type opaqueLimiter struct{}

func (opaqueLimiter) Check(string, int, time.Duration) (services.RateLimitResult, error) {
	return services.RateLimitResult{Allowed: true}, nil
}

func overviewFor(t *testing.T, limiter services.Limiter) map[string]any {
	t.Helper()

	h := NewSystemHandler(
		services.NewAlertManager(nil, nil, nil),
		services.NewFlagManager(nil, "development"),
		limiter,
		services.NewMetricsBuffer(10),
	)

	app := fiber.New()
	app.Get("/overview", h.Overview)

	resp, err := app.Test(httptest.NewRequest("GET", "/overview", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var overview map[string]any
	require.NoError(t, json.Unmarshal(body, &overview))
	return overview
}

func TestOverviewReportsMemoryLimiterOccupancy(t *testing.T) {
	mem := services.NewRateLimiter(time.Minute)
	mem.Check("client-a", 5, time.Minute)
	mem.Check("client-b", 5, time.Minute)

	overview := overviewFor(t, mem)
	assert.Equal(t, float64(2), overview["rate_limit_entries"])
}

func TestOverviewOmitsOccupancyForSharedStore(t *testing.T) {
	overview := overviewFor(t, opaqueLimiter{})

	_, present := overview["rate_limit_entries"]
	assert.False(t, present, "a shared store has no cheap entry count")
}
