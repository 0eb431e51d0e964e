package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ahmetk3436/warden/internal/models"
)

// HealthChecker probes an HTTP health endpoint and reports the overall plus
// per-subsystem statuses. A transport error means the source is unreachable
// and is returned as such; a non-2xx response is a reachable-but-unhealthy
// answer, not an error.
type HealthChecker struct {
	url    string
	client *http.Client
}

func NewHealthChecker(url string, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (h *HealthChecker) Check(ctx context.Context) (models.HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return models.HealthStatus{}, fmt.Errorf("health check request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return models.HealthStatus{}, fmt.Errorf("health check %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	status := models.HealthStatus{CheckedAt: time.Now()}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil || status.Status == "" {
		// Endpoints without a JSON body still answer through the status code.
		if resp.StatusCode < 300 {
			status.Status = models.HealthHealthy
		} else {
			status.Status = models.HealthUnhealthy
		}
	}
	if resp.StatusCode >= 300 && status.Status == models.HealthHealthy {
		status.Status = models.HealthUnhealthy
	}
	return status, nil
}
