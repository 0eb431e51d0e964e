package middleware

import (
	"time"

	"github.com/ahmetk3436/warden/internal/services"
	"github.com/gofiber/fiber/v2"
)

// RecordMetrics buffers one request record per call so error_rate and
// response_time alert conditions have data to aggregate. A 5xx counts as a
// failure; client errors do not.
func RecordMetrics(buffer *services.MetricsBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		buffer.RecordRequest(
			c.Method()+" "+c.Route().Path,
			status < fiber.StatusInternalServerError,
			float64(time.Since(start).Microseconds())/1000,
		)
		return err
	}
}
