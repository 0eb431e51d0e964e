package handlers

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ahmetk3436/warden/internal/services"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// StreamHandler pushes fired alerts to websocket subscribers so operator
// dashboards see triggers without polling.
type StreamHandler struct {
	alerts *services.AlertManager
}

func NewStreamHandler(alerts *services.AlertManager) *StreamHandler {
	return &StreamHandler{alerts: alerts}
}

// UpgradeCheck is middleware that checks if the request is a websocket upgrade
func (h *StreamHandler) UpgradeCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// HandleStream relays every fired alert to the connection until the client
// goes away. Pings keep intermediaries from dropping quiet connections.
func (h *StreamHandler) HandleStream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		feed, cancel := h.alerts.Subscribe()
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case alert, ok := <-feed:
				if !ok {
					return
				}
				payload, err := json.Marshal(alert)
				if err != nil {
					slog.Error("Failed to encode alert for stream", "alert", alert.ID, "error", err)
					continue
				}
				if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ping.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
}
