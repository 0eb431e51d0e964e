package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/ahmetk3436/warden/internal/models"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

// NotificationChannel is a sink fired alerts are dispatched to. Channels fail
// independently; the alert manager logs failures and never lets one channel
// block another.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, alert models.Alert) error
}

// LogChannel writes alerts to the process log. Always registered.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Send(_ context.Context, alert models.Alert) error {
	slog.Warn("ALERT",
		"id", alert.ID,
		"threshold", alert.ThresholdID,
		"severity", alert.Severity,
		"message", alert.Message,
	)
	return nil
}

// WebhookChannel POSTs the alert as JSON to a generic endpoint. Sends pass
// through a token bucket so a flapping threshold cannot hammer the sink.
type WebhookChannel struct {
	name    string
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

func NewWebhookChannel(name, url string) *WebhookChannel {
	return &WebhookChannel{
		name:    name,
		url:     url,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

func (c *WebhookChannel) Name() string { return c.name }

func (c *WebhookChannel) Send(ctx context.Context, alert models.Alert) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook %s throttled: %w", c.name, err)
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: unexpected status %d", c.name, resp.StatusCode)
	}
	return nil
}

// ChatChannel posts a chat-style {"text": ...} payload, the shape Slack and
// Mattermost compatible webhooks accept.
type ChatChannel struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

func NewChatChannel(url string) *ChatChannel {
	return &ChatChannel{
		url:     url,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

func (c *ChatChannel) Name() string { return "chat" }

func (c *ChatChannel) Send(ctx context.Context, alert models.Alert) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chat webhook throttled: %w", err)
	}

	text := fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Severity), alert.Message)
	body, _ := json.Marshal(map[string]string{"text": text})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// EmailChannel sends a plain-text alert mail over SMTP.
type EmailChannel struct {
	host     string
	port     string
	username string
	password string
	from     string
	to       []string
	limiter  *rate.Limiter
}

func NewEmailChannel(host, port, username, password, from string, to []string) *EmailChannel {
	return &EmailChannel{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		// Mail is the slowest sink; one message every 30s is plenty.
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 2),
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, alert models.Alert) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email throttled: %w", err)
	}

	var auth smtp.Auth
	if c.username != "" {
		auth = smtp.PlainAuth("", c.username, c.password, c.host)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: [warden/%s] %s\r\n\r\n%s\r\n\r\nAlert ID: %s\r\nThreshold: %s\r\nAt: %s\r\n",
		c.from, strings.Join(c.to, ", "), alert.Severity, alert.Message,
		alert.Message, alert.ID, alert.ThresholdID, alert.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	if err := smtp.SendMail(c.host+":"+c.port, auth, c.from, c.to, []byte(msg)); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

// NATSChannel publishes alerts to a NATS subject for downstream consumers.
type NATSChannel struct {
	nc      *nats.Conn
	subject string
}

func NewNATSChannel(nc *nats.Conn, subject string) *NATSChannel {
	return &NATSChannel{nc: nc, subject: subject}
}

func (c *NATSChannel) Name() string { return "nats" }

func (c *NATSChannel) Send(_ context.Context, alert models.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	if err := c.nc.Publish(c.subject, body); err != nil {
		return fmt.Errorf("nats publish to %s: %w", c.subject, err)
	}
	return nil
}
