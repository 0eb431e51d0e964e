package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetk3436/warden/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlert() models.Alert {
	return models.Alert{
		ID:          "alert_1700000000000_abcd1234",
		ThresholdID: "high-error-rate",
		Severity:    models.SeverityError,
		Message:     "High error rate: too many failures",
		Status:      models.AlertActive,
		CreatedAt:   time.Now(),
	}
}

func TestWebhookChannelPostsAlertJSON(t *testing.T) {
	var received models.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel("webhook", srv.URL)
	require.Equal(t, "webhook", ch.Name())

	alert := testAlert()
	require.NoError(t, ch.Send(context.Background(), alert))
	assert.Equal(t, alert.ID, received.ID)
	assert.Equal(t, alert.Severity, received.Severity)
}

func TestWebhookChannelReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhookChannel("webhook", srv.URL)
	err := ch.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookChannelUnreachable(t *testing.T) {
	ch := NewWebhookChannel("webhook", "http://127.0.0.1:1/nope")
	require.Error(t, ch.Send(context.Background(), testAlert()))
}

func TestChatChannelSendsTextPayload(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewChatChannel(srv.URL)
	require.NoError(t, ch.Send(context.Background(), testAlert()))

	assert.Contains(t, payload["text"], "[ERROR]")
	assert.Contains(t, payload["text"], "High error rate")
}

func TestLogChannel(t *testing.T) {
	ch := LogChannel{}
	require.Equal(t, "log", ch.Name())
	require.NoError(t, ch.Send(context.Background(), testAlert()))
}

func TestWebhookThrottleRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel("webhook", srv.URL)

	// Exhaust the burst, then a cancelled context must surface as an error
	// instead of blocking on the limiter.
	for i := 0; i < 5; i++ {
		require.NoError(t, ch.Send(context.Background(), testAlert()))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, ch.Send(ctx, testAlert()))
}
