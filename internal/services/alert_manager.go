package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahmetk3436/warden/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlertManager periodically evaluates registered thresholds against metric
// and health snapshots, creates alerts, dispatches them to notification
// channels and tracks the alert lifecycle. Thresholds are evaluated
// independently each tick; a threshold in cooldown is skipped.
type AlertManager struct {
	mu         sync.RWMutex
	thresholds map[string]*models.AlertThreshold
	cooldowns  map[string]time.Time // threshold id -> suppressed until
	active     map[string]*models.Alert
	history    []*models.Alert
	channels   map[string]NotificationChannel

	metrics MetricsSource
	health  HealthSource
	db      *gorm.DB // optional write-through; nil runs fully in-memory

	interval        time.Duration
	dispatchTimeout time.Duration
	historyLimit    int
	now             func() time.Time

	subMu       sync.Mutex
	subscribers map[chan models.Alert]struct{}

	dispatchWG sync.WaitGroup
	stop       chan struct{}
	stopOnce   sync.Once
}

type AlertOption func(*AlertManager)

func WithEvalInterval(d time.Duration) AlertOption {
	return func(am *AlertManager) { am.interval = d }
}

func WithDispatchTimeout(d time.Duration) AlertOption {
	return func(am *AlertManager) { am.dispatchTimeout = d }
}

func WithHistoryLimit(n int) AlertOption {
	return func(am *AlertManager) { am.historyLimit = n }
}

func NewAlertManager(db *gorm.DB, metrics MetricsSource, health HealthSource, opts ...AlertOption) *AlertManager {
	am := &AlertManager{
		thresholds:      make(map[string]*models.AlertThreshold),
		cooldowns:       make(map[string]time.Time),
		active:          make(map[string]*models.Alert),
		channels:        make(map[string]NotificationChannel),
		subscribers:     make(map[chan models.Alert]struct{}),
		metrics:         metrics,
		health:          health,
		db:              db,
		interval:        time.Minute,
		dispatchTimeout: 10 * time.Second,
		historyLimit:    1000,
		now:             time.Now,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(am)
	}
	return am
}

// RegisterChannel adds a notification sink. Thresholds reference channels by
// name; unknown names are skipped at dispatch time with a log line.
func (am *AlertManager) RegisterChannel(ch NotificationChannel) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.channels[ch.Name()] = ch
}

func validateThreshold(t *models.AlertThreshold) error {
	if t.ID == "" || t.Name == "" {
		return fmt.Errorf("threshold id and name are required")
	}
	if !models.ValidSeverity(t.Severity) {
		return fmt.Errorf("invalid severity %q", t.Severity)
	}
	for _, cond := range t.Conditions {
		switch cond.Type {
		case models.ConditionMetric, models.ConditionErrorRate, models.ConditionResponseTime,
			models.ConditionHealthCheck, models.ConditionCustom:
		default:
			return fmt.Errorf("invalid condition type %q", cond.Type)
		}
		if !models.ValidComparator(cond.Comparator) {
			return fmt.Errorf("invalid comparator %q", cond.Comparator)
		}
	}
	return nil
}

func (am *AlertManager) AddThreshold(t models.AlertThreshold) error {
	if err := validateThreshold(&t); err != nil {
		return err
	}

	am.mu.Lock()
	if _, exists := am.thresholds[t.ID]; exists {
		am.mu.Unlock()
		return fmt.Errorf("threshold %q already exists", t.ID)
	}
	am.thresholds[t.ID] = &t
	am.mu.Unlock()

	am.persistThreshold(&t)
	slog.Info("Alert threshold added", "id", t.ID, "name", t.Name, "conditions", len(t.Conditions))
	return nil
}

// UpdateThreshold replaces an existing threshold in place. The threshold's
// cooldown, if pending, is preserved.
func (am *AlertManager) UpdateThreshold(t models.AlertThreshold) error {
	if err := validateThreshold(&t); err != nil {
		return err
	}

	am.mu.Lock()
	if _, exists := am.thresholds[t.ID]; !exists {
		am.mu.Unlock()
		return fmt.Errorf("threshold %q not found", t.ID)
	}
	am.thresholds[t.ID] = &t
	am.mu.Unlock()

	am.persistThreshold(&t)
	return nil
}

// RemoveThreshold deletes a threshold along with any pending cooldown.
// Removing an unknown id is a no-op returning false.
func (am *AlertManager) RemoveThreshold(id string) bool {
	am.mu.Lock()
	_, exists := am.thresholds[id]
	delete(am.thresholds, id)
	delete(am.cooldowns, id)
	am.mu.Unlock()

	if exists && am.db != nil {
		if err := am.db.Delete(&models.AlertThreshold{}, "id = ?", id).Error; err != nil {
			slog.Error("Failed to delete threshold", "id", id, "error", err)
		}
	}
	return exists
}

func (am *AlertManager) Threshold(id string) (models.AlertThreshold, bool) {
	am.mu.RLock()
	defer am.mu.RUnlock()
	t, ok := am.thresholds[id]
	if !ok {
		return models.AlertThreshold{}, false
	}
	return *t, true
}

func (am *AlertManager) Thresholds() []models.AlertThreshold {
	am.mu.RLock()
	defer am.mu.RUnlock()

	out := make([]models.AlertThreshold, 0, len(am.thresholds))
	for _, t := range am.thresholds {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadFromDB seeds thresholds from the database, keeping any already
// registered in-memory definition for the same id.
func (am *AlertManager) LoadFromDB() error {
	if am.db == nil {
		return nil
	}

	var stored []models.AlertThreshold
	if err := am.db.Find(&stored).Error; err != nil {
		return fmt.Errorf("failed to load thresholds: %w", err)
	}

	am.mu.Lock()
	defer am.mu.Unlock()
	for i := range stored {
		if _, exists := am.thresholds[stored[i].ID]; !exists {
			am.thresholds[stored[i].ID] = &stored[i]
		}
	}
	slog.Info("Alert thresholds loaded", "count", len(stored))
	return nil
}

func (am *AlertManager) Start() {
	go am.loop()
	slog.Info("Alert evaluation started", "interval", am.interval)
}

// Stop cancels the evaluation loop and waits up to a grace period for
// in-flight dispatches before abandoning them.
func (am *AlertManager) Stop() {
	am.stopOnce.Do(func() { close(am.stop) })

	done := make(chan struct{})
	go func() {
		am.dispatchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("Abandoning in-flight alert dispatches on shutdown")
	}
}

func (am *AlertManager) loop() {
	ticker := time.NewTicker(am.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			am.EvaluateAll()
		case <-am.stop:
			return
		}
	}
}

// EvaluateAll runs one evaluation pass. Thresholds are evaluated concurrently
// and independently; the pass returns once every evaluation has finished, but
// channel dispatch continues in the background.
func (am *AlertManager) EvaluateAll() {
	am.mu.RLock()
	pending := make([]*models.AlertThreshold, 0, len(am.thresholds))
	for _, t := range am.thresholds {
		if t.Enabled {
			pending = append(pending, t)
		}
	}
	am.mu.RUnlock()

	var wg sync.WaitGroup
	for _, t := range pending {
		wg.Add(1)
		go func(t *models.AlertThreshold) {
			defer wg.Done()
			am.evaluateThreshold(t)
		}(t)
	}
	wg.Wait()
}

func (am *AlertManager) evaluateThreshold(t *models.AlertThreshold) {
	now := am.now()

	am.mu.RLock()
	until, inCooldown := am.cooldowns[t.ID]
	am.mu.RUnlock()
	if inCooldown && now.Before(until) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), am.dispatchTimeout)
	defer cancel()

	for _, cond := range t.Conditions {
		met, err := am.evalCondition(ctx, cond)
		if err != nil {
			// One broken data source must not fail the whole pass; treat the
			// threshold as not triggered this tick.
			slog.Error("Condition evaluation failed", "threshold", t.ID, "type", cond.Type, "error", err)
			return
		}
		if !met {
			return
		}
	}

	am.trigger(t)
}

func (am *AlertManager) trigger(t *models.AlertThreshold) {
	now := am.now()
	alert := &models.Alert{
		ID:          newAlertID(now),
		ThresholdID: t.ID,
		Severity:    t.Severity,
		Message:     triggerMessage(t),
		Status:      models.AlertActive,
		CreatedAt:   now,
	}

	am.mu.Lock()
	if t.CooldownMinutes > 0 {
		am.cooldowns[t.ID] = now.Add(time.Duration(t.CooldownMinutes) * time.Minute)
	}
	am.active[alert.ID] = alert
	am.history = append(am.history, alert)
	if len(am.history) > am.historyLimit {
		am.history = am.history[len(am.history)-am.historyLimit:]
	}
	am.mu.Unlock()

	am.persistAlert(alert)
	am.broadcast(*alert)
	slog.Warn("Alert triggered", "id", alert.ID, "threshold", t.ID, "severity", alert.Severity)

	am.dispatch(*alert, t.Channels)
}

// dispatch fans the alert out to each configured channel in its own
// goroutine. Channels fail independently; failures are logged and never roll
// back the alert or block the remaining channels.
func (am *AlertManager) dispatch(alert models.Alert, channelNames []string) {
	am.mu.RLock()
	targets := make([]NotificationChannel, 0, len(channelNames))
	for _, name := range channelNames {
		ch, ok := am.channels[name]
		if !ok {
			slog.Warn("Unknown notification channel", "channel", name, "threshold", alert.ThresholdID)
			continue
		}
		targets = append(targets, ch)
	}
	am.mu.RUnlock()

	for _, ch := range targets {
		am.dispatchWG.Add(1)
		go func(ch NotificationChannel) {
			defer am.dispatchWG.Done()

			ctx, cancel := context.WithTimeout(context.Background(), am.dispatchTimeout)
			defer cancel()

			if err := ch.Send(ctx, alert); err != nil {
				slog.Error("Alert dispatch failed", "channel", ch.Name(), "alert", alert.ID, "error", err)
				return
			}
			slog.Debug("Alert dispatched", "channel", ch.Name(), "alert", alert.ID)
		}(ch)
	}
}

// AcknowledgeAlert marks an active alert as acknowledged by actor. Returns
// false for unknown ids or alerts past the active state.
func (am *AlertManager) AcknowledgeAlert(alertID, actor string) bool {
	now := am.now()

	am.mu.Lock()
	alert, ok := am.active[alertID]
	if !ok || alert.Status != models.AlertActive {
		am.mu.Unlock()
		return false
	}
	alert.Status = models.AlertAcknowledged
	alert.AcknowledgedBy = actor
	alert.AcknowledgedAt = &now
	snapshot := *alert
	am.mu.Unlock()

	am.persistAlert(&snapshot)
	return true
}

// ResolveAlert closes an alert. It leaves the active set but stays in
// history. Valid from both active and acknowledged states.
func (am *AlertManager) ResolveAlert(alertID string) bool {
	now := am.now()

	am.mu.Lock()
	alert, ok := am.active[alertID]
	if !ok {
		am.mu.Unlock()
		return false
	}
	alert.Status = models.AlertResolved
	alert.ResolvedAt = &now
	delete(am.active, alertID)
	snapshot := *alert
	am.mu.Unlock()

	am.persistAlert(&snapshot)
	return true
}

// ActiveAlerts returns unresolved alerts, most urgent first, newest first
// within a severity.
func (am *AlertManager) ActiveAlerts() []models.Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	out := make([]models.Alert, 0, len(am.active))
	for _, a := range am.active {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := models.SeverityRank(out[i].Severity), models.SeverityRank(out[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// History returns up to limit alerts, newest first, optionally filtered by
// status. limit <= 0 means no limit.
func (am *AlertManager) History(limit int, status string) []models.Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	out := make([]models.Alert, 0, len(am.history))
	for i := len(am.history) - 1; i >= 0; i-- {
		a := am.history[i]
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, *a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// TriggerTestAlert creates and dispatches a synthetic alert to every
// registered channel, validating the dispatch path end to end.
func (am *AlertManager) TriggerTestAlert(severity string) (models.Alert, error) {
	if !models.ValidSeverity(severity) {
		return models.Alert{}, fmt.Errorf("invalid severity %q", severity)
	}

	now := am.now()
	alert := &models.Alert{
		ID:          newAlertID(now),
		ThresholdID: "test",
		Severity:    severity,
		Message:     fmt.Sprintf("Test alert (%s): dispatch path check", severity),
		Status:      models.AlertActive,
		CreatedAt:   now,
	}

	am.mu.Lock()
	am.active[alert.ID] = alert
	am.history = append(am.history, alert)
	if len(am.history) > am.historyLimit {
		am.history = am.history[len(am.history)-am.historyLimit:]
	}
	names := make([]string, 0, len(am.channels))
	for name := range am.channels {
		names = append(names, name)
	}
	am.mu.Unlock()

	am.persistAlert(alert)
	am.broadcast(*alert)
	am.dispatch(*alert, names)
	return *alert, nil
}

// Subscribe registers a live alert feed for the websocket stream. The
// returned cancel func must be called when the consumer goes away. Slow
// consumers lose alerts rather than block triggering.
func (am *AlertManager) Subscribe() (<-chan models.Alert, func()) {
	ch := make(chan models.Alert, 16)

	am.subMu.Lock()
	am.subscribers[ch] = struct{}{}
	am.subMu.Unlock()

	cancel := func() {
		am.subMu.Lock()
		if _, ok := am.subscribers[ch]; ok {
			delete(am.subscribers, ch)
			close(ch)
		}
		am.subMu.Unlock()
	}
	return ch, cancel
}

func (am *AlertManager) broadcast(alert models.Alert) {
	am.subMu.Lock()
	defer am.subMu.Unlock()
	for ch := range am.subscribers {
		select {
		case ch <- alert:
		default:
		}
	}
}

func (am *AlertManager) persistThreshold(t *models.AlertThreshold) {
	if am.db == nil {
		return
	}
	if err := am.db.Save(t).Error; err != nil {
		slog.Error("Failed to persist threshold", "id", t.ID, "error", err)
	}
}

func (am *AlertManager) persistAlert(a *models.Alert) {
	if am.db == nil {
		return
	}
	if err := am.db.Save(a).Error; err != nil {
		slog.Error("Failed to persist alert", "id", a.ID, "error", err)
	}
}

func newAlertID(now time.Time) string {
	return fmt.Sprintf("alert_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

func triggerMessage(t *models.AlertThreshold) string {
	if t.Description != "" {
		return fmt.Sprintf("%s: %s", t.Name, t.Description)
	}
	if len(t.Conditions) == 0 {
		return t.Name
	}
	parts := make([]string, 0, len(t.Conditions))
	for _, c := range t.Conditions {
		parts = append(parts, c.Type)
	}
	return fmt.Sprintf("%s: %s conditions met", t.Name, strings.Join(parts, ", "))
}
