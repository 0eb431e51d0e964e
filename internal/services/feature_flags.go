package services

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahmetk3436/warden/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const flagEnvPrefix = "FEATURE_FLAG_"

// FlagManager evaluates feature flags against the ambient user context.
// Evaluation is a priority chain: override, unknown-key default, enabled
// flag + environment/date/segment/rollout gates. Results are cached per key
// for a short TTL; any definition, override or context change invalidates.
type FlagManager struct {
	mu          sync.RWMutex
	flags       map[string]*models.FeatureFlag
	overrides   map[string]any
	userCtx     models.UserContext
	cache       map[string]flagEval
	cacheTTL    time.Duration
	environment string // process environment, used when the context has none
	db          *gorm.DB
	now         func() time.Time
}

type flagEval struct {
	enabled bool
	value   any
	expires time.Time
}

type FlagOption func(*FlagManager)

func WithFlagCacheTTL(d time.Duration) FlagOption {
	return func(fm *FlagManager) { fm.cacheTTL = d }
}

func NewFlagManager(db *gorm.DB, environment string, opts ...FlagOption) *FlagManager {
	fm := &FlagManager{
		flags:       make(map[string]*models.FeatureFlag),
		overrides:   make(map[string]any),
		cache:       make(map[string]flagEval),
		cacheTTL:    time.Minute,
		environment: environment,
		db:          db,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(fm)
	}
	return fm
}

// IsEnabled reports whether key is on for the current user context.
// Unknown keys return def; evaluation never fails.
func (fm *FlagManager) IsEnabled(key string, def bool) bool {
	eval, known := fm.evaluate(key)
	if !known {
		return def
	}
	return eval.enabled
}

// Value returns the flag's effective value: the override verbatim, the static
// value when one is set, or the boolean gate outcome. Unknown keys return def.
func (fm *FlagManager) Value(key string, def any) any {
	eval, known := fm.evaluate(key)
	if !known {
		return def
	}
	return eval.value
}

func (fm *FlagManager) evaluate(key string) (flagEval, bool) {
	now := fm.now()

	fm.mu.RLock()
	if cached, ok := fm.cache[key]; ok && now.Before(cached.expires) {
		fm.mu.RUnlock()
		return cached, true
	}
	fm.mu.RUnlock()

	fm.mu.Lock()
	defer fm.mu.Unlock()

	// Overrides bypass every gate; they exist for deterministic tests and
	// emergency kill-switches.
	if v, ok := fm.overrides[key]; ok {
		eval := flagEval{enabled: truthy(v), value: v, expires: now.Add(fm.cacheTTL)}
		fm.cache[key] = eval
		return eval, true
	}

	flag, ok := fm.flags[key]
	if !ok {
		return flagEval{}, false
	}

	eval := flagEval{expires: now.Add(fm.cacheTTL)}
	if fm.gatesPass(flag, now) {
		eval.enabled = true
		eval.value = staticValue(flag, true)
	} else {
		eval.value = staticValue(flag, false)
	}
	fm.cache[key] = eval
	return eval, true
}

// gatesPass applies the enabled flag and the environment, date, segment and
// rollout gates. All configured gates must pass. Caller holds the lock.
func (fm *FlagManager) gatesPass(flag *models.FeatureFlag, now time.Time) bool {
	if !flag.Enabled {
		return false
	}

	if len(flag.Environments) > 0 {
		env := fm.userCtx.Environment
		if env == "" {
			env = fm.environment
		}
		if !containsString(flag.Environments, env) {
			return false
		}
	}

	if flag.StartDate != nil && now.Before(*flag.StartDate) {
		return false
	}
	if flag.EndDate != nil && now.After(*flag.EndDate) {
		return false
	}

	if len(flag.Segments) > 0 {
		matched := containsString(flag.Segments, fm.userCtx.Tier)
		for _, s := range fm.userCtx.Segments {
			if matched {
				break
			}
			matched = containsString(flag.Segments, s)
		}
		if !matched {
			return false
		}
	}

	if flag.RolloutPercentage != nil && *flag.RolloutPercentage < 100 {
		userID := fm.userCtx.UserID
		if userID == "" {
			userID = "anonymous"
		}
		if rolloutBucket(userID, flag.Key) >= *flag.RolloutPercentage {
			return false
		}
	}

	return true
}

// rolloutBucket maps a user+flag pair onto 0-99. FNV-1a keeps the bucket a
// pure function of its inputs, so a user's bucket for a flag survives
// restarts and is identical on every instance.
func rolloutBucket(userID, key string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte{':'})
	h.Write([]byte(key))
	return int(h.Sum32() % 100)
}

func staticValue(flag *models.FeatureFlag, enabled bool) any {
	if len(flag.Value) > 0 {
		var v any
		if err := json.Unmarshal(flag.Value, &v); err == nil {
			return v
		}
	}
	return enabled
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case nil:
		return false
	default:
		return true
	}
}

func containsString(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// SetFlag creates or replaces a flag definition and invalidates its cached
// evaluation.
func (fm *FlagManager) SetFlag(flag models.FeatureFlag) error {
	if flag.Key == "" {
		return fmt.Errorf("flag key is required")
	}
	if flag.RolloutPercentage != nil && (*flag.RolloutPercentage < 0 || *flag.RolloutPercentage > 100) {
		return fmt.Errorf("rollout percentage must be 0-100, got %d", *flag.RolloutPercentage)
	}

	fm.mu.Lock()
	fm.flags[flag.Key] = &flag
	delete(fm.cache, flag.Key)
	fm.mu.Unlock()

	fm.persistFlag(&flag)
	return nil
}

func (fm *FlagManager) DeleteFlag(key string) bool {
	fm.mu.Lock()
	_, exists := fm.flags[key]
	delete(fm.flags, key)
	delete(fm.cache, key)
	fm.mu.Unlock()

	if exists && fm.db != nil {
		if err := fm.db.Delete(&models.FeatureFlag{}, "key = ?", key).Error; err != nil {
			slog.Error("Failed to delete flag", "key", key, "error", err)
		}
	}
	return exists
}

func (fm *FlagManager) Flag(key string) (models.FeatureFlag, bool) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	f, ok := fm.flags[key]
	if !ok {
		return models.FeatureFlag{}, false
	}
	return *f, true
}

func (fm *FlagManager) Flags() []models.FeatureFlag {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	out := make([]models.FeatureFlag, 0, len(fm.flags))
	for _, f := range fm.flags {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SetUserContext replaces the ambient evaluation context. The whole cache is
// flushed because rollout bucketing depends on the user id.
func (fm *FlagManager) SetUserContext(ctx models.UserContext) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.userCtx = ctx
	fm.cache = make(map[string]flagEval)
}

func (fm *FlagManager) UserContext() models.UserContext {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.userCtx
}

// SetOverride forces key to value, bypassing all evaluation rules.
func (fm *FlagManager) SetOverride(key string, value any) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.overrides[key] = value
	delete(fm.cache, key)
}

func (fm *FlagManager) ClearOverride(key string) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	delete(fm.overrides, key)
	delete(fm.cache, key)
}

// Export snapshots flags, user context and overrides for admin tooling and
// test fixtures.
func (fm *FlagManager) Export() models.FlagConfig {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	cfg := models.FlagConfig{
		Flags:       make(map[string]models.FeatureFlag, len(fm.flags)),
		UserContext: fm.userCtx,
		Overrides:   make(map[string]any, len(fm.overrides)),
	}
	for k, f := range fm.flags {
		cfg.Flags[k] = *f
	}
	for k, v := range fm.overrides {
		cfg.Overrides[k] = v
	}
	return cfg
}

// Import replaces the full configuration with cfg and flushes the cache.
func (fm *FlagManager) Import(cfg models.FlagConfig) error {
	for key, flag := range cfg.Flags {
		if flag.Key == "" {
			flag.Key = key
		}
		if flag.Key != key {
			return fmt.Errorf("flag %q declares mismatched key %q", key, flag.Key)
		}
	}

	fm.mu.Lock()
	fm.flags = make(map[string]*models.FeatureFlag, len(cfg.Flags))
	for key, flag := range cfg.Flags {
		f := flag
		if f.Key == "" {
			f.Key = key
		}
		fm.flags[key] = &f
	}
	fm.overrides = make(map[string]any, len(cfg.Overrides))
	for k, v := range cfg.Overrides {
		fm.overrides[k] = v
	}
	fm.userCtx = cfg.UserContext
	fm.cache = make(map[string]flagEval)
	flags := make([]*models.FeatureFlag, 0, len(fm.flags))
	for _, f := range fm.flags {
		flags = append(flags, f)
	}
	fm.mu.Unlock()

	for _, f := range flags {
		fm.persistFlag(f)
	}
	return nil
}

// LoadFromDB merges stored flag definitions over the in-memory defaults.
func (fm *FlagManager) LoadFromDB() error {
	if fm.db == nil {
		return nil
	}

	var stored []models.FeatureFlag
	if err := fm.db.Find(&stored).Error; err != nil {
		return fmt.Errorf("failed to load flags: %w", err)
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	for i := range stored {
		fm.flags[stored[i].Key] = &stored[i]
		delete(fm.cache, stored[i].Key)
	}
	slog.Info("Feature flags loaded", "count", len(stored))
	return nil
}

// LoadFromEnv seeds flags from FEATURE_FLAG_* variables at startup.
// FEATURE_FLAG_<KEY> sets the flag's value (JSON or raw string) and enables
// it; FEATURE_FLAG_<KEY>_ENABLED toggles it. Returns how many flags were
// touched.
func (fm *FlagManager) LoadFromEnv(environ []string) int {
	touched := make(map[string]bool)
	enabledVars := make(map[string]string)

	fm.mu.Lock()
	// Value variables first, so an explicit _ENABLED toggle always wins
	// regardless of environ ordering.
	for _, kv := range environ {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, flagEnvPrefix) {
			continue
		}

		key := strings.ToLower(strings.TrimPrefix(name, flagEnvPrefix))
		if enabledKey, found := strings.CutSuffix(key, "_enabled"); found && enabledKey != "" {
			enabledVars[enabledKey] = raw
			continue
		}

		flag := fm.envFlag(key)
		flag.Enabled = true
		if json.Valid([]byte(raw)) {
			flag.Value = datatypes.JSON(raw)
		} else {
			encoded, _ := json.Marshal(raw)
			flag.Value = datatypes.JSON(encoded)
		}
		touched[key] = true
		delete(fm.cache, key)
	}
	for key, raw := range enabledVars {
		flag := fm.envFlag(key)
		flag.Enabled = strings.EqualFold(raw, "true") || raw == "1"
		touched[key] = true
		delete(fm.cache, key)
	}
	fm.mu.Unlock()

	if len(touched) > 0 {
		slog.Info("Feature flags loaded from environment", "count", len(touched))
	}
	return len(touched)
}

// envFlag returns the existing flag for key or registers an empty one.
// Caller holds the lock.
func (fm *FlagManager) envFlag(key string) *models.FeatureFlag {
	if f, ok := fm.flags[key]; ok {
		return f
	}
	f := &models.FeatureFlag{Key: key}
	fm.flags[key] = f
	return f
}

func (fm *FlagManager) persistFlag(f *models.FeatureFlag) {
	if fm.db == nil {
		return
	}
	if err := fm.db.Save(f).Error; err != nil {
		slog.Error("Failed to persist flag", "key", f.Key, "error", err)
	}
}
