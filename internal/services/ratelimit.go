package services

import (
	"log/slog"
	"sync"
	"time"
)

// RateLimitResult is the outcome of a single rate-limit check.
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// Limiter decides whether a request identified by an opaque key may proceed.
// Implementations: RateLimiter (in-process) and RedisRateLimiter (shared).
type Limiter interface {
	Check(identifier string, maxRequests int, window time.Duration) (RateLimitResult, error)
}

type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

// RateLimiter is a fixed-window request counter keyed by caller-chosen
// identifiers. Expired entries are swept by a background loop so memory is
// bounded by the number of identifiers active within a window.
type RateLimiter struct {
	mu              sync.Mutex
	entries         map[string]*rateLimitEntry
	cleanupInterval time.Duration
	now             func() time.Time
	stop            chan struct{}
	stopOnce        sync.Once
}

func NewRateLimiter(cleanupInterval time.Duration) *RateLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	return &RateLimiter{
		entries:         make(map[string]*rateLimitEntry),
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		stop:            make(chan struct{}),
	}
}

// Check counts one request against the identifier's current window. A blocked
// check does not consume budget; an expired entry is replaced, never
// incremented. The error return is always nil and exists to satisfy Limiter.
func (rl *RateLimiter) Check(identifier string, maxRequests int, window time.Duration) (RateLimitResult, error) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[identifier]
	if !ok || !now.Before(entry.resetTime) {
		entry = &rateLimitEntry{count: 1, resetTime: now.Add(window)}
		rl.entries[identifier] = entry
		return RateLimitResult{Allowed: true, Remaining: maxRequests - 1, ResetTime: entry.resetTime}, nil
	}

	if entry.count >= maxRequests {
		return RateLimitResult{Allowed: false, Remaining: 0, ResetTime: entry.resetTime}, nil
	}

	entry.count++
	return RateLimitResult{Allowed: true, Remaining: maxRequests - entry.count, ResetTime: entry.resetTime}, nil
}

// Len returns the number of tracked identifiers, expired entries included
// until the next sweep.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// Cleanup drops entries whose window has passed. Entries still inside their
// window are never touched.
func (rl *RateLimiter) Cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for id, entry := range rl.entries {
		if !now.Before(entry.resetTime) {
			delete(rl.entries, id)
		}
	}
}

func (rl *RateLimiter) Start() {
	go rl.loop()
	slog.Info("Rate limiter sweep started", "interval", rl.cleanupInterval)
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) loop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stop:
			return
		}
	}
}
