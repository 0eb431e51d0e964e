package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterConsumesBudget(t *testing.T) {
	rl := NewRateLimiter(time.Minute)

	for i := 0; i < 5; i++ {
		res, err := rl.Check("client", 5, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d should be allowed", i+1)
		require.Equal(t, 4-i, res.Remaining)
	}

	res, err := rl.Check("client", 5, time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	window := 100 * time.Millisecond
	first, _ := rl.Check("u", 2, window)
	require.True(t, first.Allowed)
	second, _ := rl.Check("u", 2, window)
	require.True(t, second.Allowed)

	blocked, _ := rl.Check("u", 2, window)
	require.False(t, blocked.Allowed)
	require.Equal(t, first.ResetTime, blocked.ResetTime, "blocked check must not move the window")

	// Past the window the counter starts over instead of accumulating.
	now = now.Add(window + 50*time.Millisecond)
	res, _ := rl.Check("u", 2, window)
	require.True(t, res.Allowed)
	require.Equal(t, 1, res.Remaining)
}

func TestRateLimiterBoundaryStartsFreshWindow(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	res, _ := rl.Check("u", 1, time.Second)
	require.True(t, res.Allowed)

	// Exactly at resetTime the entry is expired, not incremented.
	now = res.ResetTime
	res, _ = rl.Check("u", 1, time.Second)
	require.True(t, res.Allowed)
}

func TestRateLimiterIdentifiersAreIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Minute)

	for i := 0; i < 3; i++ {
		res, _ := rl.Check("user1", 3, time.Minute)
		require.True(t, res.Allowed)
	}
	blocked, _ := rl.Check("user1", 3, time.Minute)
	require.False(t, blocked.Allowed)

	res, _ := rl.Check("user2", 3, time.Minute)
	require.True(t, res.Allowed)
	require.Equal(t, 2, res.Remaining)
}

func TestRateLimiterBlockedChecksDoNotConsume(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Check("u", 1, time.Minute)
	for i := 0; i < 10; i++ {
		res, _ := rl.Check("u", 1, time.Minute)
		require.False(t, res.Allowed)
	}

	rl.mu.Lock()
	count := rl.entries["u"].count
	rl.mu.Unlock()
	require.Equal(t, 1, count)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		rl.Check(fmt.Sprintf("short-%d", i), 5, time.Second)
	}
	rl.Check("long", 5, time.Hour)
	require.Equal(t, 11, rl.Len())

	now = now.Add(2 * time.Second)
	rl.Cleanup()

	require.Equal(t, 1, rl.Len())

	// The surviving entry kept its count.
	res, _ := rl.Check("long", 5, time.Hour)
	require.True(t, res.Allowed)
	require.Equal(t, 3, res.Remaining)
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(10 * time.Millisecond)
	rl.Start()
	rl.Stop()
	rl.Stop()
}
