package gateway

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velmarket/gateway/internal/config"
)

func testProfile() config.SecurityProfile {
	return config.SecurityProfile{
		Name:                    "test",
		WindowLength:            1 * time.Minute,
		MaxAttempts:             5,
		BlockDur:                10 * time.Minute,
		LockoutMaxAttempts:      5,
		LockoutDuration:         1 * time.Hour,
		PermanentBlockThreshold: 20,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLimiter(t *testing.T, profile config.SecurityProfile) (*RateLimiter, *time.Time) {
	t.Helper()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(NewMemoryStore(), profile, discardLogger())
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_AllowsUpToMaxAttempts(t *testing.T) {
	rl, _ := newTestLimiter(t, testProfile())

	for i := 0; i < 5; i++ {
		decision := rl.Check("10.0.0.1", "/auth/login")
		assert.True(t, decision.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 4-i, decision.Remaining)
	}

	decision := rl.Check("10.0.0.1", "/auth/login")
	assert.False(t, decision.Allowed)
	assert.Equal(t, 10*time.Minute, decision.RetryAfter)
}

func TestRateLimiter_BlockOutlivesWindow(t *testing.T) {
	rl, now := newTestLimiter(t, testProfile())

	for i := 0; i < 6; i++ {
		rl.Check("10.0.0.1", "/auth/login")
	}

	// Counting window has long elapsed but the block has not
	*now = now.Add(5 * time.Minute)
	decision := rl.Check("10.0.0.1", "/auth/login")
	assert.False(t, decision.Allowed)
	assert.Equal(t, 5*time.Minute, decision.RetryAfter)
}

func TestRateLimiter_FreshWindowAfterBlockExpires(t *testing.T) {
	rl, now := newTestLimiter(t, testProfile())

	for i := 0; i < 6; i++ {
		rl.Check("10.0.0.1", "/auth/login")
	}

	*now = now.Add(10*time.Minute + time.Second)
	decision := rl.Check("10.0.0.1", "/auth/login")
	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.Remaining)
}

func TestRateLimiter_WindowExpiryResetsCount(t *testing.T) {
	rl, now := newTestLimiter(t, testProfile())

	for i := 0; i < 4; i++ {
		rl.Check("10.0.0.1", "/auth/login")
	}

	*now = now.Add(61 * time.Second)
	decision := rl.Check("10.0.0.1", "/auth/login")
	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.Remaining)
}

func TestRateLimiter_BucketsAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(t, testProfile())

	for i := 0; i < 6; i++ {
		rl.Check("10.0.0.1", "/auth/login")
	}

	// Different IP, same endpoint
	assert.True(t, rl.Check("10.0.0.2", "/auth/login").Allowed)
	// Same IP, different endpoint
	assert.True(t, rl.Check("10.0.0.1", "/admin/security-events").Allowed)
}

func TestRateLimiter_SweepDropsStaleBuckets(t *testing.T) {
	rl, now := newTestLimiter(t, testProfile())

	rl.Check("10.0.0.1", "/a")
	for i := 0; i < 6; i++ {
		rl.Check("10.0.0.2", "/b")
	}

	// /a's window elapsed; /b is still blocked and must survive
	*now = now.Add(2 * time.Minute)
	removed := rl.Sweep()
	assert.Equal(t, 1, removed)

	decision := rl.Check("10.0.0.2", "/b")
	assert.False(t, decision.Allowed)
}

func TestRateLimiter_SweepDropsExpiredBlocks(t *testing.T) {
	rl, now := newTestLimiter(t, testProfile())

	for i := 0; i < 6; i++ {
		rl.Check("10.0.0.1", "/a")
	}

	*now = now.Add(11 * time.Minute)
	removed := rl.Sweep()
	assert.Equal(t, 1, removed)
}

func TestRateLimiter_ManyClientsDoNotInterfere(t *testing.T) {
	rl, _ := newTestLimiter(t, testProfile())

	for i := 0; i < 100; i++ {
		ip := fmt.Sprintf("10.0.%d.%d", i/256, i%256)
		decision := rl.Check(ip, "/auth/login")
		require.True(t, decision.Allowed)
	}
}
