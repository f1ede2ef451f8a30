package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velmarket/gateway/internal/config"
)

func newTestTracker(t *testing.T, profile config.SecurityProfile) (*LockoutTracker, *time.Time) {
	t.Helper()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewLockoutTracker(NewMemoryStore(), profile, discardLogger())
	tracker.now = func() time.Time { return now }
	return tracker, &now
}

func TestLockoutTracker_WarmsUpBeforeBlocking(t *testing.T) {
	tracker, _ := newTestTracker(t, testProfile())
	key := ClientKey{ClientIP: "10.0.0.1", Target: "admin@example.com"}

	for i := 1; i <= 4; i++ {
		decision := tracker.RecordFailure(key)
		assert.Equal(t, LockoutWarming, decision.State)
		assert.Equal(t, i, decision.FailureCount)
	}
}

func TestLockoutTracker_FifthFailureBlocksNextAttempt(t *testing.T) {
	tracker, _ := newTestTracker(t, testProfile())
	key := ClientKey{ClientIP: "10.0.0.1", Target: "admin@example.com"}

	var decision LockoutDecision
	for i := 0; i < 5; i++ {
		decision = tracker.RecordFailure(key)
	}
	assert.Equal(t, LockoutTemporary, decision.State)
	assert.Equal(t, time.Hour, decision.RetryAfter)

	// The next attempt is denied before any credential work
	status := tracker.Status(key)
	assert.Equal(t, LockoutTemporary, status.State)
	assert.True(t, status.Blocked())
}

func TestLockoutTracker_CounterSurvivesTemporaryBlockExpiry(t *testing.T) {
	tracker, now := newTestTracker(t, testProfile())
	key := ClientKey{ClientIP: "10.0.0.1", Target: "admin@example.com"}

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(key)
	}

	*now = now.Add(time.Hour + time.Second)
	status := tracker.Status(key)
	assert.Equal(t, LockoutWarming, status.State)
	assert.Equal(t, 5, status.FailureCount)

	// One more failure re-blocks immediately; the streak never reset
	decision := tracker.RecordFailure(key)
	assert.Equal(t, LockoutTemporary, decision.State)
	assert.Equal(t, 6, decision.FailureCount)
}

func TestLockoutTracker_EscalatesToPermanent(t *testing.T) {
	profile := testProfile()
	tracker, now := newTestTracker(t, profile)
	key := ClientKey{ClientIP: "10.0.0.1", Target: "admin@example.com"}

	var decision LockoutDecision
	for i := 0; i < profile.PermanentBlockThreshold; i++ {
		// Step past each temporary block so failures keep accumulating
		if tracker.Status(key).State == LockoutTemporary {
			*now = now.Add(profile.LockoutDuration + time.Second)
		}
		decision = tracker.RecordFailure(key)
	}

	assert.Equal(t, LockoutPermanent, decision.State)
	assert.Equal(t, profile.PermanentBlockThreshold, decision.FailureCount)
	assert.True(t, tracker.IsClientPermanentlyBlocked("10.0.0.1"))
}

func TestLockoutTracker_PermanentBlockIsMonotonic(t *testing.T) {
	profile := testProfile()
	tracker, now := newTestTracker(t, profile)
	key := ClientKey{ClientIP: "10.0.0.1", Target: "admin@example.com"}

	for i := 0; i < profile.PermanentBlockThreshold; i++ {
		if tracker.Status(key).State == LockoutTemporary {
			*now = now.Add(profile.LockoutDuration + time.Second)
		}
		tracker.RecordFailure(key)
	}
	require.Equal(t, LockoutPermanent, tracker.Status(key).State)

	// Success does not clear a permanent block
	tracker.RecordSuccess(key)
	assert.Equal(t, LockoutPermanent, tracker.Status(key).State)

	// Time does not clear it either
	*now = now.Add(365 * 24 * time.Hour)
	assert.Equal(t, LockoutPermanent, tracker.Status(key).State)
	assert.True(t, tracker.IsClientPermanentlyBlocked("10.0.0.1"))
}

func TestLockoutTracker_SuccessResetsNonPermanentRecord(t *testing.T) {
	tracker, _ := newTestTracker(t, testProfile())
	key := ClientKey{ClientIP: "10.0.0.1", Target: "admin@example.com"}

	for i := 0; i < 3; i++ {
		tracker.RecordFailure(key)
	}
	tracker.RecordSuccess(key)

	status := tracker.Status(key)
	assert.Equal(t, LockoutClean, status.State)
	assert.Equal(t, 0, status.FailureCount)

	// A new failure streak starts from one
	decision := tracker.RecordFailure(key)
	assert.Equal(t, 1, decision.FailureCount)
}

func TestLockoutTracker_CredentialsTrackedIndependently(t *testing.T) {
	tracker, _ := newTestTracker(t, testProfile())

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(ClientKey{ClientIP: "10.0.0.1", Target: "a@example.com"})
	}

	// Same IP, different credential stays clean
	status := tracker.Status(ClientKey{ClientIP: "10.0.0.1", Target: "b@example.com"})
	assert.Equal(t, LockoutClean, status.State)

	// Different IP, same credential stays clean
	status = tracker.Status(ClientKey{ClientIP: "10.0.0.2", Target: "a@example.com"})
	assert.Equal(t, LockoutClean, status.State)
}

func TestLockoutTracker_UnblockClientClearsPermanentMarker(t *testing.T) {
	profile := testProfile()
	tracker, now := newTestTracker(t, profile)
	key := ClientKey{ClientIP: "10.0.0.1", Target: "admin@example.com"}

	for i := 0; i < profile.PermanentBlockThreshold; i++ {
		if tracker.Status(key).State == LockoutTemporary {
			*now = now.Add(profile.LockoutDuration + time.Second)
		}
		tracker.RecordFailure(key)
	}
	require.True(t, tracker.IsClientPermanentlyBlocked("10.0.0.1"))

	removed := tracker.UnblockClient("10.0.0.1")
	assert.Equal(t, 2, removed) // credential record plus wildcard marker
	assert.False(t, tracker.IsClientPermanentlyBlocked("10.0.0.1"))
	assert.Equal(t, LockoutClean, tracker.Status(key).State)
}

func TestLockoutTracker_StatusDoesNotRecordAnAttempt(t *testing.T) {
	tracker, _ := newTestTracker(t, testProfile())
	key := ClientKey{ClientIP: "10.0.0.1", Target: "admin@example.com"}

	tracker.RecordFailure(key)
	for i := 0; i < 10; i++ {
		tracker.Status(key)
	}

	assert.Equal(t, 1, tracker.Status(key).FailureCount)
}
