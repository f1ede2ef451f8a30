package gateway

import (
	"log/slog"
	"strings"
	"time"

	"github.com/velmarket/gateway/internal/config"
	"github.com/velmarket/gateway/internal/metrics"
)

// LockoutState is the position of a client+credential pair in the escalation
// state machine.
type LockoutState int

const (
	LockoutClean LockoutState = iota
	LockoutWarming
	LockoutTemporary
	LockoutPermanent
)

func (s LockoutState) String() string {
	switch s {
	case LockoutClean:
		return "clean"
	case LockoutWarming:
		return "warming"
	case LockoutTemporary:
		return "temporarily_blocked"
	case LockoutPermanent:
		return "permanently_blocked"
	default:
		return "unknown"
	}
}

// LockoutRecord accumulates failed authentication attempts for one
// (client, credential) pair. Permanent is monotonic: once set, no automated
// path clears it. Old failures never age out of the cumulative count; only a
// successful authentication resets the record.
type LockoutRecord struct {
	FailureCount   int
	FirstFailureAt time.Time
	LastFailureAt  time.Time
	BlockedUntil   time.Time
	Permanent      bool
}

// LockoutDecision reports the state after recording an attempt or probing.
type LockoutDecision struct {
	State        LockoutState
	FailureCount int
	RetryAfter   time.Duration
}

// Blocked reports whether the client must be denied right now.
func (d LockoutDecision) Blocked() bool {
	return d.State == LockoutTemporary || d.State == LockoutPermanent
}

// LockoutTracker escalates per-credential failure streaks from temporary
// blocks to a permanent block. It is separate from the generic rate limiter:
// a distributed credential-stuffing attack must trip it even when each source
// IP stays under the per-endpoint limit.
type LockoutTracker struct {
	store   KeyedStore
	profile config.SecurityProfile
	logger  *slog.Logger
	now     func() time.Time
}

func NewLockoutTracker(store KeyedStore, profile config.SecurityProfile, logger *slog.Logger) *LockoutTracker {
	return &LockoutTracker{
		store:   store,
		profile: profile,
		logger:  logger,
		now:     time.Now,
	}
}

func lockoutStoreKey(key ClientKey) string {
	return "lockout:" + key.String()
}

// RecordFailure increments the failure count and applies escalation.
// Reaching LockoutMaxAttempts sets a temporary block; reaching
// PermanentBlockThreshold upgrades to a permanent one.
func (t *LockoutTracker) RecordFailure(key ClientKey) LockoutDecision {
	now := t.now()

	var decision LockoutDecision
	t.store.Update(lockoutStoreKey(key), func(cur any) any {
		rec, ok := cur.(*LockoutRecord)
		if !ok || rec == nil {
			rec = &LockoutRecord{FirstFailureAt: now}
		}

		rec.FailureCount++
		rec.LastFailureAt = now

		if rec.FailureCount >= t.profile.PermanentBlockThreshold {
			if !rec.Permanent {
				rec.Permanent = true
				t.logger.Warn("client permanently blocked",
					slog.String("client_key", key.String()),
					slog.Int("failure_count", rec.FailureCount))
				t.markClientPermanent(key.ClientIP, now)
			}
			decision = LockoutDecision{State: LockoutPermanent, FailureCount: rec.FailureCount}
			return rec
		}

		if rec.FailureCount >= t.profile.LockoutMaxAttempts {
			rec.BlockedUntil = now.Add(t.profile.LockoutDuration)
			decision = LockoutDecision{
				State:        LockoutTemporary,
				FailureCount: rec.FailureCount,
				RetryAfter:   t.profile.LockoutDuration,
			}
			return rec
		}

		decision = LockoutDecision{State: LockoutWarming, FailureCount: rec.FailureCount}
		return rec
	})

	return decision
}

// markClientPermanent records a client-wide marker so protected-route
// admission can reject the client without knowing which credential tripped
// the threshold.
func (t *LockoutTracker) markClientPermanent(clientIP string, now time.Time) {
	wildcard := lockoutStoreKey(ClientKey{ClientIP: clientIP, Target: WildcardTarget})
	t.store.Update(wildcard, func(cur any) any {
		rec, ok := cur.(*LockoutRecord)
		if !ok || rec == nil {
			rec = &LockoutRecord{FirstFailureAt: now, LastFailureAt: now}
		}
		rec.Permanent = true
		return rec
	})
	metrics.LockoutsActive.Inc()
}

// RecordSuccess resets the record to clean. A permanent block survives; only
// manual intervention clears it.
func (t *LockoutTracker) RecordSuccess(key ClientKey) {
	t.store.Update(lockoutStoreKey(key), func(cur any) any {
		rec, ok := cur.(*LockoutRecord)
		if !ok || rec == nil {
			return nil
		}
		if rec.Permanent {
			return rec
		}
		return nil // delete: back to clean
	})
}

// Status probes the current state without recording an attempt. A temporary
// block whose time has passed reports Warming with the counter intact.
func (t *LockoutTracker) Status(key ClientKey) LockoutDecision {
	v, ok := t.store.Get(lockoutStoreKey(key))
	if !ok {
		return LockoutDecision{State: LockoutClean}
	}
	rec, ok := v.(*LockoutRecord)
	if !ok {
		return LockoutDecision{State: LockoutClean}
	}

	now := t.now()
	switch {
	case rec.Permanent:
		return LockoutDecision{State: LockoutPermanent, FailureCount: rec.FailureCount}
	case !rec.BlockedUntil.IsZero() && now.Before(rec.BlockedUntil):
		return LockoutDecision{
			State:        LockoutTemporary,
			FailureCount: rec.FailureCount,
			RetryAfter:   rec.BlockedUntil.Sub(now),
		}
	case rec.FailureCount > 0:
		return LockoutDecision{State: LockoutWarming, FailureCount: rec.FailureCount}
	default:
		return LockoutDecision{State: LockoutClean}
	}
}

// UnblockClient clears every lockout record for a client IP, including the
// permanent marker. This is the manual intervention path; nothing automated
// calls it.
func (t *LockoutTracker) UnblockClient(clientIP string) int {
	if t.IsClientPermanentlyBlocked(clientIP) {
		metrics.LockoutsActive.Dec()
	}

	prefix := "lockout:" + clientIP + "|"

	var keys []string
	t.store.Range(func(k string, _ any) bool {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
		return true
	})
	for _, k := range keys {
		t.store.Delete(k)
	}

	if len(keys) > 0 {
		t.logger.Info("client lockout state cleared",
			slog.String("client_ip", clientIP),
			slog.Int("records_removed", len(keys)))
	}
	return len(keys)
}

// IsClientPermanentlyBlocked reports whether a client-wide permanent marker
// exists for the IP, regardless of credential.
func (t *LockoutTracker) IsClientPermanentlyBlocked(clientIP string) bool {
	v, ok := t.store.Get(lockoutStoreKey(ClientKey{ClientIP: clientIP, Target: WildcardTarget}))
	if !ok {
		return false
	}
	rec, ok := v.(*LockoutRecord)
	return ok && rec.Permanent
}
