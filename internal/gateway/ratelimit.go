package gateway

import (
	"log/slog"
	"time"

	"github.com/velmarket/gateway/internal/config"
)

// RateBucket tracks request counts for one (client, endpoint) key inside a
// sliding window. Count only increments within the current window; once the
// window elapses the bucket restarts with count 1.
type RateBucket struct {
	Count        int
	WindowStart  time.Time
	BlockedUntil time.Time
}

// RateDecision is the limiter's answer for a single request.
type RateDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter is a sliding-window admission counter. It is a pure decision
// component: no retries, no background work beyond the sweeper.
type RateLimiter struct {
	store   KeyedStore
	profile config.SecurityProfile
	logger  *slog.Logger
	now     func() time.Time
}

func NewRateLimiter(store KeyedStore, profile config.SecurityProfile, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		store:   store,
		profile: profile,
		logger:  logger,
		now:     time.Now,
	}
}

// Check records one request for (clientIP, endpoint) and decides whether it
// may proceed. A blocked bucket stays blocked until BlockedUntil even after
// the counting window has elapsed.
func (rl *RateLimiter) Check(clientIP, endpoint string) RateDecision {
	key := "rate:" + ClientKey{ClientIP: clientIP, Target: endpoint}.String()
	now := rl.now()

	var decision RateDecision
	rl.store.Update(key, func(cur any) any {
		bucket, ok := cur.(*RateBucket)
		if !ok || bucket == nil {
			decision = RateDecision{Allowed: true, Remaining: rl.profile.MaxAttempts - 1}
			return &RateBucket{Count: 1, WindowStart: now}
		}

		// An active block outlives the counting window
		if !bucket.BlockedUntil.IsZero() {
			if now.Before(bucket.BlockedUntil) {
				decision = RateDecision{Allowed: false, RetryAfter: bucket.BlockedUntil.Sub(now)}
				return bucket
			}
			decision = RateDecision{Allowed: true, Remaining: rl.profile.MaxAttempts - 1}
			return &RateBucket{Count: 1, WindowStart: now}
		}

		if !now.Before(bucket.WindowStart.Add(rl.profile.WindowLength)) {
			decision = RateDecision{Allowed: true, Remaining: rl.profile.MaxAttempts - 1}
			return &RateBucket{Count: 1, WindowStart: now}
		}

		bucket.Count++
		if bucket.Count > rl.profile.MaxAttempts {
			bucket.BlockedUntil = now.Add(rl.profile.BlockDur)
			decision = RateDecision{Allowed: false, RetryAfter: rl.profile.BlockDur}
			rl.logger.Warn("client rate limited",
				slog.String("client_ip", clientIP),
				slog.String("endpoint", endpoint),
				slog.Int("count", bucket.Count))
			return bucket
		}

		decision = RateDecision{Allowed: true, Remaining: rl.profile.MaxAttempts - bucket.Count}
		return bucket
	})

	return decision
}

// Sweep drops buckets whose window and block have both elapsed. Called
// periodically by the background cleanup manager; never required for
// correctness because Check resets stale buckets lazily.
func (rl *RateLimiter) Sweep() int {
	now := rl.now()
	var stale []string

	rl.store.Range(func(key string, v any) bool {
		bucket, ok := v.(*RateBucket)
		if !ok {
			return true
		}
		expired := !now.Before(bucket.WindowStart.Add(rl.profile.WindowLength))
		unblocked := bucket.BlockedUntil.IsZero() || !now.Before(bucket.BlockedUntil)
		if expired && unblocked {
			stale = append(stale, key)
		}
		return true
	})

	for _, key := range stale {
		rl.store.Delete(key)
	}
	return len(stale)
}
