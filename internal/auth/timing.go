package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// ProgressiveDelay throttles automated retry loops below the hard rate
// limit. The delay is chosen from an increasing schedule indexed by the
// caller's current failure count, plus random jitter that blunts timing side
// channels on credential verification.
type ProgressiveDelay struct {
	schedule []time.Duration
	jitterMs int
}

// NewProgressiveDelay builds a delay source from the profile schedule.
// Failure counts beyond the schedule reuse its last entry.
func NewProgressiveDelay(schedule []time.Duration, jitterMs int) *ProgressiveDelay {
	if len(schedule) == 0 {
		schedule = []time.Duration{0}
	}
	return &ProgressiveDelay{
		schedule: schedule,
		jitterMs: jitterMs,
	}
}

// cryptoRandIntn returns a secure random number in [0, max). crypto/rand
// rather than math/rand: the jitter exists to defeat timing analysis.
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int(randomValue % uint64(max)), nil
}

// DurationFor computes the delay for the given failure count including jitter.
func (pd *ProgressiveDelay) DurationFor(failureCount int) time.Duration {
	idx := failureCount
	if idx < 0 {
		idx = 0
	}
	if idx >= len(pd.schedule) {
		idx = len(pd.schedule) - 1
	}
	delay := pd.schedule[idx]

	if pd.jitterMs > 0 {
		if jitter, err := cryptoRandIntn(pd.jitterMs); err == nil {
			delay += time.Duration(jitter) * time.Millisecond
		}
	}
	return delay
}

// Wait parks the calling goroutine for the computed delay. A timer rather
// than time.Sleep so request cancellation releases the goroutine early; a
// parked goroutine holds no worker thread.
func (pd *ProgressiveDelay) Wait(ctx context.Context, failureCount int) {
	delay := pd.DurationFor(failureCount)
	if delay <= 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
