// Package traffic keeps sliding windows of dashboard outcomes. It is the single
// source for the overload check (requests and rate-limit denials) and the
// degraded check (dashboard load failure rate) used by /health.
package traffic

import (
	"sync"
	"time"
)

// retention bounds how long outcomes are kept regardless of the windows queried.
const retention = 5 * time.Minute

var defaultTracker = NewTracker(time.Now)

// RecordLoad records the outcome of one dashboard load.
func RecordLoad(ok bool) {
	defaultTracker.RecordLoad(ok)
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// RequestCount returns the number of outcomes (loads + denials) within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// FailureRate returns (failedLoads, totalLoads) within the window.
func FailureRate(window time.Duration) (failed, total int) {
	return defaultTracker.FailureRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu          sync.Mutex
	now         func() time.Time
	loadTimes   []time.Time
	failedTimes []time.Time
	deniedTimes []time.Time
}

// NewTracker returns a Tracker reading time from now.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

// RecordLoad records a dashboard load; failed loads also count toward FailureRate.
func (t *Tracker) RecordLoad(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.loadTimes = append(t.loadTimes, now)
	if !ok {
		t.failedTimes = append(t.failedTimes, now)
	}
	t.pruneLocked(now)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.deniedTimes = append(t.deniedTimes, now)
	t.pruneLocked(now)
}

// RequestCount returns loads plus denials within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.loadTimes, cutoff) + countSince(t.deniedTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

// FailureRate returns (failedLoads, totalLoads) within the window. Denials are excluded.
func (t *Tracker) FailureRate(window time.Duration) (failed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.failedTimes, cutoff), countSince(t.loadTimes, cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadTimes = nil
	t.failedTimes = nil
	t.deniedTimes = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.loadTimes)
	prune(&t.failedTimes)
	prune(&t.deniedTimes)
}
