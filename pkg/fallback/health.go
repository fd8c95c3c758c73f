// Copyright 2026 Aster Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package fallback

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// TierHealth is a point-in-time snapshot of one tier's health record, safe
// to hand to callers and serialize for status displays.
type TierHealth struct {
	ConsecutiveFailures int
	TotalSuccesses      int
	TotalFailures       int
	// LastFailureTime is zero when the tier has never failed.
	LastFailureTime  time.Time
	AverageLatencyMs int64
}

// tierRecord is the mutable per-tier health state.
type tierRecord struct {
	consecutiveFailures int
	totalSuccesses      int
	totalFailures       int
	lastFailureTime     time.Time
	avgLatencyMs        float64
	latencySamples      int
}

// healthTracker keeps per-tier health records and decides eligibility.
// All mutation happens under one mutex; callers only see snapshots. The
// clock is injected so cooldown behavior is testable deterministically.
type healthTracker struct {
	mu                     sync.Mutex
	records                map[TierID]*tierRecord
	maxConsecutiveFailures int
	cooldown               time.Duration
	clock                  func() time.Time
}

func newHealthTracker(maxConsecutiveFailures int, cooldown time.Duration, clock func() time.Time) *healthTracker {
	if clock == nil {
		clock = time.Now
	}
	return &healthTracker{
		records:                make(map[TierID]*tierRecord),
		maxConsecutiveFailures: maxConsecutiveFailures,
		cooldown:               cooldown,
		clock:                  clock,
	}
}

func (h *healthTracker) record(tier TierID) *tierRecord {
	rec, ok := h.records[tier]
	if !ok {
		rec = &tierRecord{}
		h.records[tier] = rec
	}
	return rec
}

// recordSuccess resets the consecutive failure count and folds the latency
// sample into a cumulative moving average.
func (h *healthTracker) recordSuccess(tier TierID, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.record(tier)
	rec.consecutiveFailures = 0
	rec.totalSuccesses++
	rec.latencySamples++
	n := float64(rec.latencySamples)
	rec.avgLatencyMs = (rec.avgLatencyMs*(n-1) + float64(latency.Milliseconds())) / n
}

// recordFailure increments the failure counters and stamps the failure time.
func (h *healthTracker) recordFailure(tier TierID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.record(tier)
	rec.consecutiveFailures++
	rec.totalFailures++
	rec.lastFailureTime = h.clock()
}

// available reports whether a tier is currently eligible. A tier at or over
// the consecutive-failure threshold is skipped while its last failure is
// inside the cooldown window; once the window elapses the failure count is
// reset and the tier re-enters rotation (half-open, circuit-breaker style).
func (h *healthTracker) available(tier TierID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.record(tier)
	if rec.consecutiveFailures < h.maxConsecutiveFailures {
		return true
	}
	if h.clock().Sub(rec.lastFailureTime) < h.cooldown {
		return false
	}

	// Cooldown elapsed: give the tier another chance.
	rec.consecutiveFailures = 0
	zap.L().Info("tier cooldown elapsed, re-entering rotation",
		zap.String("tier", tier.String()),
	)
	return true
}

// snapshot returns a copy of all health records.
func (h *healthTracker) snapshot() map[TierID]TierHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[TierID]TierHealth, len(h.records))
	for tier, rec := range h.records {
		out[tier] = TierHealth{
			ConsecutiveFailures: rec.consecutiveFailures,
			TotalSuccesses:      rec.totalSuccesses,
			TotalFailures:       rec.totalFailures,
			LastFailureTime:     rec.lastFailureTime,
			AverageLatencyMs:    int64(rec.avgLatencyMs),
		}
	}
	return out
}

// reset clears all health records.
func (h *healthTracker) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = make(map[TierID]*tierRecord)
}
