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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source for cooldown tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestHealthTrackerAvailableByDefault(t *testing.T) {
	h := newHealthTracker(3, 300*time.Second, nil)
	assert.True(t, h.available(TierCloud))
}

func TestHealthTrackerSkipsAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	h := newHealthTracker(3, 300*time.Second, clock.Now)

	h.recordFailure(TierCloud)
	h.recordFailure(TierCloud)
	assert.True(t, h.available(TierCloud), "below threshold stays eligible")

	h.recordFailure(TierCloud)
	assert.False(t, h.available(TierCloud), "third consecutive failure trips the breaker")
}

func TestHealthTrackerCooldownReset(t *testing.T) {
	clock := newFakeClock()
	h := newHealthTracker(3, 300*time.Second, clock.Now)

	for i := 0; i < 3; i++ {
		h.recordFailure(TierCloud)
	}
	require.False(t, h.available(TierCloud))

	clock.Advance(299 * time.Second)
	assert.False(t, h.available(TierCloud), "still inside the cooldown window")

	clock.Advance(2 * time.Second)
	assert.True(t, h.available(TierCloud), "cooldown elapsed, tier re-enters rotation")

	// The half-open reset cleared the consecutive count: one more failure
	// must not trip the breaker again on its own.
	h.recordFailure(TierCloud)
	assert.True(t, h.available(TierCloud))
}

func TestHealthTrackerSuccessResetsConsecutiveFailures(t *testing.T) {
	h := newHealthTracker(3, 300*time.Second, nil)

	h.recordFailure(TierCloud)
	h.recordFailure(TierCloud)
	h.recordSuccess(TierCloud, 10*time.Millisecond)
	h.recordFailure(TierCloud)
	h.recordFailure(TierCloud)

	assert.True(t, h.available(TierCloud), "success must reset the consecutive count")

	snap := h.snapshot()[TierCloud]
	assert.Equal(t, 2, snap.ConsecutiveFailures)
	assert.Equal(t, 4, snap.TotalFailures)
	assert.Equal(t, 1, snap.TotalSuccesses)
}

func TestHealthTrackerLatencyMovingAverage(t *testing.T) {
	h := newHealthTracker(3, 300*time.Second, nil)

	h.recordSuccess(TierCloud, 100*time.Millisecond)
	h.recordSuccess(TierCloud, 200*time.Millisecond)
	h.recordSuccess(TierCloud, 300*time.Millisecond)

	snap := h.snapshot()[TierCloud]
	assert.Equal(t, int64(200), snap.AverageLatencyMs)
}

func TestHealthTrackerPerTierIsolation(t *testing.T) {
	h := newHealthTracker(3, 300*time.Second, nil)

	for i := 0; i < 3; i++ {
		h.recordFailure(TierCloud)
	}

	assert.False(t, h.available(TierCloud))
	assert.True(t, h.available(TierLocalAccelerated), "failures on one tier must not affect another")
}

func TestHealthTrackerReset(t *testing.T) {
	h := newHealthTracker(3, 300*time.Second, nil)

	for i := 0; i < 3; i++ {
		h.recordFailure(TierCloud)
	}
	require.False(t, h.available(TierCloud))

	h.reset()
	assert.True(t, h.available(TierCloud))
	assert.Empty(t, h.snapshot())
}
