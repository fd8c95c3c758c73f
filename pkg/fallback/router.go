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

// Package fallback routes chat requests across an ordered list of backend
// tiers, tracking per-tier health so a misbehaving backend is skipped for a
// cooldown window without manual intervention. The final tier is a
// deterministic rule-based responder, so a request always gets an answer.
package fallback

import (
	"context"
	"time"

	"github.com/aster-labs/aster/pkg/conversation"
	"github.com/aster-labs/aster/pkg/inference"
	"github.com/aster-labs/aster/pkg/llm"

	"go.uber.org/zap"
)

// RouterConfig defines fallback routing behavior.
type RouterConfig struct {
	// MaxConsecutiveFailures is the failure count at which a tier is
	// skipped (default: 3).
	MaxConsecutiveFailures int

	// FailureCooldown is how long an unhealthy tier stays skipped before
	// it is reconsidered (default: 300s).
	FailureCooldown time.Duration

	// AttemptTimeout bounds each tier attempt so a hung backend cannot
	// block the fall-through (default: 30s).
	AttemptTimeout time.Duration

	// FailureLogCap bounds the observability failure log (default: 100).
	FailureLogCap int

	// LightweightMaxTokens caps on-device generation (default: 512).
	LightweightMaxTokens int

	// Clock overrides the time source for tests (default: time.Now).
	Clock func() time.Time
}

// DefaultRouterConfig returns sensible defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		MaxConsecutiveFailures: 3,
		FailureCooldown:        300 * time.Second,
		AttemptTimeout:         30 * time.Second,
		FailureLogCap:          100,
		LightweightMaxTokens:   512,
	}
}

// Result is a successful routing outcome.
type Result struct {
	// Response is the fully accumulated response text. Never blank.
	Response string

	// Tier is the tier that served the request.
	Tier TierID

	// LatencyMs is the serving tier's attempt latency.
	LatencyMs int64

	// WasFallback is true iff the serving tier was not the first tier in
	// priority order.
	WasFallback bool
}

// Router attempts an ordered list of backend tiers and returns the first
// successful, non-blank result. Tier health is process-wide state owned by
// the router; construct one Router per process and share it.
type Router struct {
	cfg    RouterConfig
	tiers  []tierAdapter
	health *healthTracker
	log    *failureLog
}

// NewRouter creates a router over the fixed tier list
// [cloud, local-accelerated, local-lightweight, rule-based]. The engine may
// be nil; the lightweight tier then reports itself unavailable.
func NewRouter(cfg RouterConfig, registry *llm.Registry, engine inference.Engine) *Router {
	def := DefaultRouterConfig()
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if cfg.FailureCooldown == 0 {
		cfg.FailureCooldown = def.FailureCooldown
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.FailureLogCap == 0 {
		cfg.FailureLogCap = def.FailureLogCap
	}
	if cfg.LightweightMaxTokens == 0 {
		cfg.LightweightMaxTokens = def.LightweightMaxTokens
	}

	return &Router{
		cfg: cfg,
		tiers: []tierAdapter{
			&cloudTier{registry: registry},
			&localTier{registry: registry},
			&lightweightTier{engine: engine, maxTokens: cfg.LightweightMaxTokens},
			&ruleTier{responder: NewRuleBasedResponder()},
		},
		health: newHealthTracker(cfg.MaxConsecutiveFailures, cfg.FailureCooldown, cfg.Clock),
		log:    newFailureLog(cfg.FailureLogCap, cfg.Clock),
	}
}

// ChatOption customizes a single Chat call.
type ChatOption func(*request)

// WithPreferredModel requests a specific model from provider-backed tiers.
func WithPreferredModel(model string) ChatOption {
	return func(r *request) { r.model = model }
}

// WithStreaming asks provider-backed tiers to stream. The router still
// accumulates the stream and decides success only on the final result.
func WithStreaming(stream bool) ChatOption {
	return func(r *request) { r.stream = stream }
}

// AvailableTiers returns the tiers currently eligible for attempts, in
// priority order.
func (r *Router) AvailableTiers() []TierID {
	var out []TierID
	for _, t := range r.tiers {
		if r.health.available(t.id()) {
			out = append(out, t.id())
		}
	}
	return out
}

// Chat attempts the eligible tiers in priority order and returns the first
// successful, non-blank result. Per-tier failures are absorbed and logged;
// only total exhaustion surfaces an error.
func (r *Router) Chat(ctx context.Context, turns []conversation.Turn, opts ...ChatOption) (*Result, error) {
	req := &request{turns: turns}
	for _, opt := range opts {
		opt(req)
	}

	firstTier := TierID(-1)
	if len(r.tiers) > 0 {
		firstTier = r.tiers[0].id()
	}

	var lastErr error
	for _, tier := range r.tiers {
		if !r.health.available(tier.id()) {
			zap.L().Debug("skipping unhealthy tier", zap.String("tier", tier.id().String()))
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		start := time.Now()
		out, err := tier.invoke(attemptCtx, req)
		latency := time.Since(start)
		cancel()

		if err != nil {
			lastErr = err
			r.health.recordFailure(tier.id())
			r.log.append(tier.id(), err)
			zap.L().Warn("tier attempt failed, falling through",
				zap.String("tier", tier.id().String()),
				zap.Duration("latency", latency),
				zap.Error(err),
			)
			continue
		}

		r.health.recordSuccess(tier.id(), latency)
		result := &Result{
			Response:    out,
			Tier:        tier.id(),
			LatencyMs:   latency.Milliseconds(),
			WasFallback: tier.id() != firstTier,
		}
		if result.WasFallback {
			zap.L().Info("request served by fallback tier",
				zap.String("tier", tier.id().String()),
				zap.Int64("latency_ms", result.LatencyMs),
			)
		}
		return result, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrAllTiersExhausted
}

// QuickQuery answers a single prompt and returns only the text.
func (r *Router) QuickQuery(ctx context.Context, prompt string) (string, error) {
	result, err := r.Chat(ctx, []conversation.Turn{conversation.UserText(prompt)})
	if err != nil {
		return "", err
	}
	return result.Response, nil
}

// TierStatus returns a health snapshot for every tier in the fixed list.
func (r *Router) TierStatus() map[TierID]TierHealth {
	snap := r.health.snapshot()
	// Tiers that have never been attempted still appear in the status map.
	for _, t := range r.tiers {
		if _, ok := snap[t.id()]; !ok {
			snap[t.id()] = TierHealth{}
		}
	}
	return snap
}

// ResetAllTiers clears all tier health records, making every tier eligible
// immediately.
func (r *Router) ResetAllTiers() {
	r.health.reset()
	zap.L().Info("tier health manually reset")
}

// RecentFailures returns the bounded observability failure log, oldest
// first.
func (r *Router) RecentFailures() []FailureRecord {
	return r.log.recent()
}
