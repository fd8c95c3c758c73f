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
package conversation

import (
	"sync"

	"go.uber.org/zap"
)

// LedgerConfig holds configuration for a Ledger.
type LedgerConfig struct {
	// RetryBudget is the number of recovery retries permitted per ledger
	// (default: 1).
	RetryBudget int

	// Estimator is the token estimator used by TruncateToFit and
	// EstimatedTokens (default: HeuristicEstimator).
	Estimator TokenEstimator
}

// DefaultLedgerConfig returns sensible defaults.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		RetryBudget: 1,
		Estimator:   HeuristicEstimator{},
	}
}

// Ledger owns an ordered sequence of conversation turns and keeps it
// structurally valid for a tool-augmented provider protocol:
//
//  1. tool_use blocks appear only in assistant turns
//  2. tool_result blocks appear only in user turns
//  3. every tool_use id has exactly one matching tool_result id
//  4. a tool_result may only reference a preceding, still-pending tool_use
//  5. truncation removes matched tool_use/tool_result pairs atomically
//  6. a provider-signaled protocol failure triggers at most one retry
//     after recovery
//
// One Ledger is owned by a single in-flight send context. Mutations are
// serialized with a mutex; readers only ever see consistent snapshots.
type Ledger struct {
	mu      sync.Mutex
	turns   []Turn
	retries int
	cfg     LedgerConfig
}

// NewLedger creates a ledger. Zero-valued config fields fall back to
// DefaultLedgerConfig values.
func NewLedger(cfg LedgerConfig) *Ledger {
	def := DefaultLedgerConfig()
	if cfg.RetryBudget == 0 {
		cfg.RetryBudget = def.RetryBudget
	}
	if cfg.Estimator == nil {
		cfg.Estimator = def.Estimator
	}
	return &Ledger{cfg: cfg}
}

// Append adds a plain conversational turn. Turns carrying tool blocks must
// go through AppendToolRound so pairing is checked up front.
func (l *Ledger) Append(turn Turn) error {
	if turn.HasToolBlocks() {
		return &WrongOrderError{Detail: "plain append cannot carry tool blocks; use AppendToolRound"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turn)
	return nil
}

// AppendToolRound atomically appends an assistant turn containing tool_use
// blocks together with the user turn carrying their results. Either both
// turns are added or neither is.
func (l *Ledger) AppendToolRound(assistantTurn, resultTurn Turn) error {
	if assistantTurn.Role != RoleAssistant {
		return &WrongOrderError{Detail: "tool round must start with an assistant turn"}
	}
	if resultTurn.Role != RoleUser {
		return &WrongOrderError{Detail: "tool results must arrive in a user turn"}
	}
	for _, b := range assistantTurn.Blocks {
		if b.Kind == BlockToolResult {
			return &WrongOrderError{Detail: "assistant turn cannot carry tool_result blocks"}
		}
	}
	for _, b := range resultTurn.Blocks {
		if b.Kind == BlockToolUse {
			return &WrongOrderError{Detail: "result turn cannot carry tool_use blocks"}
		}
	}

	useIDs := assistantTurn.ToolUseIDs()
	if len(useIDs) == 0 {
		return &WrongOrderError{Detail: "assistant turn has no tool_use blocks"}
	}

	resultIDs := resultTurn.ToolResultIDs()
	matched := make(map[string]bool, len(resultIDs))
	for _, id := range resultIDs {
		matched[id] = true
	}
	for _, id := range useIDs {
		if !matched[id] {
			return &UnmatchedToolUseError{ID: id}
		}
	}

	pending := make(map[string]bool, len(useIDs))
	for _, id := range useIDs {
		pending[id] = true
	}
	for _, id := range resultIDs {
		if !pending[id] {
			return &OrphanedToolResultError{ID: id}
		}
		delete(pending, id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, assistantTurn, resultTurn)
	return nil
}

// Validate checks the full turn sequence against the pairing rules. A nil
// return means the conversation is safe to send.
func (l *Ledger) Validate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return validateTurns(l.turns)
}

// validateTurns scans turns in order, maintaining an insertion-ordered
// pending tool_use id set, and reports the first violation found.
func validateTurns(turns []Turn) error {
	if len(turns) == 0 {
		return ErrEmptyConversation
	}

	pending := newPendingSet()
	for _, turn := range turns {
		for _, b := range turn.Blocks {
			switch b.Kind {
			case BlockToolUse:
				if turn.Role != RoleAssistant {
					return &WrongOrderError{Detail: "tool_use outside assistant turn"}
				}
				if pending.has(b.ID) {
					return &WrongOrderError{Detail: "duplicate pending tool_use id " + b.ID}
				}
				pending.add(b.ID)
			case BlockToolResult:
				if turn.Role != RoleUser {
					return &WrongOrderError{Detail: "tool_result outside user turn"}
				}
				if !pending.has(b.ToolUseID) {
					return &OrphanedToolResultError{ID: b.ToolUseID}
				}
				pending.remove(b.ToolUseID)
			}
		}
	}

	if id, ok := pending.first(); ok {
		return &UnmatchedToolUseError{ID: id}
	}
	return nil
}

// EstimatedTokens returns the configured estimator's view of the current
// turn sequence without mutating state.
func (l *Ledger) EstimatedTokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Estimator.EstimateTurns(l.turns)
}

// TruncateToFit drops the oldest turns until the token estimate fits
// maxTokens. A leading system turn is pinned and never removed. Turns are
// removed in units of at least two, and a unit is always extended to cover
// a whole tool round so no tool_use/tool_result pairing is split. Removal
// stops while more than one removable pair remains even if the estimate
// still exceeds the budget. Returns the number of turns removed.
func (l *Ledger) TruncateToFit(maxTokens int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	pinned := 0
	if len(l.turns) > 0 && l.turns[0].Role == RoleSystem {
		pinned = 1
	}

	removed := 0
	for {
		if l.cfg.Estimator.EstimateTurns(l.turns) <= maxTokens {
			break
		}
		eligible := l.turns[pinned:]
		if len(eligible) <= 2 {
			break
		}
		unit := removalUnit(eligible)
		if len(eligible)-unit < 2 {
			// Removing this unit would take us below the last pair.
			break
		}
		l.turns = append(l.turns[:pinned], eligible[unit:]...)
		removed += unit
	}

	if removed > 0 {
		zap.L().Debug("ledger truncated",
			zap.Int("turns_removed", removed),
			zap.Int("turns_remaining", len(l.turns)),
			zap.Int("max_tokens", maxTokens),
		)
	}
	return removed
}

// removalUnit returns the length of the oldest removable unit: at least two
// turns, extended until the removed prefix leaves no tool_use pending. This
// is what keeps truncation from orphaning one side of a pairing.
func removalUnit(eligible []Turn) int {
	pending := newPendingSet()
	unit := 0
	for i, turn := range eligible {
		for _, b := range turn.Blocks {
			switch b.Kind {
			case BlockToolUse:
				pending.add(b.ID)
			case BlockToolResult:
				pending.remove(b.ToolUseID)
			}
		}
		unit = i + 1
		if unit >= 2 && pending.empty() {
			break
		}
	}
	return unit
}

// RecoverFromToolMismatch truncates the ledger to its last clean boundary:
// the highest prefix at which no tool_use is awaiting a result and no
// structural violation has occurred. Everything after the boundary is
// discarded. A no-op when the ledger already ends at a clean boundary.
// Returns the number of turns discarded.
func (l *Ledger) RecoverFromToolMismatch() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	boundary := 0
	pending := newPendingSet()

scan:
	for i, turn := range l.turns {
		for _, b := range turn.Blocks {
			switch b.Kind {
			case BlockToolUse:
				if turn.Role != RoleAssistant || pending.has(b.ID) {
					break scan
				}
				pending.add(b.ID)
			case BlockToolResult:
				if turn.Role != RoleUser || !pending.has(b.ToolUseID) {
					break scan
				}
				pending.remove(b.ToolUseID)
			}
		}
		if pending.empty() {
			boundary = i + 1
		}
	}

	discarded := len(l.turns) - boundary
	if discarded > 0 {
		l.turns = l.turns[:boundary]
		zap.L().Warn("ledger recovered from tool mismatch",
			zap.Int("turns_discarded", discarded),
			zap.Int("clean_boundary", boundary),
		)
	}
	return discarded
}

// CanRetry reports whether the retry budget still allows a resend.
func (l *Ledger) CanRetry() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retries < l.cfg.RetryBudget
}

// MarkRetried consumes one unit of the retry budget.
func (l *Ledger) MarkRetried() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retries++
}

// Len returns the number of turns in the ledger.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Turns returns a snapshot copy of the turn sequence.
func (l *Ledger) Turns() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Turn, len(l.turns))
	for i, t := range l.turns {
		out[i] = t.clone()
	}
	return out
}

// Clear empties the ledger and resets the retry counter so the value can be
// reused for a new exchange.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
	l.retries = 0
}
