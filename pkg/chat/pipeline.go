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

// Package chat composes the conversation ledger and the fallback router
// into the send pipeline: the ledger governs what is sent, the router
// governs where it is sent, and both must be satisfied for a send to
// succeed.
package chat

import (
	"context"
	"fmt"

	"github.com/aster-labs/aster/pkg/conversation"
	"github.com/aster-labs/aster/pkg/fallback"
	"github.com/aster-labs/aster/pkg/llm"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PipelineConfig holds configuration for a chat pipeline.
type PipelineConfig struct {
	// SystemPrompt is prepended once as the pinned system turn. Optional.
	SystemPrompt string

	// MaxContextTokens triggers ledger truncation before each send
	// (default: 180000, input budget of a 200K-context model).
	MaxContextTokens int

	// PreferredModel is passed through to provider-backed tiers. Optional.
	PreferredModel string

	// Stream asks provider tiers to stream; the pipeline still only sees
	// the accumulated result.
	Stream bool
}

// DefaultPipelineConfig returns sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxContextTokens: 180000,
	}
}

// Router is the routing capability the pipeline needs; *fallback.Router
// satisfies it.
type Router interface {
	Chat(ctx context.Context, turns []conversation.Turn, opts ...fallback.ChatOption) (*fallback.Result, error)
}

// Pipeline drives one retained conversation through validation, routing,
// and protocol-failure recovery.
type Pipeline struct {
	cfg    PipelineConfig
	ledger *conversation.Ledger
	router Router
}

// NewPipeline creates a pipeline over a fresh ledger.
func NewPipeline(cfg PipelineConfig, router Router) *Pipeline {
	def := DefaultPipelineConfig()
	if cfg.MaxContextTokens == 0 {
		cfg.MaxContextTokens = def.MaxContextTokens
	}

	ledger := conversation.NewLedger(conversation.DefaultLedgerConfig())
	if cfg.SystemPrompt != "" {
		// A fresh ledger accepts a plain system turn unconditionally.
		_ = ledger.Append(conversation.SystemText(cfg.SystemPrompt))
	}
	return &Pipeline{cfg: cfg, ledger: ledger, router: router}
}

// Ledger exposes the pipeline's ledger for callers that assemble tool
// rounds themselves.
func (p *Pipeline) Ledger() *conversation.Ledger {
	return p.ledger
}

// Send appends the user's message, validates the ledger, and routes the
// request. On a provider-signaled protocol violation it recovers the
// ledger to its last clean boundary and retries once, gated by the
// ledger's retry budget; past the budget the original error propagates.
func (p *Pipeline) Send(ctx context.Context, userText string) (*fallback.Result, error) {
	if err := p.ledger.Append(conversation.UserText(userText)); err != nil {
		return nil, err
	}
	if err := p.ledger.Validate(); err != nil {
		return nil, fmt.Errorf("conversation failed validation: %w", err)
	}
	p.ledger.TruncateToFit(p.cfg.MaxContextTokens)

	result, err := p.route(ctx)
	if err == nil {
		if appendErr := p.ledger.Append(conversation.AssistantText(result.Response)); appendErr != nil {
			return nil, appendErr
		}
		return result, nil
	}

	if !llm.IsProtocolError(err) {
		return nil, err
	}

	// Provider rejected the request structure. Recover to the last clean
	// boundary and spend the one-shot retry budget.
	if !p.ledger.CanRetry() {
		return nil, err
	}
	discarded := p.ledger.RecoverFromToolMismatch()
	p.ledger.MarkRetried()
	zap.L().Warn("provider protocol rejection, retrying after recovery",
		zap.Int("turns_discarded", discarded),
		zap.Error(err),
	)

	result, retryErr := p.route(ctx)
	if retryErr != nil {
		// Per the error design, the original rejection is what surfaces.
		return nil, err
	}
	if appendErr := p.ledger.Append(conversation.AssistantText(result.Response)); appendErr != nil {
		return nil, appendErr
	}
	return result, nil
}

// RunToolRound records a completed tool round: the assistant's tool_use
// turn and the user turn carrying the results, appended atomically.
// Outcomes is keyed by tool_use id.
func (p *Pipeline) RunToolRound(assistantText string, calls []llm.ToolCall, outcomes map[string]string) error {
	var blocks []conversation.ContentBlock
	if assistantText != "" {
		blocks = append(blocks, conversation.Text(assistantText))
	}
	var results []conversation.ContentBlock
	for _, call := range calls {
		blocks = append(blocks, conversation.ToolUse(call.ID, call.Name, call.Arguments))
		results = append(results, conversation.ToolResult(call.ID, outcomes[call.ID]))
	}

	return p.ledger.AppendToolRound(
		conversation.Turn{Role: conversation.RoleAssistant, Blocks: blocks},
		conversation.Turn{Role: conversation.RoleUser, Blocks: results},
	)
}

// NewToolCallID mints a tool_use id for locally assembled rounds.
func NewToolCallID() string {
	return "toolu_" + uuid.NewString()
}

func (p *Pipeline) route(ctx context.Context) (*fallback.Result, error) {
	return p.router.Chat(ctx, p.ledger.Turns(),
		fallback.WithPreferredModel(p.cfg.PreferredModel),
		fallback.WithStreaming(p.cfg.Stream),
	)
}
