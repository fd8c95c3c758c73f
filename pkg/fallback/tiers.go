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
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aster-labs/aster/pkg/conversation"
	"github.com/aster-labs/aster/pkg/inference"
	"github.com/aster-labs/aster/pkg/llm"
)

// TierID identifies one backend tier in the fixed fallback priority order.
type TierID int

const (
	// TierCloud is the remote cloud provider (highest priority).
	TierCloud TierID = iota
	// TierLocalAccelerated is the local GPU-accelerated provider.
	TierLocalAccelerated
	// TierLocalLightweight is the embedded on-device inference engine.
	TierLocalLightweight
	// TierRuleBased is the deterministic offline backstop. It never fails.
	TierRuleBased
)

func (t TierID) String() string {
	switch t {
	case TierCloud:
		return "cloud"
	case TierLocalAccelerated:
		return "local-accelerated"
	case TierLocalLightweight:
		return "local-lightweight"
	case TierRuleBased:
		return "rule-based"
	default:
		return "unknown"
	}
}

// ErrEmptyResponse is recorded when a tier returns a blank result. A blank
// answer is treated exactly like a thrown error: the tier failed.
var ErrEmptyResponse = errors.New("tier returned an empty response")

// ErrAllTiersExhausted is returned only when the tier list itself is empty.
// With the rule-based backstop in the list this should never surface.
var ErrAllTiersExhausted = errors.New("no fallback tier produced a response")

// TierUnavailableError reports that a tier has no provider or model
// configured to serve the request.
type TierUnavailableError struct {
	Tier TierID
}

func (e *TierUnavailableError) Error() string {
	return fmt.Sprintf("tier %s has no configured backend", e.Tier)
}

// request carries one chat attempt through a tier adapter.
type request struct {
	turns  []conversation.Turn
	model  string
	stream bool
}

// prompt flattens the request into plain text for tiers that don't speak
// the structured turn format (the on-device engine and the rule table).
func (r *request) prompt() string {
	var sb strings.Builder
	for _, turn := range r.turns {
		for _, b := range turn.Blocks {
			if b.Kind == conversation.BlockText && b.Text != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(string(turn.Role))
				sb.WriteString(": ")
				sb.WriteString(b.Text)
			}
		}
	}
	return sb.String()
}

// lastUserText returns the text of the most recent user turn, for tiers
// that answer a single question rather than a whole history.
func (r *request) lastUserText() string {
	for i := len(r.turns) - 1; i >= 0; i-- {
		if r.turns[i].Role != conversation.RoleUser {
			continue
		}
		for _, b := range r.turns[i].Blocks {
			if b.Kind == conversation.BlockText && b.Text != "" {
				return b.Text
			}
		}
	}
	return ""
}

// tierAdapter is one backend strategy. invoke returns the fully accumulated
// response text; streaming output never crosses this boundary partially.
type tierAdapter interface {
	id() TierID
	invoke(ctx context.Context, req *request) (string, error)
}

// cloudTier serves requests through the registry's cloud provider.
type cloudTier struct {
	registry *llm.Registry
}

func (t *cloudTier) id() TierID { return TierCloud }

func (t *cloudTier) invoke(ctx context.Context, req *request) (string, error) {
	provider, err := t.registry.GetCloudProvider()
	if err != nil {
		return "", &TierUnavailableError{Tier: t.id()}
	}
	return providerChat(ctx, provider, req)
}

// localTier serves requests through the registry's local provider.
type localTier struct {
	registry *llm.Registry
}

func (t *localTier) id() TierID { return TierLocalAccelerated }

func (t *localTier) invoke(ctx context.Context, req *request) (string, error) {
	provider, err := t.registry.GetLocalProvider()
	if err != nil {
		return "", &TierUnavailableError{Tier: t.id()}
	}
	return providerChat(ctx, provider, req)
}

// providerChat issues a provider chat call and accumulates the stream into
// the final string.
func providerChat(ctx context.Context, provider llm.Provider, req *request) (string, error) {
	events, err := provider.Chat(ctx, req.turns, req.model, req.stream)
	if err != nil {
		return "", err
	}
	out, err := llm.Accumulate(events)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// lightweightTier runs the embedded on-device engine.
type lightweightTier struct {
	engine    inference.Engine
	maxTokens int
}

func (t *lightweightTier) id() TierID { return TierLocalLightweight }

func (t *lightweightTier) invoke(ctx context.Context, req *request) (string, error) {
	if t.engine == nil {
		return "", &TierUnavailableError{Tier: t.id()}
	}

	chunks, err := t.engine.Generate(ctx, req.prompt(), t.maxTokens)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range chunks {
		sb.WriteString(chunk)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// ruleTier is the deterministic backstop. It computes its answer offline
// from the embedded rule table and by construction never fails.
type ruleTier struct {
	responder *RuleBasedResponder
}

func (t *ruleTier) id() TierID { return TierRuleBased }

func (t *ruleTier) invoke(_ context.Context, req *request) (string, error) {
	return t.responder.Respond(req.lastUserText()), nil
}
