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

// Package llm defines the provider capability consumed by the fallback
// router: pluggable chat backends with streaming responses, API key
// validation, and model listing. Concrete clients live in subpackages.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aster-labs/aster/pkg/conversation"
)

// StreamEventKind discriminates the StreamEvent variants.
type StreamEventKind int

const (
	// EventDelta carries an incremental text fragment.
	EventDelta StreamEventKind = iota
	// EventComplete carries the final assembled message and ends the stream.
	EventComplete
	// EventError reports a stream failure and ends the stream.
	EventError
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// Completion is the final message of a chat exchange: only the minimal
// fields the core needs to validate structure and hand text onward.
type Completion struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
}

// StreamEvent is a tagged variant: Delta text, the final Completion, or a
// terminal error. Exactly one field group is meaningful per Kind.
type StreamEvent struct {
	Kind    StreamEventKind
	Delta   string
	Message *Completion
	Err     error
}

// Delta builds an incremental text event.
func Delta(text string) StreamEvent {
	return StreamEvent{Kind: EventDelta, Delta: text}
}

// Complete builds a terminal completion event.
func Complete(msg *Completion) StreamEvent {
	return StreamEvent{Kind: EventComplete, Message: msg}
}

// Fail builds a terminal error event.
func Fail(err error) StreamEvent {
	return StreamEvent{Kind: EventError, Err: err}
}

// ValidationResult is the outcome of an API key check.
type ValidationResult struct {
	Valid  bool
	Detail string
}

// ModelInfo describes one model a provider can serve.
type ModelInfo struct {
	ID            string
	DisplayName   string
	ContextWindow int
	SupportsTools bool
}

// Provider is a chat backend. Implementations must close the event channel
// after emitting a terminal EventComplete or EventError, and must respect
// context cancellation on all blocking calls.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Model returns the default model identifier.
	Model() string

	// ValidateAPIKey checks whether the given key is accepted upstream.
	ValidateAPIKey(ctx context.Context, key string) (ValidationResult, error)

	// Chat sends a conversation and streams the response. When stream is
	// false, implementations may emit a single EventComplete with no
	// preceding deltas. An empty model selects the provider default.
	Chat(ctx context.Context, turns []conversation.Turn, model string, stream bool) (<-chan StreamEvent, error)

	// ListModels enumerates the models this provider can serve.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Accumulate drains a chat stream into the final response text. Streaming
// deltas are concatenated; a completion with content takes precedence over
// accumulated deltas only when no deltas arrived. Returns the first error
// event encountered.
func Accumulate(events <-chan StreamEvent) (string, error) {
	var sb strings.Builder
	var final *Completion
	for ev := range events {
		switch ev.Kind {
		case EventDelta:
			sb.WriteString(ev.Delta)
		case EventComplete:
			final = ev.Message
		case EventError:
			return "", ev.Err
		}
	}
	if sb.Len() == 0 && final != nil {
		return final.Content, nil
	}
	return sb.String(), nil
}

// ProtocolError is a provider-signaled 400-class rejection: the request was
// structurally invalid (most often a broken tool_use/tool_result pairing).
// The chat pipeline treats it as the trigger for ledger recovery.
type ProtocolError struct {
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("provider rejected request (status %d): %s", e.StatusCode, e.Message)
}

// IsProtocolError reports whether err carries a 400-class provider
// rejection anywhere in its chain.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.StatusCode >= 400 && pe.StatusCode < 500
}
