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
package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aster-labs/aster/pkg/conversation"
	"github.com/aster-labs/aster/pkg/fallback"
	"github.com/aster-labs/aster/pkg/llm"
)

// scriptedRouter replays a fixed sequence of routing outcomes and records
// the turn snapshots it was handed.
type scriptedRouter struct {
	outcomes []routerOutcome
	calls    [][]conversation.Turn
}

type routerOutcome struct {
	result *fallback.Result
	err    error
}

func (r *scriptedRouter) Chat(ctx context.Context, turns []conversation.Turn, opts ...fallback.ChatOption) (*fallback.Result, error) {
	r.calls = append(r.calls, turns)
	if len(r.outcomes) == 0 {
		return nil, errors.New("scripted router: no outcomes left")
	}
	out := r.outcomes[0]
	r.outcomes = r.outcomes[1:]
	return out.result, out.err
}

func success(text string) routerOutcome {
	return routerOutcome{result: &fallback.Result{Response: text, Tier: fallback.TierCloud}}
}

func failure(err error) routerOutcome {
	return routerOutcome{err: err}
}

func TestPipelineSendRetainsHistory(t *testing.T) {
	router := &scriptedRouter{outcomes: []routerOutcome{success("hi there")}}
	p := NewPipeline(PipelineConfig{SystemPrompt: "be helpful"}, router)

	result, err := p.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Response)

	turns := p.Ledger().Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, conversation.RoleSystem, turns[0].Role)
	assert.Equal(t, conversation.RoleUser, turns[1].Role)
	assert.Equal(t, conversation.RoleAssistant, turns[2].Role)
	assert.Equal(t, "hi there", turns[2].Blocks[0].Text)
}

func TestPipelineSendWithoutSystemPrompt(t *testing.T) {
	router := &scriptedRouter{outcomes: []routerOutcome{success("ok")}}
	p := NewPipeline(PipelineConfig{}, router)

	_, err := p.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Ledger().Len())
}

func TestPipelineSendNonProtocolErrorPropagates(t *testing.T) {
	wantErr := errors.New("all backends down")
	router := &scriptedRouter{outcomes: []routerOutcome{failure(wantErr)}}
	p := NewPipeline(PipelineConfig{}, router)

	_, err := p.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, wantErr)
	assert.Len(t, router.calls, 1, "no retry for non-protocol failures")
}

func TestPipelineProtocolErrorRecoversAndRetries(t *testing.T) {
	protoErr := &llm.ProtocolError{StatusCode: 400, Message: "unexpected tool_use_id"}
	router := &scriptedRouter{outcomes: []routerOutcome{
		failure(protoErr),
		success("recovered answer"),
	}}
	p := NewPipeline(PipelineConfig{}, router)

	// Seed a dangling tool round the provider would reject.
	require.NoError(t, p.Ledger().Append(conversation.UserText("earlier question")))
	require.NoError(t, p.Ledger().Append(conversation.AssistantText("earlier answer")))

	result, err := p.Send(context.Background(), "next question")
	require.NoError(t, err)
	assert.Equal(t, "recovered answer", result.Response)
	assert.Len(t, router.calls, 2)
	assert.False(t, p.Ledger().CanRetry(), "retry budget is spent")
}

func TestPipelineProtocolErrorSurfacesOriginalOnFailedRetry(t *testing.T) {
	first := &llm.ProtocolError{StatusCode: 400, Message: "first rejection"}
	second := &llm.ProtocolError{StatusCode: 400, Message: "second rejection"}
	router := &scriptedRouter{outcomes: []routerOutcome{
		failure(first),
		failure(second),
	}}
	p := NewPipeline(PipelineConfig{}, router)

	_, err := p.Send(context.Background(), "hello")
	require.Error(t, err)

	var pe *llm.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "first rejection", pe.Message)
	assert.Len(t, router.calls, 2)
}

func TestPipelineRetryBudgetIsOnePerLedger(t *testing.T) {
	protoErr := &llm.ProtocolError{StatusCode: 400, Message: "rejected"}
	router := &scriptedRouter{outcomes: []routerOutcome{
		failure(protoErr),
		success("first send recovered"),
		failure(protoErr),
	}}
	p := NewPipeline(PipelineConfig{}, router)

	_, err := p.Send(context.Background(), "one")
	require.NoError(t, err)

	// Budget already spent: the second protocol rejection propagates with
	// no further attempt.
	_, err = p.Send(context.Background(), "two")
	require.Error(t, err)
	assert.True(t, llm.IsProtocolError(err))
	assert.Len(t, router.calls, 3)
}

func TestPipelineTruncatesBeforeRouting(t *testing.T) {
	router := &scriptedRouter{outcomes: []routerOutcome{success("short answer")}}
	p := NewPipeline(PipelineConfig{MaxContextTokens: 30}, router)

	for i := 0; i < 6; i++ {
		require.NoError(t, p.Ledger().Append(conversation.UserText(strings.Repeat("q", 100))))
		require.NoError(t, p.Ledger().Append(conversation.AssistantText(strings.Repeat("a", 100))))
	}

	_, err := p.Send(context.Background(), "latest")
	require.NoError(t, err)

	require.Len(t, router.calls, 1)
	routed := router.calls[0]
	assert.Less(t, len(routed), 13, "old turns must be truncated before routing")
}

func TestPipelineRunToolRound(t *testing.T) {
	router := &scriptedRouter{}
	p := NewPipeline(PipelineConfig{}, router)
	require.NoError(t, p.Ledger().Append(conversation.UserText("what's in a.txt?")))

	id := NewToolCallID()
	err := p.RunToolRound("let me read it", []llm.ToolCall{
		{ID: id, Name: "read_file", Arguments: map[string]interface{}{"path": "a.txt"}},
	}, map[string]string{id: "file contents"})
	require.NoError(t, err)

	assert.NoError(t, p.Ledger().Validate())
	assert.Equal(t, 3, p.Ledger().Len())
}

func TestNewToolCallIDUnique(t *testing.T) {
	a := NewToolCallID()
	b := NewToolCallID()

	assert.True(t, strings.HasPrefix(a, "toolu_"))
	assert.NotEqual(t, a, b)
}
