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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicEstimator(t *testing.T) {
	est := HeuristicEstimator{}

	tests := []struct {
		name  string
		turns []Turn
		want  int
	}{
		{
			name:  "empty conversation floors at one",
			turns: nil,
			want:  1,
		},
		{
			name:  "short text floors at one",
			turns: []Turn{UserText("ab")},
			want:  1,
		},
		{
			name:  "four chars per token",
			turns: []Turn{UserText(strings.Repeat("x", 400))},
			want:  100,
		},
		{
			name: "sums across turns and blocks",
			turns: []Turn{
				UserText(strings.Repeat("a", 100)),
				AssistantText(strings.Repeat("b", 100)),
			},
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, est.EstimateTurns(tt.turns))
		})
	}
}

func TestHeuristicEstimatorCountsToolBlocks(t *testing.T) {
	est := HeuristicEstimator{}

	plain := est.EstimateTurns([]Turn{UserText("hi")})
	withTools := est.EstimateTurns([]Turn{
		{Role: RoleAssistant, Blocks: []ContentBlock{
			ToolUse("toolu_1", "search", map[string]interface{}{"query": strings.Repeat("q", 200)}),
		}},
		{Role: RoleUser, Blocks: []ContentBlock{
			ToolResult("toolu_1", strings.Repeat("r", 200)),
		}},
	})

	assert.Greater(t, withTools, plain, "tool payloads must count toward the estimate")
}

func TestHeuristicEstimatorMonotonic(t *testing.T) {
	est := HeuristicEstimator{}

	turns := []Turn{UserText(strings.Repeat("a", 50))}
	before := est.EstimateTurns(turns)
	turns = append(turns, AssistantText(strings.Repeat("b", 50)))
	after := est.EstimateTurns(turns)

	assert.GreaterOrEqual(t, after, before)
}

func TestTiktokenEstimatorFallsBackWithoutEncoder(t *testing.T) {
	// An estimator whose encoding failed to load must still produce the
	// heuristic answer rather than zero.
	est := &TiktokenEstimator{}
	turns := []Turn{UserText(strings.Repeat("x", 400))}

	assert.Equal(t, HeuristicEstimator{}.EstimateTurns(turns), est.EstimateTurns(turns))
}
