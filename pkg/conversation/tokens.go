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

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator estimates the token footprint of a turn sequence. An
// estimator must be deterministic and monotonic: adding content never
// decreases the estimate. The Ledger's truncation decisions depend on this.
type TokenEstimator interface {
	EstimateTurns(turns []Turn) int
}

// HeuristicEstimator approximates tokens as max(1, totalCharacters/4),
// summing the text content of all blocks recursively. It needs no model
// data and is the Ledger default.
type HeuristicEstimator struct{}

// EstimateTurns implements TokenEstimator.
func (HeuristicEstimator) EstimateTurns(turns []Turn) int {
	chars := 0
	for _, t := range turns {
		chars += t.chars()
	}
	est := chars / 4
	if est < 1 {
		est = 1
	}
	return est
}

// TiktokenEstimator counts tokens with tiktoken's cl100k_base encoding
// (a Claude-compatible approximation). The encoder is not safe for
// concurrent use, so calls are serialized with a mutex. When the encoding
// cannot be loaded it falls back to the character heuristic.
type TiktokenEstimator struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

// NewTiktokenEstimator creates a tiktoken-backed estimator.
func NewTiktokenEstimator() *TiktokenEstimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TiktokenEstimator{encoder: nil}
	}
	return &TiktokenEstimator{encoder: enc}
}

// EstimateTurns implements TokenEstimator.
func (e *TiktokenEstimator) EstimateTurns(turns []Turn) int {
	if e.encoder == nil {
		return HeuristicEstimator{}.EstimateTurns(turns)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	total := 0
	for _, t := range turns {
		// Role + formatting overhead per turn.
		total += 4
		for _, b := range t.Blocks {
			switch b.Kind {
			case BlockText:
				total += len(e.encoder.Encode(b.Text, nil, nil))
			case BlockToolUse:
				total += len(e.encoder.Encode(b.Name, nil, nil))
				for k, v := range b.Arguments {
					total += len(e.encoder.Encode(k, nil, nil))
					if s, ok := v.(string); ok {
						total += len(e.encoder.Encode(s, nil, nil))
					} else {
						total += 4
					}
				}
			case BlockToolResult:
				total += len(e.encoder.Encode(b.Content, nil, nil))
			}
		}
	}
	if total < 1 {
		total = 1
	}
	return total
}

var (
	_ TokenEstimator = HeuristicEstimator{}
	_ TokenEstimator = (*TiktokenEstimator)(nil)
)
