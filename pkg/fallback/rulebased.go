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
	_ "embed"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

// hardFallbackResponse is used if the embedded rule table cannot be parsed.
const hardFallbackResponse = "I'm having trouble reaching the assistant service right now. Please try again in a few moments."

// rule is one keyword→response entry of the backstop table.
type rule struct {
	Keywords []string `yaml:"keywords"`
	Response string   `yaml:"response"`
}

// ruleTable is the embedded rules.yaml document.
type ruleTable struct {
	Rules   []rule `yaml:"rules"`
	Default string `yaml:"default"`
}

// RuleBasedResponder computes deterministic, offline answers from a fixed
// rule table. It is the router's backstop: Respond always returns a
// non-blank string, regardless of input.
type RuleBasedResponder struct {
	table ruleTable
}

// NewRuleBasedResponder loads the embedded rule table.
func NewRuleBasedResponder() *RuleBasedResponder {
	var table ruleTable
	if err := yaml.Unmarshal(embeddedRules, &table); err != nil {
		// The embedded table is checked in with the source; failing to
		// parse it is a build defect, not a runtime condition.
		zap.L().Error("failed to parse embedded rule table", zap.Error(err))
		table = ruleTable{Default: hardFallbackResponse}
	}
	if table.Default == "" {
		table.Default = hardFallbackResponse
	}
	return &RuleBasedResponder{table: table}
}

// Respond returns the response of the first rule whose keywords all appear
// in the prompt (case-insensitive), or the default response.
func (r *RuleBasedResponder) Respond(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, rl := range r.table.Rules {
		if len(rl.Keywords) == 0 || rl.Response == "" {
			continue
		}
		matched := true
		for _, kw := range rl.Keywords {
			if !strings.Contains(lower, strings.ToLower(kw)) {
				matched = false
				break
			}
		}
		if matched {
			return rl.Response
		}
	}
	return r.table.Default
}
