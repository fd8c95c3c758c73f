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

// pendingSet is an insertion-ordered set of tool_use ids awaiting results.
// Insertion order makes "first remaining pending id" deterministic when a
// validation failure has to name one.
type pendingSet struct {
	order   []string
	present map[string]bool
}

func newPendingSet() *pendingSet {
	return &pendingSet{present: make(map[string]bool)}
}

func (p *pendingSet) add(id string) {
	if p.present[id] {
		return
	}
	p.present[id] = true
	p.order = append(p.order, id)
}

func (p *pendingSet) has(id string) bool {
	return p.present[id]
}

func (p *pendingSet) remove(id string) {
	if !p.present[id] {
		return
	}
	delete(p.present, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *pendingSet) empty() bool {
	return len(p.present) == 0
}

// first returns the earliest-added id still pending.
func (p *pendingSet) first() (string, bool) {
	if len(p.order) == 0 {
		return "", false
	}
	return p.order[0], true
}
