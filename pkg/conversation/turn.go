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

// Package conversation owns the structural representation of tool-augmented
// chat histories and the Ledger that keeps them valid for providers whose
// protocol requires exact pairing of tool invocations and tool results.
package conversation

import "encoding/json"

// Role identifies the sender of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind discriminates the ContentBlock variants.
type BlockKind string

const (
	// BlockText is plain conversational text.
	BlockText BlockKind = "text"
	// BlockToolUse is an assistant request to invoke an external capability.
	BlockToolUse BlockKind = "tool_use"
	// BlockToolResult carries the outcome of a previously requested invocation.
	BlockToolResult BlockKind = "tool_result"
)

// ContentBlock is a tagged variant: exactly one of the field groups below is
// populated, selected by Kind. Use the Text/ToolUse/ToolResult constructors
// rather than building literals.
type ContentBlock struct {
	Kind BlockKind

	// Text content (Kind == BlockText)
	Text string

	// Tool invocation (Kind == BlockToolUse)
	ID        string
	Name      string
	Arguments map[string]interface{}

	// Tool outcome (Kind == BlockToolResult)
	ToolUseID string
	Content   string
}

// Text creates a plain text content block.
func Text(s string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: s}
}

// ToolUse creates a tool invocation block. The id must be unique within the
// conversation; it is what the matching tool_result refers back to.
func ToolUse(id, name string, arguments map[string]interface{}) ContentBlock {
	return ContentBlock{Kind: BlockToolUse, ID: id, Name: name, Arguments: arguments}
}

// ToolResult creates a tool outcome block referencing a prior tool_use id.
func ToolResult(toolUseID, content string) ContentBlock {
	return ContentBlock{Kind: BlockToolResult, ToolUseID: toolUseID, Content: content}
}

// chars returns the character weight of the block for token estimation:
// text fields and nested content fields, counted recursively.
func (b ContentBlock) chars() int {
	switch b.Kind {
	case BlockText:
		return len(b.Text)
	case BlockToolUse:
		n := len(b.Name)
		if len(b.Arguments) > 0 {
			if raw, err := json.Marshal(b.Arguments); err == nil {
				n += len(raw)
			}
		}
		return n
	case BlockToolResult:
		return len(b.Content)
	default:
		return 0
	}
}

// Turn is one message in the conversation: a role plus an ordered sequence
// of content blocks. A tool_use block may appear only in assistant turns and
// a tool_result block only in user turns; the Ledger enforces this.
type Turn struct {
	Role   Role
	Blocks []ContentBlock
}

// SystemText builds a system turn with a single text block.
func SystemText(s string) Turn {
	return Turn{Role: RoleSystem, Blocks: []ContentBlock{Text(s)}}
}

// UserText builds a user turn with a single text block.
func UserText(s string) Turn {
	return Turn{Role: RoleUser, Blocks: []ContentBlock{Text(s)}}
}

// AssistantText builds an assistant turn with a single text block.
func AssistantText(s string) Turn {
	return Turn{Role: RoleAssistant, Blocks: []ContentBlock{Text(s)}}
}

// ToolUseIDs returns the ids of all tool_use blocks in block order.
func (t Turn) ToolUseIDs() []string {
	var ids []string
	for _, b := range t.Blocks {
		if b.Kind == BlockToolUse {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// ToolResultIDs returns the tool_use ids referenced by tool_result blocks,
// in block order.
func (t Turn) ToolResultIDs() []string {
	var ids []string
	for _, b := range t.Blocks {
		if b.Kind == BlockToolResult {
			ids = append(ids, b.ToolUseID)
		}
	}
	return ids
}

// HasToolBlocks reports whether the turn contains any tool_use or
// tool_result block.
func (t Turn) HasToolBlocks() bool {
	for _, b := range t.Blocks {
		if b.Kind == BlockToolUse || b.Kind == BlockToolResult {
			return true
		}
	}
	return false
}

// chars sums the character weight of all blocks in the turn.
func (t Turn) chars() int {
	n := 0
	for _, b := range t.Blocks {
		n += b.chars()
	}
	return n
}

// clone returns a deep-enough copy of the turn for snapshot reads. Block
// argument maps are shared; callers must not mutate them.
func (t Turn) clone() Turn {
	blocks := make([]ContentBlock, len(t.Blocks))
	copy(blocks, t.Blocks)
	return Turn{Role: t.Role, Blocks: blocks}
}
