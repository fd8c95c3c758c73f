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
	"errors"
	"fmt"
)

// ErrEmptyConversation is returned by Validate when the ledger has no turns.
var ErrEmptyConversation = errors.New("conversation has no turns")

// UnmatchedToolUseError reports a tool_use id that has no matching
// tool_result in a subsequent user turn.
type UnmatchedToolUseError struct {
	ID string
}

func (e *UnmatchedToolUseError) Error() string {
	return fmt.Sprintf("tool_use %q has no matching tool_result", e.ID)
}

// OrphanedToolResultError reports a tool_result that references an id with
// no preceding, still-pending tool_use.
type OrphanedToolResultError struct {
	ID string
}

func (e *OrphanedToolResultError) Error() string {
	return fmt.Sprintf("tool_result references unknown or already-settled tool_use %q", e.ID)
}

// WrongOrderError reports a structural ordering violation: a tool block in a
// turn whose role may not carry it, or a tool round with a malformed shape.
type WrongOrderError struct {
	Detail string
}

func (e *WrongOrderError) Error() string {
	return "conversation order violation: " + e.Detail
}
