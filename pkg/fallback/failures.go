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
	"sync"
	"time"

	"github.com/google/uuid"
)

// FailureRecord is one observed tier failure, kept for operator visibility
// only. Routing decisions use TierHealth, never this log.
type FailureRecord struct {
	ID        string
	Tier      TierID
	Error     string
	Timestamp time.Time
}

// failureLog is a bounded drop-oldest record of recent tier failures.
type failureLog struct {
	mu      sync.Mutex
	cap     int
	records []FailureRecord
	clock   func() time.Time
}

func newFailureLog(capacity int, clock func() time.Time) *failureLog {
	if clock == nil {
		clock = time.Now
	}
	return &failureLog{cap: capacity, clock: clock}
}

// append adds a record, dropping the oldest when at capacity.
func (f *failureLog) append(tier TierID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records = append(f.records, FailureRecord{
		ID:        uuid.NewString(),
		Tier:      tier,
		Error:     err.Error(),
		Timestamp: f.clock(),
	})
	if len(f.records) > f.cap {
		f.records = f.records[len(f.records)-f.cap:]
	}
}

// recent returns a copy of the log, oldest first.
func (f *failureLog) recent() []FailureRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]FailureRecord, len(f.records))
	copy(out, f.records)
	return out
}
