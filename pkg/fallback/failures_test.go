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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureLogRecordsDetails(t *testing.T) {
	log := newFailureLog(10, newFakeClock().Now)
	log.append(TierCloud, errors.New("connection refused"))

	records := log.recent()
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID)
	assert.Equal(t, TierCloud, records[0].Tier)
	assert.Equal(t, "connection refused", records[0].Error)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestFailureLogDropsOldestAtCapacity(t *testing.T) {
	log := newFailureLog(3, nil)
	for i := 0; i < 5; i++ {
		log.append(TierCloud, fmt.Errorf("failure %d", i))
	}

	records := log.recent()
	require.Len(t, records, 3)
	assert.Equal(t, "failure 2", records[0].Error)
	assert.Equal(t, "failure 4", records[2].Error)
}

func TestFailureLogRecentReturnsCopy(t *testing.T) {
	log := newFailureLog(10, nil)
	log.append(TierCloud, errors.New("original"))

	records := log.recent()
	records[0].Error = "mutated"

	assert.Equal(t, "original", log.recent()[0].Error)
}
