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
package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aster-labs/aster/pkg/conversation"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return "stub-model" }

func (s *stubProvider) ValidateAPIKey(ctx context.Context, key string) (ValidationResult, error) {
	return ValidationResult{Valid: true}, nil
}

func (s *stubProvider) Chat(ctx context.Context, turns []conversation.Turn, model string, stream bool) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent, 1)
	ch <- Complete(&Completion{Content: "stub response"})
	close(ch)
	return ch, nil
}

func (s *stubProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{{ID: "stub-model"}}, nil
}

var _ Provider = (*stubProvider)(nil)

func TestRegistryEmptySlots(t *testing.T) {
	r := NewRegistry()

	_, err := r.GetCloudProvider()
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = r.GetLocalProvider()
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	assert.Empty(t, r.ConfiguredProviders())
}

func TestRegistryRegistration(t *testing.T) {
	r := NewRegistry()
	r.RegisterCloud(&stubProvider{name: "anthropic"})
	r.RegisterLocal(&stubProvider{name: "ollama"})

	cloud, err := r.GetCloudProvider()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cloud.Name())

	local, err := r.GetLocalProvider()
	require.NoError(t, err)
	assert.Equal(t, "ollama", local.Name())

	assert.Equal(t, []string{"anthropic", "ollama"}, r.ConfiguredProviders())
}

func TestRegistryReplacesSlot(t *testing.T) {
	r := NewRegistry()
	r.RegisterCloud(&stubProvider{name: "first"})
	r.RegisterCloud(&stubProvider{name: "second"})

	cloud, err := r.GetCloudProvider()
	require.NoError(t, err)
	assert.Equal(t, "second", cloud.Name())
}
