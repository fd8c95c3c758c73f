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
	"errors"
	"sync"
)

// ErrProviderNotConfigured is returned when a registry slot is empty.
var ErrProviderNotConfigured = errors.New("provider not configured")

// Registry holds the configured providers by placement (cloud vs local).
// It is explicitly constructed and injected; there is no package-global
// instance. Thread-safe.
type Registry struct {
	mu    sync.RWMutex
	cloud Provider
	local Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterCloud sets the cloud provider slot.
func (r *Registry) RegisterCloud(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cloud = p
}

// RegisterLocal sets the local provider slot.
func (r *Registry) RegisterLocal(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = p
}

// GetCloudProvider returns the configured cloud provider.
func (r *Registry) GetCloudProvider() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cloud == nil {
		return nil, ErrProviderNotConfigured
	}
	return r.cloud, nil
}

// GetLocalProvider returns the configured local provider.
func (r *Registry) GetLocalProvider() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.local == nil {
		return nil, ErrProviderNotConfigured
	}
	return r.local, nil
}

// ConfiguredProviders returns the names of all registered providers.
func (r *Registry) ConfiguredProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	if r.cloud != nil {
		names = append(names, r.cloud.Name())
	}
	if r.local != nil {
		names = append(names, r.local.Name())
	}
	return names
}
