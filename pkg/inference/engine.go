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

// Package inference declares the on-device inference engine contract. The
// engine itself (model discovery, weight loading, generation) lives in the
// platform layer; this core only consumes it as the lightweight local tier.
package inference

import "context"

// ModelFile describes a model discovered on device.
type ModelFile struct {
	// Path is the on-disk location of the model weights.
	Path string

	// ID is the stable identifier used to request this model.
	ID string

	// SizeBytes is the weight file size.
	SizeBytes int64
}

// Engine is an on-device text generation engine.
type Engine interface {
	// DiscoverModels scans for usable model files on device.
	DiscoverModels(ctx context.Context) ([]ModelFile, error)

	// LoadModel loads the weights at path under the given id. Loading an
	// already-loaded id is a no-op.
	LoadModel(ctx context.Context, path, id string) error

	// Generate produces text for a prompt, streamed in chunks. The channel
	// is closed when generation finishes; cancellation of ctx aborts it.
	Generate(ctx context.Context, prompt string, maxTokens int) (<-chan string, error)
}
