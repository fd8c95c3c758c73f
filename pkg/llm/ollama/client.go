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

// Package ollama implements the llm.Provider interface for a local Ollama
// server. It is the accelerated on-device backend: no API key, NDJSON
// streaming over localhost.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aster-labs/aster/pkg/conversation"
	"github.com/aster-labs/aster/pkg/llm"
)

const (
	// DefaultEndpoint is the default Ollama server address.
	DefaultEndpoint = "http://localhost:11434"
	// DefaultModel is used when no model is configured.
	DefaultModel = "llama3.1"
	// DefaultTimeout is the default HTTP timeout. Local generation on
	// modest hardware can be slow, so this is generous.
	DefaultTimeout = 120 * time.Second
)

// Client implements llm.Provider for Ollama.
type Client struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// Config holds configuration for the Ollama client.
type Config struct {
	Endpoint string        // Default: http://localhost:11434
	Model    string        // Default: llama3.1
	Timeout  time.Duration // Default: 120s
}

// NewClient creates a new Ollama client.
func NewClient(config Config) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		endpoint: strings.TrimRight(config.Endpoint, "/"),
		model:    config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "ollama"
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.model
}

// ValidateAPIKey is a no-op for a local server; it reports whether the
// server is reachable instead.
func (c *Client) ValidateAPIKey(ctx context.Context, _ string) (llm.ValidationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return llm.ValidationResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.ValidationResult{Valid: false, Detail: "server unreachable"}, nil
	}
	defer func() { _ = resp.Body.Close() }()
	return llm.ValidationResult{Valid: resp.StatusCode == http.StatusOK}, nil
}

// chatRequest is the request body for POST /api/chat.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is one NDJSON line of the chat response.
type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// tagsResponse is the response body for GET /api/tags.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels enumerates the models pulled on the local server.
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed tagsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	models := make([]llm.ModelInfo, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		models = append(models, llm.ModelInfo{
			ID:          m.Name,
			DisplayName: m.Name,
		})
	}
	return models, nil
}

// Chat sends a conversation to the local server and streams the response.
// Tool blocks are rendered into text: local models here serve as fallback
// answerers, not tool callers, so pairing metadata is flattened.
func (c *Client) Chat(ctx context.Context, turns []conversation.Turn, model string, stream bool) (<-chan llm.StreamEvent, error) {
	if model == "" {
		model = c.model
	}

	req := &chatRequest{
		Model:    model,
		Messages: flattenTurns(turns),
		Stream:   stream,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
		return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	events := make(chan llm.StreamEvent, 16)
	go c.consumeStream(ctx, httpResp.Body, events)
	return events, nil
}

// consumeStream reads NDJSON chat responses. Ollama uses the same line
// format for streaming and non-streaming; a single line with done=true is
// just a one-line stream.
func (c *Client) consumeStream(ctx context.Context, body io.ReadCloser, events chan<- llm.StreamEvent) {
	defer close(events)
	defer func() { _ = body.Close() }()

	var content strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var resp chatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			events <- llm.Fail(fmt.Errorf("failed to unmarshal response line: %w", err))
			return
		}

		if resp.Message.Content != "" {
			content.WriteString(resp.Message.Content)
			events <- llm.Delta(resp.Message.Content)
		}
		if resp.Done {
			break
		}

		select {
		case <-ctx.Done():
			events <- llm.Fail(ctx.Err())
			return
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		events <- llm.Fail(fmt.Errorf("error reading stream: %w", err))
		return
	}

	events <- llm.Complete(&llm.Completion{Content: content.String(), StopReason: "stop"})
}

// flattenTurns renders ledger turns as plain role/content messages.
func flattenTurns(turns []conversation.Turn) []chatMessage {
	var msgs []chatMessage
	for _, turn := range turns {
		var parts []string
		for _, b := range turn.Blocks {
			switch b.Kind {
			case conversation.BlockText:
				if b.Text != "" {
					parts = append(parts, b.Text)
				}
			case conversation.BlockToolUse:
				parts = append(parts, fmt.Sprintf("[requested tool %s]", b.Name))
			case conversation.BlockToolResult:
				parts = append(parts, fmt.Sprintf("[tool output] %s", b.Content))
			}
		}
		if len(parts) == 0 {
			continue
		}
		msgs = append(msgs, chatMessage{
			Role:    string(turn.Role),
			Content: strings.Join(parts, "\n"),
		})
	}
	return msgs
}

// Ensure Client implements the Provider interface.
var _ llm.Provider = (*Client)(nil)
