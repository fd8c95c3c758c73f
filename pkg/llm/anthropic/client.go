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

// Package anthropic implements the llm.Provider interface for Anthropic's
// Claude Messages API.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aster-labs/aster/pkg/conversation"
	"github.com/aster-labs/aster/pkg/llm"
)

const (
	// DefaultModel is the default Claude model.
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultEndpoint is the default Anthropic API base URL.
	DefaultEndpoint = "https://api.anthropic.com"
	// DefaultMaxTokens is the default maximum tokens per request.
	DefaultMaxTokens = 4096
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 60 * time.Second

	apiVersion = "2023-06-01"
)

// Client implements llm.Provider for Anthropic's Claude API.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	maxTokens  int
	limiter    *llm.Limiter
	httpClient *http.Client
}

// Config holds configuration for the Anthropic client.
type Config struct {
	APIKey    string
	Model     string        // Default: claude-sonnet-4-5-20250929
	Endpoint  string        // Default: https://api.anthropic.com
	MaxTokens int           // Default: 4096
	Timeout   time.Duration // Default: 60s

	// RequestsPerSecond paces outbound requests. Zero disables pacing.
	RequestsPerSecond float64
	// Burst is the pacing burst capacity (default: 1 when pacing is on).
	Burst int
}

// NewClient creates a new Anthropic client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		if envModel := os.Getenv("ANTHROPIC_DEFAULT_MODEL"); envModel != "" {
			config.Model = envModel
		} else {
			config.Model = DefaultModel
		}
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		apiKey:    config.APIKey,
		model:     config.Model,
		endpoint:  strings.TrimRight(config.Endpoint, "/"),
		maxTokens: config.MaxTokens,
		limiter:   llm.NewLimiter(config.RequestsPerSecond, config.Burst),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "anthropic"
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.model
}

// ValidateAPIKey checks the key against the models endpoint. A 401/403
// means the key is rejected; any other failure is a transport error.
func (c *Client) ValidateAPIKey(ctx context.Context, key string) (llm.ValidationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/models", nil)
	if err != nil {
		return llm.ValidationResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.ValidationResult{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return llm.ValidationResult{Valid: true}, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return llm.ValidationResult{Valid: false, Detail: "API key rejected"}, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return llm.ValidationResult{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// ListModels enumerates the models available to this API key.
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

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
		return nil, apiStatusError(resp.StatusCode, body)
	}

	var parsed modelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	models := make([]llm.ModelInfo, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, llm.ModelInfo{
			ID:            m.ID,
			DisplayName:   m.DisplayName,
			ContextWindow: 200000,
			SupportsTools: true,
		})
	}
	return models, nil
}

// Chat sends a conversation to Claude and streams the response events.
func (c *Client) Chat(ctx context.Context, turns []conversation.Turn, model string, stream bool) (<-chan llm.StreamEvent, error) {
	if model == "" {
		model = c.model
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	system, apiMessages := convertTurns(turns)
	req := &messagesRequest{
		Model:     model,
		Messages:  apiMessages,
		System:    system,
		MaxTokens: c.maxTokens,
		Stream:    stream,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
		return nil, apiStatusError(httpResp.StatusCode, respBody)
	}

	events := make(chan llm.StreamEvent, 16)
	if stream {
		go c.consumeStream(ctx, httpResp.Body, events)
	} else {
		go c.consumeResponse(httpResp.Body, events)
	}
	return events, nil
}

// consumeResponse parses a non-streaming response body and emits a single
// completion event.
func (c *Client) consumeResponse(body io.ReadCloser, events chan<- llm.StreamEvent) {
	defer close(events)
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(body)
	if err != nil {
		events <- llm.Fail(fmt.Errorf("failed to read response: %w", err))
		return
	}

	var resp messagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		events <- llm.Fail(fmt.Errorf("failed to unmarshal response: %w", err))
		return
	}

	msg := &llm.Completion{StopReason: resp.StopReason}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	events <- llm.Complete(msg)
}

// consumeStream reads the SSE stream, emitting a delta event per text
// fragment and a final completion event when the message stops.
func (c *Client) consumeStream(ctx context.Context, body io.ReadCloser, events chan<- llm.StreamEvent) {
	defer close(events)
	defer func() { _ = body.Close() }()

	var content strings.Builder
	var stopReason string
	var toolCalls []llm.ToolCall

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		jsonData := strings.TrimPrefix(line, "data: ")

		var event streamEvent
		if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
			// Skip malformed events but continue processing.
			continue
		}

		switch event.Type {
		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				toolCalls = append(toolCalls, llm.ToolCall{
					ID:   event.ContentBlock.ID,
					Name: event.ContentBlock.Name,
				})
			}
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				content.WriteString(event.Delta.Text)
				events <- llm.Delta(event.Delta.Text)
			}
		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
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

	events <- llm.Complete(&llm.Completion{
		Content:    content.String(),
		ToolCalls:  toolCalls,
		StopReason: stopReason,
	})
}

// convertTurns converts ledger turns to Anthropic's wire format. System
// turns are extracted into the separate system field the Messages API
// requires. Tool pairing is preserved block for block; the ledger has
// already validated it.
func convertTurns(turns []conversation.Turn) (string, []apiMessage) {
	var systemPrompts []string
	var apiMessages []apiMessage

	for _, turn := range turns {
		if turn.Role == conversation.RoleSystem {
			for _, b := range turn.Blocks {
				if b.Kind == conversation.BlockText && b.Text != "" {
					systemPrompts = append(systemPrompts, b.Text)
				}
			}
			continue
		}

		var content []apiContentBlock
		for _, b := range turn.Blocks {
			switch b.Kind {
			case conversation.BlockText:
				content = append(content, apiContentBlock{Type: "text", Text: b.Text})
			case conversation.BlockToolUse:
				input := b.Arguments
				if input == nil {
					input = map[string]interface{}{} // API requires non-null input for tool_use
				}
				content = append(content, apiContentBlock{
					Type:  "tool_use",
					ID:    b.ID,
					Name:  b.Name,
					Input: input,
				})
			case conversation.BlockToolResult:
				content = append(content, apiContentBlock{
					Type:      "tool_result",
					ToolUseID: b.ToolUseID,
					Content:   b.Content,
				})
			}
		}
		if len(content) > 0 {
			apiMessages = append(apiMessages, apiMessage{
				Role:    string(turn.Role),
				Content: content,
			})
		}
	}

	return strings.Join(systemPrompts, "\n\n"), apiMessages
}

// apiStatusError maps a non-200 response to an error. 400-class rejections
// become llm.ProtocolError so the chat pipeline can trigger ledger recovery.
func apiStatusError(status int, body []byte) error {
	msg := string(body)
	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	if status >= 400 && status < 500 {
		return &llm.ProtocolError{StatusCode: status, Message: msg}
	}
	return fmt.Errorf("API error (status %d): %s", status, msg)
}

// Ensure Client implements the Provider interface.
var _ llm.Provider = (*Client)(nil)
