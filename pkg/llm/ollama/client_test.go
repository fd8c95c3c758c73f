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
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aster-labs/aster/pkg/conversation"
	"github.com/aster-labs/aster/pkg/llm"
)

func TestNewClient(t *testing.T) {
	client := NewClient(Config{})

	if client.Name() != "ollama" {
		t.Errorf("Expected name 'ollama', got %s", client.Name())
	}
	if client.Model() != DefaultModel {
		t.Errorf("Expected default model, got %s", client.Model())
	}
}

func TestClient_Chat_Streaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llama3.1" {
			t.Errorf("Unexpected model: %s", req.Model)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})

	events, err := client.Chat(context.Background(), []conversation.Turn{
		conversation.UserText("Hi"),
	}, "", true)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	out, err := llm.Accumulate(events)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	if out != "Hello" {
		t.Errorf("Expected 'Hello', got %q", out)
	}
}

func TestClient_Chat_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("model not found"))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})

	_, err := client.Chat(context.Background(), []conversation.Turn{
		conversation.UserText("Hi"),
	}, "", false)
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}
}

func TestClient_Chat_FlattensToolBlocks(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"ok"},"done":true}`)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})

	turns := []conversation.Turn{
		conversation.UserText("check status"),
		{Role: conversation.RoleAssistant, Blocks: []conversation.ContentBlock{
			conversation.ToolUse("toolu_1", "status_check", nil),
		}},
		{Role: conversation.RoleUser, Blocks: []conversation.ContentBlock{
			conversation.ToolResult("toolu_1", "all green"),
		}},
	}

	events, err := client.Chat(context.Background(), turns, "", false)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if _, err := llm.Accumulate(events); err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(captured.Messages))
	}
	if !strings.Contains(captured.Messages[1].Content, "status_check") {
		t.Errorf("tool_use must flatten to text, got %q", captured.Messages[1].Content)
	}
	if !strings.Contains(captured.Messages[2].Content, "all green") {
		t.Errorf("tool_result must flatten to text, got %q", captured.Messages[2].Content)
	}
}

func TestClient_ValidateAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	result, err := client.ValidateAPIKey(context.Background(), "")
	if err != nil {
		t.Fatalf("ValidateAPIKey failed: %v", err)
	}
	if !result.Valid {
		t.Error("Expected reachable server to report valid")
	}
}

func TestClient_ValidateAPIKey_Unreachable(t *testing.T) {
	client := NewClient(Config{Endpoint: "http://127.0.0.1:1"})
	result, err := client.ValidateAPIKey(context.Background(), "")
	if err != nil {
		t.Fatalf("Unreachable server must not error: %v", err)
	}
	if result.Valid {
		t.Error("Expected unreachable server to report invalid")
	}
}

func TestClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1"},{"name":"phi3"}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("Expected 2 models, got %d", len(models))
	}
	if models[0].ID != "llama3.1" {
		t.Errorf("Unexpected model id: %s", models[0].ID)
	}
}
