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
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aster-labs/aster/pkg/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session. Each message flows through the
conversation ledger (validation, truncation, protocol-failure recovery)
and the fallback router; replies are retained so the conversation has
memory across turns.

Type 'exit' or 'quit' to end the session.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().String("system", "", "system prompt pinned to the conversation")
	chatCmd.Flags().Bool("stream", true, "stream responses from provider tiers")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	systemPrompt, _ := cmd.Flags().GetString("system")
	stream, _ := cmd.Flags().GetBool("stream")
	if systemPrompt == "" {
		systemPrompt = cfg.Chat.SystemPrompt
	}

	router := buildRouter(cfg)
	pipeline := chat.NewPipeline(chat.PipelineConfig{
		SystemPrompt:     systemPrompt,
		MaxContextTokens: cfg.Chat.MaxContextTokens,
		PreferredModel:   cfg.LLM.AnthropicModel,
		Stream:           stream,
	}, router)

	fmt.Println("aster chat — type 'exit' to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		result, err := pipeline.Send(context.Background(), line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if result.WasFallback {
			fmt.Printf("[served by %s tier]\n", result.Tier)
		}
		fmt.Println(result.Response)
	}
	return scanner.Err()
}
