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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aster-labs/aster/internal/log"
	"github.com/aster-labs/aster/internal/version"
	"github.com/aster-labs/aster/pkg/fallback"
	"github.com/aster-labs/aster/pkg/llm"
	"github.com/aster-labs/aster/pkg/llm/anthropic"
	"github.com/aster-labs/aster/pkg/llm/ollama"
)

var (
	cfgFile string
	cfg     *Config
)

var rootCmd = &cobra.Command{
	Use:   "aster",
	Short: "Resilient assistant chat with tiered fallback",
	Long: `Aster routes assistant conversations across an ordered list of backend
tiers (cloud, local accelerated, local lightweight, rule-based) while
enforcing the structural invariants of tool-augmented chat histories.

A request always gets an answer: unhealthy tiers are skipped for a
cooldown window and the final rule-based tier never fails.`,
	Version: version.Get(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $ASTER_HOME/aster.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("anthropic-key", "", "Anthropic API key (enables the cloud tier)")
	rootCmd.PersistentFlags().String("anthropic-model", "", "Anthropic model override")
	rootCmd.PersistentFlags().String("ollama-endpoint", "", "Ollama endpoint (default: http://localhost:11434)")
	rootCmd.PersistentFlags().String("ollama-model", "", "Ollama model override")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("llm.anthropic_api_key", rootCmd.PersistentFlags().Lookup("anthropic-key"))
	_ = viper.BindPFlag("llm.anthropic_model", rootCmd.PersistentFlags().Lookup("anthropic-model"))
	_ = viper.BindPFlag("llm.ollama_endpoint", rootCmd.PersistentFlags().Lookup("ollama-endpoint"))
	_ = viper.BindPFlag("llm.ollama_model", rootCmd.PersistentFlags().Lookup("ollama-model"))
}

func initConfig() {
	loaded, err := LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded

	logger, err := log.Configure(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	log.SetLogger(logger)
}

// buildRegistry wires the configured providers into a registry. Neither
// provider is required; the router's rule-based tier covers a fully
// offline setup.
func buildRegistry(c *Config) *llm.Registry {
	registry := llm.NewRegistry()

	if c.LLM.AnthropicAPIKey != "" {
		registry.RegisterCloud(anthropic.NewClient(anthropic.Config{
			APIKey: c.LLM.AnthropicAPIKey,
			Model:  c.LLM.AnthropicModel,
		}))
	}
	registry.RegisterLocal(ollama.NewClient(ollama.Config{
		Endpoint: c.LLM.OllamaEndpoint,
		Model:    c.LLM.OllamaModel,
	}))

	return registry
}

// buildRouter constructs the fallback router from config. No on-device
// inference engine is wired in the CLI build, so the lightweight tier
// reports itself unavailable and routing falls through to rule-based.
func buildRouter(c *Config) *fallback.Router {
	routerCfg := fallback.DefaultRouterConfig()
	if c.Fallback.MaxConsecutiveFailures > 0 {
		routerCfg.MaxConsecutiveFailures = c.Fallback.MaxConsecutiveFailures
	}
	if c.Fallback.FailureCooldownSeconds > 0 {
		routerCfg.FailureCooldown = time.Duration(c.Fallback.FailureCooldownSeconds) * time.Second
	}
	if c.Fallback.AttemptTimeoutSeconds > 0 {
		routerCfg.AttemptTimeout = time.Duration(c.Fallback.AttemptTimeoutSeconds) * time.Second
	}
	return fallback.NewRouter(routerCfg, buildRegistry(c), nil)
}
