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
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the name of the config file (aster.yaml).
const DefaultConfigFileName = "aster"

// Config holds all configuration for the aster CLI.
// Priority: CLI flags > config file > env vars > defaults
type Config struct {
	// LLM provider configuration
	LLM LLMConfig `mapstructure:"llm"`

	// Fallback router configuration
	Fallback FallbackConfig `mapstructure:"fallback"`

	// Chat pipeline configuration
	Chat ChatConfig `mapstructure:"chat"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// LLMConfig holds provider configuration.
type LLMConfig struct {
	// AnthropicAPIKey enables the cloud tier when set (env: ASTER_LLM_ANTHROPIC_API_KEY)
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`

	// AnthropicModel overrides the default Claude model
	AnthropicModel string `mapstructure:"anthropic_model"`

	// OllamaEndpoint enables the local accelerated tier when reachable
	OllamaEndpoint string `mapstructure:"ollama_endpoint"`

	// OllamaModel is the local model to use
	OllamaModel string `mapstructure:"ollama_model"`
}

// FallbackConfig holds router thresholds.
type FallbackConfig struct {
	// MaxConsecutiveFailures before a tier is skipped (default: 3)
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`

	// FailureCooldownSeconds an unhealthy tier stays skipped (default: 300)
	FailureCooldownSeconds int `mapstructure:"failure_cooldown_seconds"`

	// AttemptTimeoutSeconds bounds each tier attempt (default: 30)
	AttemptTimeoutSeconds int `mapstructure:"attempt_timeout_seconds"`
}

// ChatConfig holds pipeline configuration.
type ChatConfig struct {
	// SystemPrompt is the pinned system turn
	SystemPrompt string `mapstructure:"system_prompt"`

	// MaxContextTokens triggers history truncation (default: 180000)
	MaxContextTokens int `mapstructure:"max_context_tokens"`

	// Stream asks provider tiers to stream responses
	Stream bool `mapstructure:"stream"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is debug, info, warn, or error (default: info)
	Level string `mapstructure:"level"`

	// Format is text or json (default: text)
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration with viper.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("llm.ollama_endpoint", "http://localhost:11434")
	v.SetDefault("fallback.max_consecutive_failures", 3)
	v.SetDefault("fallback.failure_cooldown_seconds", 300)
	v.SetDefault("fallback.attempt_timeout_seconds", 30)
	v.SetDefault("chat.max_context_tokens", 180000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(asterHome())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env carry us.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// asterHome returns the aster data directory: $ASTER_HOME or ~/.aster.
func asterHome() string {
	if dir := os.Getenv("ASTER_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".aster")
}
