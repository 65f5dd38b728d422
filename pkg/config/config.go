// Package config provides configuration loading, validation, and the static
// model catalog for the assistant.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Provider name constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variable names for provider credentials.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Default model identifiers per provider.
const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultGoogleModel    = "gemini-2.0-flash"
	DefaultOllamaModel    = "llama3.1:8b"
)

// ModelPreset describes one logical model choice offered by the assistant.
// ID is the stable logical identifier; Model is the vendor-specific identifier
// sent over the wire.
type ModelPreset struct {
	ID          string  `yaml:"id" json:"id"`
	Provider    string  `yaml:"provider" json:"provider"`
	Model       string  `yaml:"model" json:"model"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (anthropic, openai, google, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels registry contains pricing and provider information for common models.
// This is optional - unknown models will be inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	// Claude models (Anthropic)
	"claude-sonnet-4-20250514": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-3-7-sonnet-20250219": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-opus-4-1": {
		Provider:         ProviderAnthropic,
		InputCPM:         15.0,
		OutputCPM:        75.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  16384,
	},

	// OpenAI GPT models
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"gpt-4o-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         0.15,
		OutputCPM:        0.6,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"o3-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 200000,
		MaxOutputTokens:  100000,
	},

	// Google Gemini models
	"gemini-2.0-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.1,
		OutputCPM:        0.4,
		MaxContextTokens: 1000000,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-pro": {
		Provider:         ProviderGoogle,
		InputCPM:         1.25,
		OutputCPM:        10.0,
		MaxContextTokens: 1000000,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
// Allows using new models without code changes.
//
//nolint:gochecknoglobals // Static inference table
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	// Ollama models - common open-source model prefixes
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"codellama", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama}, // Explicit prefix like "ollama:phi4"
}

// GetModelProvider returns the API provider for a given model.
// First checks KnownModels, then tries pattern matching.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a given model name.
// Returns the info and true if found in KnownModels, or conservative defaults
// with an inferred provider and false if not found.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	provider := ""
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			provider = ProviderPatterns[i].Provider
			break
		}
	}

	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// GetAPIKey returns the API key for a given provider from the environment.
// Ollama does not use API keys; its host URL is returned instead.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("missing API key: set %s", envVar)
	}
	return key, nil
}

// FallbackPresets returns the hard-coded minimal preset catalog, one preset per
// supported provider. Installed when the configured catalog is empty or
// malformed so the assistant is never left without a usable model.
func FallbackPresets() []ModelPreset {
	return []ModelPreset{
		{
			ID:          "claude-sonnet",
			Provider:    ProviderAnthropic,
			Model:       DefaultAnthropicModel,
			Description: "Anthropic Claude Sonnet (API model claude-sonnet-4-20250514)",
			Temperature: 0.3,
			MaxTokens:   8192,
		},
		{
			ID:          "gpt-4o",
			Provider:    ProviderOpenAI,
			Model:       DefaultOpenAIModel,
			Description: "OpenAI GPT-4o (API model gpt-4o)",
			Temperature: 0.3,
			MaxTokens:   16384,
		},
		{
			ID:          "gemini-flash",
			Provider:    ProviderGoogle,
			Model:       DefaultGoogleModel,
			Description: "Google Gemini 2.0 Flash (API model gemini-2.0-flash)",
			Temperature: 0.3,
			MaxTokens:   8192,
		},
		{
			ID:          "llama-local",
			Provider:    ProviderOllama,
			Model:       DefaultOllamaModel,
			Description: "Local Llama via Ollama (API model llama3.1:8b)",
			Temperature: 0.3,
			MaxTokens:   4096,
		},
	}
}
