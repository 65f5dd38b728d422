package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkflowConfig controls the agent workflow loop.
type WorkflowConfig struct {
	// MaxTurns caps the number of model invocations per ProcessMessage call.
	MaxTurns int `yaml:"max_turns"`
	// ModelTimeout bounds a single model invocation.
	ModelTimeout time.Duration `yaml:"model_timeout"`
}

// CheckpointConfig selects the checkpoint store backend.
type CheckpointConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`   // sqlite database path
}

// ReviewConfig controls human-in-the-loop review of tool calls.
type ReviewConfig struct {
	// SensitiveTools overrides the default set of tool names requiring approval.
	SensitiveTools []string `yaml:"sensitive_tools"`
	// DenyUnknown treats any tool name outside KnownSafeTools as sensitive.
	DenyUnknown bool `yaml:"deny_unknown"`
	// KnownSafeTools lists tools that never require approval under DenyUnknown.
	KnownSafeTools []string `yaml:"known_safe_tools"`
}

// ResilienceConfig groups retry, circuit breaker and timeout settings for LLM calls.
type ResilienceConfig struct {
	Retry struct {
		MaxAttempts   int           `yaml:"max_attempts"`
		InitialDelay  time.Duration `yaml:"initial_delay"`
		MaxDelay      time.Duration `yaml:"max_delay"`
		BackoffFactor float64       `yaml:"backoff_factor"`
	} `yaml:"retry"`
	CircuitBreaker struct {
		FailureThreshold int           `yaml:"failure_threshold"`
		SuccessThreshold int           `yaml:"success_threshold"`
		Timeout          time.Duration `yaml:"timeout"`
	} `yaml:"circuit_breaker"`
	RateLimit struct {
		TokensPerMinute int `yaml:"tokens_per_minute"`
		MaxConcurrency  int `yaml:"max_concurrency"`
	} `yaml:"rate_limit"`
}

// Config is the root configuration for the assistant.
type Config struct {
	// Models is the preset catalog. When empty or malformed, FallbackPresets
	// is installed instead.
	Models     []ModelPreset    `yaml:"models"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Review     ReviewConfig     `yaml:"review"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// LoadConfig reads and validates a YAML config file. A missing file yields the
// default configuration rather than an error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				applyDefaults(cfg)
				return cfg, nil
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyDefaults fills zero values with working defaults.
func applyDefaults(cfg *Config) {
	if len(cfg.Models) == 0 {
		cfg.Models = FallbackPresets()
	} else {
		// A catalog entry without provider and model is malformed; discard the
		// whole catalog rather than run with partial presets.
		for i := range cfg.Models {
			if cfg.Models[i].ID == "" || cfg.Models[i].Provider == "" || cfg.Models[i].Model == "" {
				cfg.Models = FallbackPresets()
				break
			}
		}
	}

	if cfg.Workflow.MaxTurns <= 0 {
		cfg.Workflow.MaxTurns = 10
	}
	if cfg.Workflow.ModelTimeout <= 0 {
		cfg.Workflow.ModelTimeout = 120 * time.Second
	}

	if cfg.Checkpoint.Driver == "" {
		cfg.Checkpoint.Driver = "memory"
	}
	if cfg.Checkpoint.Driver == "sqlite" && cfg.Checkpoint.Path == "" {
		cfg.Checkpoint.Path = "assistant.db"
	}

	if cfg.Resilience.Retry.MaxAttempts <= 0 {
		cfg.Resilience.Retry.MaxAttempts = 3
	}
	if cfg.Resilience.Retry.InitialDelay <= 0 {
		cfg.Resilience.Retry.InitialDelay = 100 * time.Millisecond
	}
	if cfg.Resilience.Retry.MaxDelay <= 0 {
		cfg.Resilience.Retry.MaxDelay = 10 * time.Second
	}
	if cfg.Resilience.Retry.BackoffFactor <= 1 {
		cfg.Resilience.Retry.BackoffFactor = 2.0
	}
	if cfg.Resilience.CircuitBreaker.FailureThreshold <= 0 {
		cfg.Resilience.CircuitBreaker.FailureThreshold = 5
	}
	if cfg.Resilience.CircuitBreaker.SuccessThreshold <= 0 {
		cfg.Resilience.CircuitBreaker.SuccessThreshold = 3
	}
	if cfg.Resilience.CircuitBreaker.Timeout <= 0 {
		cfg.Resilience.CircuitBreaker.Timeout = 30 * time.Second
	}
	if cfg.Resilience.RateLimit.TokensPerMinute <= 0 {
		cfg.Resilience.RateLimit.TokensPerMinute = 240000
	}
	if cfg.Resilience.RateLimit.MaxConcurrency <= 0 {
		cfg.Resilience.RateLimit.MaxConcurrency = 4
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Checkpoint.Driver != "memory" && c.Checkpoint.Driver != "sqlite" {
		return fmt.Errorf("unknown checkpoint driver %q (want memory or sqlite)", c.Checkpoint.Driver)
	}

	seen := make(map[string]bool, len(c.Models))
	for i := range c.Models {
		p := &c.Models[i]
		if seen[p.ID] {
			return fmt.Errorf("duplicate model preset id %q", p.ID)
		}
		seen[p.ID] = true

		switch p.Provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
		default:
			return fmt.Errorf("model preset %q: unsupported provider %q", p.ID, p.Provider)
		}
	}
	return nil
}
