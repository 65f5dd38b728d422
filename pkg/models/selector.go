// Package models provides the model selector: preset resolution and cached
// LLM client handles with the full middleware chain applied.
package models

import (
	"fmt"
	"strings"
	"sync"

	"assistant/pkg/config"
	"assistant/pkg/llm"
	"assistant/pkg/llmimpl/anthropic"
	"assistant/pkg/llmimpl/google"
	"assistant/pkg/llmimpl/ollama"
	"assistant/pkg/llmimpl/openai"
	"assistant/pkg/logx"
	"assistant/pkg/middleware/metrics"
	"assistant/pkg/middleware/resilience/circuit"
	"assistant/pkg/middleware/resilience/ratelimit"
	"assistant/pkg/middleware/resilience/retry"
	"assistant/pkg/middleware/resilience/timeout"
)

// handleKey identifies a cached client handle.
type handleKey struct {
	provider    string
	model       string
	temperature float32
}

// Selector resolves model presets and hands out cached LLM clients.
// Handles are constructed lazily; no network call is made until a client is
// actually invoked.
type Selector struct {
	cfg             config.Config
	presets         []config.ModelPreset
	recorder        metrics.Recorder
	logger          *logx.Logger
	circuitBreakers map[string]*circuit.Breaker
	rateLimiters    map[string]*ratelimit.Limiter

	mu      sync.Mutex
	handles map[handleKey]llm.Client
}

// NewSelector creates a selector from the loaded configuration. A nil
// recorder disables metrics.
func NewSelector(cfg config.Config, recorder metrics.Recorder, logger *logx.Logger) *Selector {
	if recorder == nil {
		recorder = metrics.Nop()
	}

	presets := cfg.Models
	if len(presets) == 0 {
		presets = config.FallbackPresets()
	}

	circuitConfig := circuit.Config{
		FailureThreshold: cfg.Resilience.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.Resilience.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.Resilience.CircuitBreaker.Timeout,
	}
	breakers := map[string]*circuit.Breaker{
		config.ProviderAnthropic: circuit.New(circuitConfig),
		config.ProviderOpenAI:    circuit.New(circuitConfig),
		config.ProviderGoogle:    circuit.New(circuitConfig),
		config.ProviderOllama:    circuit.New(circuitConfig),
	}

	limitConfig := ratelimit.Config{
		TokensPerMinute: cfg.Resilience.RateLimit.TokensPerMinute,
		MaxConcurrency:  cfg.Resilience.RateLimit.MaxConcurrency,
	}
	limiters := map[string]*ratelimit.Limiter{
		config.ProviderAnthropic: ratelimit.NewLimiter(config.ProviderAnthropic, limitConfig),
		config.ProviderOpenAI:    ratelimit.NewLimiter(config.ProviderOpenAI, limitConfig),
		config.ProviderGoogle:    ratelimit.NewLimiter(config.ProviderGoogle, limitConfig),
		config.ProviderOllama:    ratelimit.NewLimiter(config.ProviderOllama, limitConfig),
	}

	return &Selector{
		cfg:             cfg,
		presets:         presets,
		recorder:        recorder,
		logger:          logger,
		circuitBreakers: breakers,
		rateLimiters:    limiters,
		handles:         make(map[handleKey]llm.Client),
	}
}

// GetModel returns a client for the given preset, building it with the full
// middleware chain on first use. Repeated calls with an identical
// (provider, model, temperature) triple return the same handle.
func (s *Selector) GetModel(preset config.ModelPreset) (llm.Client, error) {
	provider := preset.Provider
	if provider == "" {
		inferred, err := config.GetModelProvider(preset.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to determine provider for model %s: %w", preset.Model, err)
		}
		provider = inferred
	}

	key := handleKey{provider: provider, model: preset.Model, temperature: preset.Temperature}

	s.mu.Lock()
	defer s.mu.Unlock()

	if handle, ok := s.handles[key]; ok {
		return handle, nil
	}

	handle, err := s.buildClient(provider, preset.Model)
	if err != nil {
		return nil, err
	}
	s.handles[key] = handle
	return handle, nil
}

// GetModelPreset resolves a model name to a preset. Resolution order:
// exact logical id, then vendor model identifier, then the "API model <name>"
// text in a preset description. A miss returns nil.
func (s *Selector) GetModelPreset(name string) *config.ModelPreset {
	if name == "" {
		return nil
	}

	for i := range s.presets {
		if s.presets[i].ID == name {
			preset := s.presets[i]
			return &preset
		}
	}

	for i := range s.presets {
		if s.presets[i].Model == name {
			preset := s.presets[i]
			return &preset
		}
	}

	marker := "API model " + name
	for i := range s.presets {
		if strings.Contains(s.presets[i].Description, marker) {
			preset := s.presets[i]
			return &preset
		}
	}

	return nil
}

// ListModels returns all configured presets.
func (s *Selector) ListModels() []config.ModelPreset {
	out := make([]config.ModelPreset, len(s.presets))
	copy(out, s.presets)
	return out
}

// buildClient constructs a raw vendor client and wraps it with the middleware
// chain: metrics -> rate limit -> circuit breaker -> retry -> timeout -> client.
func (s *Selector) buildClient(provider, model string) (llm.Client, error) {
	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	var rawClient llm.Client
	switch provider {
	case config.ProviderAnthropic:
		rawClient = anthropic.NewClaudeClientWithModel(apiKey, model)
	case config.ProviderOpenAI:
		rawClient = openai.NewClientWithModel(apiKey, model)
	case config.ProviderGoogle:
		rawClient = google.NewGeminiClientWithModel(apiKey, model)
	case config.ProviderOllama:
		rawClient = ollama.NewClientWithModel(apiKey, model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	breaker, ok := s.circuitBreakers[provider]
	if !ok {
		return nil, fmt.Errorf("no circuit breaker found for provider %s", provider)
	}
	limiter, ok := s.rateLimiters[provider]
	if !ok {
		return nil, fmt.Errorf("no rate limiter found for provider %s", provider)
	}

	retryPolicy := retry.NewPolicy(retry.Config{
		MaxAttempts:   s.cfg.Resilience.Retry.MaxAttempts,
		InitialDelay:  s.cfg.Resilience.Retry.InitialDelay,
		MaxDelay:      s.cfg.Resilience.Retry.MaxDelay,
		BackoffFactor: s.cfg.Resilience.Retry.BackoffFactor,
		Jitter:        true,
	}, nil)

	client := llm.Chain(rawClient,
		metrics.Middleware(s.recorder, nil, s.logger),
		ratelimit.Middleware(limiter, nil, s.logger),
		circuit.Middleware(breaker),
		retry.Middleware(retryPolicy),
		timeout.Middleware(s.cfg.Workflow.ModelTimeout),
	)

	return client, nil
}
