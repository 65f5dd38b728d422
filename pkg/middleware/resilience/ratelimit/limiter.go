// Package ratelimit throttles LLM traffic per provider using a token bucket
// combined with a concurrency cap.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// bufferFactor keeps the bucket below the vendor quota so token estimation
// error cannot push a request over the real limit.
const bufferFactor = 0.9

// pollInterval is how often a blocked Acquire rechecks the bucket.
const pollInterval = 100 * time.Millisecond

// Config defines the throttle for one provider.
type Config struct {
	TokensPerMinute int `yaml:"tokens_per_minute" json:"tokens_per_minute"`
	MaxConcurrency  int `yaml:"max_concurrency" json:"max_concurrency"`
}

// Stats is a point-in-time snapshot of a limiter.
type Stats struct {
	Provider         string `json:"provider"`
	AvailableTokens  int    `json:"available_tokens"`
	Capacity         int    `json:"capacity"`
	ActiveRequests   int    `json:"active_requests"`
	MaxConcurrency   int    `json:"max_concurrency"`
	TokenWaits       int64  `json:"token_waits"`
	ConcurrencyWaits int64  `json:"concurrency_waits"`
}

// Limiter is a token bucket plus a concurrency semaphore. The bucket refills
// lazily: each Acquire credits the time elapsed since the previous refill
// instead of running a background ticker, so an idle limiter costs nothing.
type Limiter struct {
	provider       string
	capacity       int
	ratePerSecond  float64
	maxConcurrency int

	mu               sync.Mutex
	availableTokens  float64
	lastRefill       time.Time
	activeRequests   int
	tokenWaits       int64
	concurrencyWaits int64

	now func() time.Time // stubbed in tests
}

// NewLimiter creates a limiter for one provider. The bucket starts full at
// TokensPerMinute scaled by the safety buffer.
func NewLimiter(provider string, cfg Config) *Limiter {
	capacity := int(float64(cfg.TokensPerMinute) * bufferFactor)
	l := &Limiter{
		provider:        provider,
		capacity:        capacity,
		ratePerSecond:   float64(cfg.TokensPerMinute) / 60.0,
		maxConcurrency:  cfg.MaxConcurrency,
		availableTokens: float64(capacity),
		now:             time.Now,
	}
	l.lastRefill = l.now()
	return l
}

// Acquire blocks until the bucket holds tokens and a concurrency slot is
// free, then takes both under one lock so a caller can never consume tokens
// without also holding a slot. The returned release function frees the slot
// and is safe to call more than once; spent tokens are not refunded. Acquire
// returns an error when ctx expires or when the request can never fit.
func (l *Limiter) Acquire(ctx context.Context, tokens int) (func(), error) {
	if tokens > l.capacity {
		return nil, fmt.Errorf("request needs %d tokens but the %s bucket caps at %d", tokens, l.provider, l.capacity)
	}

	waited := false
	for {
		l.mu.Lock()
		l.refillLocked()

		if float64(tokens) <= l.availableTokens && l.activeRequests < l.maxConcurrency {
			l.availableTokens -= float64(tokens)
			l.activeRequests++
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					l.activeRequests--
					l.mu.Unlock()
				})
			}, nil
		}

		// Record what blocked us, once per call.
		if !waited {
			if float64(tokens) > l.availableTokens {
				l.tokenWaits++
			}
			if l.activeRequests >= l.maxConcurrency {
				l.concurrencyWaits++
			}
			waited = true
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rate limit wait aborted for provider %s: %w", l.provider, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// refillLocked credits tokens for the time elapsed since the last refill,
// capped at capacity. Callers must hold l.mu.
func (l *Limiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.lastRefill = now

	l.availableTokens += elapsed * l.ratePerSecond
	if l.availableTokens > float64(l.capacity) {
		l.availableTokens = float64(l.capacity)
	}
}

// GetStats returns a snapshot of the limiter state.
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Provider:         l.provider,
		AvailableTokens:  int(l.availableTokens),
		Capacity:         l.capacity,
		ActiveRequests:   l.activeRequests,
		MaxConcurrency:   l.maxConcurrency,
		TokenWaits:       l.tokenWaits,
		ConcurrencyWaits: l.concurrencyWaits,
	}
}
