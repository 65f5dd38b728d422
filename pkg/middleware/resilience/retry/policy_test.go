package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"assistant/pkg/llmerrors"
	"assistant/pkg/middleware/resilience/circuit"
)

func TestShouldRetry_NilError(t *testing.T) {
	if ShouldRetry(nil) {
		t.Error("Expected false for nil error")
	}
}

func TestShouldRetry_ContextCanceled(t *testing.T) {
	if ShouldRetry(context.Canceled) {
		t.Error("Expected false for context.Canceled")
	}
}

func TestShouldRetry_WrappedContextCanceled(t *testing.T) {
	err := fmt.Errorf("operation failed: %w", context.Canceled)
	if ShouldRetry(err) {
		t.Error("Expected false for wrapped context.Canceled")
	}
}

func TestShouldRetry_ContextDeadlineExceeded(t *testing.T) {
	// DeadlineExceeded SHOULD be retryable. Per-request HTTP timeouts wrap
	// DeadlineExceeded but the parent context is still valid.
	if !ShouldRetry(context.DeadlineExceeded) {
		t.Error("Expected true for context.DeadlineExceeded")
	}
}

func TestShouldRetry_CircuitBreakerError(t *testing.T) {
	err := &circuit.Error{State: circuit.Open}
	if ShouldRetry(err) {
		t.Error("Expected false for circuit breaker error")
	}
}

func TestShouldRetry_LLMAuthError(t *testing.T) {
	err := &llmerrors.Error{Type: llmerrors.ErrorTypeAuth, Message: "invalid api key"}
	if ShouldRetry(err) {
		t.Error("Expected false for auth error")
	}
}

func TestShouldRetry_LLMBadPromptError(t *testing.T) {
	err := &llmerrors.Error{Type: llmerrors.ErrorTypeBadPrompt, Message: "prompt too long"}
	if ShouldRetry(err) {
		t.Error("Expected false for bad prompt error")
	}
}

func TestShouldRetry_LLMRateLimitError(t *testing.T) {
	err := &llmerrors.Error{Type: llmerrors.ErrorTypeRateLimit, Message: "429"}
	if !ShouldRetry(err) {
		t.Error("Expected true for rate limit error")
	}
}

func TestShouldRetry_LLMTransientError(t *testing.T) {
	err := &llmerrors.Error{Type: llmerrors.ErrorTypeTransient, Message: "503"}
	if !ShouldRetry(err) {
		t.Error("Expected true for transient error")
	}
}

func TestShouldRetry_UnclassifiedError(t *testing.T) {
	if ShouldRetry(fmt.Errorf("something odd")) {
		t.Error("Expected false for unclassified error")
	}
}

func TestCalculateDelay(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   4,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        false,
	}, nil)

	if d := policy.CalculateDelay(1); d != 0 {
		t.Errorf("Expected zero delay for first attempt, got %v", d)
	}
	if d := policy.CalculateDelay(2); d != 100*time.Millisecond {
		t.Errorf("Expected 100ms for second attempt, got %v", d)
	}
	if d := policy.CalculateDelay(3); d != 200*time.Millisecond {
		t.Errorf("Expected 200ms for third attempt, got %v", d)
	}
}

func TestCalculateDelayCapped(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   10,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 10.0,
		Jitter:        false,
	}, nil)

	if d := policy.CalculateDelay(5); d != 500*time.Millisecond {
		t.Errorf("Expected delay capped at 500ms, got %v", d)
	}
}

func TestNewPolicyDefaultsClassifier(t *testing.T) {
	policy := NewPolicy(DefaultConfig, nil)
	if policy.Classifier == nil {
		t.Fatal("Expected default classifier to be set")
	}
	if policy.ShouldRetry(context.Canceled) {
		t.Error("Default classifier should not retry cancellation")
	}
}
