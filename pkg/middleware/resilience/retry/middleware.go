package retry

import (
	"context"
	"fmt"
	"time"

	"assistant/pkg/llm"
)

// Middleware returns a middleware that wraps an LLM client with retry logic.
// Failed requests are retried according to the configured policy with
// exponential backoff.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						delay := policy.CalculateDelay(attempt)
						if delay > 0 {
							select {
							case <-ctx.Done():
								return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-time.After(delay):
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}

					lastErr = err

					if !policy.ShouldRetry(err) {
						break
					}
				}

				return llm.CompletionResponse{}, lastErr
			},
			next.GetModelName,
		)
	}
}
