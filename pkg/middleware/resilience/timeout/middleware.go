// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"assistant/pkg/llm"
)

// Middleware returns a middleware that applies a per-request timeout so a
// hanging provider cannot stall the workflow indefinitely.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			next.GetModelName,
		)
	}
}
