package circuit

import (
	"context"

	"assistant/pkg/llm"
)

// Middleware returns a middleware that wraps an LLM client with circuit
// breaker logic. While the circuit is open, requests are rejected without
// touching the underlying client so a struggling provider gets room to
// recover.
func Middleware(breaker *Breaker) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{State: breaker.GetState()}
				}

				resp, err := next.Complete(ctx, req)
				breaker.Record(err == nil)

				return resp, err //nolint:wrapcheck // Middleware passes errors through unchanged
			},
			next.GetModelName,
		)
	}
}
