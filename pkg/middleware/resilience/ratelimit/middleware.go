package ratelimit

import (
	"context"
	"strings"

	"assistant/pkg/llm"
	"assistant/pkg/logx"
	"assistant/pkg/utils"
)

// TokenEstimator predicts the prompt token count of a request.
type TokenEstimator interface {
	EstimatePrompt(req llm.CompletionRequest) int
}

// simpleEstimator counts tokens heuristically over the message contents.
type simpleEstimator struct{}

func (simpleEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	var b strings.Builder
	for i := range req.Messages {
		b.WriteString(req.Messages[i].Content)
		b.WriteByte('\n')
	}
	return utils.CountTokensSimple(b.String())
}

// Middleware returns a middleware that throttles requests through the given
// limiter. The budget charged per request is the estimated prompt size plus
// the requested completion ceiling. A nil estimator falls back to heuristic
// counting.
func Middleware(limiter *Limiter, estimator TokenEstimator, logger *logx.Logger) llm.Middleware {
	if estimator == nil {
		estimator = simpleEstimator{}
	}

	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				budget := estimator.EstimatePrompt(req) + req.MaxTokens

				release, err := limiter.Acquire(ctx, budget)
				if err != nil {
					if logger != nil {
						logger.Warn("throttled request rejected (budget %d tokens): %v", budget, err)
					}
					return llm.CompletionResponse{}, err
				}
				defer release()

				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}
