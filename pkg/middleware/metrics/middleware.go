package metrics

import (
	"context"
	"time"

	"assistant/pkg/config"
	"assistant/pkg/llm"
	"assistant/pkg/llmerrors"
	"assistant/pkg/logx"
	"assistant/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor extracts token usage from a request and response pair.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor counts tokens with the tiktoken tokenizer.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	promptTokens = utils.CountTokensSimple(promptText)
	completionTokens = utils.CountTokensSimple(resp.Content)
	return promptTokens, completionTokens
}

// EstimateCost computes the USD cost of a request from the static pricing
// catalog. Unknown models cost zero.
func EstimateCost(model string, promptTokens, completionTokens int) float64 {
	info, ok := config.KnownModels[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1e6*info.InputCPM + float64(completionTokens)/1e6*info.OutputCPM
}

// Middleware returns a middleware that records metrics for LLM operations.
// It tracks request latency, token usage, cost, success rates, and error
// types. The thread ID label is read from the request context.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()
				threadID := llm.ThreadIDFrom(ctx)

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				errorType := ""
				if err != nil {
					errorType = llmerrors.TypeOf(err).String()
				}

				cost := EstimateCost(model, promptTokens, completionTokens)
				recorder.ObserveRequest(model, threadID, promptTokens, completionTokens, cost, err == nil, errorType, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Info("LLM request: model=%s thread=%s tokens=%d+%d status=%s duration=%dms",
						model, threadID, promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware passes errors through unchanged
			},
			next.GetModelName,
		)
	}
}
