// Package metrics provides metrics recording for LLM client operations.
package metrics

import "time"

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(
		model, threadID string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// IncInterrupt increments the counter for workflow suspensions awaiting
	// human review.
	IncInterrupt(threadID, toolName string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _ string,
	_, _ int,
	_ float64,
	_ bool,
	_ string,
	_ time.Duration,
) {
}

// IncInterrupt does nothing in the no-op recorder.
func (n *NoopRecorder) IncInterrupt(_, _ string) {}
