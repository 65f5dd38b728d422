package llm

import "context"

type threadIDKey struct{}

// WithThreadID attaches a workflow thread ID to the context so middleware can
// label per-thread observations.
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadIDKey{}, threadID)
}

// ThreadIDFrom extracts the workflow thread ID from the context, or "".
func ThreadIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(threadIDKey{}).(string); ok {
		return id
	}
	return ""
}
