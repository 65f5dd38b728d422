package facade

import "context"

// MergeResult is the outcome of merging one proposed edit into a file.
type MergeResult struct {
	Content   string
	Conflicts int
}

// MergeService merges a human-edited file body into the file's current
// content. Diff and conflict resolution live behind this boundary; the
// facade only consumes success or failure plus a conflict count.
type MergeService interface {
	Merge(ctx context.Context, filePath, original, proposed string) (MergeResult, error)
}
