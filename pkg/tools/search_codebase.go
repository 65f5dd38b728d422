package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// DefaultTopK is the result count used when the model omits topK.
const DefaultTopK = 5

// CodeMatch is a single codebase search hit.
type CodeMatch struct {
	Path    string  `json:"path"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// SearchBackend is the retrieval boundary for search_codebase. The production
// deployment fronts a vector store; the in-memory keyword backend below is the
// default for single-instance use and tests.
type SearchBackend interface {
	Search(ctx context.Context, query string, topK int) ([]CodeMatch, error)
}

// SearchCodebaseTool performs semantic search over the indexed project files.
type SearchCodebaseTool struct {
	backend SearchBackend
}

// NewSearchCodebaseTool creates a codebase search tool over the given backend.
func NewSearchCodebaseTool(backend SearchBackend) *SearchCodebaseTool {
	return &SearchCodebaseTool{backend: backend}
}

// Name returns the tool name.
func (t *SearchCodebaseTool) Name() string {
	return ToolSearchCodebase
}

// Definition returns the tool definition for the model.
func (t *SearchCodebaseTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSearchCodebase,
		Description: "Search the project codebase for relevant files and snippets. Use this to find where functionality lives before reading or editing files.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "Natural language or keyword query",
				},
				"topK": {
					Type:        "number",
					Description: "Maximum number of results to return (default 5)",
				},
			},
			Required: []string{"query"},
		},
	}
}

// Exec runs the search.
func (t *SearchCodebaseTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	topK := DefaultTopK
	if raw, ok := args["topK"].(float64); ok && raw > 0 {
		topK = int(raw)
	}

	matches, err := t.backend.Search(ctx, query, topK)
	if err != nil {
		return errorResult(fmt.Sprintf("codebase search failed: %v", err))
	}

	return jsonResult(map[string]any{
		"success":      true,
		"query":        query,
		"result_count": len(matches),
		"results":      matches,
	})
}

// =============================================================================
// In-memory keyword backend
// =============================================================================

//nolint:gochecknoglobals // Static token pattern
var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_-]+`)

// KeywordBackend scores indexed documents by query term frequency. It stands
// in for a vector store in single-instance deployments.
type KeywordBackend struct {
	mu   sync.RWMutex
	docs map[string]string // path -> content
}

// NewKeywordBackend creates an empty keyword search backend.
func NewKeywordBackend() *KeywordBackend {
	return &KeywordBackend{
		docs: make(map[string]string),
	}
}

// Index adds or replaces a document.
func (b *KeywordBackend) Index(path, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[path] = content
}

// Search returns the topK documents with the highest query term overlap.
func (b *KeywordBackend) Search(_ context.Context, query string, topK int) ([]CodeMatch, error) {
	terms := tokenPattern.FindAllString(strings.ToLower(query), -1)
	if len(terms) == 0 {
		return nil, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	matches := make([]CodeMatch, 0, len(b.docs))
	for path, content := range b.docs {
		lower := strings.ToLower(content)
		score := 0.0
		for _, term := range terms {
			score += float64(strings.Count(lower, term))
		}
		if score > 0 {
			matches = append(matches, CodeMatch{
				Path:    path,
				Snippet: snippet(content),
				Score:   score,
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Path < matches[j].Path
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// snippet returns the first few lines of a document.
func snippet(content string) string {
	const maxLines = 5
	lines := strings.SplitN(content, "\n", maxLines+1)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}
