package engine

import (
	"context"
	"fmt"

	"github.com/floegence/docplanner/internal/plan"
)

// DefaultMaxQueryChars is the web search query limit imposed by the search backend.
const DefaultMaxQueryChars = 400

// DocumentReader returns the text of a named document. Failures wrap
// ErrDocumentNotFound or ErrExtraction.
type DocumentReader interface {
	Read(ctx context.Context, name string) (string, error)
}

// Reasoner is an opaque text-completion capability.
type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// WebSearch runs a query and returns a text rendering of the results.
type WebSearch interface {
	Query(ctx context.Context, text string, maxChars int) (string, error)
}

// Dispatcher executes one tool invocation.
type Dispatcher interface {
	Execute(ctx context.Context, tool plan.Tool, input string) (string, error)
}

// Toolset dispatches the closed set of plan tools to their capabilities.
// It never touches evidence.
type Toolset struct {
	Reader   DocumentReader
	Reasoner Reasoner
	Search   WebSearch

	// MaxQueryChars bounds web search queries; <= 0 means DefaultMaxQueryChars.
	MaxQueryChars int
}

func (t *Toolset) Execute(ctx context.Context, tool plan.Tool, input string) (string, error) {
	if t == nil {
		return "", classifyToolError(tool, ErrUnavailable)
	}
	var (
		out string
		err error
	)
	switch tool {
	case plan.ToolDocumentReader:
		if t.Reader == nil {
			return "", classifyToolError(tool, ErrUnavailable)
		}
		out, err = t.Reader.Read(ctx, input)
	case plan.ToolReasoner:
		if t.Reasoner == nil {
			return "", classifyToolError(tool, ErrUnavailable)
		}
		out, err = t.Reasoner.Complete(ctx, input)
	case plan.ToolWebSearch:
		if t.Search == nil {
			return "", classifyToolError(tool, ErrUnavailable)
		}
		limit := t.maxQueryChars()
		out, err = t.Search.Query(ctx, TruncateQuery(input, limit), limit)
	default:
		return "", classifyToolError(tool, fmt.Errorf("%w: unsupported tool %v", ErrUnavailable, tool))
	}
	if err != nil {
		return "", classifyToolError(tool, err)
	}
	return out, nil
}

func (t *Toolset) maxQueryChars() int {
	if t.MaxQueryChars <= 0 {
		return DefaultMaxQueryChars
	}
	return t.MaxQueryChars
}

// TruncateQuery keeps the first limit characters (runes) of q.
func TruncateQuery(q string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range q {
		if n == limit {
			return q[:i]
		}
		n++
	}
	return q
}
