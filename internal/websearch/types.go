package websearch

import (
	"fmt"
	"strings"
)

const (
	ProviderBrave = "brave"

	defaultCount = 5
	maxCount     = 10
)

type SearchRequest struct {
	Query string
	Count int
}

func (r SearchRequest) Normalize() SearchRequest {
	out := r
	out.Query = strings.TrimSpace(out.Query)
	if out.Count <= 0 {
		out.Count = defaultCount
	}
	if out.Count > maxCount {
		out.Count = maxCount
	}
	return out
}

type ResultItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type SearchResult struct {
	Provider string       `json:"provider"`
	Query    string       `json:"query"`
	Results  []ResultItem `json:"results"`
}

// Text renders results as numbered plain-text evidence.
func (r SearchResult) Text() string {
	if len(r.Results) == 0 {
		return fmt.Sprintf("No web results for %q.", r.Query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Web results for %q:\n", r.Query)
	for i, item := range r.Results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, item.Title, item.URL)
		if item.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", item.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// StatusError is a non-2xx response from the search provider.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("web search failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("web search failed (status %d): %s", e.StatusCode, e.Message)
}
