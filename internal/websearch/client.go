// Package websearch queries a hosted web search API and renders results as
// plain-text evidence.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

type Options struct {
	Provider string
	APIKey   string
	// Endpoint overrides the provider's default URL.
	Endpoint   string
	Count      int
	HTTPClient *http.Client
}

type Client struct {
	provider string
	apiKey   string
	endpoint string
	count    int
	http     *http.Client
}

func NewClient(opts Options) (*Client, error) {
	provider := strings.TrimSpace(strings.ToLower(opts.Provider))
	if provider == "" {
		provider = ProviderBrave
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("missing web search api key")
	}
	c := &Client{
		provider: provider,
		apiKey:   apiKey,
		endpoint: strings.TrimSpace(opts.Endpoint),
		count:    opts.Count,
		http:     opts.HTTPClient,
	}
	switch provider {
	case ProviderBrave:
		if c.endpoint == "" {
			c.endpoint = braveWebSearchEndpoint
		}
	default:
		return nil, fmt.Errorf("unsupported web search provider %q", provider)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	return c, nil
}

func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	if c == nil {
		return SearchResult{}, errors.New("nil web search client")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Count <= 0 {
		req.Count = c.count
	}
	req = req.Normalize()
	if req.Query == "" {
		return SearchResult{}, errors.New("missing query")
	}
	switch c.provider {
	case ProviderBrave:
		return c.braveWebSearch(ctx, req)
	default:
		return SearchResult{}, fmt.Errorf("unsupported web search provider %q", c.provider)
	}
}

// Query runs text as a search and returns rendered results. Queries longer
// than maxChars runes are cut to the first maxChars.
func (c *Client) Query(ctx context.Context, text string, maxChars int) (string, error) {
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = string([]rune(text)[:maxChars])
	}
	res, err := c.Search(ctx, SearchRequest{Query: text})
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}
