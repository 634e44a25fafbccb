package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	braveWebSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"
	braveMaxBodyBytes      = 2 << 20
)

type braveResponse struct {
	Web struct {
		Results []braveHit `json:"results"`
	} `json:"web"`
}

type braveHit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// items drops hits without a URL and falls back to the URL as title.
func (r braveResponse) items() []ResultItem {
	out := make([]ResultItem, 0, len(r.Web.Results))
	for _, h := range r.Web.Results {
		link := strings.TrimSpace(h.URL)
		if link == "" {
			continue
		}
		item := ResultItem{Title: strings.TrimSpace(h.Title), URL: link, Snippet: strings.TrimSpace(h.Description)}
		if item.Title == "" {
			item.Title = link
		}
		out = append(out, item)
	}
	return out
}

func (c *Client) braveRequest(ctx context.Context, req SearchRequest) (*http.Request, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("brave endpoint: %w", err)
	}
	params := u.Query()
	params.Set("q", req.Query)
	params.Set("count", strconv.Itoa(req.Count))
	u.RawQuery = params.Encode()

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Accept", "application/json")
	r.Header.Set("X-Subscription-Token", c.apiKey)
	return r, nil
}

func (c *Client) braveWebSearch(ctx context.Context, req SearchRequest) (SearchResult, error) {
	httpReq, err := c.braveRequest(ctx, req)
	if err != nil {
		return SearchResult{}, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SearchResult{}, err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, braveMaxBodyBytes)
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(body)
		return SearchResult{}, &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	var decoded braveResponse
	if err := json.NewDecoder(body).Decode(&decoded); err != nil {
		return SearchResult{}, fmt.Errorf("decode brave response: %w", err)
	}
	return SearchResult{Provider: ProviderBrave, Query: req.Query, Results: decoded.items()}, nil
}
