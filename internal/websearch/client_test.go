package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type braveMock struct {
	mu      sync.Mutex
	queries []string
	counts  []string
}

func (m *braveMock) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Subscription-Token") != "bsa-test" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	m.mu.Lock()
	m.queries = append(m.queries, r.URL.Query().Get("q"))
	m.counts = append(m.counts, r.URL.Query().Get("count"))
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"web": map[string]any{"results": []any{
			map[string]any{"title": "Go", "url": "https://go.dev", "description": "The Go language"},
			map[string]any{"title": "", "url": "https://pkg.go.dev"},
			map[string]any{"title": "no url", "url": ""},
		}},
	})
}

func newMockClient(t *testing.T, m *braveMock) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{APIKey: "bsa-test", Endpoint: srv.URL + "/res/v1/web/search", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClient_SearchParsesResults(t *testing.T) {
	t.Parallel()

	m := &braveMock{}
	c := newMockClient(t, m)
	res, err := c.Search(context.Background(), SearchRequest{Query: "  golang  ", Count: 50})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("results=%+v, want 2", res.Results)
	}
	if res.Results[1].Title != "https://pkg.go.dev" {
		t.Fatalf("empty title should fall back to url, got %q", res.Results[1].Title)
	}
	if m.queries[0] != "golang" || m.counts[0] != "10" {
		t.Fatalf("q=%q count=%q", m.queries[0], m.counts[0])
	}
}

func TestClient_QueryTruncatesAndRendersText(t *testing.T) {
	t.Parallel()

	m := &braveMock{}
	c := newMockClient(t, m)
	long := strings.Repeat("q", 1000)
	out, err := c.Query(context.Background(), long, 400)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(m.queries[0]) != 400 {
		t.Fatalf("sent query len=%d, want 400", len(m.queries[0]))
	}
	if !strings.Contains(out, "1. Go\n   https://go.dev\n   The Go language") {
		t.Fatalf("out=%q", out)
	}
}

func TestClient_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{APIKey: "k", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Query(context.Background(), "x", 400)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err=%v, want StatusError 429", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Options{}); err == nil {
		t.Fatalf("missing key should fail")
	}
	if _, err := NewClient(Options{Provider: "bing", APIKey: "k"}); err == nil {
		t.Fatalf("unknown provider should fail")
	}
	if got := (SearchResult{Query: "x"}).Text(); got != `No web results for "x".` {
		t.Fatalf("empty Text=%q", got)
	}
}
