package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/floegence/docplanner/internal/plan"
	"github.com/floegence/docplanner/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func fastRetry(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: -1}
}

type mapReader map[string]string

func (m mapReader) Read(_ context.Context, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
	}
	return v, nil
}

type reasonerFunc func(ctx context.Context, prompt string) (string, error)

func (f reasonerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type recordingSearch struct {
	mu      sync.Mutex
	queries []string
	limits  []int
}

func (s *recordingSearch) Query(_ context.Context, text string, maxChars int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, text)
	s.limits = append(s.limits, maxChars)
	return "results for " + text, nil
}

type dispatcherFunc func(ctx context.Context, tool plan.Tool, input string) (string, error)

func (f dispatcherFunc) Execute(ctx context.Context, tool plan.Tool, input string) (string, error) {
	return f(ctx, tool, input)
}

func mustParse(t interface {
	Helper()
	Fatalf(string, ...any)
}, text string) []plan.Step {
	t.Helper()
	steps, err := plan.Parse(text)
	if err != nil {
		t.Fatalf("plan.Parse: %v", err)
	}
	return steps
}
