package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/floegence/docplanner/internal/plan"
)

func TestTruncateQuery_Deterministic(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	q := b.String()
	first := TruncateQuery(q, 400)
	for i := 0; i < 5; i++ {
		if got := TruncateQuery(q, 400); got != first {
			t.Fatalf("run %d: truncation changed", i)
		}
	}
	if len(first) != 400 || first != q[:400] {
		t.Fatalf("len=%d, want first 400 chars", len(first))
	}
}

func TestTruncateQuery_CountsCharactersNotBytes(t *testing.T) {
	t.Parallel()

	q := strings.Repeat("é", 10)
	got := TruncateQuery(q, 4)
	if got != "éééé" {
		t.Fatalf("got=%q, want 4 runes", got)
	}
	if TruncateQuery("short", 400) != "short" {
		t.Fatalf("short query should be unchanged")
	}
}

func TestToolset_WebSearchTruncatesBeforeDispatch(t *testing.T) {
	t.Parallel()

	search := &recordingSearch{}
	ts := &Toolset{Search: search, MaxQueryChars: 10}
	out, err := ts.Execute(context.Background(), plan.ToolWebSearch, "0123456789abcdef")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "results for 0123456789" {
		t.Fatalf("out=%q", out)
	}
	if search.limits[0] != 10 {
		t.Fatalf("limit=%d, want 10", search.limits[0])
	}
}

func TestToolset_ErrorClassification(t *testing.T) {
	t.Parallel()

	ts := &Toolset{
		Reader: mapReader{"a.md": "A"},
		Reasoner: reasonerFunc(func(context.Context, string) (string, error) {
			return "", errors.New("429 quota exceeded")
		}),
	}

	_, err := ts.Execute(context.Background(), plan.ToolDocumentReader, "missing.md")
	var te *ToolError
	if !errors.As(err, &te) || te.Code != ErrorCodeNotFound || te.Retryable() {
		t.Fatalf("reader err=%v, want non-retryable NOT_FOUND", err)
	}

	_, err = ts.Execute(context.Background(), plan.ToolReasoner, "hi")
	if !errors.As(err, &te) || te.Code != ErrorCodeUpstream || !te.Retryable() {
		t.Fatalf("reasoner err=%v, want retryable UPSTREAM_ERROR", err)
	}

	_, err = ts.Execute(context.Background(), plan.ToolWebSearch, "q")
	if !errors.As(err, &te) || te.Code != ErrorCodeUnavailable || te.Retryable() {
		t.Fatalf("search err=%v, want UNAVAILABLE", err)
	}
}

func TestToolset_ExtractionError(t *testing.T) {
	t.Parallel()

	ts := &Toolset{Reader: readerFunc(func(context.Context, string) (string, error) {
		return "", errors.Join(ErrExtraction, errors.New("bad xref table"))
	})}
	_, err := ts.Execute(context.Background(), plan.ToolDocumentReader, "broken.pdf")
	var te *ToolError
	if !errors.As(err, &te) || te.Code != ErrorCodeExtraction {
		t.Fatalf("err=%v, want EXTRACTION_ERROR", err)
	}
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err should wrap ErrExtraction")
	}
}

type readerFunc func(ctx context.Context, name string) (string, error)

func (f readerFunc) Read(ctx context.Context, name string) (string, error) { return f(ctx, name) }
