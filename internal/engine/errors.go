package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/floegence/docplanner/internal/plan"
)

// ErrorCode is a stable, machine-readable tool failure code.
type ErrorCode string

const (
	ErrorCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrorCodeExtraction  ErrorCode = "EXTRACTION_ERROR"
	ErrorCodeUpstream    ErrorCode = "UPSTREAM_ERROR"
	ErrorCodeUnavailable ErrorCode = "UNAVAILABLE"
)

// Sentinels returned (wrapped) by capability implementations.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrExtraction       = errors.New("document text extraction failed")
	ErrUnavailable      = errors.New("capability not configured")
)

// ToolError is a classified failure of one tool invocation.
type ToolError struct {
	Code       ErrorCode
	Tool       plan.Tool
	EvidenceID string
	Attempts   int
	Err        error
}

func (e *ToolError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Tool, e.Code)
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the caller may retry. Only upstream failures are.
func (e *ToolError) Retryable() bool {
	return e != nil && e.Code == ErrorCodeUpstream
}

// classifyToolError maps a capability error to a ToolError. Reasoner and web
// search failures are always upstream failures; a per-call timeout is too.
func classifyToolError(tool plan.Tool, err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	out := &ToolError{Code: ErrorCodeUpstream, Tool: tool, Err: err}
	switch {
	case errors.Is(err, ErrUnavailable):
		out.Code = ErrorCodeUnavailable
	case tool != plan.ToolDocumentReader, errors.Is(err, context.DeadlineExceeded):
		// upstream
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, fs.ErrNotExist):
		out.Code = ErrorCodeNotFound
	default:
		out.Code = ErrorCodeExtraction
	}
	return out
}

// StepError is the run-level failure of one plan step.
type StepError struct {
	Index      int
	EvidenceID string
	Tool       plan.Tool
	Err        error
}

func (e *StepError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("step %d %s (%s) failed: %v", e.Index+1, e.EvidenceID, e.Tool, e.Err)
}

func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnresolvedEvidenceError is raised instead of an anomaly when strict
// evidence resolution is enabled.
type UnresolvedEvidenceError struct {
	References []string
}

func (e *UnresolvedEvidenceError) Error() string {
	return "unresolved evidence references: " + strings.Join(e.References, ", ")
}
