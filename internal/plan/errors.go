package plan

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPlan          = errors.New("plan has no steps")
	ErrMissingDescription = errors.New("evidence binding without a preceding plan description")
	ErrMissingBinding     = errors.New("plan description without an evidence binding")
	ErrMalformedBinding   = errors.New("malformed evidence binding")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrDuplicateEvidence  = errors.New("duplicate evidence id")
	ErrForwardReference   = errors.New("reference to evidence not yet produced")
)

// ParseError reports why a plan text was rejected. Reason is one of the Err* sentinels.
type ParseError struct {
	Line       int
	EvidenceID string
	Reason     error
	Detail     string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("parse plan")
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.EvidenceID != "" {
		fmt.Fprintf(&b, " (%s)", e.EvidenceID)
	}
	b.WriteString(": ")
	if e.Reason != nil {
		b.WriteString(e.Reason.Error())
	} else {
		b.WriteString("invalid plan")
	}
	if d := strings.TrimSpace(e.Detail); d != "" {
		b.WriteString(": ")
		b.WriteString(d)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Reason
}
