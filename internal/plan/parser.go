// Package plan parses plan text into typed, ordered steps.
//
// Plan text repeats a description and a binding per step:
//
//	Plan: Read the contract
//	#E1 = FileReader[contract.pdf]
//	Plan: Summarize the obligations
//	#E2 = LLM[List the obligations in #E1]
//
// Text before the first "Plan:" marker is ignored. Description text may
// continue on following lines until the binding.
package plan

import (
	"fmt"
	"strings"
)

// Parse turns plan text into steps in binding order. Any error is a *ParseError.
func Parse(text string) ([]Step, error) {
	p := parser{seen: make(map[string]int)}
	for _, tok := range Lex(text) {
		if err := p.consume(tok); err != nil {
			return nil, err
		}
	}
	if p.pending != nil {
		return nil, &ParseError{Line: p.pending.line, Reason: ErrMissingBinding, Detail: p.pending.text()}
	}
	if len(p.steps) == 0 {
		return nil, &ParseError{Reason: ErrEmptyPlan}
	}
	if err := checkReferences(p.steps, p.seen); err != nil {
		return nil, err
	}
	return p.steps, nil
}

type pendingDescription struct {
	line  int
	parts []string
}

func (d *pendingDescription) text() string {
	return strings.TrimSpace(strings.Join(d.parts, " "))
}

type parser struct {
	steps   []Step
	seen    map[string]int // evidence id -> step index
	pending *pendingDescription
}

func (p *parser) consume(tok Token) error {
	switch tok.Kind {
	case TokenDescription:
		if p.pending != nil {
			return &ParseError{Line: p.pending.line, Reason: ErrMissingBinding, Detail: p.pending.text()}
		}
		p.pending = &pendingDescription{line: tok.Line}
		if tok.Text != "" {
			p.pending.parts = append(p.pending.parts, tok.Text)
		}
		return nil

	case TokenText:
		// Continuation of an open description; anything else is commentary.
		if p.pending != nil {
			p.pending.parts = append(p.pending.parts, tok.Text)
		}
		return nil

	case TokenInvalid:
		return &ParseError{Line: tok.Line, Reason: ErrMalformedBinding, Detail: tok.Detail}

	case TokenBinding:
		if p.pending == nil {
			return &ParseError{Line: tok.Line, EvidenceID: tok.EvidenceID, Reason: ErrMissingDescription}
		}
		tool, ok := LookupTool(tok.ToolName)
		if !ok {
			return &ParseError{
				Line:       tok.Line,
				EvidenceID: tok.EvidenceID,
				Reason:     ErrUnknownTool,
				Detail:     fmt.Sprintf("%q (want %s|%s|%s)", tok.ToolName, ToolNameFileReader, ToolNameLLM, ToolNameGoogle),
			}
		}
		if prev, dup := p.seen[tok.EvidenceID]; dup {
			return &ParseError{
				Line:       tok.Line,
				EvidenceID: tok.EvidenceID,
				Reason:     ErrDuplicateEvidence,
				Detail:     fmt.Sprintf("first bound at line %d", p.steps[prev].Line),
			}
		}
		p.seen[tok.EvidenceID] = len(p.steps)
		p.steps = append(p.steps, Step{
			Description: p.pending.text(),
			EvidenceID:  tok.EvidenceID,
			Tool:        tool,
			RawInput:    tok.Argument,
			Line:        tok.Line,
		})
		p.pending = nil
		return nil

	default:
		return &ParseError{Line: tok.Line, Reason: ErrMalformedBinding, Detail: "unexpected token " + tok.Kind.String()}
	}
}

// checkReferences rejects steps that reference their own id or an id bound
// by a later step. Ids never bound anywhere are left to the resolver.
func checkReferences(steps []Step, bound map[string]int) error {
	for i, s := range steps {
		for _, ref := range ReferencedIDs(s.RawInput) {
			at, ok := bound[ref]
			if !ok || at < i {
				continue
			}
			return &ParseError{
				Line:       s.Line,
				EvidenceID: s.EvidenceID,
				Reason:     ErrForwardReference,
				Detail:     fmt.Sprintf("%s is bound at line %d", ref, steps[at].Line),
			}
		}
	}
	return nil
}
