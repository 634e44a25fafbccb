package plan

import (
	"fmt"
	"strings"
)

// Tool is the closed set of capabilities a plan step may bind to.
type Tool int

const (
	ToolUnknown Tool = iota
	ToolDocumentReader
	ToolReasoner
	ToolWebSearch
)

// Wire names accepted in plan text (case-sensitive).
const (
	ToolNameFileReader = "FileReader"
	ToolNameLLM        = "LLM"
	ToolNameGoogle     = "Google"
)

func (t Tool) String() string {
	switch t {
	case ToolDocumentReader:
		return ToolNameFileReader
	case ToolReasoner:
		return ToolNameLLM
	case ToolWebSearch:
		return ToolNameGoogle
	default:
		return "unknown"
	}
}

// LookupTool resolves a wire tool name. Matching is exact.
func LookupTool(name string) (Tool, bool) {
	switch name {
	case ToolNameFileReader:
		return ToolDocumentReader, true
	case ToolNameLLM:
		return ToolReasoner, true
	case ToolNameGoogle:
		return ToolWebSearch, true
	default:
		return ToolUnknown, false
	}
}

// Step is one parsed plan step. Steps are immutable after parsing.
type Step struct {
	Description string `json:"description"`
	EvidenceID  string `json:"evidence_id"`
	Tool        Tool   `json:"tool"`
	RawInput    string `json:"raw_input"`

	// Line is the 1-based line of the binding in the source text.
	Line int `json:"line"`
}

// Binding renders the step in plan wire format: "#E1 = FileReader[doc.pdf]".
func (s Step) Binding() string {
	return fmt.Sprintf("%s = %s[%s]", s.EvidenceID, s.Tool, s.RawInput)
}

// Render formats steps back into plan text. Parsing the output yields the same
// steps apart from Line.
func Render(steps []Step) string {
	var b strings.Builder
	for i, s := range steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Plan: ")
		b.WriteString(s.Description)
		b.WriteByte('\n')
		b.WriteString(s.Binding())
	}
	return b.String()
}
