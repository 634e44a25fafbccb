package docintel

import (
	"fmt"
	"slices"
	"strings"
)

const truncatedMarker = "\n[document truncated]"

// Prompts carry document content only. Names and paths stay out so that
// results are valid for any copy of the same bytes.

func classifyPrompt(s *Strategies, text string) string {
	var b strings.Builder
	b.WriteString("Classify the document below into exactly one of these types:\n")
	for _, st := range s.Types {
		fmt.Fprintf(&b, "- %s: %s\n", st.Type, st.Description)
	}
	b.WriteString("\nRespond with only a JSON object:\n")
	b.WriteString(`{"type": "<one type from the list>", "confidence": <number between 0 and 1>, "summary": "<one sentence>"}`)
	b.WriteString("\n\nDocument:\n<<<\n")
	b.WriteString(text)
	b.WriteString("\n>>>")
	return b.String()
}

func extractPrompt(st Strategy, c Classification, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are extracting structured information from a %s document.\n", st.Type)
	if c.Summary != "" {
		fmt.Fprintf(&b, "Classifier summary: %s\n", c.Summary)
	}
	b.WriteString(st.Instructions)
	b.WriteString("\n")
	if len(st.Fields) > 0 {
		fmt.Fprintf(&b, "Fields to extract: %s. Leave a field out when the document does not state it.\n", strings.Join(st.Fields, ", "))
	}
	b.WriteString("\nRespond with only a JSON object:\n")
	b.WriteString(`{"fields": {"<field>": "<value>"}, "summary": "<two or three sentences>", "key_points": ["<fact>"]}`)
	b.WriteString("\n\nDocument:\n<<<\n")
	b.WriteString(text)
	b.WriteString("\n>>>")
	return b.String()
}

// analyzePrompt lists documents by content hash so the prompt is stable for a
// given document set regardless of input order.
func analyzePrompt(records []DocumentRecord) string {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b DocumentRecord) int { return strings.Compare(a.ContentHash, b.ContentHash) })
	sorted = slices.CompactFunc(sorted, func(a, b DocumentRecord) bool { return a.ContentHash == b.ContentHash })

	var b strings.Builder
	fmt.Fprintf(&b, "You are reviewing %d documents together before planning work that uses them.\n", len(sorted))
	b.WriteString("Consolidate what they say, list information that is missing but needed to act on them (gaps), ")
	b.WriteString("and list statements that disagree across documents (conflicts).\n")
	b.WriteString("\nRespond with only a JSON object:\n")
	b.WriteString(`{"summary": "<consolidated summary>", "gaps": ["<gap>"], "conflicts": ["<conflict>"]}`)
	b.WriteString("\n")
	for i, r := range sorted {
		fmt.Fprintf(&b, "\nDocument %d (%s, %s):\n", i+1, r.Classification.Type, shortHash(r.ContentHash))
		writeExtraction(&b, r.Extraction)
	}
	return b.String()
}

func writeExtraction(b *strings.Builder, e Extraction) {
	if e.Summary != "" {
		fmt.Fprintf(b, "Summary: %s\n", e.Summary)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("Fields:\n")
		for _, k := range keys {
			fmt.Fprintf(b, "- %s: %s\n", k, e.Fields[k])
		}
	}
	if len(e.KeyPoints) > 0 {
		b.WriteString("Key points:\n")
		for _, p := range e.KeyPoints {
			fmt.Fprintf(b, "- %s\n", p)
		}
	}
}

// truncateText keeps the first limit runes of text.
func truncateText(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i] + truncatedMarker
		}
		n++
	}
	return text
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
