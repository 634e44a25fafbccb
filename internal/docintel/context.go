package docintel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	planningContextName = "planning_context.md"
	analysisName        = "analysis.json"
)

// renderPlanningContext is the text handed to plan generation. Document
// names appear here because plans read documents by name.
func renderPlanningContext(records []DocumentRecord, a Analysis) string {
	var b strings.Builder
	b.WriteString("# Planning context\n\n")
	b.WriteString("## Available documents\n")
	b.WriteString("Read a document with FileReader[<name>].\n")
	for _, r := range records {
		fmt.Fprintf(&b, "\n### %s\n", r.Name)
		fmt.Fprintf(&b, "Type: %s (confidence %.2f)\n", r.Classification.Type, r.Classification.Confidence)
		writeExtraction(&b, r.Extraction)
	}

	b.WriteString("\n## Cross-document analysis\n")
	if a.Summary != "" {
		b.WriteString(a.Summary)
		b.WriteString("\n")
	}
	writeList(&b, "Gaps", a.Gaps)
	writeList(&b, "Conflicts", a.Conflicts)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeList(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "\n### %s\n", title)
	if len(items) == 0 {
		b.WriteString("None identified.\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

type documentArtifact struct {
	ContentHash    string          `json:"content_hash"`
	Names          []string        `json:"names"`
	Classification json.RawMessage `json:"classification"`
	Extraction     json.RawMessage `json:"extraction"`
}

type analysisArtifact struct {
	Key       string          `json:"key"`
	Documents []string        `json:"documents"`
	Analysis  json.RawMessage `json:"analysis"`
}

// writeArtifacts writes one JSON and one Markdown file per distinct content
// hash, then analysis.json and planning_context.md.
func writeArtifacts(dir string, res *Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	var order []string
	byHash := map[string]*documentArtifact{}
	recByHash := map[string]DocumentRecord{}
	for _, r := range res.Records {
		art, ok := byHash[r.ContentHash]
		if !ok {
			art = &documentArtifact{ContentHash: r.ContentHash, Classification: r.RawClass, Extraction: r.RawExtract}
			byHash[r.ContentHash] = art
			recByHash[r.ContentHash] = r
			order = append(order, r.ContentHash)
		}
		art.Names = append(art.Names, r.Name)
	}

	var paths []string
	for _, h := range order {
		art := byHash[h]
		b, err := json.MarshalIndent(art, "", "  ")
		if err != nil {
			return nil, err
		}
		jsonPath := filepath.Join(dir, shortHash(h)+".json")
		if err := writeFileAtomic(jsonPath, append(b, '\n')); err != nil {
			return nil, err
		}
		mdPath := filepath.Join(dir, shortHash(h)+".md")
		if err := writeFileAtomic(mdPath, []byte(documentMarkdown(recByHash[h], art.Names))); err != nil {
			return nil, err
		}
		paths = append(paths, jsonPath, mdPath)
	}

	docs := slices.Clone(order)
	slices.Sort(docs)
	b, err := json.MarshalIndent(analysisArtifact{Key: res.AnalysisKey, Documents: docs, Analysis: res.RawAnalysis}, "", "  ")
	if err != nil {
		return nil, err
	}
	ap := filepath.Join(dir, analysisName)
	if err := writeFileAtomic(ap, append(b, '\n')); err != nil {
		return nil, err
	}
	pp := filepath.Join(dir, planningContextName)
	if err := writeFileAtomic(pp, []byte(res.PlanningContext)); err != nil {
		return nil, err
	}
	return append(paths, ap, pp), nil
}

func documentMarkdown(r DocumentRecord, names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "- Content hash: `%s`\n", r.ContentHash)
	fmt.Fprintf(&b, "- Type: %s (confidence %.2f)\n", r.Classification.Type, r.Classification.Confidence)
	if r.Classification.Summary != "" {
		fmt.Fprintf(&b, "- Classifier summary: %s\n", r.Classification.Summary)
	}
	b.WriteString("\n## Extraction\n")
	writeExtraction(&b, r.Extraction)
	return b.String()
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
